package llm

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestGeminiErrorMapping(t *testing.T) {
	var rate *RateLimitError
	require.ErrorAs(t, geminiError(&googleapi.Error{Code: 429}), &rate)

	var cfg *ConfigError
	require.ErrorAs(t, geminiError(&googleapi.Error{Code: 401}), &cfg)
	require.ErrorAs(t, geminiError(&googleapi.Error{Code: 403}), &cfg)

	var api *APIError
	require.ErrorAs(t, geminiError(&googleapi.Error{Code: 500, Message: "boom"}), &api)
	assert.Equal(t, 500, api.Status)

	err := geminiError(io.ErrUnexpectedEOF)
	assert.NotErrorAs(t, err, &rate)
	assert.Contains(t, err.Error(), "Gemini")
}

func TestGeminiRateLimitIsRetried(t *testing.T) {
	delay, retryable := retryDelay(geminiError(&googleapi.Error{Code: 429}), 0, DefaultRetryConfig())
	assert.True(t, retryable)
	assert.Greater(t, delay, time.Duration(0))
}
