package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semtexzv/termineer-sub001/conversation"
)

// scriptedBackend returns canned errors then a success.
type scriptedBackend struct {
	errs  []error
	calls int
}

func (s *scriptedBackend) Send(_ context.Context, _ *Request) (*Response, error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) {
		return nil, s.errs[s.calls]
	}
	return &Response{Content: []conversation.Content{{Kind: conversation.ContentText, Text: "ok"}}}, nil
}

func (s *scriptedBackend) CountTokens(context.Context, []conversation.Message, string) (Usage, error) {
	return Usage{}, nil
}
func (s *scriptedBackend) MaxTokenLimit() int       { return 1000 }
func (s *scriptedBackend) SafeInputTokenLimit() int { return 800 }
func (s *scriptedBackend) Name() string             { return "scripted" }
func (s *scriptedBackend) Model() string            { return "scripted-1" }

func collectSleeps(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	b := &scriptedBackend{errs: []error{&RateLimitError{RetryAfter: time.Second}}}
	var slept []time.Duration
	cfg := DefaultRetryConfig()
	cfg.Sleep = collectSleeps(&slept)

	resp, err := CallWithRetry(context.Background(), b, &Request{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
	require.Len(t, slept, 1)
	assert.Equal(t, time.Second, slept[0])
	assert.Equal(t, 2, b.calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	b := &scriptedBackend{errs: []error{
		&RateLimitError{}, &RateLimitError{}, &RateLimitError{}, &RateLimitError{}, &RateLimitError{},
	}}
	var slept []time.Duration
	cfg := DefaultRetryConfig()
	cfg.Sleep = collectSleeps(&slept)

	_, err := CallWithRetry(context.Background(), b, &Request{}, cfg)
	require.Error(t, err)
	var rl *RateLimitError
	assert.ErrorAs(t, err, &rl)
	assert.Equal(t, 5, b.calls)
	assert.Len(t, slept, 4)
}

func TestRetryStopsOnNonTransient(t *testing.T) {
	b := &scriptedBackend{errs: []error{&APIError{Status: 500, Message: "boom"}}}
	cfg := DefaultRetryConfig()
	cfg.Sleep = func(context.Context, time.Duration) error { t.Fatal("must not sleep"); return nil }

	_, err := CallWithRetry(context.Background(), b, &Request{}, cfg)
	require.Error(t, err)
	var api *APIError
	assert.ErrorAs(t, err, &api)
	assert.Equal(t, 1, b.calls)
}

func TestRetryBackoffCapped(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	for attempt := 0; attempt < 20; attempt++ {
		d := backoff(attempt, cfg)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
	}
}

func TestRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &scriptedBackend{errs: []error{&RateLimitError{RetryAfter: time.Hour}}}
	cfg := DefaultRetryConfig()
	cfg.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	_, err := CallWithRetry(ctx, b, &Request{}, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}
