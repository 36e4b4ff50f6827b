package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelStringInference(t *testing.T) {
	tests := []struct {
		model    string
		provider Provider
		name     string
	}{
		{"claude-sonnet-4", ProviderAnthropic, "claude-sonnet-4"},
		{"gpt-4o", ProviderOpenAI, "gpt-4o"},
		{"o1-preview", ProviderOpenAI, "o1-preview"},
		{"gemini-1.5-pro", ProviderGoogle, "gemini-1.5-pro"},
		{"deepseek-chat", ProviderDeepSeek, "deepseek-chat"},
		{"command-r-plus", ProviderCohere, "command-r-plus"},
		{"grok-2", ProviderXAI, "grok-2"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, name, err := ParseModelString(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, p)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestParseModelStringExplicitOverride(t *testing.T) {
	p, name, err := ParseModelString("openai/claude-lookalike")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)
	assert.Equal(t, "claude-lookalike", name)
}

func TestParseModelStringOpenRouterKeepsPath(t *testing.T) {
	p, name, err := ParseModelString("openrouter/anthropic/claude-3.5-sonnet")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenRouter, p)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", name)
}

func TestParseModelStringBedrockExplicitOnly(t *testing.T) {
	p, name, err := ParseModelString("bedrock/anthropic.claude-3-5-sonnet-20241022-v2:0")
	require.NoError(t, err)
	assert.Equal(t, ProviderBedrock, p)
	assert.Equal(t, "anthropic.claude-3-5-sonnet-20241022-v2:0", name)
}

func TestParseModelStringUnknown(t *testing.T) {
	_, _, err := ParseModelString("mystery-model-9000")
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, _, err = ParseModelString("")
	assert.Error(t, err)

	_, _, err = ParseModelString("anthropic/")
	assert.Error(t, err)
}

func TestNewWithoutKeyIsConfigError(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropic("claude-sonnet-4")
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
