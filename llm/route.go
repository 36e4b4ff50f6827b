package llm

import (
	"context"
	"strings"

	"github.com/semtexzv/termineer-sub001/errors"
)

// Provider identifies a backend family.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderGoogle     Provider = "google"
	ProviderDeepSeek   Provider = "deepseek"
	ProviderCohere     Provider = "cohere"
	ProviderXAI        Provider = "xai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderBedrock    Provider = "bedrock"
)

// explicit maps the provider token of "provider/model" syntax.
var explicit = map[string]Provider{
	"anthropic":  ProviderAnthropic,
	"openai":     ProviderOpenAI,
	"google":     ProviderGoogle,
	"gemini":     ProviderGoogle,
	"deepseek":   ProviderDeepSeek,
	"cohere":     ProviderCohere,
	"xai":        ProviderXAI,
	"grok":       ProviderXAI,
	"openrouter": ProviderOpenRouter,
	"bedrock":    ProviderBedrock,
}

// ParseModelString resolves a model string to its provider and bare model
// name. Explicit "provider/model" syntax wins; otherwise the provider is
// inferred from the model name prefix. OpenRouter models keep their full
// path (the part after "openrouter/") since OpenRouter routes by it.
func ParseModelString(model string) (Provider, string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", "", &ConfigError{Message: "empty model string"}
	}

	if head, rest, ok := strings.Cut(model, "/"); ok {
		if p, known := explicit[strings.ToLower(head)]; known {
			if rest == "" {
				return "", "", &ConfigError{Message: "model missing after provider prefix " + head}
			}
			return p, rest, nil
		}
	}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude-"):
		return ProviderAnthropic, model, nil
	case strings.HasPrefix(lower, "gpt-"), strings.HasPrefix(lower, "o1"):
		return ProviderOpenAI, model, nil
	case strings.HasPrefix(lower, "gemini-"):
		return ProviderGoogle, model, nil
	case strings.HasPrefix(lower, "deepseek-"):
		return ProviderDeepSeek, model, nil
	case strings.HasPrefix(lower, "command-"):
		return ProviderCohere, model, nil
	case strings.HasPrefix(lower, "grok-"):
		return ProviderXAI, model, nil
	}
	return "", "", &ConfigError{Message: "cannot infer provider from model " + model}
}

// New builds the backend for a model string, reading the provider's API key
// from the environment.
func New(ctx context.Context, model string) (Backend, error) {
	provider, name, err := ParseModelString(model)
	if err != nil {
		return nil, err
	}
	switch provider {
	case ProviderAnthropic:
		return NewAnthropic(name)
	case ProviderGoogle:
		return NewGemini(ctx, name)
	case ProviderBedrock:
		return NewBedrock(ctx, name)
	case ProviderOpenAI, ProviderDeepSeek, ProviderCohere, ProviderXAI, ProviderOpenRouter:
		return NewOpenAICompatible(provider, name)
	}
	return nil, errors.New("unsupported provider %q", provider)
}
