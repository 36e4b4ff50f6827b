package llm

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/errors"
)

// OpenAIBackend adapts the OpenAI Chat Completions API. The same adapter
// serves DeepSeek, Cohere, xAI and OpenRouter through their
// OpenAI-compatible endpoints; only the base URL, API key and token limits
// differ.
type OpenAIBackend struct {
	client   *openai.Client
	provider Provider
	model    string
	maxTok   int
}

// compatEndpoint describes one OpenAI-compatible provider.
type compatEndpoint struct {
	envKey  string
	baseURL string
	maxTok  int
}

var compatEndpoints = map[Provider]compatEndpoint{
	ProviderOpenAI:     {envKey: "OPENAI_API_KEY", maxTok: 128_000},
	ProviderDeepSeek:   {envKey: "DEEPSEEK_API_KEY", baseURL: "https://api.deepseek.com", maxTok: 64_000},
	ProviderCohere:     {envKey: "COHERE_API_KEY", baseURL: "https://api.cohere.ai/compatibility/v1", maxTok: 128_000},
	ProviderXAI:        {envKey: "GROK_API_KEY", baseURL: "https://api.x.ai/v1", maxTok: 131_072},
	ProviderOpenRouter: {envKey: "OPENROUTER_API_KEY", baseURL: "https://openrouter.ai/api/v1", maxTok: 128_000},
}

// NewOpenAICompatible creates the backend for any OpenAI-compatible
// provider. The provider's API key environment variable must be set.
func NewOpenAICompatible(provider Provider, model string) (*OpenAIBackend, error) {
	ep, ok := compatEndpoints[provider]
	if !ok {
		return nil, &ConfigError{Message: "no OpenAI-compatible endpoint for provider " + string(provider)}
	}
	apiKey := os.Getenv(ep.envKey)
	if apiKey == "" {
		return nil, &ConfigError{Message: ep.envKey + " environment variable not set"}
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if ep.baseURL != "" {
		opts = append(opts, option.WithBaseURL(ep.baseURL))
	}
	if provider == ProviderOpenAI {
		if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
			opts = append(opts, option.WithBaseURL(base))
		}
	}
	if provider == ProviderOpenRouter {
		if site := os.Getenv("OPENROUTER_SITE_URL"); site != "" {
			opts = append(opts, option.WithHeader("HTTP-Referer", site))
		}
		if name := os.Getenv("OPENROUTER_SITE_NAME"); name != "" {
			opts = append(opts, option.WithHeader("X-Title", name))
		}
	}

	c := openai.NewClient(opts...)
	maxTok := ep.maxTok
	if provider == ProviderOpenAI && strings.HasPrefix(strings.ToLower(model), "o1") {
		maxTok = 200_000
	}
	return &OpenAIBackend{client: &c, provider: provider, model: model, maxTok: maxTok}, nil
}

func (b *OpenAIBackend) Name() string  { return string(b.provider) }
func (b *OpenAIBackend) Model() string { return b.model }

func (b *OpenAIBackend) MaxTokenLimit() int { return b.maxTok }

func (b *OpenAIBackend) SafeInputTokenLimit() int { return b.maxTok * 8 / 10 }

// Send performs one chat completion. Cache points are ignored; the API has
// no per-message cache hint.
func (b *OpenAIBackend) Send(ctx context.Context, req *Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(b.model),
		Messages: convertMessagesToOpenAI(req.Messages, req.System),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.StopSequences}
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, openaiError(b.provider, err)
	}
	if len(resp.Choices) == 0 {
		return &Response{}, nil
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:    []conversation.Content{{Kind: conversation.ContentText, Text: choice.Message.Content}},
		StopReason: choice.FinishReason,
		Usage: &Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	return out, nil
}

// CountTokens estimates by character count; the compatible APIs expose no
// counting endpoint.
func (b *OpenAIBackend) CountTokens(_ context.Context, messages []conversation.Message, system string) (Usage, error) {
	return estimateTokens(messages, system), nil
}

func convertMessagesToOpenAI(messages []conversation.Message, system string) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, msg := range messages {
		text := msg.TextContent()
		switch msg.Role {
		case conversation.RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		case conversation.RoleSystem:
			out = append(out, openai.SystemMessage(text))
		default:
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}

// openaiError maps SDK errors onto the backend error taxonomy.
func openaiError(provider Provider, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case http.StatusTooManyRequests:
			return &RateLimitError{RetryAfter: retryAfterHeader(apierr.Response)}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &ConfigError{Message: string(provider) + ": " + apierr.Error()}
		default:
			return &APIError{Status: apierr.StatusCode, Message: apierr.Error()}
		}
	}
	return errors.Wrapf(err, "%s request failed", provider)
}
