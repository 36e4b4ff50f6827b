package llm

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/errors"
)

// AnthropicBackend adapts the Anthropic Messages API. It is the only
// backend that honors cache points, attached as ephemeral cache_control
// markers on the designated messages.
type AnthropicBackend struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic backend. It requires the
// ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropic(model string) (*AnthropicBackend, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, &ConfigError{Message: "ANTHROPIC_API_KEY environment variable not set"}
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicBackend{client: &client, model: model}, nil
}

func (b *AnthropicBackend) Name() string  { return "anthropic" }
func (b *AnthropicBackend) Model() string { return b.model }

// MaxTokenLimit reports the context window of current Claude models.
func (b *AnthropicBackend) MaxTokenLimit() int { return 200_000 }

func (b *AnthropicBackend) SafeInputTokenLimit() int { return b.MaxTokenLimit() * 8 / 10 }

// Send performs one Messages API call.
func (b *AnthropicBackend) Send(ctx context.Context, req *Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if req.ThinkingBudget > 0 && maxTokens <= req.ThinkingBudget {
		maxTokens = req.ThinkingBudget + 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: int64(maxTokens),
		Messages:  convertMessagesToAnthropic(req.Messages, req.CachePoints),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	if req.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ThinkingBudget))
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, anthropicError(err)
	}

	out := &Response{
		StopReason:   string(resp.StopReason),
		StopSequence: resp.StopSequence,
		Usage: &Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	for _, blk := range resp.Content {
		switch v := blk.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content = append(out.Content, conversation.Content{Kind: conversation.ContentText, Text: v.Text})
		case anthropic.ThinkingBlock:
			out.Content = append(out.Content, conversation.Content{
				Kind:      conversation.ContentThinking,
				Text:      v.Thinking,
				Signature: v.Signature,
			})
		case anthropic.RedactedThinkingBlock:
			out.Content = append(out.Content, conversation.Content{
				Kind: conversation.ContentRedactedThinking,
				Data: v.Data,
			})
		}
	}
	return out, nil
}

// CountTokens uses the server-side counting endpoint, falling back to a
// character estimate when the endpoint fails.
func (b *AnthropicBackend) CountTokens(ctx context.Context, messages []conversation.Message, system string) (Usage, error) {
	params := anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(b.model),
		Messages: convertMessagesToAnthropic(messages, nil),
	}
	if system != "" {
		params.System = anthropic.MessageCountTokensParamsSystemUnion{
			OfTextBlockArray: []anthropic.TextBlockParam{{Text: system}},
		}
	}
	count, err := b.client.Messages.CountTokens(ctx, params)
	if err != nil {
		return estimateTokens(messages, system), nil
	}
	return Usage{InputTokens: int(count.InputTokens)}, nil
}

// convertMessagesToAnthropic converts conversation messages to the wire
// format. Message indices listed in cachePoints get an ephemeral
// cache_control marker on their last content block.
func convertMessagesToAnthropic(messages []conversation.Message, cachePoints []int) []anthropic.MessageParam {
	cached := make(map[int]struct{}, len(cachePoints))
	for _, i := range cachePoints {
		cached[i] = struct{}{}
	}

	var out []anthropic.MessageParam
	for i, msg := range messages {
		if msg.Role == conversation.RoleSystem {
			continue
		}
		var blocks []anthropic.ContentBlockParamUnion
		for _, c := range msg.Content {
			switch c.Kind {
			case conversation.ContentText:
				blocks = append(blocks, anthropic.NewTextBlock(c.Text))
			case conversation.ContentImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(c.MediaType, c.Data))
			case conversation.ContentDocument:
				blocks = append(blocks, anthropic.NewTextBlock(c.Text))
			case conversation.ContentThinking:
				blocks = append(blocks, anthropic.NewThinkingBlock(c.Signature, c.Text))
			case conversation.ContentRedactedThinking:
				blocks = append(blocks, anthropic.NewRedactedThinkingBlock(c.Data))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if _, ok := cached[i]; ok {
			markCacheControl(&blocks[len(blocks)-1])
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == conversation.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

// markCacheControl sets the ephemeral cache marker on a content block.
// Only text blocks carry the marker; other kinds are left alone.
func markCacheControl(blk *anthropic.ContentBlockParamUnion) {
	if blk.OfText != nil {
		blk.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
}

// anthropicError maps SDK errors onto the backend error taxonomy.
func anthropicError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case http.StatusTooManyRequests:
			return &RateLimitError{RetryAfter: retryAfterHeader(apierr.Response)}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &ConfigError{Message: "anthropic: " + apierr.Error()}
		default:
			return &APIError{Status: apierr.StatusCode, Message: apierr.Error()}
		}
	}
	return errors.Wrapf(err, "anthropic request failed")
}

// retryAfterHeader parses the retry-after header in seconds.
func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("retry-after")
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
