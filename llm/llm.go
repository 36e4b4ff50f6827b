// Package llm adapts provider-specific LLM APIs to one uniform
// request/response contract. Backends are selected from the model string;
// tool calling is carried in plain text by the grammar, so backends only
// move message content and stop sequences across the wire.
package llm

import (
	"context"

	"github.com/semtexzv/termineer-sub001/conversation"
)

// Request is one backend call.
type Request struct {
	Messages       []conversation.Message
	System         string
	StopSequences  []string
	ThinkingBudget int
	// CachePoints are indices into Messages at which the backend may be
	// asked to snapshot KV cache. Backends without prompt caching ignore
	// the set.
	CachePoints []int
	MaxTokens   int
}

// Usage is the token accounting a backend reports.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a backend's reply.
type Response struct {
	Content      []conversation.Content
	Usage        *Usage
	StopReason   string
	StopSequence string
}

// Text concatenates the response's text blocks.
func (r *Response) Text() string {
	var out string
	for _, c := range r.Content {
		if c.Kind == conversation.ContentText {
			out += c.Text
		}
	}
	return out
}

// Backend is the uniform contract every provider adapter implements.
type Backend interface {
	// Send performs one model call. It may block for the duration of the
	// network round-trip and honors ctx cancellation.
	Send(ctx context.Context, req *Request) (*Response, error)
	// CountTokens counts or estimates the input tokens of a prospective
	// call. Backends without a counting endpoint estimate by characters.
	CountTokens(ctx context.Context, messages []conversation.Message, system string) (Usage, error)
	// MaxTokenLimit is the model's total context window.
	MaxTokenLimit() int
	// SafeInputTokenLimit is the input size above which the caller should
	// truncate, typically ~80% of the window.
	SafeInputTokenLimit() int
	Name() string
	Model() string
}

// DefaultMaxTokens is used when a request does not set MaxTokens.
const DefaultMaxTokens = 4096

// estimateTokens approximates input tokens by character count, the fallback
// for backends without a counting endpoint.
func estimateTokens(messages []conversation.Message, system string) Usage {
	chars := len(system)
	for _, m := range messages {
		for _, c := range m.Content {
			chars += len(c.Text) + len(c.Data)
		}
	}
	return Usage{InputTokens: chars / 4}
}
