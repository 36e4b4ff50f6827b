package llm

import (
	"context"
	"net/http"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/errors"
)

// GeminiBackend adapts the Google Gemini API.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini backend. It requires the GOOGLE_API_KEY
// environment variable to be set.
func NewGemini(ctx context.Context, model string) (*GeminiBackend, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, &ConfigError{Message: "GOOGLE_API_KEY environment variable not set"}
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (b *GeminiBackend) Name() string  { return "google" }
func (b *GeminiBackend) Model() string { return b.model }

func (b *GeminiBackend) MaxTokenLimit() int { return 1_000_000 }

func (b *GeminiBackend) SafeInputTokenLimit() int { return b.MaxTokenLimit() * 8 / 10 }

// Send performs one generateContent call using the chat-session surface,
// with all but the last message as history.
func (b *GeminiBackend) Send(ctx context.Context, req *Request) (*Response, error) {
	model := b.client.GenerativeModel(b.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if len(req.StopSequences) > 0 {
		model.StopSequences = req.StopSequences
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	history := convertMessagesToGemini(req.Messages)
	if len(history) == 0 {
		return nil, &APIError{Message: "gemini: empty message list"}
	}
	last := history[len(history)-1]

	cs := model.StartChat()
	cs.History = history[:len(history)-1]
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, geminiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &Response{}, nil
	}

	out := &Response{StopReason: resp.Candidates[0].FinishReason.String()}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.Content = append(out.Content, conversation.Content{Kind: conversation.ContentText, Text: string(text)})
		}
	}
	if resp.UsageMetadata != nil {
		out.Usage = &Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// CountTokens estimates by character count.
func (b *GeminiBackend) CountTokens(_ context.Context, messages []conversation.Message, system string) (Usage, error) {
	return estimateTokens(messages, system), nil
}

// Close releases the underlying client.
func (b *GeminiBackend) Close() error { return b.client.Close() }

// geminiError maps Google API errors onto the backend error taxonomy.
func geminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests:
			return &RateLimitError{}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &ConfigError{Message: "gemini: " + gerr.Error()}
		default:
			return &APIError{Status: gerr.Code, Message: gerr.Error()}
		}
	}
	return errors.Wrapf(err, "failed to send message to Gemini")
}

func convertMessagesToGemini(messages []conversation.Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range messages {
		if msg.Role == conversation.RoleSystem {
			continue
		}
		role := "user"
		if msg.Role == conversation.RoleAssistant {
			role = "model"
		}
		text := msg.TextContent()
		if text == "" {
			continue
		}
		// Gemini rejects consecutive turns of the same role; merge them.
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, genai.Text("\n"+text))
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(text)}})
	}
	return out
}
