package llm

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/goccy/go-json"

	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/errors"
)

// BedrockBackend adapts Anthropic models served through AWS Bedrock,
// selected with explicit "bedrock/MODEL_ID" syntax. AWS credentials come
// from the usual SDK chain.
type BedrockBackend struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrock creates a Bedrock backend from the default AWS config.
func NewBedrock(ctx context.Context, modelID string) (*BedrockBackend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, &ConfigError{Message: "failed to load AWS config: " + err.Error()}
	}
	if cfg.Region == "" {
		if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
			cfg.Region = r
		} else {
			cfg.Region = "us-east-1"
		}
	}
	return &BedrockBackend{client: bedrockruntime.NewFromConfig(cfg), modelID: modelID}, nil
}

func (b *BedrockBackend) Name() string  { return "bedrock" }
func (b *BedrockBackend) Model() string { return b.modelID }

func (b *BedrockBackend) MaxTokenLimit() int { return 200_000 }

func (b *BedrockBackend) SafeInputTokenLimit() int { return b.MaxTokenLimit() * 8 / 10 }

// Send invokes the model with the Anthropic-on-Bedrock JSON schema.
func (b *BedrockBackend) Send(ctx context.Context, req *Request) (*Response, error) {
	body, err := buildBedrockRequest(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build Bedrock request")
	}
	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, &APIError{Message: "bedrock invoke failed: " + err.Error()}
	}
	return parseBedrockResponse(resp.Body)
}

// CountTokens estimates by character count.
func (b *BedrockBackend) CountTokens(_ context.Context, messages []conversation.Message, system string) (Usage, error) {
	return estimateTokens(messages, system), nil
}

// buildBedrockRequest serializes a request into the Anthropic-on-Bedrock
// wire form.
func buildBedrockRequest(req *Request) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	body := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"messages":          convertMessagesToBedrock(req.Messages),
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if len(req.StopSequences) > 0 {
		body["stop_sequences"] = req.StopSequences
	}
	return json.Marshal(body)
}

func convertMessagesToBedrock(messages []conversation.Message) []map[string]interface{} {
	var out []map[string]interface{}
	for _, msg := range messages {
		if msg.Role == conversation.RoleSystem {
			continue
		}
		text := msg.TextContent()
		if text == "" {
			continue
		}
		role := "user"
		if msg.Role == conversation.RoleAssistant {
			role = "assistant"
		}
		out = append(out, map[string]interface{}{
			"role": role,
			"content": []map[string]interface{}{
				{"type": "text", "text": text},
			},
		})
	}
	return out
}

// parseBedrockResponse converts the Bedrock reply body into a Response.
func parseBedrockResponse(body []byte) (*Response, error) {
	var raw struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason   string `json:"stop_reason"`
		StopSequence string `json:"stop_sequence"`
		Usage        *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
		Error interface{} `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if raw.Error != nil {
		return nil, &APIError{Message: "bedrock api error"}
	}

	out := &Response{StopReason: raw.StopReason, StopSequence: raw.StopSequence}
	for _, c := range raw.Content {
		if c.Type == "text" {
			out.Content = append(out.Content, conversation.Content{Kind: conversation.ContentText, Text: c.Text})
		}
	}
	if raw.Usage != nil {
		out.Usage = &Usage{InputTokens: raw.Usage.InputTokens, OutputTokens: raw.Usage.OutputTokens}
	}
	return out, nil
}
