package llm

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semtexzv/termineer-sub001/conversation"
)

func TestBuildBedrockRequest(t *testing.T) {
	req := &Request{
		Messages: []conversation.Message{
			conversation.UserText("hello"),
			conversation.AssistantText("hi there"),
		},
		System:        "be brief",
		StopSequences: []string{"</tool>"},
		MaxTokens:     512,
	}
	body, err := buildBedrockRequest(req)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "bedrock-2023-05-31", decoded["anthropic_version"])
	assert.Equal(t, float64(512), decoded["max_tokens"])
	assert.Equal(t, "be brief", decoded["system"])
	assert.Equal(t, []interface{}{"</tool>"}, decoded["stop_sequences"])

	msgs, ok := decoded["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]interface{})
	assert.Equal(t, "user", first["role"])
}

func TestBuildBedrockRequestSkipsSystemRoleMessages(t *testing.T) {
	req := &Request{Messages: []conversation.Message{
		conversation.SystemText("injected"),
		conversation.UserText("hi"),
	}}
	body, err := buildBedrockRequest(req)
	require.NoError(t, err)
	var decoded struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Len(t, decoded.Messages, 1)
	assert.Equal(t, "user", decoded.Messages[0].Role)
}

func TestParseBedrockResponse(t *testing.T) {
	body := []byte(`{
		"content": [{"type": "text", "text": "answer"}],
		"stop_reason": "stop_sequence",
		"stop_sequence": "</tool>",
		"usage": {"input_tokens": 10, "output_tokens": 3}
	}`)
	resp, err := parseBedrockResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Text())
	assert.Equal(t, "stop_sequence", resp.StopReason)
	assert.Equal(t, "</tool>", resp.StopSequence)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 10, resp.Usage.InputTokens)
}

func TestParseBedrockResponseError(t *testing.T) {
	_, err := parseBedrockResponse([]byte(`{"error": {"message": "bad"}}`))
	require.Error(t, err)
	var api *APIError
	assert.ErrorAs(t, err, &api)
}

func TestParseBedrockResponseMalformed(t *testing.T) {
	_, err := parseBedrockResponse([]byte(`not json`))
	assert.Error(t, err)
}

func TestEstimateTokens(t *testing.T) {
	u := estimateTokens([]conversation.Message{conversation.UserText("12345678")}, "1234")
	assert.Equal(t, 3, u.InputTokens)
}
