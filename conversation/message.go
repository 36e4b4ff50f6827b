// Package conversation holds the ordered message history an agent maintains
// with its model, including tool-call/result pairing and cache points.
package conversation

import "strings"

// Role is the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentKind discriminates the content union.
type ContentKind string

const (
	ContentText             ContentKind = "text"
	ContentImage            ContentKind = "image"
	ContentDocument         ContentKind = "document"
	ContentThinking         ContentKind = "thinking"
	ContentRedactedThinking ContentKind = "redacted_thinking"
)

// Content is one block of message content. Text carries text and thinking
// blocks; Data carries base64 payloads for images and documents.
type Content struct {
	Kind      ContentKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	MediaType string      `json:"media_type,omitempty"`
	Data      string      `json:"data,omitempty"`
	Signature string      `json:"signature,omitempty"`
}

// InfoKind classifies what a message represents beyond its role.
type InfoKind string

const (
	InfoUser       InfoKind = "user"
	InfoAssistant  InfoKind = "assistant"
	InfoSystem     InfoKind = "system"
	InfoToolCall   InfoKind = "tool_call"
	InfoToolResult InfoKind = "tool_result"
	InfoToolError  InfoKind = "tool_error"
)

// Info carries the message classification. ToolName and ToolIndex are set
// for tool_call, tool_result and tool_error messages; ToolIndex is the
// per-conversation monotonically increasing invocation number pairing a call
// with its result.
type Info struct {
	Kind      InfoKind `json:"kind"`
	ToolName  string   `json:"tool_name,omitempty"`
	ToolIndex int      `json:"tool_index,omitempty"`
}

// Message is one entry in a conversation.
type Message struct {
	Role    Role      `json:"role"`
	Content []Content `json:"content"`
	Info    Info      `json:"info"`
}

// UserText builds a plain user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []Content{{Kind: ContentText, Text: text}}, Info: Info{Kind: InfoUser}}
}

// AssistantText builds a plain assistant message.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []Content{{Kind: ContentText, Text: text}}, Info: Info{Kind: InfoAssistant}}
}

// SystemText builds a system message.
func SystemText(text string) Message {
	return Message{Role: RoleSystem, Content: []Content{{Kind: ContentText, Text: text}}, Info: Info{Kind: InfoSystem}}
}

// Assistant builds an assistant message from pre-assembled content blocks.
func Assistant(content []Content) Message {
	return Message{Role: RoleAssistant, Content: content, Info: Info{Kind: InfoAssistant}}
}

// ToolCall builds the message recording that the model invoked a tool.
func ToolCall(name string, index int, text string) Message {
	return Message{
		Role:    RoleAssistant,
		Content: []Content{{Kind: ContentText, Text: text}},
		Info:    Info{Kind: InfoToolCall, ToolName: name, ToolIndex: index},
	}
}

// ToolResult builds the message carrying a tool's output back to the model.
func ToolResult(name string, index int, content []Content) Message {
	return Message{Role: RoleUser, Content: content, Info: Info{Kind: InfoToolResult, ToolName: name, ToolIndex: index}}
}

// ToolResultText is ToolResult with a single text block.
func ToolResultText(name string, index int, text string) Message {
	return ToolResult(name, index, []Content{{Kind: ContentText, Text: text}})
}

// ToolError builds the message carrying a tool failure back to the model.
func ToolError(name string, index int, text string) Message {
	return Message{
		Role:    RoleUser,
		Content: []Content{{Kind: ContentText, Text: text}},
		Info:    Info{Kind: InfoToolError, ToolName: name, ToolIndex: index},
	}
}

// TextContent concatenates the text of all text blocks in the message.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, c := range m.Content {
		if c.Kind == ContentText {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// IsEmpty reports whether the message carries no content worth sending:
// every block is text and every text is blank.
func (m Message) IsEmpty() bool {
	for _, c := range m.Content {
		switch c.Kind {
		case ContentText:
			if strings.TrimSpace(c.Text) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// IsToolMessage reports whether the message is part of a tool exchange.
func (m Message) IsToolMessage() bool {
	switch m.Info.Kind {
	case InfoToolCall, InfoToolResult, InfoToolError:
		return true
	}
	return false
}
