// Package grammar encodes and decodes tool invocations in model text. Two
// encodings ship: XML-tagged and markdown-fenced. Both are tolerant parsers;
// malformed or unterminated tool markup degrades to plain text rather than
// failing the turn.
package grammar

import "strings"

// DoneToolName is the distinguished tool the model emits to end its turn.
const DoneToolName = "done"

// ToolCall is one decoded tool invocation. Args is the free-form remainder
// of the invocation's first line; Body is everything after it.
type ToolCall struct {
	Name string
	Args string
	Body string
}

// Segment is either plain text or a tool call, in order of appearance.
type Segment struct {
	Text string
	Call *ToolCall
}

// IsCall reports whether the segment is a tool call.
func (s Segment) IsCall() bool { return s.Call != nil }

// Grammar converts assistant text into tool calls and renders tool results
// back into text the model sees on the next turn.
type Grammar interface {
	// Name identifies the grammar ("xml" or "markdown").
	Name() string
	// Parse splits assistant text into plain-text and tool-call segments.
	Parse(text string) []Segment
	// FormatToolCall renders an invocation the way the model is asked to
	// produce it.
	FormatToolCall(name, body string) string
	// FormatToolResult renders a tool's output for the model.
	FormatToolResult(name string, index int, body string) string
	// FormatToolError renders a tool failure for the model.
	FormatToolError(name string, index int, body string) string
	// FormatPatch renders a search/replace edit block.
	FormatPatch(before, after string) string
	// StopSequences returns the sequences the backend should stop at so the
	// model halts right after emitting one tool call.
	StopSequences() []string
	// RepairTruncated reattaches the closing token to text the backend cut
	// off at a stop sequence, when an open tool invocation is present. Text
	// without an open invocation is returned unchanged.
	RepairTruncated(text string) string
}

// New returns the grammar with the given name, defaulting to XML.
func New(name string) Grammar {
	if strings.EqualFold(name, "markdown") {
		return &Markdown{}
	}
	return &XML{}
}

// SplitInvocation applies the invocation convention: the first
// whitespace-delimited token is the tool name, the remainder of the first
// line is args, and subsequent lines are the body.
func SplitInvocation(text string) (name, args, body string) {
	first, rest, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return "", "", rest
	}
	name, args, _ = strings.Cut(first, " ")
	return strings.ToLower(name), strings.TrimSpace(args), rest
}

// FormatPatch is shared by both grammars: a search/replace block applied by
// the patch tool.
func formatPatch(before, after string) string {
	var sb strings.Builder
	sb.WriteString("<<<<<<< SEARCH\n")
	sb.WriteString(before)
	if !strings.HasSuffix(before, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("=======\n")
	sb.WriteString(after)
	if !strings.HasSuffix(after, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString(">>>>>>> REPLACE")
	return sb.String()
}

func trimBody(body string) string {
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimSuffix(body, "\n")
	return body
}
