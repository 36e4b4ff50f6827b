package grammar

import (
	"fmt"
	"strings"
)

// Markdown is the markdown-fenced grammar. Tool calls are fenced code
// blocks labelled `tool name=NAME`; results are labelled
// `result name=NAME index=I`.
type Markdown struct{}

const mdFence = "```"

func (g *Markdown) Name() string { return "markdown" }

// StopSequences stops the model at a closing fence on its own line.
func (g *Markdown) StopSequences() []string { return []string{"\n" + mdFence + "\n"} }

func (g *Markdown) FormatToolCall(name, body string) string {
	return fmt.Sprintf("%stool name=%s\n%s\n%s", mdFence, name, body, mdFence)
}

func (g *Markdown) FormatToolResult(name string, index int, body string) string {
	return fmt.Sprintf("%sresult name=%s index=%d\n%s\n%s", mdFence, name, index, body, mdFence)
}

func (g *Markdown) FormatToolError(name string, index int, body string) string {
	return fmt.Sprintf("%serror name=%s index=%d\n%s\n%s", mdFence, name, index, body, mdFence)
}

func (g *Markdown) FormatPatch(before, after string) string { return formatPatch(before, after) }

// RepairTruncated closes an open tool fence cut off at the stop sequence.
func (g *Markdown) RepairTruncated(text string) string {
	lines := strings.Split(text, "\n")
	open := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t\r")
		if open {
			if trimmed == mdFence {
				open = false
			}
			continue
		}
		if header := strings.TrimPrefix(trimmed, mdFence); trimmed != header && isToolHeader(header) {
			open = true
		}
	}
	if !open {
		return text
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + mdFence
}

// Parse walks the text line by line, collecting tool fences. A fence opened
// but never closed is left as plain text.
func (g *Markdown) Parse(text string) []Segment {
	var segs []Segment
	emitText := func(lines []string) {
		if len(lines) == 0 {
			return
		}
		t := strings.Join(lines, "\n")
		if t != "" {
			segs = append(segs, Segment{Text: t})
		}
	}

	lines := strings.Split(text, "\n")
	var plain []string
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimRight(lines[i], " \t\r")
		header := strings.TrimPrefix(trimmed, mdFence)
		if trimmed == header || !isToolHeader(header) {
			plain = append(plain, lines[i])
			continue
		}
		var body []string
		closed := false
		j := i + 1
		for ; j < len(lines); j++ {
			if strings.TrimRight(lines[j], " \t\r") == mdFence {
				closed = true
				break
			}
			body = append(body, lines[j])
		}
		if !closed {
			// Unterminated fence: everything from the opener on is text.
			plain = append(plain, lines[i:]...)
			break
		}
		emitText(plain)
		plain = nil
		segs = append(segs, Segment{Call: mdCall(header, strings.Join(body, "\n"))})
		i = j
	}
	emitText(plain)
	return segs
}

// isToolHeader reports whether a fence info string opens a tool block.
func isToolHeader(header string) bool {
	fields := strings.Fields(header)
	return len(fields) > 0 && fields[0] == "tool"
}

// mdCall builds a ToolCall from a fence header like "tool name=shell ..."
// and the fenced body. Headers without name= fall back to the invocation
// convention on the body.
func mdCall(header, body string) *ToolCall {
	fields := strings.Fields(header)
	var name string
	var extra []string
	for _, f := range fields[1:] { // fields[0] is "tool"
		if v, ok := strings.CutPrefix(f, "name="); ok {
			name = v
			continue
		}
		extra = append(extra, f)
	}
	if name == "" {
		n, a, b := SplitInvocation(body)
		return &ToolCall{Name: n, Args: a, Body: b}
	}
	return &ToolCall{Name: strings.ToLower(name), Args: strings.Join(extra, " "), Body: body}
}
