package grammar

import (
	"fmt"
	"regexp"
	"strings"
)

// XML is the XML-tagged grammar. Tool calls are
// <tool name="NAME" ...>BODY</tool>, results <result name="NAME"
// index="I">...</result>, errors <error ...>...</error>.
type XML struct{}

const (
	xmlToolOpen  = "<tool"
	xmlToolClose = "</tool>"
)

var xmlAttrRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_-]*)\s*=\s*"([^"]*)"`)

func (g *XML) Name() string { return "xml" }

// StopSequences forces the model to stop right after closing a tool tag.
func (g *XML) StopSequences() []string { return []string{xmlToolClose} }

func (g *XML) FormatToolCall(name, body string) string {
	if body == "" {
		return fmt.Sprintf(`<tool name=%q></tool>`, name)
	}
	return fmt.Sprintf("<tool name=%q>\n%s\n</tool>", name, body)
}

func (g *XML) FormatToolResult(name string, index int, body string) string {
	return fmt.Sprintf("<result name=%q index=\"%d\">\n%s\n</result>", name, index, body)
}

func (g *XML) FormatToolError(name string, index int, body string) string {
	return fmt.Sprintf("<error name=%q index=\"%d\">\n%s\n</error>", name, index, body)
}

func (g *XML) FormatPatch(before, after string) string { return formatPatch(before, after) }

// RepairTruncated reattaches </tool> when the text ends inside an open tool
// element, which happens when the backend consumed the stop sequence.
func (g *XML) RepairTruncated(text string) string {
	i := strings.LastIndex(text, xmlToolOpen)
	if i < 0 {
		return text
	}
	tail := text[i:]
	if strings.Contains(tail, xmlToolClose) {
		return text
	}
	hdr := strings.Index(tail, ">")
	if hdr < 0 {
		// Header never closed; nothing sane to repair.
		return text
	}
	if strings.HasSuffix(strings.TrimSpace(tail[:hdr]), "/") {
		return text
	}
	return text + xmlToolClose
}

// Parse scans for tool elements. The scanner is flat: scanning, inside-tag,
// inside-body. Unterminated tool markup at end of text is left as plain
// text so the agent can ask the model to continue.
func (g *XML) Parse(text string) []Segment {
	var segs []Segment
	emitText := func(t string) {
		if t != "" {
			segs = append(segs, Segment{Text: t})
		}
	}

	rest := text
	for {
		i := strings.Index(rest, xmlToolOpen)
		if i < 0 {
			emitText(rest)
			break
		}
		after := rest[i+len(xmlToolOpen):]
		if after == "" {
			emitText(rest)
			break
		}
		switch after[0] {
		case ' ', '\t', '\n', '>', '/':
		default:
			// Some other element like <toolbox>; pass it through.
			emitText(rest[:i+len(xmlToolOpen)])
			rest = after
			continue
		}

		hdrEnd := strings.Index(after, ">")
		if hdrEnd < 0 {
			emitText(rest)
			break
		}
		header := after[:hdrEnd]
		emitText(rest[:i])

		if strings.HasSuffix(strings.TrimSpace(header), "/") {
			segs = append(segs, Segment{Call: xmlCall(header, "")})
			rest = after[hdrEnd+1:]
			continue
		}

		bodyAndRest := after[hdrEnd+1:]
		j := strings.Index(bodyAndRest, xmlToolClose)
		if j < 0 {
			emitText(rest[i:])
			break
		}
		segs = append(segs, Segment{Call: xmlCall(header, bodyAndRest[:j])})
		rest = bodyAndRest[j+len(xmlToolClose):]
	}
	return segs
}

// xmlCall builds a ToolCall from a tag header and body. When the header has
// no name attribute the invocation convention applies to the body instead.
func xmlCall(header, body string) *ToolCall {
	body = trimBody(body)
	var name string
	var extra []string
	for _, m := range xmlAttrRe.FindAllStringSubmatch(header, -1) {
		switch strings.ToLower(m[1]) {
		case "name":
			name = m[2]
		case "args":
			extra = append(extra, m[2])
		default:
			extra = append(extra, fmt.Sprintf("%s=%q", m[1], m[2]))
		}
	}
	if name == "" {
		n, a, b := SplitInvocation(body)
		return &ToolCall{Name: n, Args: a, Body: b}
	}
	return &ToolCall{Name: strings.ToLower(name), Args: strings.Join(extra, " "), Body: body}
}
