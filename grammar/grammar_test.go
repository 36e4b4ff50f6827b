package grammar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grammars() []Grammar {
	return []Grammar{&XML{}, &Markdown{}}
}

func TestToolCallRoundTrip(t *testing.T) {
	for _, g := range grammars() {
		t.Run(g.Name(), func(t *testing.T) {
			text := g.FormatToolCall("shell", "ls /tmp")
			segs := g.Parse(text)
			require.Len(t, segs, 1)
			require.True(t, segs[0].IsCall())
			assert.Equal(t, "shell", segs[0].Call.Name)
			assert.Equal(t, "ls /tmp", strings.TrimSpace(segs[0].Call.Body))
		})
	}
}

func TestToolCallRoundTripMultiline(t *testing.T) {
	body := "line one\nline two\n  indented"
	for _, g := range grammars() {
		t.Run(g.Name(), func(t *testing.T) {
			segs := g.Parse(g.FormatToolCall("write", body))
			require.Len(t, segs, 1)
			require.True(t, segs[0].IsCall())
			assert.Equal(t, body, segs[0].Call.Body)
		})
	}
}

func TestMixedTextAndCalls(t *testing.T) {
	for _, g := range grammars() {
		t.Run(g.Name(), func(t *testing.T) {
			text := "Let me check.\n" + g.FormatToolCall("shell", "pwd") + "\nThen more."
			segs := g.Parse(text)
			var calls, texts int
			for _, s := range segs {
				if s.IsCall() {
					calls++
					assert.Equal(t, "shell", s.Call.Name)
				} else {
					texts++
				}
			}
			assert.Equal(t, 1, calls)
			assert.GreaterOrEqual(t, texts, 1)
		})
	}
}

func TestUnterminatedIsPlainText(t *testing.T) {
	cases := map[string]string{
		"xml":      `I will run <tool name="shell">` + "\nls /tmp",
		"markdown": "I will run\n```tool name=shell\nls /tmp",
	}
	for _, g := range grammars() {
		t.Run(g.Name(), func(t *testing.T) {
			segs := g.Parse(cases[g.Name()])
			for _, s := range segs {
				assert.False(t, s.IsCall(), "unterminated markup must not parse as a call")
			}
		})
	}
}

func TestRepairTruncatedThenParse(t *testing.T) {
	cases := map[string]string{
		"xml":      `<tool name="shell">` + "\nls /tmp",
		"markdown": "```tool name=shell\nls /tmp",
	}
	for _, g := range grammars() {
		t.Run(g.Name(), func(t *testing.T) {
			repaired := g.RepairTruncated(cases[g.Name()])
			segs := g.Parse(repaired)
			require.Len(t, segs, 1)
			require.True(t, segs[0].IsCall())
			assert.Equal(t, "shell", segs[0].Call.Name)
		})
	}
}

func TestRepairLeavesCompleteTextAlone(t *testing.T) {
	for _, g := range grammars() {
		t.Run(g.Name(), func(t *testing.T) {
			text := g.FormatToolCall("shell", "ls")
			assert.Equal(t, text, g.RepairTruncated(text))
			assert.Equal(t, "plain text", g.RepairTruncated("plain text"))
		})
	}
}

func TestDoneRecognized(t *testing.T) {
	for _, g := range grammars() {
		t.Run(g.Name(), func(t *testing.T) {
			segs := g.Parse(g.FormatToolCall(DoneToolName, "all finished"))
			require.Len(t, segs, 1)
			require.True(t, segs[0].IsCall())
			assert.Equal(t, DoneToolName, segs[0].Call.Name)
		})
	}
}

func TestToolResultRoundTrip(t *testing.T) {
	for _, g := range grammars() {
		t.Run(g.Name(), func(t *testing.T) {
			out := g.FormatToolResult("shell", 3, "payload here")
			assert.Contains(t, out, "payload here")
			assert.Contains(t, out, "shell")
			assert.Contains(t, out, "3")
			// Results must not re-parse as tool calls.
			for _, s := range g.Parse(out) {
				assert.False(t, s.IsCall())
			}
		})
	}
}

func TestStopSequencesNonEmpty(t *testing.T) {
	for _, g := range grammars() {
		assert.NotEmpty(t, g.StopSequences(), g.Name())
	}
}

func TestXMLSelfClosingTag(t *testing.T) {
	g := &XML{}
	segs := g.Parse(`done now <tool name="done"/>`)
	require.Len(t, segs, 2)
	require.True(t, segs[1].IsCall())
	assert.Equal(t, "done", segs[1].Call.Name)
	assert.Empty(t, segs[1].Call.Body)
}

func TestXMLUnnamedToolUsesInvocationConvention(t *testing.T) {
	g := &XML{}
	segs := g.Parse("<tool>\nshell -x ls /tmp\necho hi\n</tool>")
	require.Len(t, segs, 1)
	require.True(t, segs[0].IsCall())
	assert.Equal(t, "shell", segs[0].Call.Name)
	assert.Equal(t, "-x ls /tmp", segs[0].Call.Args)
	assert.Equal(t, "echo hi", segs[0].Call.Body)
}

func TestXMLNonToolElementPassedThrough(t *testing.T) {
	g := &XML{}
	segs := g.Parse("see <toolbox> for details")
	for _, s := range segs {
		assert.False(t, s.IsCall())
	}
	var joined string
	for _, s := range segs {
		joined += s.Text
	}
	assert.Equal(t, "see <toolbox> for details", joined)
}

func TestMarkdownPlainFenceIgnored(t *testing.T) {
	g := &Markdown{}
	segs := g.Parse("```go\nfmt.Println(1)\n```")
	for _, s := range segs {
		assert.False(t, s.IsCall())
	}
}

func TestSplitInvocation(t *testing.T) {
	name, args, body := SplitInvocation("shell -v ls\necho hi\necho bye")
	assert.Equal(t, "shell", name)
	assert.Equal(t, "-v ls", args)
	assert.Equal(t, "echo hi\necho bye", body)

	name, args, body = SplitInvocation("read")
	assert.Equal(t, "read", name)
	assert.Empty(t, args)
	assert.Empty(t, body)
}

func TestFormatPatch(t *testing.T) {
	g := &XML{}
	p := g.FormatPatch("old line", "new line")
	assert.Contains(t, p, "<<<<<<< SEARCH")
	assert.Contains(t, p, "old line")
	assert.Contains(t, p, "=======")
	assert.Contains(t, p, "new line")
	assert.Contains(t, p, ">>>>>>> REPLACE")
}

func TestNewSelectsGrammar(t *testing.T) {
	assert.Equal(t, "markdown", New("markdown").Name())
	assert.Equal(t, "xml", New("xml").Name())
	assert.Equal(t, "xml", New("").Name())
}
