// Package tokens tracks the token cost of tool outputs and rewrites older
// outputs to a short placeholder when the conversation approaches the
// model's context limit.
package tokens

import (
	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/grammar"
)

// charsPerToken is the estimation ratio used where a backend cannot count
// tokens exactly.
const charsPerToken = 4

// Estimate approximates the token count of a string by character count.
func Estimate(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Metadata describes one recorded tool output, keyed by tool index.
type Metadata struct {
	ToolName           string
	InputTokenEstimate int
	Relevant           bool
}

// Manager holds per-tool-output metadata for one agent. Like the
// conversation it belongs to, it is owned by a single agent task.
type Manager struct {
	byIndex map[int]*Metadata
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{byIndex: make(map[int]*Metadata)}
}

// Record registers a tool output under its invocation index. Outputs start
// out relevant.
func (m *Manager) Record(index int, toolName, output string) {
	m.byIndex[index] = &Metadata{
		ToolName:           toolName,
		InputTokenEstimate: Estimate(output),
		Relevant:           true,
	}
}

// MarkIrrelevant flags a past tool output as no longer needed, making it
// eligible for truncation ahead of size-based candidates.
func (m *Manager) MarkIrrelevant(index int) {
	if md, ok := m.byIndex[index]; ok {
		md.Relevant = false
	}
}

// Lookup returns the metadata for a tool index.
func (m *Manager) Lookup(index int) (*Metadata, bool) {
	md, ok := m.byIndex[index]
	return md, ok
}

// TotalEstimate sums the token estimates of all recorded outputs.
func (m *Manager) TotalEstimate() int {
	total := 0
	for _, md := range m.byIndex {
		total += md.InputTokenEstimate
	}
	return total
}

// Reset drops all recorded metadata, as on conversation reset.
func (m *Manager) Reset() {
	m.byIndex = make(map[int]*Metadata)
}

func (m *Manager) relevant(msg conversation.Message) bool {
	md, ok := m.byIndex[msg.Info.ToolIndex]
	if !ok {
		return true
	}
	return md.Relevant
}

// TruncateConfig controls which tool results survive truncation untouched.
type TruncateConfig struct {
	PreserveInitialTools int
	PreserveRecentTools  int
	Placeholder          string
}

// DefaultTruncateConfig preserves the first three and last five tool
// results.
func DefaultTruncateConfig() TruncateConfig {
	return TruncateConfig{
		PreserveInitialTools: 3,
		PreserveRecentTools:  5,
		Placeholder:          "[earlier output truncated]",
	}
}

// TruncateResult reports what a truncation pass changed.
type TruncateResult struct {
	TruncatedCount int
	TokensSaved    int
}

// Truncate rewrites the bodies of older tool results to
// "{first line}\n{placeholder}\n{last line}". Results for the done tool are
// never candidates. The first PreserveInitialTools and last
// PreserveRecentTools results are preserved byte for byte. Outputs marked
// irrelevant are rewritten first; then anything over 500 characters; a
// second pass lowers the threshold to 200 until at least half the candidate
// range has been rewritten. Rewriting is idempotent: placeholder-form
// messages are skipped.
func (m *Manager) Truncate(conv *conversation.Conversation, cfg TruncateConfig) TruncateResult {
	var res TruncateResult

	indices := conv.ToolResultIndices(grammar.DoneToolName)
	total := len(indices)
	if total <= cfg.PreserveInitialTools+cfg.PreserveRecentTools {
		return res
	}
	candidates := indices[cfg.PreserveInitialTools : total-cfg.PreserveRecentTools]

	rewrite := func(pos int) {
		msg := conv.At(pos)
		text := msg.TextContent()
		short := placeholderForm(text, cfg.Placeholder)
		conv.SetMessageText(pos, short)
		res.TruncatedCount++
		res.TokensSaved += Estimate(text) - Estimate(short)
		if md, ok := m.byIndex[msg.Info.ToolIndex]; ok {
			md.InputTokenEstimate = Estimate(short)
		}
	}

	done := make(map[int]bool, len(candidates))
	isTruncated := func(pos int) bool {
		return done[pos] || alreadyPlaceholder(conv.At(pos).TextContent(), cfg.Placeholder)
	}

	// Pass 0: outputs the model marked irrelevant.
	for _, pos := range candidates {
		if isTruncated(pos) || m.relevant(conv.At(pos)) {
			continue
		}
		rewrite(pos)
		done[pos] = true
	}

	// Pass 1: anything over 500 characters.
	for _, pos := range candidates {
		if isTruncated(pos) {
			continue
		}
		if len(conv.At(pos).TextContent()) > 500 {
			rewrite(pos)
			done[pos] = true
		}
	}

	// Pass 2: lower the bar until half the candidate range is rewritten.
	truncated := 0
	for _, pos := range candidates {
		if isTruncated(pos) {
			truncated++
		}
	}
	if truncated < len(candidates)/2 {
		for _, pos := range candidates {
			if truncated >= len(candidates)/2 {
				break
			}
			if isTruncated(pos) {
				continue
			}
			if len(conv.At(pos).TextContent()) > 200 {
				rewrite(pos)
				done[pos] = true
				truncated++
			}
		}
	}
	return res
}

func placeholderForm(text, placeholder string) string {
	first, rest, found := cutLine(text)
	if !found {
		return first + "\n" + placeholder
	}
	last := rest
	for {
		_, tail, ok := cutLine(last)
		if !ok {
			break
		}
		last = tail
	}
	return first + "\n" + placeholder + "\n" + last
}

func alreadyPlaceholder(text, placeholder string) bool {
	_, rest, found := cutLine(text)
	if !found {
		return false
	}
	mid, _, _ := cutLine(rest)
	return mid == placeholder
}

func cutLine(s string) (line, rest string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
