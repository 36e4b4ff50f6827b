// Package buffer implements the per-agent ordered event log. Every agent
// owns exactly one Buffer; tool handlers and MCP connections write into it
// through the context helpers so output lands in the right agent's stream
// without threading the buffer through every call.
package buffer

import (
	"strings"
	"sync"
	"time"
)

// Kind classifies a buffered line for the front-end.
type Kind int

const (
	KindStandard Kind = iota
	KindError
	KindTool
	KindSystem
	KindDebug
)

func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindError:
		return "error"
	case KindTool:
		return "tool"
	case KindSystem:
		return "system"
	case KindDebug:
		return "debug"
	}
	return "unknown"
}

// Line is one entry in a Buffer. Tool is set only for KindTool lines.
type Line struct {
	Kind      Kind
	Tool      string
	Content   string
	Timestamp time.Time
}

// DefaultCapacity bounds a buffer when no explicit capacity is given.
const DefaultCapacity = 2000

// Buffer is a bounded FIFO of lines. Multiple writers may append
// concurrently; the front-end drains it from a single reader.
type Buffer struct {
	mu      sync.Mutex
	lines   []Line
	cap     int
	dropped int
}

// New creates a buffer holding at most capacity lines. The oldest lines are
// dropped once the front-end falls behind.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{cap: capacity}
}

// Append splits text on newlines and pushes one line per newline. A single
// empty trailing line (from text ending in '\n') is dropped.
func (b *Buffer) Append(kind Kind, text string) {
	b.appendTool(kind, "", text)
}

// AppendTool records tool output lines tagged with the tool's name.
func (b *Buffer) AppendTool(tool, text string) {
	b.appendTool(KindTool, tool, text)
}

func (b *Buffer) appendTool(kind Kind, tool, text string) {
	parts := strings.Split(text, "\n")
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range parts {
		b.lines = append(b.lines, Line{Kind: kind, Tool: tool, Content: p, Timestamp: now})
	}
	if over := len(b.lines) - b.cap; over > 0 {
		b.dropped += over
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
}

// Drain returns all buffered lines and clears the buffer.
func (b *Buffer) Drain() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.lines
	b.lines = nil
	return out
}

// Lines returns a copy of the buffered lines without clearing them.
func (b *Buffer) Lines() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out
}

// Len reports the number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Dropped reports how many lines were discarded because the reader fell
// behind.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
