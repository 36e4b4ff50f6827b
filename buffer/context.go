package buffer

import (
	"context"
	"fmt"
)

type ctxKey struct{}

// discard soaks up writes made outside any agent task. It keeps a tiny
// capacity so stray output cannot grow unbounded.
var discard = New(16)

// With returns a context carrying b. Agent tasks install their buffer at
// spawn; everything running under that context writes to it.
func With(ctx context.Context, b *Buffer) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// From returns the buffer carried by ctx, or a process-wide discard buffer
// when ctx carries none.
func From(ctx context.Context) *Buffer {
	if b, ok := ctx.Value(ctxKey{}).(*Buffer); ok && b != nil {
		return b
	}
	return discard
}

// Printf appends a standard line to the context buffer.
func Printf(ctx context.Context, format string, a ...interface{}) {
	From(ctx).Append(KindStandard, fmt.Sprintf(format, a...))
}

// Errorf appends an error line, prefixed "error:", to the context buffer.
func Errorf(ctx context.Context, format string, a ...interface{}) {
	From(ctx).Append(KindError, "error: "+fmt.Sprintf(format, a...))
}

// Systemf appends a system line to the context buffer.
func Systemf(ctx context.Context, format string, a ...interface{}) {
	From(ctx).Append(KindSystem, fmt.Sprintf(format, a...))
}

// Debugf appends a debug line to the context buffer.
func Debugf(ctx context.Context, format string, a ...interface{}) {
	From(ctx).Append(KindDebug, fmt.Sprintf(format, a...))
}

// Toolf appends tool output tagged with the tool's name.
func Toolf(ctx context.Context, tool, format string, a ...interface{}) {
	From(ctx).AppendTool(tool, fmt.Sprintf(format, a...))
}
