package buffer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendSplitsOnNewlines(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single line", "hello", []string{"hello"}},
		{"two lines", "a\nb", []string{"a", "b"}},
		{"trailing newline dropped", "a\nb\n", []string{"a", "b"}},
		{"interior empty kept", "a\n\nb", []string{"a", "", "b"}},
		{"empty write", "", []string{""}},
		{"lone newline", "\n", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(100)
			b.Append(KindStandard, tt.text)
			lines := b.Lines()
			require.Len(t, lines, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w, lines[i].Content)
			}
		})
	}
}

func TestAppendNewlineCountProperty(t *testing.T) {
	// A write containing n newlines yields n+1 lines, with a single empty
	// trailing line dropped.
	for _, text := range []string{"x", "x\ny", "x\ny\nz", "a\nb\nc\nd"} {
		b := New(100)
		b.Append(KindStandard, text)
		n := strings.Count(text, "\n")
		assert.Equal(t, n+1, b.Len(), "text %q", text)
	}
}

func TestCapacityDropsOldest(t *testing.T) {
	b := New(3)
	b.Append(KindStandard, "1\n2\n3\n4\n5")
	lines := b.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "3", lines[0].Content)
	assert.Equal(t, "5", lines[2].Content)
	assert.Equal(t, 2, b.Dropped())
}

func TestDrainClears(t *testing.T) {
	b := New(10)
	b.Append(KindError, "boom")
	got := b.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, KindError, got[0].Kind)
	assert.Zero(t, b.Len())
}

func TestOrderPreservedAcrossKinds(t *testing.T) {
	b := New(10)
	b.Append(KindStandard, "one")
	b.AppendTool("shell", "two")
	b.Append(KindSystem, "three")
	lines := b.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "one", lines[0].Content)
	assert.Equal(t, "shell", lines[1].Tool)
	assert.Equal(t, KindSystem, lines[2].Kind)
}

func TestContextCarriage(t *testing.T) {
	b := New(10)
	ctx := With(context.Background(), b)
	Printf(ctx, "hello %s", "world")
	Errorf(ctx, "broke")
	Toolf(ctx, "shell", "out")

	lines := b.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "hello world", lines[0].Content)
	assert.Equal(t, "error: broke", lines[1].Content)
	assert.Equal(t, "shell", lines[2].Tool)
}

func TestContextWithoutBufferDiscards(t *testing.T) {
	// Writes without a buffer in context must not panic and must not leak
	// into any agent buffer.
	Printf(context.Background(), "nowhere")
	assert.NotNil(t, From(context.Background()))
}
