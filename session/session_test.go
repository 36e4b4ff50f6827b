package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semtexzv/termineer-sub001/conversation"
)

func sampleConversation() []conversation.Message {
	return []conversation.Message{
		conversation.UserText("list the files"),
		conversation.ToolCall("shell", 1, `<tool name="shell">ls</tool>`),
		conversation.ToolResultText("shell", 1, "a.txt\nb.txt"),
		conversation.AssistantText("there are two files"),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	sess := New("listing", "claude-sonnet-4", "be terse", sampleConversation())
	require.NoError(t, store.Save(sess))

	loaded, err := store.Load(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "listing", loaded.Name)
	assert.Equal(t, "claude-sonnet-4", loaded.Model)
	assert.Equal(t, "be terse", loaded.SystemPrompt)
	assert.Equal(t, sess.Conversation, loaded.Conversation)

	// The restored history resumes tool indices past the highest seen.
	conv := conversation.New()
	conv.Replace(loaded.Conversation)
	assert.Equal(t, 2, conv.NextToolIndex())
}

func TestLoadLast(t *testing.T) {
	store := NewStore(t.TempDir())
	first := New("one", "m", "", sampleConversation())
	require.NoError(t, store.Save(first))
	second := New("two", "m", "", nil)
	require.NoError(t, store.Save(second))

	last, err := store.LoadLast()
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)

	ids, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)
}

func TestLoadLastWithoutHistory(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.LoadLast()
	assert.Error(t, err)
}
