package conversation

import "sort"

// Conversation is the ordered message history of a single agent plus the set
// of cache points the backend may snapshot at. A conversation is owned by
// exactly one agent task; it is not safe for concurrent use.
type Conversation struct {
	msgs        []Message
	nextIndex   int
	cachePoints map[int]struct{}
}

// New creates an empty conversation. Tool indices start at 1.
func New() *Conversation {
	return &Conversation{nextIndex: 1, cachePoints: make(map[int]struct{})}
}

// Append adds a message at the tail.
func (c *Conversation) Append(m Message) {
	c.msgs = append(c.msgs, m)
}

// Messages returns a copy of the message list.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// At returns the message at position i.
func (c *Conversation) At(i int) Message { return c.msgs[i] }

// Len reports the number of messages.
func (c *Conversation) Len() int { return len(c.msgs) }

// NextToolIndex allocates the next tool invocation index. Indices are
// monotonically increasing and never reused within a conversation.
func (c *Conversation) NextToolIndex() int {
	i := c.nextIndex
	c.nextIndex++
	return i
}

// Replace swaps the entire message list, as on session load. Cache points
// are reset and the tool index allocator resumes past the highest index seen
// in the replacement history.
func (c *Conversation) Replace(msgs []Message) {
	c.msgs = append([]Message(nil), msgs...)
	c.cachePoints = make(map[int]struct{})
	c.nextIndex = 1
	for _, m := range c.msgs {
		if m.IsToolMessage() && m.Info.ToolIndex >= c.nextIndex {
			c.nextIndex = m.Info.ToolIndex + 1
		}
	}
}

// Sanitize removes messages whose content is empty or whitespace-only and
// returns how many were removed. Backends reject empty content blocks.
func (c *Conversation) Sanitize() int {
	kept := c.msgs[:0]
	removed := 0
	for _, m := range c.msgs {
		if m.IsEmpty() {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	c.msgs = kept
	if removed > 0 {
		c.cachePoints = make(map[int]struct{})
	}
	return removed
}

// MarkCachePoint flags the message at index i as a cache point.
func (c *Conversation) MarkCachePoint(i int) {
	if i >= 0 && i < len(c.msgs) {
		c.cachePoints[i] = struct{}{}
	}
}

// CachePoints returns the sorted cache point indices.
func (c *Conversation) CachePoints() []int {
	out := make([]int, 0, len(c.cachePoints))
	for i := range c.cachePoints {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// ComputeCachePoints recomputes cache points for the next backend call: the
// most recent user message, and the message just before it when the history
// is long enough for a second snapshot to pay off.
func (c *Conversation) ComputeCachePoints() []int {
	c.cachePoints = make(map[int]struct{})
	last := -1
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].Role == RoleUser {
			last = i
			break
		}
	}
	if last >= 0 {
		c.cachePoints[last] = struct{}{}
		if last >= 8 {
			c.cachePoints[last-1] = struct{}{}
		}
	}
	return c.CachePoints()
}

// ToolResultIndices returns the positions of tool_result messages in
// conversation order, excluding results for the given tool names.
func (c *Conversation) ToolResultIndices(skipTools ...string) []int {
	skip := make(map[string]struct{}, len(skipTools))
	for _, s := range skipTools {
		skip[s] = struct{}{}
	}
	var out []int
	for i, m := range c.msgs {
		if m.Info.Kind != InfoToolResult {
			continue
		}
		if _, ok := skip[m.Info.ToolName]; ok {
			continue
		}
		out = append(out, i)
	}
	return out
}

// SetMessageText replaces the text blocks of the message at position i with
// a single text block. Non-text blocks are preserved in place.
func (c *Conversation) SetMessageText(i int, text string) {
	if i < 0 || i >= len(c.msgs) {
		return
	}
	m := c.msgs[i]
	content := make([]Content, 0, len(m.Content))
	replaced := false
	for _, blk := range m.Content {
		if blk.Kind == ContentText {
			if !replaced {
				content = append(content, Content{Kind: ContentText, Text: text})
				replaced = true
			}
			continue
		}
		content = append(content, blk)
	}
	if !replaced {
		content = append(content, Content{Kind: ContentText, Text: text})
	}
	m.Content = content
	c.msgs[i] = m
}
