package agent

import "github.com/semtexzv/termineer-sub001/conversation"

// Command is anything deliverable to an agent's inbox.
type Command interface{ isCommand() }

// UserMessage appends a user turn and runs the conversation loop. When
// Reply is non-nil the agent's final assistant text is sent on it once the
// turn ends.
type UserMessage struct {
	Text  string
	Reply chan string
}

// ResetConversation clears the history and tool-output metadata.
type ResetConversation struct{}

// ReplaceConversation swaps in a restored history, as on session resume.
type ReplaceConversation struct {
	Messages []conversation.Message
}

// SetModel switches the agent to a different backend mid-session.
type SetModel struct{ Model string }

// SetSystemPrompt replaces the system prompt for subsequent calls.
type SetSystemPrompt struct{ Prompt string }

// EnableTools toggles whether parsed tool calls are executed.
type EnableTools struct{ Enabled bool }

// Terminate stops the agent loop.
type Terminate struct{}

func (UserMessage) isCommand()         {}
func (ResetConversation) isCommand()   {}
func (ReplaceConversation) isCommand() {}
func (SetModel) isCommand()            {}
func (SetSystemPrompt) isCommand()     {}
func (EnableTools) isCommand()         {}
func (Terminate) isCommand()           {}
