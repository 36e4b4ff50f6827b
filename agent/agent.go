// Package agent implements the conversational agent runtime: the per-agent
// loop driving model calls and tool execution, the interrupt coordinator and
// the manager owning every agent in the process.
package agent

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/semtexzv/termineer-sub001/buffer"
	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/errors"
	"github.com/semtexzv/termineer-sub001/grammar"
	"github.com/semtexzv/termineer-sub001/llm"
	"github.com/semtexzv/termineer-sub001/tokens"
	"github.com/semtexzv/termineer-sub001/tools"
)

const (
	// WaitToolName pauses the loop until the next user message.
	WaitToolName = "wait"

	defaultInboxSize     = 32
	defaultInterruptSize = 8
	defaultMaxTurns      = 24
)

// Config describes one agent. Backend, Grammar and Executor are required.
type Config struct {
	Name           string
	Backend        llm.Backend
	Grammar        grammar.Grammar
	Executor       *tools.Executor
	SystemPrompt   string
	ThinkingBudget int
	MaxTokens      int
	// MaxTurns bounds how many backend calls a single user message may
	// trigger before the loop forces a return to Idle.
	MaxTurns int
	Retry    llm.RetryConfig
	// ToolsDisabled makes the agent treat parsed tool calls as plain text.
	ToolsDisabled bool
}

// Agent is one conversational actor. All fields except state and the
// channels are touched only by the agent's own goroutine.
type Agent struct {
	id   int64
	name string
	cfg  Config

	conv    *conversation.Conversation
	tokens  *tokens.Manager
	buf     *buffer.Buffer
	backend llm.Backend
	gram    grammar.Grammar
	exec    *tools.Executor

	inbox      chan Command
	interrupts chan *InterruptSignal
	coord      *Coordinator

	stateMu sync.Mutex
	state   State

	// done closes when the run loop exits.
	done   chan struct{}
	cancel context.CancelFunc
}

func newAgent(id int64, cfg Config) *Agent {
	interrupts := make(chan *InterruptSignal, defaultInterruptSize)
	a := &Agent{
		id:         id,
		name:       cfg.Name,
		cfg:        cfg,
		conv:       conversation.New(),
		tokens:     tokens.NewManager(),
		buf:        buffer.New(buffer.DefaultCapacity),
		backend:    cfg.Backend,
		gram:       cfg.Grammar,
		exec:       cfg.Executor,
		inbox:      make(chan Command, defaultInboxSize),
		interrupts: interrupts,
		coord:      NewCoordinator(interrupts),
		state:      State{Phase: PhaseCreated},
		done:       make(chan struct{}),
	}
	return a
}

// ID is the manager-assigned identifier.
func (a *Agent) ID() int64 { return a.id }

// Name is the display name.
func (a *Agent) Name() string { return a.name }

// Buffer is the agent's output stream.
func (a *Agent) Buffer() *buffer.Buffer { return a.buf }

// Coordinator routes interrupts for this agent.
func (a *Agent) Coordinator() *Coordinator { return a.coord }

// State returns the agent's current state.
func (a *Agent) State() State {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

func (a *Agent) maxTurns() int {
	if a.cfg.MaxTurns > 0 {
		return a.cfg.MaxTurns
	}
	return defaultMaxTurns
}

// run is the agent loop. It processes inbox commands in send order and
// interrupts out of band, and exits on Terminate or context cancellation.
func (a *Agent) run(ctx context.Context) {
	ctx = buffer.With(ctx, a.buf)
	defer close(a.done)
	defer a.setState(State{Phase: PhaseTerminated})

	log.Debug().Int64("agent", a.id).Str("name", a.name).Msg("agent started")
	for {
		if a.State().Phase != PhaseDone {
			a.setState(State{Phase: PhaseIdle})
		}
		select {
		case <-ctx.Done():
			return
		case sig := <-a.interrupts:
			// Nothing is running; acknowledging is all there is to do.
			sig.Acknowledge()
		case cmd := <-a.inbox:
			switch c := cmd.(type) {
			case Terminate:
				return
			case ResetConversation:
				a.conv.Replace(nil)
				a.tokens.Reset()
			case ReplaceConversation:
				a.conv.Replace(c.Messages)
				a.tokens.Reset()
			case SetModel:
				b, err := llm.New(ctx, c.Model)
				if err != nil {
					buffer.Errorf(ctx, "%v", err)
					continue
				}
				a.backend = b
				buffer.Systemf(ctx, "model switched to %s", b.Model())
			case SetSystemPrompt:
				a.cfg.SystemPrompt = c.Prompt
			case EnableTools:
				a.cfg.ToolsDisabled = !c.Enabled
			case UserMessage:
				a.conv.Append(conversation.UserText(c.Text))
				final := a.process(ctx)
				if c.Reply != nil {
					select {
					case c.Reply <- final:
					default:
					}
				}
			}
		}
	}
}

// errInterrupted marks a backend call aborted by an interrupt rather than
// by a failure.
var errInterrupted = errors.Sentinel("interrupted")

// process drives the model/tool cycle for one user message. It returns the
// final assistant text shown to the user.
func (a *Agent) process(ctx context.Context) string {
	a.setState(State{Phase: PhaseProcessing})
	final := ""

	for turn := 0; turn < a.maxTurns(); turn++ {
		resp, err := a.callBackend(ctx)
		if err != nil {
			if errors.Is(err, errInterrupted) || errors.Is(err, context.Canceled) {
				a.conv.Append(conversation.AssistantText("(interrupted)"))
				return "(interrupted)"
			}
			buffer.Errorf(ctx, "%v", err)
			a.conv.Append(conversation.AssistantText("(error)"))
			return final
		}

		text := resp.Text()
		if resp.StopSequence != "" {
			// The backend consumed the stop sequence; put it back so the
			// grammar sees a complete invocation.
			text += resp.StopSequence
		} else {
			text = a.gram.RepairTruncated(text)
		}

		a.conv.Append(conversation.Assistant(resp.Content))
		a.conv.SetMessageText(a.conv.Len()-1, text)

		segments := a.gram.Parse(text)
		if plain := plainText(segments); plain != "" {
			final = plain
			buffer.Printf(ctx, "%s", plain)
		}

		ranTool := false
		for _, seg := range segments {
			if !seg.IsCall() || a.cfg.ToolsDisabled {
				continue
			}
			call := seg.Call
			switch strings.ToLower(call.Name) {
			case grammar.DoneToolName:
				if body := strings.TrimSpace(call.Body); body != "" {
					final = body
					buffer.Printf(ctx, "%s", body)
				}
				a.setState(State{Phase: PhaseDone})
				return final
			case WaitToolName:
				if !a.exec.ReadOnly() {
					return final
				}
				// wait is not in the read-only set; the executor turns it
				// into the permission error the model should see.
			}
			ranTool = true
			if interrupted := a.runTool(ctx, call); interrupted {
				return final
			}
		}

		if !ranTool {
			return final
		}
		a.setState(State{Phase: PhaseProcessing})
	}
	buffer.Systemf(ctx, "turn limit reached, returning to idle")
	return final
}

// callBackend sanitizes and truncates the conversation, then performs one
// retried model call cancellable by the interrupt channel.
func (a *Agent) callBackend(ctx context.Context) (*llm.Response, error) {
	a.conv.Sanitize()

	usage, err := a.backend.CountTokens(ctx, a.conv.Messages(), a.cfg.SystemPrompt)
	if err == nil && usage.InputTokens >= a.backend.SafeInputTokenLimit() {
		res := a.tokens.Truncate(a.conv, tokens.DefaultTruncateConfig())
		if res.TruncatedCount > 0 {
			buffer.Systemf(ctx, "truncated %d tool outputs (~%d tokens)", res.TruncatedCount, res.TokensSaved)
		}
	}

	req := &llm.Request{
		Messages:       a.conv.Messages(),
		System:         a.cfg.SystemPrompt,
		StopSequences:  a.gram.StopSequences(),
		ThinkingBudget: a.cfg.ThinkingBudget,
		CachePoints:    a.conv.ComputeCachePoints(),
		MaxTokens:      a.cfg.MaxTokens,
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	finished := make(chan struct{})
	var interrupted atomic.Bool
	go func() {
		select {
		case sig := <-a.interrupts:
			sig.Acknowledge()
			interrupted.Store(true)
			cancel()
		case <-finished:
		}
	}()

	resp, err := llm.CallWithRetry(callCtx, a.backend, req, a.cfg.Retry)
	close(finished)
	if err != nil && interrupted.Load() {
		return nil, errInterrupted
	}
	return resp, err
}

// runTool executes one parsed tool call, appending the ToolCall message and
// exactly one ToolResult or ToolError with the same index. It reports
// whether the tool was interrupted, which ends the turn.
func (a *Agent) runTool(ctx context.Context, call *grammar.ToolCall) bool {
	index := a.conv.NextToolIndex()
	a.conv.Append(conversation.ToolCall(call.Name, index, a.gram.FormatToolCall(call.Name, call.Body)))

	interruptible, _ := a.exec.Lookup(call.Name)
	a.setState(State{Phase: PhaseRunningTool, Tool: call.Name, Interruptible: interruptible})

	toolCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.coord.SetToolRunning(cancel)
	finished := make(chan struct{})
	go func() {
		select {
		case sig := <-a.interrupts:
			sig.Acknowledge()
			cancel()
		case <-finished:
		}
	}()

	res, err := a.exec.Execute(toolCtx, tools.Invocation{Name: call.Name, Args: call.Args, Body: call.Body})
	close(finished)
	a.coord.ClearToolRunning()
	interrupted := toolCtx.Err() != nil && ctx.Err() == nil

	if err != nil {
		text := a.gram.FormatToolError(call.Name, index, err.Error())
		a.conv.Append(conversation.ToolError(call.Name, index, text))
		a.tokens.Record(index, call.Name, err.Error())
		buffer.Errorf(ctx, "tool %s: %v", call.Name, err)
		return interrupted
	}

	content := []conversation.Content{{
		Kind: conversation.ContentText,
		Text: a.gram.FormatToolResult(call.Name, index, res.Text),
	}}
	for _, c := range res.Content {
		if c.Kind != conversation.ContentText {
			content = append(content, c)
		}
	}
	a.conv.Append(conversation.ToolResult(call.Name, index, content))
	a.tokens.Record(index, call.Name, res.Text)
	return interrupted
}

// Conversation returns a snapshot of the agent's history. Callers outside
// the agent goroutine should only use this while the agent is idle, e.g.
// for session saving.
func (a *Agent) Conversation() []conversation.Message {
	return a.conv.Messages()
}

// SystemPrompt returns the current system prompt.
func (a *Agent) SystemPrompt() string { return a.cfg.SystemPrompt }

// Model returns the active backend's model name.
func (a *Agent) Model() string { return a.backend.Model() }

func plainText(segments []grammar.Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		if !seg.IsCall() {
			sb.WriteString(seg.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
