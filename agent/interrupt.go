package agent

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog/log"
)

// InterruptSignal is one out-of-band cancellation request. Acknowledged
// flips exactly once, letting the sender observe whether anything reacted.
type InterruptSignal struct {
	Reason       string
	acknowledged atomic.Bool
}

// NewInterrupt creates a signal with an optional reason.
func NewInterrupt(reason string) *InterruptSignal {
	return &InterruptSignal{Reason: reason}
}

// Acknowledge marks the signal handled. It reports whether this call was
// the first to do so.
func (s *InterruptSignal) Acknowledge() bool {
	return s.acknowledged.CompareAndSwap(false, true)
}

// Acknowledged reports whether anything handled the signal.
func (s *InterruptSignal) Acknowledged() bool { return s.acknowledged.Load() }

// Coordinator routes interrupts to whichever part of an agent can act on
// them: the currently running tool when one is registered, otherwise the
// agent's interrupt channel.
type Coordinator struct {
	mu         sync.Mutex
	toolCancel context.CancelFunc
	agent      chan *InterruptSignal
}

// NewCoordinator wires a coordinator to the agent's interrupt channel.
func NewCoordinator(agent chan *InterruptSignal) *Coordinator {
	return &Coordinator{agent: agent}
}

// SetToolRunning registers the cancel function of the tool currently
// executing. Tools register on entry and clear on exit.
func (c *Coordinator) SetToolRunning(cancel context.CancelFunc) {
	c.mu.Lock()
	c.toolCancel = cancel
	c.mu.Unlock()
}

// ClearToolRunning removes the registered tool.
func (c *Coordinator) ClearToolRunning() {
	c.mu.Lock()
	c.toolCancel = nil
	c.mu.Unlock()
}

// HandleInterrupt delivers one interrupt. A registered tool is cancelled
// directly; otherwise the signal goes to the agent's interrupt channel.
// Delivery is non-blocking: a full channel drops the signal.
func (c *Coordinator) HandleInterrupt(reason string) {
	c.mu.Lock()
	cancel := c.toolCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		return
	}
	sig := NewInterrupt(reason)
	select {
	case c.agent <- sig:
	default:
		log.Debug().Str("reason", reason).Msg("interrupt dropped, channel full")
	}
}

// WatchSignals forwards SIGINT to the coordinator until ctx ends. Handling
// of a rapid double press is the front-end's concern.
func WatchSignals(ctx context.Context, c *Coordinator) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				c.HandleInterrupt("interrupted by user")
			}
		}
	}()
}
