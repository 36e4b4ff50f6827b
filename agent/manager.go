package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/semtexzv/termineer-sub001/buffer"
	"github.com/semtexzv/termineer-sub001/errors"
)

// terminateGrace is how long Terminate waits for a cooperative exit before
// aborting the agent's context.
const terminateGrace = 2 * time.Second

// Manager owns every agent in the process. Ids are monotonically
// increasing and never reused; names are a secondary index where the most
// recently created agent wins.
type Manager struct {
	ctx context.Context

	mu     sync.Mutex
	nextID int64
	byID   map[int64]*Agent
	byName map[string]int64
}

// NewManager creates a manager. ctx bounds the lifetime of every agent it
// spawns.
func NewManager(ctx context.Context) *Manager {
	return &Manager{
		ctx:    ctx,
		byID:   make(map[int64]*Agent),
		byName: make(map[string]int64),
	}
}

// Create spawns a new agent and returns its id.
func (m *Manager) Create(cfg Config) (int64, error) {
	if cfg.Backend == nil || cfg.Grammar == nil || cfg.Executor == nil {
		return 0, errors.New("agent config requires a backend, a grammar and an executor")
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	a := newAgent(id, cfg)
	agentCtx, cancel := context.WithCancel(m.ctx)
	a.cancel = cancel
	m.byID[id] = a
	if cfg.Name != "" {
		m.byName[cfg.Name] = id
	}
	m.mu.Unlock()

	go a.run(agentCtx)
	log.Debug().Int64("agent", id).Str("name", cfg.Name).Msg("agent created")
	return id, nil
}

func (m *Manager) get(id int64) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return a, nil
}

// Send delivers a command without blocking. A full inbox surfaces as
// ErrMessageDeliveryFailed so callers see back-pressure instead of hanging.
func (m *Manager) Send(id int64, cmd Command) error {
	a, err := m.get(id)
	if err != nil {
		return err
	}
	select {
	case a.inbox <- cmd:
		return nil
	case <-a.done:
		return ErrTerminated
	default:
		return ErrMessageDeliveryFailed
	}
}

// SendAndAwait sends a user message and blocks until the agent's turn ends,
// returning the final assistant text.
func (m *Manager) SendAndAwait(ctx context.Context, id int64, text string) (string, error) {
	a, err := m.get(id)
	if err != nil {
		return "", err
	}
	reply := make(chan string, 1)
	if err := m.Send(id, UserMessage{Text: text, Reply: reply}); err != nil {
		return "", err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-a.done:
		return "", ErrTerminated
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Interrupt routes an interrupt through the agent's coordinator: a running
// tool is cancelled, otherwise the agent's interrupt channel is signalled.
func (m *Manager) Interrupt(id int64, reason string) error {
	a, err := m.get(id)
	if err != nil {
		return err
	}
	a.coord.HandleInterrupt(reason)
	return nil
}

// Terminate stops one agent: interrupt, then a Terminate command, then a
// hard abort after the grace window. The agent leaves both indices; its
// buffer stays readable through the returned agent handle only.
func (m *Manager) Terminate(id int64) error {
	m.mu.Lock()
	a, ok := m.byID[id]
	if ok {
		delete(m.byID, id)
		if current, named := m.byName[a.name]; named && current == id {
			delete(m.byName, a.name)
		}
	}
	m.mu.Unlock()
	if !ok {
		return ErrAgentNotFound
	}

	a.coord.HandleInterrupt("terminating")
	select {
	case a.inbox <- Terminate{}:
	default:
	}

	select {
	case <-a.done:
		return nil
	case <-time.After(terminateGrace):
		a.cancel()
		select {
		case <-a.done:
			return nil
		case <-time.After(terminateGrace):
			return ErrTerminationTimeout
		}
	}
}

// TerminateAll terminates every live agent in parallel and clears both
// indices.
func (m *Manager) TerminateAll() {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := m.Terminate(id); err != nil && !errors.Is(err, ErrAgentNotFound) {
				log.Warn().Int64("agent", id).Err(err).Msg("terminate failed")
			}
		}(id)
	}
	wg.Wait()
}

// Buffer returns the agent's output buffer.
func (m *Manager) Buffer(id int64) (*buffer.Buffer, error) {
	a, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return a.buf, nil
}

// State returns the agent's current state.
func (m *Manager) State(id int64) (State, error) {
	a, err := m.get(id)
	if err != nil {
		return State{}, err
	}
	return a.State(), nil
}

// Agent returns the live agent handle for front-end use.
func (m *Manager) Agent(id int64) (*Agent, error) {
	return m.get(id)
}

// List returns the ids of all live agents.
func (m *Manager) List() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.byID))
	for id := range m.byID {
		out = append(out, id)
	}
	return out
}

// IDByName resolves a display name to the most recently created live agent
// with that name.
func (m *Manager) IDByName(name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byName[name]
	if !ok {
		return 0, ErrAgentNotFound
	}
	return id, nil
}

// TaskSpawner returns the hook the task tool uses to run a query on a
// fresh read-only sub-agent. The sub-agent inherits the parent's model,
// grammar and prompt, runs the query to completion and is terminated.
func (m *Manager) TaskSpawner(parent Config) func(ctx context.Context, query string) (string, error) {
	return func(ctx context.Context, query string) (string, error) {
		cfg := parent
		cfg.Name = parent.Name + "/task"
		cfg.Executor = parent.Executor.ReadOnlyClone()
		id, err := m.Create(cfg)
		if err != nil {
			return "", err
		}
		defer func() {
			if err := m.Terminate(id); err != nil {
				log.Debug().Int64("agent", id).Err(err).Msg("sub-agent terminate failed")
			}
		}()
		return m.SendAndAwait(ctx, id, query)
	}
}
