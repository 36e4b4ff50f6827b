package agent

import "github.com/semtexzv/termineer-sub001/errors"

var (
	// ErrAgentNotFound means the id or name resolves to no live agent.
	ErrAgentNotFound = errors.Sentinel("agent not found")
	// ErrMessageDeliveryFailed means the agent's inbox is full or closed.
	ErrMessageDeliveryFailed = errors.Sentinel("message delivery failed")
	// ErrTerminated means the agent exited before answering.
	ErrTerminated = errors.Sentinel("agent terminated")
	// ErrTerminationTimeout means the agent ignored Terminate past the
	// grace window and was aborted.
	ErrTerminationTimeout = errors.Sentinel("agent termination timed out")
)
