package agent

import "fmt"

// Phase is the coarse position of an agent in its lifecycle.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseIdle
	PhaseProcessing
	PhaseRunningTool
	PhaseDone
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseIdle:
		return "idle"
	case PhaseProcessing:
		return "processing"
	case PhaseRunningTool:
		return "running_tool"
	case PhaseDone:
		return "done"
	case PhaseTerminated:
		return "terminated"
	}
	return "unknown"
}

// State is an agent's observable condition. Tool and Interruptible are set
// only while a tool is running. Terminated is terminal; Done re-enters
// Processing only through a new user message.
type State struct {
	Phase         Phase
	Tool          string
	Interruptible bool
}

func (s State) String() string {
	if s.Phase == PhaseRunningTool {
		return fmt.Sprintf("running_tool(%s)", s.Tool)
	}
	return s.Phase.String()
}
