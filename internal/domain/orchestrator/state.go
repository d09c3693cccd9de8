package orchestrator

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of the orchestrator.
type State int32

const (
	NotRunning State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case NotRunning:
		return "notRunning"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrRunningState is matched by every RunningStateError.
var ErrRunningState = errors.New("operation not allowed in current state")

// RunningStateError reports an operation invoked from the wrong state.
type RunningStateError struct {
	Op    string
	State State
}

func (e *RunningStateError) Error() string {
	return fmt.Sprintf("%s: arranger is %s", e.Op, e.State)
}

func (e *RunningStateError) Unwrap() error {
	return ErrRunningState
}
