package pipeline

import (
	"errors"
	"fmt"
)

// Phase names the point in the process lifecycle where a failure happened.
type Phase string

const (
	PhaseArgs  Phase = "args"
	PhaseInit  Phase = "init"
	PhaseStart Phase = "start"
	PhaseRun   Phase = "run"
)

// ErrStartFailed wraps a precondition violation raised while starting stages.
var ErrStartFailed = errors.New("pipeline: start failed")

// PhaseError carries the failing phase and stage to the process boundary.
type PhaseError struct {
	Phase Phase
	Stage string
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s: stage %s: %v", e.Phase, e.Stage, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// ExitCode maps the phase to a process exit status.
func (e *PhaseError) ExitCode() int {
	switch e.Phase {
	case PhaseArgs:
		return 2
	case PhaseInit:
		return 3
	case PhaseStart:
		return 4
	default:
		return 1
	}
}

// ExitCode returns the exit status for err: 0 for nil, the phase code when
// err wraps a PhaseError, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.ExitCode()
	}
	return 1
}
