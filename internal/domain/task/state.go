package task

import (
	"errors"
	"fmt"
	"strings"
)

// State is the lifecycle position of one task for the current actor.
type State string

// ErrInvalidTransition is returned when a state change is not permitted.
var ErrInvalidTransition = errors.New("invalid task state transition")

const (
	// StateUnopened is the initial state. The actor has not opened the content.
	StateUnopened State = "UNOPENED"

	// StateOpened means the actor opened the content in this session and the
	// task is waiting for evidence.
	StateOpened State = "OPENED"

	// StateVerifying means a verification attempt is in flight.
	StateVerifying State = "VERIFYING"

	// StateCompleted is terminal. The record is write-once from here on.
	StateCompleted State = "COMPLETED"

	// StateErrored means the last attempt failed. The actor may reopen.
	StateErrored State = "ERRORED"
)

// String returns the string representation of the State.
func (s State) String() string { return string(s) }

// ParseState converts a string into a State.
func ParseState(s string) (State, error) {
	switch State(strings.ToUpper(strings.TrimSpace(s))) {
	case StateUnopened:
		return StateUnopened, nil
	case StateOpened:
		return StateOpened, nil
	case StateVerifying:
		return StateVerifying, nil
	case StateCompleted:
		return StateCompleted, nil
	case StateErrored:
		return StateErrored, nil
	default:
		return "", fmt.Errorf("unknown task state: %q", s)
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool { return s == StateCompleted }

// validateTransition checks if a state transition is allowed.
func (s State) validateTransition(target State) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, target)
	}
	return nil
}

// isValidTransition encodes the lifecycle graph. Verifying may fall back to
// Unopened when an attempt for a task that was never opened finds nothing.
func (s State) isValidTransition(target State) bool {
	switch s {
	case StateUnopened:
		return target == StateOpened || target == StateVerifying
	case StateOpened:
		return target == StateOpened || target == StateVerifying
	case StateVerifying:
		return target == StateCompleted ||
			target == StateOpened ||
			target == StateUnopened ||
			target == StateErrored
	case StateErrored:
		return target == StateOpened || target == StateVerifying
	case StateCompleted:
		return false
	default:
		return false
	}
}
