// Package task models the per-actor engagement tasks and the rules that govern
// how their state may change. Transitions are applied by the tracker in the
// application layer; this package only enforces that they are legal.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/castverify/internal/domain/engagement"
)

// ErrTaskCompleted is returned when a caller tries to mutate a completed task.
var ErrTaskCompleted = errors.New("task already completed")

// Definition describes one task offered to actors: engage with Reference by
// performing Action. Username and AvatarURL describe the content author for
// display only.
type Definition struct {
	ID        string
	Reference engagement.ContentReference
	Action    engagement.ActionKind
	Username  string
	AvatarURL string
}

// Key returns the identity of the task. Definitions without an explicit id
// are keyed by reference and action.
func (d Definition) Key() string {
	if d.ID != "" {
		return d.ID
	}
	return fmt.Sprintf("%s|%s", d.Action, d.Reference)
}

// Record is the live state of a task for the current actor.
type Record struct {
	Definition

	State State
	// Opened is session scoped and is lost on process restart.
	Opened bool
	// Error drives the failure indication shown to the actor.
	Error    bool
	Verified bool
	Attempts int

	ContentID   engagement.ContentID
	LastError   string
	CompletedAt time.Time
}

// NewRecord creates an unopened record for def.
func NewRecord(def Definition) *Record {
	return &Record{Definition: def, State: StateUnopened}
}

// NewCompletedRecord creates a record already in the terminal state, used
// when durable storage or the confirmed ledger says the task is done.
func NewCompletedRecord(def Definition, at time.Time) *Record {
	return &Record{
		Definition:  def,
		State:       StateCompleted,
		Verified:    true,
		CompletedAt: at,
	}
}

// IsCompleted reports whether the record reached the terminal state.
func (r *Record) IsCompleted() bool { return r.State == StateCompleted }

// Open marks the task as opened by the actor and clears any error indication.
func (r *Record) Open() error {
	if r.IsCompleted() {
		return ErrTaskCompleted
	}
	if r.State == StateVerifying {
		// An attempt is in flight; remember the open so the outcome sees it.
		r.Opened = true
		r.Error = false
		return nil
	}
	if err := r.State.validateTransition(StateOpened); err != nil {
		return err
	}
	r.State = StateOpened
	r.Opened = true
	r.Error = false
	r.LastError = ""
	return nil
}

// BeginVerification moves the record into Verifying and counts the attempt.
func (r *Record) BeginVerification() error {
	if err := r.State.validateTransition(StateVerifying); err != nil {
		return err
	}
	r.State = StateVerifying
	r.Attempts++
	return nil
}

// Complete records positive evidence. The task must have been opened.
func (r *Record) Complete(id engagement.ContentID, at time.Time) error {
	if !r.Opened {
		return fmt.Errorf("%w: task %s was never opened", engagement.ErrInvariantViolation, r.Key())
	}
	if err := r.State.validateTransition(StateCompleted); err != nil {
		return err
	}
	r.State = StateCompleted
	r.Verified = true
	r.Error = false
	r.LastError = ""
	r.ContentID = id
	r.CompletedAt = at
	return nil
}

// NotYet handles an attempt that found no evidence. It is not an error: the
// record returns to where it was before the attempt with a neutral indication.
func (r *Record) NotYet(id engagement.ContentID) error {
	target := StateUnopened
	if r.Opened {
		target = StateOpened
	}
	if err := r.State.validateTransition(target); err != nil {
		return err
	}
	r.State = target
	r.Error = false
	r.LastError = ""
	if id != "" {
		r.ContentID = id
	}
	return nil
}

// Fail records a failed attempt. visible controls whether the failure is
// surfaced to the actor through the error flag.
func (r *Record) Fail(reason string, visible bool) error {
	if err := r.State.validateTransition(StateErrored); err != nil {
		return err
	}
	r.State = StateErrored
	r.Error = visible
	r.LastError = reason
	return nil
}
