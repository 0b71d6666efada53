package engagement

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned by every outbound call when the service
	// credential is absent. It is fatal for the whole engine.
	ErrNotConfigured = errors.New("remote api credential not configured")

	// ErrResolutionFailed marks a reference that could not be turned into a
	// ContentID during this attempt.
	ErrResolutionFailed = errors.New("content reference resolution failed")

	// ErrInvariantViolation marks positive evidence for a task that was never
	// opened in this session.
	ErrInvariantViolation = errors.New("engagement invariant violated")

	// ErrUnknownAction is returned for action kinds outside the closed set.
	ErrUnknownAction = errors.New("unknown action kind")

	// ErrInvalidActor is returned for non-positive actor ids.
	ErrInvalidActor = errors.New("invalid actor id")

	// ErrEmptyReference is returned when a reference is blank.
	ErrEmptyReference = errors.New("empty content reference")
)

// ResolutionError carries the reference that failed to resolve together with
// the underlying cause. It matches ErrResolutionFailed under errors.Is and
// unwraps to the cause, so a missing credential is still detectable.
type ResolutionError struct {
	Reference ContentReference
	Err       error
}

// NewResolutionError wraps err for ref.
func NewResolutionError(ref ContentReference, err error) *ResolutionError {
	return &ResolutionError{Reference: ref, Err: err}
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %q: %v", string(e.Reference), e.Err)
}

// Unwrap returns the underlying cause.
func (e *ResolutionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrResolutionFailed.
func (e *ResolutionError) Is(target error) bool { return target == ErrResolutionFailed }

// ExplorerURL is a public search link for the failed reference.
func (e *ResolutionError) ExplorerURL() string { return ExplorerURL(e.Reference) }
