package handshake

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a Controller.
type State int

const (
	StateIdle State = iota
	StateAwaitingProvider
	StateCompleted
	StateTimedOut
	StateRejected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingProvider:
		return "awaiting_provider"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a handshake.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateRejected
}

// ReasonCancelled is the rejection reason when the window was closed or the
// handshake was disposed before the provider answered.
const ReasonCancelled = "cancelled"

var (
	// ErrInProgress is returned by Begin while another handshake awaits the provider.
	ErrInProgress = errors.New("handshake already in progress")

	// ErrTimedOut is the result of a handshake whose deadline expired.
	ErrTimedOut = errors.New("login timeout - please try again")

	// ErrCancelled matches, via errors.Is, a RejectedError with ReasonCancelled.
	ErrCancelled = &RejectedError{Reason: ReasonCancelled}
)

// RejectedError is the result of a handshake that ended in StateRejected.
type RejectedError struct {
	// Reason is the provider's error message, or ReasonCancelled.
	Reason string
	// Err is an underlying local failure, if any.
	Err error
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login rejected: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("login rejected: %s", e.Reason)
}

// Unwrap returns the underlying failure.
func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Is matches a RejectedError with the same reason.
func (e *RejectedError) Is(target error) bool {
	t, ok := target.(*RejectedError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}
