package session

import (
	"errors"
	"fmt"
)

// State is the session state.
type State int

const (
	StateUnauthenticated State = iota
	StateVerifying
	StateAuthenticated
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateVerifying:
		return "verifying"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Transition describes one state change.
type Transition struct {
	From State
	To   State
	// Reason is why the session left the authenticated path, nil otherwise.
	Reason error
}

var (
	// ErrNotAuthenticated is returned by operations that need an authenticated session.
	ErrNotAuthenticated = errors.New("not logged in - run 'poeadmin login'")

	// ErrNotAdmin means the credential is valid but its subject is not an administrator.
	ErrNotAdmin = errors.New("account does not have administrator privileges")

	// ErrLoggedOut is the teardown reason of an explicit logout.
	ErrLoggedOut = errors.New("logged out")

	// ErrCredentialRemoved is the teardown reason when the stored credential
	// disappeared underneath an authenticated session.
	ErrCredentialRemoved = errors.New("credential was removed")

	// ErrInvalidTransition matches every InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// InvalidTransitionError reports an action that is not valid in the current state.
// The action changes nothing.
type InvalidTransitionError struct {
	Action string
	State  State
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Action, e.State)
}

// Is matches ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
