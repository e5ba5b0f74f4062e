package cli

import (
	"errors"
	"fmt"

	"github.com/formzs/poe-to-gpt/internal/apiclient"
	"github.com/formzs/poe-to-gpt/internal/handshake"
	"github.com/formzs/poe-to-gpt/internal/roster"
	"github.com/formzs/poe-to-gpt/internal/session"
)

// AuthRequiredError indicates there is no usable session.
// Implements error with actionable guidance.
type AuthRequiredError struct {
	// Endpoint is the deployment that requires authentication.
	Endpoint string
	// Reason is why there is no session, may be nil.
	Reason error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthRequiredError) Error() string {
	reason := "not logged in"
	if e.Reason != nil {
		reason = e.Reason.Error()
	}
	return fmt.Sprintf(`Authentication required for %s (%s)

To authenticate, run:
  poeadmin login

To check current session status:
  poeadmin status`, e.Endpoint, reason)
}

// Unwrap returns the underlying error.
func (e *AuthRequiredError) Unwrap() error {
	return e.Reason
}

// Is allows errors.Is() to work with wrapped errors.
func (e *AuthRequiredError) Is(target error) bool {
	_, ok := target.(*AuthRequiredError)
	return ok
}

// AuthExpiredError indicates the server rejected the stored credential.
// The credential has already been discarded when this is returned.
type AuthExpiredError struct {
	// Endpoint is the deployment that rejected the credential.
	Endpoint string
	// Reason is the underlying error.
	Reason error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf(`Authentication expired for %s: %v

To re-authenticate, run:
  poeadmin login`, e.Endpoint, e.Reason)
}

// Unwrap returns the underlying error.
func (e *AuthExpiredError) Unwrap() error {
	return e.Reason
}

// Is allows errors.Is() to work with wrapped errors.
func (e *AuthExpiredError) Is(target error) bool {
	_, ok := target.(*AuthExpiredError)
	return ok
}

// HandshakeFailedError indicates the login handshake did not produce a session.
type HandshakeFailedError struct {
	// Endpoint is the deployment the login was for.
	Endpoint string
	// Reason is the underlying error.
	Reason error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *HandshakeFailedError) Error() string {
	return fmt.Sprintf(`Login failed for %s: %v

To retry, run:
  poeadmin login`, e.Endpoint, e.Reason)
}

// Unwrap returns the underlying error.
func (e *HandshakeFailedError) Unwrap() error {
	return e.Reason
}

// Is allows errors.Is() to work with wrapped errors.
func (e *HandshakeFailedError) Is(target error) bool {
	_, ok := target.(*HandshakeFailedError)
	return ok
}

// Translate maps session, client and handshake errors onto the CLI error
// types that carry exit codes and guidance. Other errors are returned as is.
func Translate(err error, endpoint string) error {
	if err == nil {
		return nil
	}

	var (
		required *AuthRequiredError
		expired  *AuthExpiredError
		failed   *HandshakeFailedError
		rejected *handshake.RejectedError
	)
	switch {
	case errors.As(err, &required), errors.As(err, &expired), errors.As(err, &failed):
		return err
	case errors.As(err, &rejected), errors.Is(err, handshake.ErrTimedOut), errors.Is(err, handshake.ErrInProgress):
		return &HandshakeFailedError{Endpoint: endpoint, Reason: err}
	case apiclient.IsAuthExpired(err), errors.Is(err, session.ErrNotAdmin):
		return &AuthExpiredError{Endpoint: endpoint, Reason: err}
	case errors.Is(err, session.ErrNotAuthenticated),
		errors.Is(err, session.ErrLoggedOut),
		errors.Is(err, session.ErrCredentialRemoved),
		errors.Is(err, roster.ErrSelfRevoked):
		return &AuthRequiredError{Endpoint: endpoint, Reason: err}
	}
	return err
}
