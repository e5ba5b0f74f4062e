package credential

import (
	"errors"
)

// ErrEmptyToken is returned by Put when the credential carries no token.
var ErrEmptyToken = errors.New("credential token must not be empty")

// Credential is the bearer token proving an authenticated identity, plus an
// optional scoped key returned alongside it (the account's own API key).
//
// A Credential is either absent or has a non-empty Token. ScopedKey is never
// required for authorization.
type Credential struct {
	// Token is the identity-provider access token sent as the bearer credential.
	Token string

	// ScopedKey is the secondary access key handed over with the token, if any.
	ScopedKey string
}

// Store persists at most one active Credential.
//
// Implementations perform no validation of token well-formedness beyond
// rejecting an empty token. Clear is idempotent.
type Store interface {
	Put(Credential) error
	Get() (Credential, bool)
	Clear() error
}
