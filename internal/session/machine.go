// Package session holds the process-wide login state of poeadmin.
//
// A Machine moves between three states:
//
//	Unauthenticated -> Verifying      credential found on start, or handshake completed
//	Verifying       -> Authenticated  the protected probe succeeded
//	Verifying       -> Unauthenticated probe failed (see Verify)
//	Authenticated   -> Unauthenticated auth expired, self revocation, or logout
//
// Every transition into Unauthenticated caused by an authorization failure
// clears the credential store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/formzs/poe-to-gpt/internal/apiclient"
	"github.com/formzs/poe-to-gpt/internal/credential"
	"github.com/formzs/poe-to-gpt/internal/handshake"
	"github.com/formzs/poe-to-gpt/pkg/logging"
)

const (
	// DefaultVerifyPath is the protected resource used to confirm a credential.
	DefaultVerifyPath = "/api/users"

	// DefaultResetPath rotates the logged-in account's scoped key.
	DefaultResetPath = "/auth/reset"

	// DefaultRetryDelay is the pause before the single verification retry.
	DefaultRetryDelay = 2 * time.Second
)

// Caller is the part of the API client the session needs.
type Caller interface {
	Call(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error)
	CallScoped(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error)
}

// Config configures a Machine.
type Config struct {
	VerifyPath string
	ResetPath  string
	RetryDelay time.Duration
}

// Machine is the session state machine. It is safe for concurrent use.
type Machine struct {
	store  credential.Store
	client Caller
	cfg    Config
	group  singleflight.Group

	// sleep waits between verification attempts.
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	state     State
	lastErr   error
	listeners map[int]func(Transition)
	nextID    int
}

var _ handshake.Notifier = (*Machine)(nil)

// New creates a machine in StateUnauthenticated.
func New(store credential.Store, client Caller, cfg Config) *Machine {
	if cfg.VerifyPath == "" {
		cfg.VerifyPath = DefaultVerifyPath
	}
	if cfg.ResetPath == "" {
		cfg.ResetPath = DefaultResetPath
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Machine{
		store:     store,
		client:    client,
		cfg:       cfg,
		sleep:     sleepContext,
		state:     StateUnauthenticated,
		listeners: make(map[int]func(Transition)),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns why the session last fell back to Unauthenticated, or
// nil once it is authenticated again.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Require returns ErrNotAuthenticated unless the session is authenticated.
func (m *Machine) Require() error {
	if m.State() != StateAuthenticated {
		return ErrNotAuthenticated
	}
	return nil
}

// OnTransition registers a listener called after every state change.
// Listeners run synchronously on the goroutine that caused the change.
func (m *Machine) OnTransition(fn func(Transition)) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Resume verifies a credential left by a previous run.
func (m *Machine) Resume(ctx context.Context) error {
	if _, ok := m.store.Get(); !ok {
		if st := m.State(); st != StateUnauthenticated {
			return &InvalidTransitionError{Action: "resume", State: st}
		}
		return ErrNotAuthenticated
	}
	if !m.move("resume", StateUnauthenticated, StateVerifying, nil) {
		return &InvalidTransitionError{Action: "resume", State: m.State()}
	}
	logging.Debug("Session", "Resuming stored session")
	return m.Verify(ctx)
}

// HandshakeCompleted starts verification of a freshly stored credential.
// A handoff that says its subject is not an administrator is refused
// without contacting the server.
func (m *Machine) HandshakeCompleted(ctx context.Context, h handshake.Handoff) {
	if h.Admin != nil && !*h.Admin {
		logging.Warn("Session", "Login refused: the identity provider reports a non-admin account")
		m.clearCredential()
		m.mu.Lock()
		m.lastErr = ErrNotAdmin
		m.mu.Unlock()
		return
	}

	if !m.move("verify handoff", StateUnauthenticated, StateVerifying, nil) {
		err := &InvalidTransitionError{Action: "accept a login", State: m.State()}
		logging.Warn("Session", "%v", err)
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		return
	}

	if err := m.Verify(ctx); err != nil {
		logging.Info("Session", "Login verification failed: %v", err)
	}
}

// Verify probes the protected resource and settles the Verifying state.
//
//   - success: Authenticated
//   - AuthExpired (401/403): Unauthenticated, credential cleared
//   - ServerError: Unauthenticated, credential kept
//   - Unreachable: retried once after RetryDelay, then Unauthenticated with
//     the credential kept
//   - anything else, such as a cancelled context: Unauthenticated, credential kept
//
// Concurrent calls share one probe.
func (m *Machine) Verify(ctx context.Context) error {
	if st := m.State(); st != StateVerifying {
		return &InvalidTransitionError{Action: "verify", State: st}
	}
	_, err, _ := m.group.Do("verify", func() (any, error) {
		return nil, m.verify(ctx)
	})
	return err
}

func (m *Machine) verify(ctx context.Context) error {
	err := m.probe(ctx)
	if apiclient.KindOf(err) == apiclient.KindUnreachable {
		logging.Warn("Session", "Server unreachable, retrying in %s", m.cfg.RetryDelay)
		if sleepErr := m.sleep(ctx, m.cfg.RetryDelay); sleepErr != nil {
			err = sleepErr
		} else {
			err = m.probe(ctx)
		}
	}

	if err == nil {
		if m.move("complete verification", StateVerifying, StateAuthenticated, nil) {
			logging.Info("Session", "Session verified")
		}
		return nil
	}

	reason := err
	if apiclient.IsAuthExpired(err) {
		var failure *apiclient.Failure
		if errors.As(err, &failure) && failure.Status == http.StatusForbidden {
			reason = fmt.Errorf("%w: %w", ErrNotAdmin, err)
		}
		m.clearCredential()
	}
	m.move("fail verification", StateVerifying, StateUnauthenticated, reason)
	return reason
}

func (m *Machine) probe(ctx context.Context) error {
	_, err := m.client.Call(ctx, m.cfg.VerifyPath, http.MethodGet, nil)
	return err
}

// Observe inspects the outcome of an API call made during the session and
// tears the session down when the credential is no longer accepted. It
// reports whether a teardown happened.
func (m *Machine) Observe(err error) bool {
	if !apiclient.IsAuthExpired(err) {
		return false
	}
	if m.State() != StateAuthenticated {
		return false
	}
	return m.Teardown(err) == nil
}

// Teardown ends an authenticated session and clears the credential.
func (m *Machine) Teardown(reason error) error {
	if st := m.State(); st != StateAuthenticated {
		return &InvalidTransitionError{Action: "tear down", State: st}
	}
	// Listeners must observe an empty store.
	m.clearCredential()
	if !m.move("tear down", StateAuthenticated, StateUnauthenticated, reason) {
		return &InvalidTransitionError{Action: "tear down", State: m.State()}
	}
	logging.Info("Session", "Session ended: %v", reason)
	return nil
}

// Logout ends an authenticated session at the operator's request.
func (m *Machine) Logout() error {
	if st := m.State(); st != StateAuthenticated {
		return &InvalidTransitionError{Action: "log out", State: st}
	}
	return m.Teardown(ErrLoggedOut)
}

// CredentialChanged is called when the stored credential changes outside
// this machine, for example by another poeadmin process.
func (m *Machine) CredentialChanged(present bool) {
	if present {
		logging.Debug("Session", "Stored credential changed")
		return
	}
	if m.State() == StateAuthenticated {
		_ = m.Teardown(ErrCredentialRemoved)
	}
}

// RotateScopedKey asks the server for a new scoped key for the logged-in
// account and stores it next to the token.
func (m *Machine) RotateScopedKey(ctx context.Context) (string, error) {
	if err := m.Require(); err != nil {
		return "", err
	}

	raw, err := m.client.CallScoped(ctx, m.cfg.ResetPath, http.MethodPost, nil)
	if err != nil {
		m.Observe(err)
		return "", err
	}
	var resp struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.APIKey == "" {
		return "", &apiclient.Failure{Kind: apiclient.KindServerError, Status: http.StatusOK, Detail: "response carried no key", Endpoint: m.cfg.ResetPath}
	}

	cred, ok := m.store.Get()
	if !ok {
		return "", ErrCredentialRemoved
	}
	cred.ScopedKey = resp.APIKey
	if err := m.store.Put(cred); err != nil {
		return "", fmt.Errorf("failed to store the new key: %w", err)
	}
	logging.Info("Session", "Scoped API key rotated")
	return resp.APIKey, nil
}

// move changes the state from one value to another and notifies listeners.
// It reports false, changing nothing, when the current state is not from.
func (m *Machine) move(action string, from, to State, reason error) bool {
	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		logging.Debug("Session", "Ignoring %s while %s", action, m.State())
		return false
	}
	m.state = to
	switch to {
	case StateAuthenticated:
		m.lastErr = nil
	case StateUnauthenticated:
		m.lastErr = reason
	}
	fns := make([]func(Transition), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	t := Transition{From: from, To: to, Reason: reason}
	logging.Debug("Session", "%s -> %s", from, to)
	for _, fn := range fns {
		fn(t)
	}
	return true
}

func (m *Machine) clearCredential() {
	if err := m.store.Clear(); err != nil {
		logging.Error("Session", err, "Failed to clear credential")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
