package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formzs/poe-to-gpt/internal/apiclient"
	"github.com/formzs/poe-to-gpt/internal/credential"
	"github.com/formzs/poe-to-gpt/internal/handshake"
)

type fakeCaller struct {
	calls  atomic.Int32
	scoped atomic.Int32

	respond       func(n int32) (json.RawMessage, error)
	respondScoped func() (json.RawMessage, error)
}

func (f *fakeCaller) Call(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error) {
	n := f.calls.Add(1)
	if f.respond == nil {
		return json.RawMessage(`{"users":[]}`), nil
	}
	return f.respond(n)
}

func (f *fakeCaller) CallScoped(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error) {
	f.scoped.Add(1)
	return f.respondScoped()
}

func failure(kind apiclient.Kind, status int) error {
	return &apiclient.Failure{Kind: kind, Status: status, Endpoint: DefaultVerifyPath}
}

type recorder struct {
	mu   sync.Mutex
	seen []Transition
}

func (r *recorder) record(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, t)
}

func (r *recorder) path() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, t := range r.seen {
		out = append(out, t.To)
	}
	return out
}

func newMachine(t *testing.T, caller *fakeCaller, withCredential bool) (*Machine, *credential.MemoryStore, *recorder) {
	t.Helper()
	store := credential.NewMemoryStore()
	if withCredential {
		require.NoError(t, store.Put(credential.Credential{Token: "tok", ScopedKey: "sk-yn-old"}))
	}
	m := New(store, caller, Config{RetryDelay: time.Millisecond})
	rec := &recorder{}
	m.OnTransition(rec.record)
	return m, store, rec
}

func authenticated(t *testing.T, caller *fakeCaller) (*Machine, *credential.MemoryStore, *recorder) {
	t.Helper()
	m, store, rec := newMachine(t, caller, true)
	require.NoError(t, m.Resume(context.Background()))
	require.Equal(t, StateAuthenticated, m.State())
	return m, store, rec
}

func TestResume_Success(t *testing.T) {
	caller := &fakeCaller{}
	m, store, rec := newMachine(t, caller, true)

	require.NoError(t, m.Resume(context.Background()))
	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, []State{StateVerifying, StateAuthenticated}, rec.path())
	assert.NoError(t, m.Require())
	assert.Nil(t, m.LastError())

	_, ok := store.Get()
	assert.True(t, ok)
}

func TestResume_NoCredential(t *testing.T) {
	caller := &fakeCaller{}
	m, _, rec := newMachine(t, caller, false)

	err := m.Resume(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Empty(t, rec.path())
	assert.Equal(t, int32(0), caller.calls.Load())
}

func TestResume_WhileAuthenticatedIsInvalid(t *testing.T) {
	m, _, _ := authenticated(t, &fakeCaller{})

	err := m.Resume(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestVerify_Failures(t *testing.T) {
	tests := []struct {
		name         string
		errs         []error
		wantCalls    int32
		wantCleared  bool
		wantNotAdmin bool
	}{
		{"expired token", []error{failure(apiclient.KindAuthExpired, http.StatusUnauthorized)}, 1, true, false},
		{"not an admin", []error{failure(apiclient.KindAuthExpired, http.StatusForbidden)}, 1, true, true},
		{"server error", []error{failure(apiclient.KindServerError, http.StatusInternalServerError)}, 1, false, false},
		{"unreachable twice", []error{failure(apiclient.KindUnreachable, 0), failure(apiclient.KindUnreachable, 0)}, 2, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			caller := &fakeCaller{respond: func(n int32) (json.RawMessage, error) {
				return nil, tc.errs[n-1]
			}}
			m, store, rec := newMachine(t, caller, true)

			err := m.Resume(context.Background())
			require.Error(t, err)
			assert.Equal(t, StateUnauthenticated, m.State())
			assert.Equal(t, []State{StateVerifying, StateUnauthenticated}, rec.path())
			assert.Equal(t, tc.wantCalls, caller.calls.Load())
			assert.Equal(t, tc.wantNotAdmin, errors.Is(err, ErrNotAdmin))
			assert.Equal(t, err, m.LastError())

			_, ok := store.Get()
			assert.Equal(t, tc.wantCleared, !ok)
		})
	}
}

func TestVerify_UnreachableRetriesOnce(t *testing.T) {
	caller := &fakeCaller{respond: func(n int32) (json.RawMessage, error) {
		if n == 1 {
			return nil, failure(apiclient.KindUnreachable, 0)
		}
		return json.RawMessage(`{"users":[]}`), nil
	}}
	m, store, _ := newMachine(t, caller, true)

	require.NoError(t, m.Resume(context.Background()))
	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, int32(2), caller.calls.Load())
	_, ok := store.Get()
	assert.True(t, ok)
}

func TestVerify_CancelledContextKeepsCredential(t *testing.T) {
	caller := &fakeCaller{respond: func(n int32) (json.RawMessage, error) {
		return nil, context.Canceled
	}}
	m, store, _ := newMachine(t, caller, true)

	err := m.Resume(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateUnauthenticated, m.State())
	_, ok := store.Get()
	assert.True(t, ok)
}

func TestVerify_OnlyWhileVerifying(t *testing.T) {
	m, _, _ := newMachine(t, &fakeCaller{}, true)
	err := m.Verify(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, StateUnauthenticated, invalid.State)
}

func TestVerify_ConcurrentCallsShareOneProbe(t *testing.T) {
	release := make(chan struct{})
	caller := &fakeCaller{respond: func(n int32) (json.RawMessage, error) {
		<-release
		return json.RawMessage(`{"users":[]}`), nil
	}}
	m, _, _ := newMachine(t, caller, true)
	require.True(t, m.move("test", StateUnauthenticated, StateVerifying, nil))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Verify(context.Background()))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), caller.calls.Load())
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestHandshakeCompleted(t *testing.T) {
	caller := &fakeCaller{}
	m, store, rec := newMachine(t, caller, false)
	require.NoError(t, store.Put(credential.Credential{Token: "fresh"}))

	m.HandshakeCompleted(context.Background(), handshake.Handoff{Token: "fresh"})
	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, []State{StateVerifying, StateAuthenticated}, rec.path())
}

func TestHandshakeCompleted_NonAdminHint(t *testing.T) {
	caller := &fakeCaller{}
	m, store, rec := newMachine(t, caller, false)
	require.NoError(t, store.Put(credential.Credential{Token: "fresh"}))

	notAdmin := false
	m.HandshakeCompleted(context.Background(), handshake.Handoff{Token: "fresh", Admin: &notAdmin})

	assert.Equal(t, StateUnauthenticated, m.State())
	assert.ErrorIs(t, m.LastError(), ErrNotAdmin)
	assert.Equal(t, int32(0), caller.calls.Load())
	assert.Empty(t, rec.path())
	_, ok := store.Get()
	assert.False(t, ok)
}

func TestHandshakeCompleted_WhileAuthenticated(t *testing.T) {
	caller := &fakeCaller{}
	m, _, _ := authenticated(t, caller)

	m.HandshakeCompleted(context.Background(), handshake.Handoff{Token: "again"})
	assert.Equal(t, StateAuthenticated, m.State())
	assert.ErrorIs(t, m.LastError(), ErrInvalidTransition)
	assert.Equal(t, int32(1), caller.calls.Load())
}

func TestObserve(t *testing.T) {
	m, store, rec := authenticated(t, &fakeCaller{})

	assert.False(t, m.Observe(nil))
	assert.False(t, m.Observe(failure(apiclient.KindServerError, 500)))
	assert.Equal(t, StateAuthenticated, m.State())

	expired := failure(apiclient.KindAuthExpired, http.StatusForbidden)
	assert.True(t, m.Observe(expired))
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Equal(t, expired, m.LastError())
	_, ok := store.Get()
	assert.False(t, ok)

	last := rec.seen[len(rec.seen)-1]
	assert.Equal(t, Transition{From: StateAuthenticated, To: StateUnauthenticated, Reason: expired}, last)

	// a second expiry is a no-op
	assert.False(t, m.Observe(expired))
}

func TestTeardownListenersSeeEmptyStore(t *testing.T) {
	m, store, _ := authenticated(t, &fakeCaller{})

	var present atomic.Bool
	present.Store(true)
	m.OnTransition(func(Transition) {
		_, ok := store.Get()
		present.Store(ok)
	})

	require.NoError(t, m.Teardown(errors.New("revoked own access")))
	assert.False(t, present.Load())
}

func TestLogout(t *testing.T) {
	m, store, _ := authenticated(t, &fakeCaller{})

	require.NoError(t, m.Logout())
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.ErrorIs(t, m.LastError(), ErrLoggedOut)
	assert.ErrorIs(t, m.Require(), ErrNotAuthenticated)
	_, ok := store.Get()
	assert.False(t, ok)

	assert.ErrorIs(t, m.Logout(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Teardown(errors.New("x")), ErrInvalidTransition)
}

func TestCredentialChanged(t *testing.T) {
	m, _, _ := authenticated(t, &fakeCaller{})

	m.CredentialChanged(true)
	assert.Equal(t, StateAuthenticated, m.State())

	m.CredentialChanged(false)
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.ErrorIs(t, m.LastError(), ErrCredentialRemoved)
}

func TestOnTransition_Remove(t *testing.T) {
	m, _, _ := newMachine(t, &fakeCaller{}, true)

	var count atomic.Int32
	remove := m.OnTransition(func(Transition) { count.Add(1) })
	remove()

	require.NoError(t, m.Resume(context.Background()))
	assert.Equal(t, int32(0), count.Load())
}

func TestRotateScopedKey(t *testing.T) {
	caller := &fakeCaller{respondScoped: func() (json.RawMessage, error) {
		return json.RawMessage(`{"apiKey":"sk-yn-new"}`), nil
	}}
	m, store, _ := authenticated(t, caller)

	key, err := m.RotateScopedKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-yn-new", key)

	cred, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, credential.Credential{Token: "tok", ScopedKey: "sk-yn-new"}, cred)
}

func TestRotateScopedKey_Errors(t *testing.T) {
	caller := &fakeCaller{respondScoped: func() (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}

	m, _, _ := newMachine(t, caller, true)
	_, err := m.RotateScopedKey(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, int32(0), caller.scoped.Load())

	m, store, _ := authenticated(t, caller)
	_, err = m.RotateScopedKey(context.Background())
	assert.Equal(t, apiclient.KindServerError, apiclient.KindOf(err))

	cred, _ := store.Get()
	assert.Equal(t, "sk-yn-old", cred.ScopedKey)
}

func TestRotateScopedKey_AuthExpiredTearsDown(t *testing.T) {
	caller := &fakeCaller{respondScoped: func() (json.RawMessage, error) {
		return nil, failure(apiclient.KindAuthExpired, http.StatusUnauthorized)
	}}
	m, store, rec := authenticated(t, caller)

	_, err := m.RotateScopedKey(context.Background())
	assert.True(t, apiclient.IsAuthExpired(err))
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Equal(t, []State{StateVerifying, StateAuthenticated, StateUnauthenticated}, rec.path())

	_, ok := store.Get()
	assert.False(t, ok)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "verifying", StateVerifying.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "unknown", State(7).String())
}
