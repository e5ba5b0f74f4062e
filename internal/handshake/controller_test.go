package handshake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formzs/poe-to-gpt/internal/credential"
)

const testOrigin = "https://poe.example.com"

type fakeWindow struct {
	id         string
	closed     atomic.Bool
	closeCalls atomic.Int32
}

func (w *fakeWindow) ID() string { return w.id }
func (w *fakeWindow) Close() error {
	w.closeCalls.Add(1)
	w.closed.Store(true)
	return nil
}
func (w *fakeWindow) Closed() bool { return w.closed.Load() }

type fakeOpener struct {
	mu      sync.Mutex
	urls    []string
	windows []*fakeWindow
	err     error
}

func (o *fakeOpener) Open(_ context.Context, entryURL string) (Window, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	w := &fakeWindow{id: "w" + string(rune('0'+len(o.windows)))}
	o.urls = append(o.urls, entryURL)
	o.windows = append(o.windows, w)
	return w, nil
}

func (o *fakeOpener) last() *fakeWindow {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.windows[len(o.windows)-1]
}

type fakeBus struct {
	mu        sync.Mutex
	listeners map[int]func(Message)
	next      int
}

func newFakeBus() *fakeBus {
	return &fakeBus{listeners: make(map[int]func(Message))}
}

func (b *fakeBus) Subscribe(fn func(Message)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *fakeBus) emit(msg Message) {
	b.mu.Lock()
	fns := make([]func(Message), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

type recordingNotifier struct {
	got chan Handoff
}

func (n *recordingNotifier) HandshakeCompleted(_ context.Context, h Handoff) {
	n.got <- h
}

type harness struct {
	ctrl     *Controller
	opener   *fakeOpener
	bus      *fakeBus
	store    *credential.MemoryStore
	notifier *recordingNotifier
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := Config{
		EntryURL:     testOrigin + "/auth/linuxdo",
		HostOrigin:   testOrigin,
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		opener:   &fakeOpener{},
		bus:      newFakeBus(),
		store:    credential.NewMemoryStore(),
		notifier: &recordingNotifier{got: make(chan Handoff, 1)},
	}
	ctrl, err := NewController(cfg, h.opener, h.bus, h.store, h.notifier)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func tokenPayload(token, key string) map[string]any {
	return map[string]any{"oauth_token": token, "apiKey": key}
}

func waitResult(t *testing.T, sub *Subscription) (Handoff, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h, err := sub.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "handshake did not finish")
	return h, err
}

func TestController_AcceptsHandoffFromOpenedWindow(t *testing.T) {
	h := newHarness(t, nil)

	sub, err := h.ctrl.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingProvider, h.ctrl.State())
	assert.Equal(t, []string{testOrigin + "/auth/linuxdo"}, h.opener.urls)

	win := h.opener.last()
	h.bus.emit(Message{Origin: testOrigin, Source: win, Data: tokenPayload("tok-1", "sk-yn-1")})

	handoff, err := waitResult(t, sub)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", handoff.Token)
	assert.Equal(t, "sk-yn-1", handoff.ScopedKey)
	assert.Equal(t, StateCompleted, h.ctrl.State())
	assert.Equal(t, StateCompleted, sub.State())

	cred, ok := h.store.Get()
	require.True(t, ok)
	assert.Equal(t, credential.Credential{Token: "tok-1", ScopedKey: "sk-yn-1"}, cred)

	select {
	case got := <-h.notifier.got:
		assert.Equal(t, "tok-1", got.Token)
	default:
		t.Fatal("notifier was not called before Done")
	}

	assert.Equal(t, 0, h.bus.count(), "listener must be detached")
	assert.True(t, win.Closed(), "window must be closed")
}

func TestController_IgnoresSpoofedMessages(t *testing.T) {
	h := newHarness(t, nil)

	sub, err := h.ctrl.Begin(context.Background())
	require.NoError(t, err)
	win := h.opener.last()
	other := &fakeWindow{id: "other"}

	// wrong origin
	h.bus.emit(Message{Origin: "https://evil.example.com", Source: win, Data: tokenPayload("evil", "")})
	// right origin, foreign window
	h.bus.emit(Message{Origin: testOrigin, Source: other, Data: tokenPayload("evil", "")})
	// right origin, unknown source
	h.bus.emit(Message{Origin: testOrigin, Data: tokenPayload("evil", "")})
	// not a handoff payload
	h.bus.emit(Message{Origin: testOrigin, Source: win, Data: "oauth_token=evil"})
	h.bus.emit(Message{Origin: testOrigin, Source: win, Data: map[string]any{"hello": "world"}})
	h.bus.emit(Message{Origin: testOrigin, Source: win, Data: map[string]any{"oauth_token": 42}})

	assert.Equal(t, StateAwaitingProvider, h.ctrl.State())
	_, ok := h.store.Get()
	assert.False(t, ok)
	_, err = sub.Result()
	assert.ErrorIs(t, err, ErrInProgress)

	h.bus.emit(Message{Origin: testOrigin + ":443", Source: win, Data: tokenPayload("good", "")})
	handoff, err := waitResult(t, sub)
	require.NoError(t, err)
	assert.Equal(t, "good", handoff.Token)
}

func TestController_ProviderError(t *testing.T) {
	h := newHarness(t, nil)

	sub, err := h.ctrl.Begin(context.Background())
	require.NoError(t, err)

	h.bus.emit(Message{Origin: testOrigin, Source: h.opener.last(), Data: map[string]any{"error": "access denied"}})

	_, err = waitResult(t, sub)
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "access denied", rejected.Reason)
	assert.Equal(t, StateRejected, h.ctrl.State())

	_, ok := h.store.Get()
	assert.False(t, ok)
	assert.Len(t, h.notifier.got, 0)
}

func TestController_BeginWhileAwaiting(t *testing.T) {
	h := newHarness(t, nil)

	sub, err := h.ctrl.Begin(context.Background())
	require.NoError(t, err)
	defer sub.Dispose()

	_, err = h.ctrl.Begin(context.Background())
	assert.ErrorIs(t, err, ErrInProgress)
	assert.Len(t, h.opener.windows, 1, "no second window may be opened")
}

func TestController_Timeout(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })

	sub, err := h.ctrl.Begin(context.Background())
	require.NoError(t, err)

	_, err = waitResult(t, sub)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, StateTimedOut, h.ctrl.State())
	assert.Equal(t, 0, h.bus.count())
	assert.True(t, h.opener.last().Closed())

	// a late message changes nothing
	h.bus.emit(Message{Origin: testOrigin, Source: h.opener.last(), Data: tokenPayload("late", "")})
	_, ok := h.store.Get()
	assert.False(t, ok)
}

func TestController_WindowClosedByUser(t *testing.T) {
	h := newHarness(t, nil)

	sub, err := h.ctrl.Begin(context.Background())
	require.NoError(t, err)
	win := h.opener.last()
	win.closed.Store(true)

	_, err = waitResult(t, sub)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateRejected, h.ctrl.State())
	assert.Equal(t, int32(0), win.closeCalls.Load(), "an already closed window is not closed again")
}

func TestController_DisposeReleasesEverything(t *testing.T) {
	h := newHarness(t, nil)

	sub, err := h.ctrl.Begin(context.Background())
	require.NoError(t, err)
	win := h.opener.last()

	sub.Dispose()
	sub.Dispose()

	_, err = waitResult(t, sub)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, h.bus.count())
	assert.Equal(t, int32(1), win.closeCalls.Load())
	assert.Equal(t, StateRejected, h.ctrl.State())

	// a new handshake may start after a terminal state
	sub2, err := h.ctrl.Begin(context.Background())
	require.NoError(t, err)
	defer sub2.Dispose()
	assert.Equal(t, StateAwaitingProvider, h.ctrl.State())
}

func TestController_ContextCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := h.ctrl.Begin(ctx)
	require.NoError(t, err)
	cancel()

	_, err = waitResult(t, sub)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestController_OpenFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.opener.err = errors.New("popup blocked")

	_, err := h.ctrl.Begin(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "popup blocked")
	assert.Equal(t, StateRejected, h.ctrl.State())
	assert.Equal(t, 0, h.bus.count())
}

func TestController_AdminHintIsCarried(t *testing.T) {
	h := newHarness(t, nil)

	sub, err := h.ctrl.Begin(context.Background())
	require.NoError(t, err)
	h.bus.emit(Message{Origin: testOrigin, Source: h.opener.last(), Data: map[string]any{
		"oauth_token": "tok", "admin": false,
	}})

	handoff, err := waitResult(t, sub)
	require.NoError(t, err)
	require.NotNil(t, handoff.Admin)
	assert.False(t, *handoff.Admin)
}

func TestNewController_Validation(t *testing.T) {
	_, err := NewController(Config{HostOrigin: testOrigin}, &fakeOpener{}, newFakeBus(), credential.NewMemoryStore(), nil)
	assert.Error(t, err)

	_, err = NewController(Config{EntryURL: testOrigin + "/auth/linuxdo", HostOrigin: "not a url"}, &fakeOpener{}, newFakeBus(), credential.NewMemoryStore(), nil)
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_provider", StateAwaitingProvider.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.Equal(t, "rejected", StateRejected.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateTimedOut.Terminal())
	assert.False(t, StateAwaitingProvider.Terminal())
}
