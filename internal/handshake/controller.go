package handshake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/formzs/poe-to-gpt/internal/credential"
	"github.com/formzs/poe-to-gpt/pkg/logging"
)

const (
	// DefaultTimeout bounds how long a handshake waits for the provider.
	DefaultTimeout = 120 * time.Second

	// DefaultPollInterval is how often the controller checks whether the
	// provider window was closed.
	DefaultPollInterval = time.Second
)

// Config configures a Controller.
type Config struct {
	// EntryURL is the absolute identity-provider entry URL.
	EntryURL string
	// HostOrigin is the only origin handoff messages are accepted from.
	HostOrigin string
	Timeout      time.Duration
	PollInterval time.Duration
}

// Controller drives a single login handshake at a time.
type Controller struct {
	cfg      Config
	opener   Opener
	bus      Bus
	store    credential.Store
	notifier Notifier

	mu      sync.Mutex
	state   State
	current *Subscription
}

// NewController creates a controller. The notifier may be nil.
func NewController(cfg Config, opener Opener, bus Bus, store credential.Store, notifier Notifier) (*Controller, error) {
	if cfg.EntryURL == "" {
		return nil, fmt.Errorf("identity provider entry URL is required")
	}
	origin, err := OriginOf(cfg.HostOrigin)
	if err != nil {
		return nil, fmt.Errorf("invalid hosting origin: %w", err)
	}
	cfg.HostOrigin = origin
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Controller{
		cfg:      cfg,
		opener:   opener,
		bus:      bus,
		store:    store,
		notifier: notifier,
		state:    StateIdle,
	}, nil
}

// SetNotifier replaces the completion notifier. It exists because the session
// machine and the controller refer to each other.
func (c *Controller) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Begin opens the provider window and starts listening for the handoff.
// It fails with ErrInProgress while a previous handshake is still waiting.
// Cancelling ctx cancels the handshake.
func (c *Controller) Begin(ctx context.Context) (*Subscription, error) {
	c.mu.Lock()
	if c.state == StateAwaitingProvider {
		c.mu.Unlock()
		return nil, ErrInProgress
	}
	sub := &Subscription{
		c:        c,
		stopPoll: make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateAwaitingProvider,
	}
	c.state = StateAwaitingProvider
	c.current = sub
	c.mu.Unlock()

	window, err := c.opener.Open(ctx, c.cfg.EntryURL)
	if err != nil {
		c.mu.Lock()
		c.state = StateRejected
		c.current = nil
		c.mu.Unlock()
		logging.Warn("Handshake", "Failed to open identity provider window: %v", err)
		return nil, fmt.Errorf("failed to open login window: %w", err)
	}

	// Listener and timer are installed under the lock so an early message
	// cannot observe a half-built subscription.
	c.mu.Lock()
	sub.window = window
	sub.unsubscribe = c.bus.Subscribe(func(msg Message) { c.receive(ctx, sub, msg) })
	sub.timer = time.AfterFunc(c.cfg.Timeout, func() {
		logging.Info("Handshake", "Timed out after %s waiting for the identity provider", c.cfg.Timeout)
		c.finish(ctx, sub, StateTimedOut, Handoff{}, ErrTimedOut)
	})
	c.mu.Unlock()

	go c.watch(ctx, sub)

	logging.Info("Handshake", "Waiting for identity provider (window %s)", window.ID())
	return sub, nil
}

// receive applies the acceptance rule to one bus message.
func (c *Controller) receive(ctx context.Context, sub *Subscription, msg Message) {
	if !sameOrigin(msg.Origin, c.cfg.HostOrigin) {
		logging.Debug("Handshake", "Ignoring message from origin %q", msg.Origin)
		return
	}

	c.mu.Lock()
	window := sub.window
	c.mu.Unlock()
	if msg.Source == nil || msg.Source != window {
		logging.Debug("Handshake", "Ignoring message from a foreign window")
		return
	}

	handoff, providerErr, ok := parsePayload(msg.Data)
	if !ok {
		logging.Debug("Handshake", "Ignoring message without a handoff payload")
		return
	}
	if providerErr != "" {
		logging.Warn("Handshake", "Identity provider refused login: %s", providerErr)
		c.finish(ctx, sub, StateRejected, Handoff{}, &RejectedError{Reason: providerErr})
		return
	}
	c.finish(ctx, sub, StateCompleted, handoff, nil)
}

// watch polls the window's closed flag and observes ctx.
func (c *Controller) watch(ctx context.Context, sub *Subscription) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.stopPoll:
			return
		case <-ctx.Done():
			c.finish(ctx, sub, StateRejected, Handoff{}, &RejectedError{Reason: ReasonCancelled, Err: ctx.Err()})
			return
		case <-ticker.C:
			if sub.window.Closed() {
				logging.Info("Handshake", "Login window was closed before completion")
				c.finish(ctx, sub, StateRejected, Handoff{}, &RejectedError{Reason: ReasonCancelled})
				return
			}
		}
	}
}

// finish moves sub to a terminal state exactly once and releases its resources.
func (c *Controller) finish(ctx context.Context, sub *Subscription, state State, handoff Handoff, err error) {
	c.mu.Lock()
	if sub.state != StateAwaitingProvider {
		c.mu.Unlock()
		return
	}

	if state == StateCompleted {
		if putErr := c.store.Put(handoff.Credential()); putErr != nil {
			state = StateRejected
			err = &RejectedError{Reason: "credential could not be stored", Err: putErr}
		}
	}

	sub.state = state
	sub.result = handoff
	sub.err = err
	if c.current == sub {
		c.state = state
		c.current = nil
	}
	notifier := c.notifier
	c.mu.Unlock()

	sub.release()

	if state != StateCompleted || notifier == nil {
		close(sub.done)
		return
	}

	logging.Info("Handshake", "Handoff accepted, handing over to the session")
	go func() {
		defer close(sub.done)
		notifier.HandshakeCompleted(ctx, handoff)
	}()
}

// Subscription is the handle of one handshake.
type Subscription struct {
	c           *Controller
	window      Window
	unsubscribe func()
	timer       *time.Timer
	stopPoll    chan struct{}
	done        chan struct{}
	releaseOnce sync.Once

	// guarded by c.mu
	state  State
	result Handoff
	err    error
}

// Done is closed once the handshake reached a terminal state and, for a
// completed handshake, the notifier returned.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the handshake finishes or ctx is done.
func (s *Subscription) Wait(ctx context.Context) (Handoff, error) {
	select {
	case <-s.done:
		return s.Result()
	case <-ctx.Done():
		return Handoff{}, ctx.Err()
	}
}

// Result returns the outcome. Before Done is closed it reports the handshake
// as still awaiting the provider.
func (s *Subscription) Result() (Handoff, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.state == StateAwaitingProvider {
		return Handoff{}, ErrInProgress
	}
	return s.result, s.err
}

// State returns the subscription's state.
func (s *Subscription) State() State {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.state
}

// Dispose cancels a pending handshake and releases the timer, the listener,
// the poller and the window. It is safe to call more than once.
func (s *Subscription) Dispose() {
	s.c.finish(context.Background(), s, StateRejected, Handoff{}, &RejectedError{Reason: ReasonCancelled})
	s.release()
}

func (s *Subscription) release() {
	s.releaseOnce.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.stopPoll)
		if s.window != nil && !s.window.Closed() {
			if err := s.window.Close(); err != nil {
				logging.Debug("Handshake", "Closing login window: %v", err)
			}
		}
	})
}
