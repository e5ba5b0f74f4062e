package handshake

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/formzs/poe-to-gpt/pkg/logging"
)

// DefaultRelayPort lets the operating system choose a free port.
const DefaultRelayPort = 0

// maxHandoffBody bounds the size of a posted handoff payload.
const maxHandoffBody = 16 << 10

//go:embed templates/handoff_done.html
var handoffDoneHTML string

var handoffDoneTemplate = template.Must(template.New("done").Parse(handoffDoneHTML))

// RelayConfig configures a Relay.
type RelayConfig struct {
	// Port to listen on, 0 picks a free port.
	Port int
	// HostOrigin is the deployment origin allowed to post handoffs.
	HostOrigin string
	// Launch opens a URL for the operator. Defaults to OpenBrowser.
	Launch func(target string) error
}

// Relay is a loopback HTTP server standing in for the opener window of a
// browser console. It implements both Opener and Bus.
type Relay struct {
	cfg     RelayConfig
	handler http.Handler

	mu        sync.Mutex
	listener  net.Listener
	server    *http.Server
	baseURL   string
	windows   map[string]*relayWindow
	listeners map[uint64]func(Message)
	nextID    uint64
	stopOnce  sync.Once
}

// NewRelay creates a relay. Start must be called before Open.
func NewRelay(cfg RelayConfig) (*Relay, error) {
	origin, err := OriginOf(cfg.HostOrigin)
	if err != nil {
		return nil, fmt.Errorf("invalid hosting origin: %w", err)
	}
	cfg.HostOrigin = origin
	if cfg.Launch == nil {
		cfg.Launch = OpenBrowser
	}

	r := &Relay{
		cfg:       cfg,
		windows:   make(map[string]*relayWindow),
		listeners: make(map[uint64]func(Message)),
	}
	r.handler = r.routes()
	return r, nil
}

// Handler returns the relay's HTTP routes.
func (r *Relay) Handler() http.Handler {
	return r.handler
}

func (r *Relay) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chiMiddleware.Recoverer)
	router.Use(securityHeaders)

	router.Options("/handoff", r.handlePreflight)
	router.Post("/handoff", r.handleHandoff)
	router.Options("/closed", r.handlePreflight)
	router.Post("/closed", r.handleClosed)
	router.Get("/handoff/done", r.handleDone)
	return router
}

// Start listens on the loopback interface. The relay stops when ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", r.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start handoff relay on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           r.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.mu.Lock()
	r.listener = listener
	r.server = server
	r.baseURL = fmt.Sprintf("http://127.0.0.1:%d", listener.Addr().(*net.TCPAddr).Port)
	r.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Error("Handshake", err, "Handoff relay stopped unexpectedly")
		}
	}()
	go func() {
		<-ctx.Done()
		r.Stop()
	}()

	logging.Debug("Handshake", "Handoff relay listening on %s", r.URL())
	return nil
}

// URL returns the relay's base URL, empty before Start.
func (r *Relay) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseURL
}

// Stop shuts the relay down. It is safe to call more than once.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		server := r.server
		r.mu.Unlock()
		if server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
}

// Open registers a new window and launches the browser at entryURL, extended
// with the relay's return addresses.
func (r *Relay) Open(_ context.Context, entryURL string) (Window, error) {
	base := r.URL()
	if base == "" {
		return nil, fmt.Errorf("handoff relay is not running")
	}

	u, err := url.Parse(entryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid entry URL: %w", err)
	}

	w := &relayWindow{id: uuid.NewString(), relay: r}
	q := u.Query()
	q.Set("self", base+"/handoff")
	q.Set("closed", base+"/closed")
	q.Set("window", w.id)
	u.RawQuery = q.Encode()

	r.mu.Lock()
	r.windows[w.id] = w
	r.mu.Unlock()

	if err := r.cfg.Launch(u.String()); err != nil {
		r.forget(w.id)
		return nil, err
	}
	return w, nil
}

// Subscribe adds a message listener.
func (r *Relay) Subscribe(fn func(Message)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Relay) dispatch(msg Message) {
	r.mu.Lock()
	fns := make([]func(Message), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (r *Relay) window(id string) *relayWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windows[id]
}

func (r *Relay) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.windows, id)
}

func (r *Relay) allowOrigin(w http.ResponseWriter, req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if !sameOrigin(origin, r.cfg.HostOrigin) {
		return false
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Vary", "Origin")
	return true
}

func (r *Relay) handlePreflight(w http.ResponseWriter, req *http.Request) {
	if !r.allowOrigin(w, req) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Access-Control-Allow-Methods", "POST")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Private-Network", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (r *Relay) handleHandoff(w http.ResponseWriter, req *http.Request) {
	r.allowOrigin(w, req)

	body, err := io.ReadAll(io.LimitReader(req.Body, maxHandoffBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		http.Error(w, "body must be JSON", http.StatusBadRequest)
		return
	}

	msg := Message{
		Origin: req.Header.Get("Origin"),
		Data:   data,
	}
	// A nil *relayWindow must not become a non-nil Window.
	if win := r.window(req.URL.Query().Get("window")); win != nil {
		msg.Source = win
	}

	r.dispatch(msg)
	w.WriteHeader(http.StatusAccepted)
}

func (r *Relay) handleClosed(w http.ResponseWriter, req *http.Request) {
	if !r.allowOrigin(w, req) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if win := r.window(req.URL.Query().Get("window")); win != nil {
		win.closed.Store(true)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Relay) handleDone(w http.ResponseWriter, req *http.Request) {
	data := struct {
		Accepted bool
		Message  string
	}{
		Accepted: req.URL.Query().Get("error") == "",
		Message:  req.URL.Query().Get("error"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := handoffDoneTemplate.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// relayWindow is the browser window opened by the relay. The relay cannot
// close a browser tab, so Close only detaches it.
type relayWindow struct {
	id     string
	relay  *Relay
	closed atomic.Bool
}

func (w *relayWindow) ID() string { return w.id }

func (w *relayWindow) Close() error {
	w.closed.Store(true)
	w.relay.forget(w.id)
	return nil
}

func (w *relayWindow) Closed() bool { return w.closed.Load() }
