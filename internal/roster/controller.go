// Package roster keeps the admin console's view of the user roster: the last
// fetched snapshot, a working copy carrying optimistic changes, and the
// derived page.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/formzs/poe-to-gpt/internal/apiclient"
	"github.com/formzs/poe-to-gpt/pkg/logging"
)

// ListPath is the roster listing endpoint.
const ListPath = "/api/users"

var (
	// ErrSuperseded is returned by a refresh whose response arrived after a
	// newer refresh or mutation had already been applied.
	ErrSuperseded = errors.New("refresh superseded by a newer update")

	// ErrSelfRevoked is the session teardown reason when the operator
	// disabled or demoted their own account.
	ErrSelfRevoked = errors.New("you revoked your own admin access")

	// ErrUnknownAccount is returned for an account id not in the roster.
	ErrUnknownAccount = errors.New("unknown account")
)

// Caller issues authenticated API calls.
type Caller interface {
	Call(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error)
}

// Session is the part of the session machine the roster depends on.
type Session interface {
	Require() error
	Observe(err error) bool
	Teardown(reason error) error
}

// Filtering selects where search, filters and sort are evaluated.
type Filtering string

const (
	// FilteringServer sends the view parameters to the listing endpoint and
	// only paginates locally.
	FilteringServer Filtering = "server"
	// FilteringClient fetches the whole roster and evaluates the view locally.
	FilteringClient Filtering = "client"
)

// ParseFiltering parses a filtering mode, defaulting to server.
func ParseFiltering(s string) (Filtering, error) {
	switch Filtering(s) {
	case "", FilteringServer:
		return FilteringServer, nil
	case FilteringClient:
		return FilteringClient, nil
	}
	return FilteringServer, fmt.Errorf("invalid filtering mode %q (want server or client)", s)
}

// Config configures a Controller.
type Config struct {
	Filtering Filtering
	// SelfID is the operator's own account id, 0 when unknown.
	SelfID   int64
	PageSize int
}

// Controller owns the roster snapshot. It is safe for concurrent use.
type Controller struct {
	client  Caller
	session Session
	cfg     Config

	mu sync.Mutex
	// seq is the last sequence number handed out, applied the newest one
	// whose effect is visible in working.
	seq      uint64
	applied  uint64
	snapshot []Account
	working  []Account
	fetched  ViewState
	view     ViewState
}

// NewController creates a controller with an empty roster.
func NewController(client Caller, session Session, cfg Config) *Controller {
	if cfg.Filtering == "" {
		cfg.Filtering = FilteringServer
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Controller{
		client:  client,
		session: session,
		cfg:     cfg,
		view:    ViewState{PageSize: cfg.PageSize}.Normalized(),
	}
}

func (c *Controller) normalize(vs ViewState) ViewState {
	if vs.PageSize <= 0 {
		vs.PageSize = c.cfg.PageSize
	}
	return vs.Normalized()
}

// Refresh fetches the roster for vs and returns the derived page.
func (c *Controller) Refresh(ctx context.Context, vs ViewState) (Page, error) {
	if err := c.session.Require(); err != nil {
		return Page{}, err
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	vs = c.normalize(vs)
	c.mu.Unlock()

	endpoint := ListPath
	if c.cfg.Filtering == FilteringServer {
		if q := vs.Query().Encode(); q != "" {
			endpoint += "?" + q
		}
	}

	raw, err := c.client.Call(ctx, endpoint, http.MethodGet, nil)
	if err != nil {
		c.observe(err)
		return Page{}, err
	}
	var resp struct {
		Users []Account `json:"users"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Page{}, &apiclient.Failure{Kind: apiclient.KindServerError, Status: http.StatusOK, Detail: "malformed roster", Endpoint: ListPath, Cause: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.applied {
		logging.Debug("Roster", "Discarding refresh #%d, #%d already applied", seq, c.applied)
		return Page{}, ErrSuperseded
	}
	c.applied = seq
	c.snapshot = resp.Users
	c.working = slices.Clone(resp.Users)
	c.fetched = vs
	c.view = vs
	logging.Debug("Roster", "Applied refresh #%d with %d accounts", seq, len(resp.Users))
	return c.computeLocked(), nil
}

// SetView changes the view without fetching. In server filtering mode only
// the page changes locally; use NeedsRefresh to find out whether vs selects
// accounts the last fetch did not.
func (c *Controller) SetView(vs ViewState) Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = c.normalize(vs)
	return c.computeLocked()
}

// View returns the current page.
func (c *Controller) View() Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computeLocked()
}

// ViewState returns the current view parameters.
func (c *Controller) ViewState() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// NeedsRefresh reports whether showing vs requires a new fetch.
func (c *Controller) NeedsRefresh(vs ViewState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied == 0 {
		return true
	}
	return c.cfg.Filtering == FilteringServer && !sameSelection(c.fetched, vs)
}

// Account returns the working copy of one account.
func (c *Controller) Account(id int64) (Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := indexOf(c.working, id); i >= 0 {
		return c.working[i], true
	}
	return Account{}, false
}

// Snapshot returns a copy of the roster as last fetched.
func (c *Controller) Snapshot() []Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.snapshot)
}

func (c *Controller) computeLocked() Page {
	var page Page
	if c.cfg.Filtering == FilteringServer {
		page = Paginate(c.working, c.view.Page, c.view.PageSize)
	} else {
		page = ComputeView(c.working, c.view)
	}
	c.view.Page = page.Number
	return page
}

// SetAdminFlag grants or revokes admin rights.
func (c *Controller) SetAdminFlag(ctx context.Context, id int64, desired bool) (Result, error) {
	return c.Execute(ctx, &adminFlag{id: id, desired: desired})
}

// SetEnabled enables an account, or disables it. Disabling requires a
// non-blank reason and fails with a validation error before any call otherwise.
func (c *Controller) SetEnabled(ctx context.Context, id int64, desired bool, reason string) (Result, error) {
	if err := c.session.Require(); err != nil {
		return Result{}, err
	}
	m, err := newEnabled(id, desired, reason)
	if err != nil {
		return Result{}, err
	}
	return c.Execute(ctx, m)
}

// ResetKey rotates an account's API key. The result carries the new key.
func (c *Controller) ResetKey(ctx context.Context, id int64) (Result, error) {
	return c.Execute(ctx, &resetKey{id: id})
}

// Execute runs a mutation: apply to the working copy, send, and revert on
// failure. An AuthExpired failure ends the session before it is returned.
// A successful revocation of the operator's own account ends the session too.
func (c *Controller) Execute(ctx context.Context, m Mutation) (Result, error) {
	if err := c.session.Require(); err != nil {
		return Result{}, err
	}

	id := m.Target()
	c.mu.Lock()
	var mark uint64
	if i := indexOf(c.working, id); i >= 0 && m.Optimistic() {
		m.Apply(&c.working[i])
		// Older refreshes still in flight must not overwrite the change.
		c.seq++
		c.applied = c.seq
		mark = c.seq
	}
	c.mu.Unlock()

	result, err := m.Send(ctx, c.client)
	if err != nil {
		if mark != 0 {
			c.mu.Lock()
			// A newer snapshot already replaced the changed entry.
			if c.applied == mark {
				if i := indexOf(c.working, id); i >= 0 {
					m.Revert(&c.working[i])
				}
			}
			c.mu.Unlock()
		}
		result.SessionEnded = c.observe(err)
		logging.Warn("Roster", "Mutation on account %d failed: %v", id, err)
		return result, err
	}

	if m.Revokes() {
		result.SessionEnded = c.afterRevocation(ctx, id)
	}
	return result, nil
}

// afterRevocation ends the session when the operator revoked their own
// access. With an unknown self id a confirmation refresh decides.
func (c *Controller) afterRevocation(ctx context.Context, id int64) bool {
	if c.cfg.SelfID != 0 {
		if id != c.cfg.SelfID {
			return false
		}
		if err := c.session.Teardown(ErrSelfRevoked); err != nil {
			logging.Debug("Roster", "Self revocation teardown: %v", err)
			return false
		}
		return true
	}

	c.mu.Lock()
	vs := c.view
	c.mu.Unlock()

	_, err := c.Refresh(ctx, vs)
	switch {
	case err == nil, errors.Is(err, ErrSuperseded):
		return false
	case apiclient.IsAuthExpired(err):
		return true
	default:
		logging.Debug("Roster", "Confirmation refresh failed: %v", err)
		return false
	}
}

func (c *Controller) observe(err error) bool {
	if !apiclient.IsAuthExpired(err) {
		return false
	}
	return c.session.Observe(err)
}

func indexOf(accounts []Account, id int64) int {
	return slices.IndexFunc(accounts, func(a Account) bool { return a.ID == id })
}
