package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/formzs/poe-to-gpt/internal/apiclient"
)

// Mutation is a state-changing roster action. Apply and Revert act on the
// working copy of the target account; Send performs the server call.
type Mutation interface {
	// Target is the account the mutation changes.
	Target() int64
	// Optimistic reports whether Apply changes the working copy.
	Optimistic() bool
	Apply(a *Account)
	Revert(a *Account)
	Send(ctx context.Context, client Caller) (Result, error)
	// Revokes reports whether a successful Send may remove the target's
	// access to the admin console.
	Revokes() bool
}

// Result is the server's confirmation of a mutation.
type Result struct {
	Message string `json:"message"`
	// NewKey is set by key resets.
	NewKey string `json:"new_key,omitempty"`
	// SessionEnded is set when the mutation ended the operator's own session.
	SessionEnded bool `json:"session_ended,omitempty"`
}

// adminFlag sets or clears the admin flag.
type adminFlag struct {
	id      int64
	desired bool
	prior   bool
}

func (m *adminFlag) Target() int64 { return m.id }

func (m *adminFlag) Optimistic() bool { return true }

func (m *adminFlag) Apply(a *Account) {
	m.prior = a.IsAdmin
	a.IsAdmin = m.desired
}

func (m *adminFlag) Revert(a *Account) { a.IsAdmin = m.prior }

func (m *adminFlag) Revokes() bool { return !m.desired }

func (m *adminFlag) Send(ctx context.Context, client Caller) (Result, error) {
	return send(ctx, client, fmt.Sprintf("/api/admin/toggle-admin/%d", m.id), map[string]bool{"is_admin": m.desired})
}

// enabled enables an account, or disables it with a reason.
type enabled struct {
	id          int64
	desired     bool
	reason      string
	priorState  bool
	priorReason string
}

func (m *enabled) Target() int64 { return m.id }

func (m *enabled) Optimistic() bool { return true }

func (m *enabled) Apply(a *Account) {
	m.priorState, m.priorReason = a.Enabled, a.DisableReason
	a.Enabled = m.desired
	if m.desired {
		a.DisableReason = ""
	} else {
		a.DisableReason = m.reason
	}
}

func (m *enabled) Revert(a *Account) {
	a.Enabled, a.DisableReason = m.priorState, m.priorReason
}

func (m *enabled) Revokes() bool { return !m.desired }

func (m *enabled) Send(ctx context.Context, client Caller) (Result, error) {
	if m.desired {
		return send(ctx, client, fmt.Sprintf("/api/admin/enable/%d", m.id), nil)
	}
	return send(ctx, client, fmt.Sprintf("/api/admin/disable/%d", m.id), map[string]string{"reason": m.reason})
}

// resetKey rotates an account's API key. It has no optimistic phase.
type resetKey struct {
	id int64
}

func (m *resetKey) Target() int64    { return m.id }
func (m *resetKey) Optimistic() bool { return false }
func (m *resetKey) Apply(*Account)   {}
func (m *resetKey) Revert(*Account)  {}
func (m *resetKey) Revokes() bool    { return false }

func (m *resetKey) Send(ctx context.Context, client Caller) (Result, error) {
	return send(ctx, client, fmt.Sprintf("/api/admin/reset-key/%d", m.id), nil)
}

// newEnabled validates the reason of a disable before anything is sent.
func newEnabled(id int64, desired bool, reason string) (*enabled, error) {
	reason = strings.TrimSpace(reason)
	if !desired && reason == "" {
		return nil, apiclient.NewValidation("a reason is required to disable an account")
	}
	if desired {
		reason = ""
	}
	return &enabled{id: id, desired: desired, reason: reason}, nil
}

func send(ctx context.Context, client Caller, endpoint string, body any) (Result, error) {
	raw, err := client.Call(ctx, endpoint, http.MethodPost, body)
	if err != nil {
		return Result{}, err
	}

	var msg apiclient.Message
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &msg); err != nil {
			return Result{}, &apiclient.Failure{Kind: apiclient.KindServerError, Status: http.StatusOK, Detail: "malformed response", Endpoint: endpoint, Cause: err}
		}
	}
	if msg.Success != nil && !*msg.Success {
		detail := msg.Message
		if detail == "" {
			detail = "operation was not applied"
		}
		return Result{}, &apiclient.Failure{Kind: apiclient.KindServerError, Status: http.StatusOK, Detail: detail, Endpoint: endpoint}
	}
	return Result{Message: msg.Message, NewKey: msg.NewKey}, nil
}
