package handshake

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/formzs/poe-to-gpt/internal/credential"
)

// Window is a secondary browsing context opened for the provider flow.
// Implementations must be comparable (pointer types): a Message is attributed
// to a handshake by comparing its Source with the window Begin opened.
type Window interface {
	ID() string
	Close() error
	Closed() bool
}

// Opener opens a Window at an absolute URL.
type Opener interface {
	Open(ctx context.Context, entryURL string) (Window, error)
}

// Message is a candidate handoff delivered by a Bus.
type Message struct {
	// Origin is the origin the message was sent from.
	Origin string
	// Source is the window the message came from, nil if unknown.
	Source Window
	// Data is the decoded payload, an object is a map[string]any.
	Data any
}

// Bus delivers messages to subscribers. Subscribe returns the function that
// detaches the listener. Listeners must not be invoked with internal locks
// held, since a listener may unsubscribe itself.
type Bus interface {
	Subscribe(fn func(Message)) (unsubscribe func())
}

// Handoff is an accepted token payload.
type Handoff struct {
	Token     string
	ScopedKey string
	// Admin is the provider's admin hint, nil when the payload carried none.
	Admin *bool
}

// Credential returns the credential carried by the handoff.
func (h Handoff) Credential() credential.Credential {
	return credential.Credential{Token: h.Token, ScopedKey: h.ScopedKey}
}

// Notifier is told about completed handshakes. The session machine implements it.
type Notifier interface {
	HandshakeCompleted(ctx context.Context, h Handoff)
}

// parsePayload inspects a message payload. It returns either a handoff, a
// provider error, or ok=false for payloads that are not a handoff at all.
func parsePayload(data any) (h Handoff, providerErr string, ok bool) {
	obj, isObj := data.(map[string]any)
	if !isObj {
		return Handoff{}, "", false
	}

	if msg, isStr := obj["error"].(string); isStr && msg != "" {
		return Handoff{}, msg, true
	}

	token, isStr := obj["oauth_token"].(string)
	if !isStr || token == "" {
		return Handoff{}, "", false
	}
	h.Token = token

	if key, isStr := obj["apiKey"].(string); isStr {
		h.ScopedKey = key
	}
	if admin, isBool := obj["admin"].(bool); isBool {
		h.Admin = &admin
	}
	return h, "", true
}

// OriginOf returns the normalized origin (scheme://host[:port]) of rawURL.
// Default ports are dropped so that https://a.example:443 and https://a.example match.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: scheme and host are required", rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return scheme + "://" + host + ":" + port, nil
	}
	return scheme + "://" + host, nil
}

// sameOrigin compares a message origin with the hosting origin.
func sameOrigin(messageOrigin, hostOrigin string) bool {
	if messageOrigin == "" || messageOrigin == "null" {
		return false
	}
	normalized, err := OriginOf(messageOrigin)
	if err != nil {
		return false
	}
	return normalized == hostOrigin
}
