package roster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// timestampLayouts are tried in order when decoding server timestamps. The
// server stores timestamps without a zone and serializes them as such.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a server timestamp. Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts RFC 3339 and zone-less ISO 8601 strings.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON writes RFC 3339, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// Account is one entry of the user roster.
type Account struct {
	ID       int64  `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	Enabled  bool   `json:"enabled"`
	// DisableReason is only meaningful while Enabled is false.
	DisableReason string     `json:"disable_reason,omitempty"`
	CreatedAt     Timestamp  `json:"created_at"`
	LastUsedAt    *Timestamp `json:"last_used_at,omitempty"`
}

// Status returns "enabled" or "disabled".
func (a Account) Status() string {
	if a.Enabled {
		return string(StatusEnabled)
	}
	return string(StatusDisabled)
}

// Role returns "admin" or "user".
func (a Account) Role() string {
	if a.IsAdmin {
		return "admin"
	}
	return "user"
}
