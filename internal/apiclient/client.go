package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/formzs/poe-to-gpt/internal/credential"
	"github.com/formzs/poe-to-gpt/pkg/logging"
)

// DefaultTimeout bounds a single call when the configuration does not.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response body is read for its detail.
const maxErrorBody = 64 << 10

// Config configures the client.
type Config struct {
	// BaseURL is the deployment root, e.g. https://admin.example.com.
	BaseURL string

	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the underlying client. Mostly for tests.
	HTTPClient *http.Client
}

// Message is the body mutation endpoints return on success.
type Message struct {
	Message string `json:"message"`
	Success *bool  `json:"success,omitempty"`
	NewKey  string `json:"new_key,omitempty"`
}

// Client issues calls to the admin API with the stored credential attached.
// It only classifies failures; reacting to them (for example tearing down the
// session on AuthExpired) is the caller's job.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	store   credential.Store
}

// New creates a client reading credentials from store.
func New(cfg Config, store credential.Store) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		store:   store,
	}, nil
}

// BaseURL returns the deployment root the client talks to.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Call issues method on endpoint with body encoded as JSON (nil for no body)
// and returns the raw JSON response. endpoint is a path, optionally with a query.
//
// Failures are always *Failure except for context cancellation, which is
// returned unchanged.
func (c *Client) Call(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error) {
	cred, ok := c.store.Get()
	if !ok {
		return nil, &Failure{Kind: KindUnauthenticated, Endpoint: endpoint}
	}
	return c.call(ctx, cred.Token, endpoint, method, body)
}

// CallScoped is Call authenticated with the credential's scoped key instead of
// its token. Self-service endpoints of the deployment accept only the key.
func (c *Client) CallScoped(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error) {
	cred, ok := c.store.Get()
	if !ok {
		return nil, &Failure{Kind: KindUnauthenticated, Endpoint: endpoint}
	}
	if cred.ScopedKey == "" {
		return nil, NewValidation("no API key stored for this session")
	}
	return c.call(ctx, cred.ScopedKey, endpoint, method, body)
}

// Do is Call followed by decoding the response into out (which may be nil).
func (c *Client) Do(ctx context.Context, endpoint, method string, body, out any) error {
	raw, err := c.Call(ctx, endpoint, method, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Failure{
			Kind:     KindServerError,
			Status:   http.StatusOK,
			Detail:   fmt.Sprintf("malformed response: %v", err),
			Endpoint: endpoint,
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, bearer, endpoint, method string, body any) (json.RawMessage, error) {
	target, err := c.resolve(endpoint)
	if err != nil {
		return nil, NewValidation(err.Error())
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, NewValidation(fmt.Sprintf("failed to encode request body: %v", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, NewValidation(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}).SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logging.Debug("APIClient", "%s %s: no response: %v", method, endpoint, err)
		return nil, &Failure{Kind: KindUnreachable, Endpoint: endpoint, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		failure := &Failure{
			Kind:     KindServerError,
			Status:   resp.StatusCode,
			Detail:   extractDetail(data, resp.StatusCode),
			Endpoint: endpoint,
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			failure.Kind = KindAuthExpired
		}
		logging.Debug("APIClient", "%s %s: %d classified as %s", method, endpoint, resp.StatusCode, failure.Kind)
		return nil, failure
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Failure{Kind: KindUnreachable, Endpoint: endpoint, Cause: err}
	}
	return json.RawMessage(data), nil
}

// resolve joins endpoint onto the base URL, keeping any base path prefix.
func (c *Client) resolve(endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("endpoint %q must be a path", endpoint)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

// extractDetail pulls the human-readable message out of a {"detail": "..."}
// body, falling back to the status text.
func extractDetail(body []byte, status int) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil && detail != "" {
			return detail
		}
	}
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}
