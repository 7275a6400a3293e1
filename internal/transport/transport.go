// Package transport posts JSON to the control-plane API and classifies
// the outcome. HTTP 401 is reported as ErrUnauthenticated, any other
// non-200 status as a *StatusError, and a 200 body is decoded into an
// Envelope.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/vmplane/internal/tlsmgr"
)

// API paths relative to the base URL.
const (
	PathCommands    = "commands/"
	PathAuthSecret  = "auth/by-secret"
	PathAuthToken   = "auth/by-token"
	PathAuthRefresh = "auth/refresh"
	PathMonitor     = "monitor/"
)

const maxErrorBody = 4096

// ErrUnauthenticated is returned when the backend answers 401.
var ErrUnauthenticated = errors.New("unauthenticated")

// StatusError reports a non-200, non-401 HTTP response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend returned %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("backend returned %s", e.Status)
}

// Envelope is the response body shared by every endpoint.
type Envelope struct {
	ID    string          `json:"id,omitempty"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether the envelope carries a non-null payload.
func (e Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Credentials are the headers attached to authenticated requests.
type Credentials struct {
	AccessToken string
	CSRFToken   string
}

// Client posts requests to one backend.
type Client struct {
	base   string
	http   *http.Client
	logger pslog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger pslog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a Client for the API rooted at base, for example
// http://127.0.0.1:8080/api/v1/.
func New(base string, opts ...Option) (*Client, error) {
	normalized, err := NormalizeBaseURL(base)
	if err != nil {
		return nil, err
	}
	c := &Client{base: normalized}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.logger == nil {
		c.logger = pslog.LoggerFromEnv()
	}
	return c, nil
}

// BaseURL returns the normalized base URL, always ending in '/'.
func (c *Client) BaseURL() string { return c.base }

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Post sends body as JSON to path. creds may be zero for the auth
// endpoints.
func (c *Client) Post(ctx context.Context, path string, creds Credentials, body any) (Envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode request: %w", err)
	}
	endpoint := c.base + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if creds.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}
	if creds.CSRFToken != "" {
		req.Header.Set("X-CSRF-Token", creds.CSRFToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Debug("backend rejected credentials", "path", path)
		return Envelope{}, ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("backend error status", "path", path, "status", resp.StatusCode)
		return Envelope{}, &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(data)),
		}
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return Envelope{}, nil
		}
		return Envelope{}, fmt.Errorf("decode %s response: %w", path, err)
	}
	return env, nil
}

// NormalizeBaseURL validates base and returns it with a trailing slash.
// ws and wss schemes map to http and https.
func NormalizeBaseURL(base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("endpoint is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	case "":
		return "", fmt.Errorf("endpoint must include scheme")
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("endpoint must include host")
	}
	return strings.TrimRight(parsed.String(), "/") + "/", nil
}

// NewHTTPClient returns an HTTP client trusting the system roots plus
// the local CA stored in tlsDir, if any.
func NewHTTPClient(tlsDir string) (*http.Client, error) {
	pool, err := tlsmgr.ClientRoots(tlsDir)
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		},
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}, nil
}
