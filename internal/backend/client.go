// Package backend provides the HTTP client for the insurer platform.
//
// It covers the auth, customer, proposal, company-directory and address
// endpoints the wizard orchestrates against.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Constants for backend client configuration
const (
	// DefaultRequestTimeout bounds a single backend call.
	DefaultRequestTimeout = 15 * time.Second
)

// Error variables for backend response classification
var (
	// ErrNotFound signals a 404 from the backend, e.g. a login whose phone
	// number does not match the identity record.
	ErrNotFound = errors.New("backend resource not found")
	// ErrUnauthorized signals a rejected credential or OTP code.
	ErrUnauthorized = errors.New("backend rejected credentials")
)

// Opts holds configuration options for the backend client.
type Opts struct {
	BaseURL    string
	AgentID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Option defines a configuration option for the backend client.
type Option func(*Opts)

// WithBaseURL sets the backend base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithAgentID sets the marketplace agent identifier sent with login requests.
func WithAgentID(id string) Option {
	return func(o *Opts) { o.AgentID = id }
}

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client talks JSON over HTTP to the insurer platform.
type Client struct {
	baseURL string
	agentID string
	http    *http.Client
}

// NewClient creates a backend client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("backend.NewClient options set", "baseURL_set", cfg.BaseURL != "", "agentID_set", cfg.AgentID != "")

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL must be provided")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: cfg.BaseURL, agentID: cfg.AgentID, http: httpClient}, nil
}

// AgentID returns the configured marketplace agent identifier.
func (c *Client) AgentID() string {
	return c.agentID
}

// doJSON performs a JSON request/response round trip. A non-2xx status is
// mapped to a classified error; 404 becomes ErrNotFound and 400/401/403
// become ErrUnauthorized so callers can branch without parsing bodies.
func (c *Client) doJSON(ctx context.Context, method, path, accessToken string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	slog.Debug("backend request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("backend request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("backend request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		slog.Warn("backend returned not found", "method", method, "path", path)
		return ErrNotFound
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		slog.Warn("backend rejected request", "method", method, "path", path, "status", resp.StatusCode)
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		slog.Error("backend returned unexpected status", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("backend returned status %d for %s %s", resp.StatusCode, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		slog.Error("backend response decode failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}
