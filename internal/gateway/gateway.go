// Package gateway provides the HTTP client for the card payment gateway.
//
// It opens payment sessions and exchanges masked card data for a 3-D Secure
// challenge. The challenge itself completes out of band; its result reaches
// QuoteFlow through the session store rendezvous, not through this client.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/polisbay/quoteflow/internal/models"
)

// Constants for gateway client configuration
const (
	// DefaultRequestTimeout bounds a single gateway call.
	DefaultRequestTimeout = 20 * time.Second
)

// Opts holds configuration options for the gateway client.
type Opts struct {
	BaseURL    string
	MerchantID string
	HTTPClient *http.Client
}

// Option defines a configuration option for the gateway client.
type Option func(*Opts)

// WithBaseURL sets the gateway base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithMerchantID sets the merchant account identifier.
func WithMerchantID(id string) Option {
	return func(o *Opts) { o.MerchantID = id }
}

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks JSON over HTTP to the payment gateway.
type Client struct {
	baseURL    string
	merchantID string
	http       *http.Client
}

// NewClient creates a gateway client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("gateway.NewClient options set", "baseURL_set", cfg.BaseURL != "", "merchantID_set", cfg.MerchantID != "")

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL must be provided")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &Client{baseURL: cfg.BaseURL, merchantID: cfg.MerchantID, http: httpClient}, nil
}

// sessionCreateRequest opens a session with amount and order metadata.
type sessionCreateRequest struct {
	MerchantID        string             `json:"merchantId,omitempty"`
	MerchantPaymentID string             `json:"merchantPaymentId"`
	Amount            float64            `json:"amount"`
	Currency          string             `json:"currency"`
	Items             []models.OrderItem `json:"items,omitempty"`
}

type sessionCreateResponse struct {
	SessionToken string `json:"sessionToken"`
}

// CreateSession opens a payment session for the given amount and order lines.
func (c *Client) CreateSession(ctx context.Context, merchantPaymentID string, amount float64, currency string, items []models.OrderItem) (*models.PaymentSession, error) {
	req := sessionCreateRequest{
		MerchantID:        c.merchantID,
		MerchantPaymentID: merchantPaymentID,
		Amount:            amount,
		Currency:          currency,
		Items:             items,
	}
	var resp sessionCreateResponse
	if err := c.post(ctx, "/sessions", req, &resp); err != nil {
		return nil, fmt.Errorf("payment session create failed: %w", err)
	}
	if resp.SessionToken == "" {
		return nil, fmt.Errorf("payment session create returned no token")
	}
	slog.Info("gateway payment session created", "merchantPaymentID", merchantPaymentID, "amount", amount)
	return &models.PaymentSession{
		SessionToken:      resp.SessionToken,
		MerchantPaymentID: merchantPaymentID,
		Amount:            amount,
		Currency:          currency,
		Items:             items,
	}, nil
}

type validateResponse struct {
	Success       bool   `json:"success"`
	ChallengeHTML string `json:"challengeHtml"`
	Error         string `json:"error,omitempty"`
}

// SubmitCard submits masked card data with the session token and returns the
// 3-D Secure challenge markup. A non-success response or empty payload is a
// hard failure of the settlement flow.
func (c *Client) SubmitCard(ctx context.Context, submission models.CardSubmission) (*models.ThreeDSecureChallenge, error) {
	var resp validateResponse
	if err := c.post(ctx, "/validate", submission, &resp); err != nil {
		return nil, fmt.Errorf("card validation failed: %w", err)
	}
	if !resp.Success {
		slog.Warn("gateway declined card submission", "error", resp.Error)
		return nil, models.ErrPaymentDeclined
	}
	if resp.ChallengeHTML == "" {
		slog.Error("gateway returned success without challenge markup")
		return nil, models.ErrMissingChallenge
	}
	slog.Debug("gateway 3-D Secure challenge obtained", "markup_bytes", len(resp.ChallengeHTML))
	return &models.ThreeDSecureChallenge{HTML: resp.ChallengeHTML}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("gateway request failed", "path", path, "error", err)
		return fmt.Errorf("gateway request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("gateway returned unexpected status", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		slog.Error("gateway response decode failed", "path", path, "error", err)
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
