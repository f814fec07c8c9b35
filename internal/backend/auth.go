package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/polisbay/quoteflow/internal/models"
)

// Login opens an OTP challenge for the given identity/phone pair.
// A backend 404 means the phone number does not match the identity record and
// is surfaced as models.ErrIdentityPhoneMismatch so the caller can route the
// user to the dedicated mismatch path rather than a generic error.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.AgentID == "" {
		req.AgentID = c.agentID
	}

	var result models.LoginResult
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", req, &result)
	if errors.Is(err, ErrNotFound) {
		return nil, models.ErrIdentityPhoneMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if result.Token == "" {
		return nil, fmt.Errorf("login succeeded but no otp token was returned")
	}
	slog.Info("backend login succeeded", "customerID_set", result.CustomerID != "")
	return &result, nil
}

// Verify submits an OTP code against a token. Rejected codes are surfaced as
// models.ErrOtpInvalid.
func (c *Client) Verify(ctx context.Context, req models.VerifyRequest) (*models.VerifyResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result models.VerifyResult
	err := c.doJSON(ctx, http.MethodPost, "/auth/verify", "", req, &result)
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
		return nil, models.ErrOtpInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("verify failed: %w", err)
	}
	if result.AccessToken == "" {
		return nil, models.ErrOtpInvalid
	}
	slog.Info("backend verify succeeded", "customerID_set", result.CustomerID != "")
	return &result, nil
}
