// Package otp issues and verifies one-time passcodes for the identity gate.
//
// Two providers exist: a local one that generates and delivers codes itself
// (over a messaging.Service) and a remote one that delegates to the insurer
// platform's auth endpoints. The identity gate is oblivious to which is wired.
package otp

import (
	"context"
	"time"

	"github.com/polisbay/quoteflow/internal/models"
)

// DefaultCountdown is the default OTP validity window.
const DefaultCountdown = 60 * time.Second

// Provider abstracts where OTP challenges are issued and verified.
type Provider interface {
	// Issue opens a fresh challenge for the login request and returns its
	// session. Re-issuing for the same phone yields a new token and restarts
	// the countdown.
	Issue(ctx context.Context, req models.LoginRequest) (*models.IdentitySession, error)

	// Verify checks a code against a previously issued token. Invalid codes
	// return models.ErrOtpInvalid; expired tokens models.ErrOtpExpired.
	Verify(ctx context.Context, token, code string) (*models.VerifyResult, error)
}
