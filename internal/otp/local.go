package otp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/polisbay/quoteflow/internal/messaging"
	"github.com/polisbay/quoteflow/internal/models"
	"github.com/polisbay/quoteflow/internal/store"
	"github.com/polisbay/quoteflow/internal/util"
)

// Opts holds configuration options for the local OTP provider.
type Opts struct {
	Countdown time.Duration
}

// Option defines a configuration option for the local OTP provider.
type Option func(*Opts)

// WithCountdown overrides the OTP validity window.
func WithCountdown(d time.Duration) Option {
	return func(o *Opts) { o.Countdown = d }
}

// LocalProvider generates OTP codes itself and delivers them over a
// messaging service. Only a hash of the code is persisted.
type LocalProvider struct {
	store     store.Store
	messenger messaging.Service
	countdown time.Duration
	now       func() time.Time
}

// NewLocalProvider creates a local OTP provider.
func NewLocalProvider(st store.Store, messenger messaging.Service, opts ...Option) *LocalProvider {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	countdown := cfg.Countdown
	if countdown == 0 {
		countdown = DefaultCountdown
	}
	return &LocalProvider{store: st, messenger: messenger, countdown: countdown, now: time.Now}
}

// Issue generates a code, persists its hash with the countdown deadline and
// delivers it to the request's phone number.
func (p *LocalProvider) Issue(ctx context.Context, req models.LoginRequest) (*models.IdentitySession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	to, err := p.messenger.ValidateAndCanonicalizeRecipient(req.PhoneNumber.CountryCode + req.PhoneNumber.Number)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	code := util.GenerateOtpCode(models.OtpCodeLength)
	now := p.now()
	session := models.IdentitySession{
		Token:       token,
		Phone:       req.PhoneNumber,
		CodeHash:    util.HashOtpCode(token, code),
		Deadline:    now.Add(p.countdown),
		CreatedAt:   now,
		LastRequest: req,
	}
	if err := p.store.SaveIdentitySession(session); err != nil {
		return nil, fmt.Errorf("failed to persist otp challenge: %w", err)
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d seconds.", code, int(p.countdown.Seconds()))
	if err := p.messenger.SendMessage(ctx, to, body); err != nil {
		// The challenge is unusable if the code never reached the user.
		_ = p.store.DeleteIdentitySession(token)
		return nil, fmt.Errorf("failed to deliver otp code: %w", err)
	}

	slog.Info("local otp challenge issued", "token", token, "deadline", session.Deadline)
	return &session, nil
}

// Verify checks the code hash, enforcing the deadline and the attempt cap.
func (p *LocalProvider) Verify(ctx context.Context, token, code string) (*models.VerifyResult, error) {
	session, err := p.store.GetIdentitySession(token)
	if err != nil {
		return nil, fmt.Errorf("failed to load otp challenge: %w", err)
	}
	if session == nil {
		slog.Warn("otp verify for unknown token", "token", token)
		return nil, models.ErrOtpExpired
	}
	if session.Expired(p.now()) {
		_ = p.store.DeleteIdentitySession(token)
		return nil, models.ErrOtpExpired
	}
	if session.Attempts >= models.MaxOtpAttempts {
		_ = p.store.DeleteIdentitySession(token)
		return nil, models.ErrOtpAttemptsExhausted
	}

	if util.HashOtpCode(token, code) != session.CodeHash {
		session.Attempts++
		if err := p.store.SaveIdentitySession(*session); err != nil {
			slog.Error("failed to record otp attempt", "error", err, "token", token)
		}
		slog.Warn("otp verify failed", "token", token, "attempts", session.Attempts)
		return nil, models.ErrOtpInvalid
	}

	// Challenge consumed on success
	if err := p.store.DeleteIdentitySession(token); err != nil {
		slog.Error("failed to delete verified otp challenge", "error", err, "token", token)
	}

	slog.Info("local otp challenge verified", "token", token)
	return &models.VerifyResult{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		CustomerID:   session.CustomerID,
	}, nil
}
