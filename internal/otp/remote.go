package otp

import (
	"context"
	"time"

	"github.com/polisbay/quoteflow/internal/backend"
	"github.com/polisbay/quoteflow/internal/models"
)

// RemoteProvider delegates OTP challenges to the insurer platform, which
// sends the code itself. The local store still tracks the session so resend
// and countdown behave identically to the local provider.
type RemoteProvider struct {
	client    *backend.Client
	countdown time.Duration
	now       func() time.Time
}

// NewRemoteProvider creates a backend-delegating OTP provider.
func NewRemoteProvider(client *backend.Client, opts ...Option) *RemoteProvider {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	countdown := cfg.Countdown
	if countdown == 0 {
		countdown = DefaultCountdown
	}
	return &RemoteProvider{client: client, countdown: countdown, now: time.Now}
}

// Issue runs the upstream login, which triggers the SMS on the platform side.
func (p *RemoteProvider) Issue(ctx context.Context, req models.LoginRequest) (*models.IdentitySession, error) {
	result, err := p.client.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	now := p.now()
	return &models.IdentitySession{
		Token:       result.Token,
		Phone:       req.PhoneNumber,
		Deadline:    now.Add(p.countdown),
		CustomerID:  result.CustomerID,
		CreatedAt:   now,
		LastRequest: req,
	}, nil
}

// Verify runs the upstream verification.
func (p *RemoteProvider) Verify(ctx context.Context, token, code string) (*models.VerifyResult, error) {
	return p.client.Verify(ctx, models.VerifyRequest{Token: token, Code: code})
}
