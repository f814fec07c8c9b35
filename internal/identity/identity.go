// Package identity implements the identity & profile gate that fronts the
// purchase wizard.
//
// The gate walks a session from an idle prompt through an OTP challenge to a
// verified, profile-complete state. It owns the countdown semantics (a failed
// verification never restarts the countdown, a resend always does) and the
// auto-verify arming that guarantees at most one automatic submission per
// displayed challenge.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/polisbay/quoteflow/internal/models"
	"github.com/polisbay/quoteflow/internal/otp"
	"github.com/polisbay/quoteflow/internal/store"
)

// ProfileService is the slice of the backend client the gate needs.
type ProfileService interface {
	GetProfile(ctx context.Context, accessToken string) (*models.CustomerProfile, error)
	UpdateProfile(ctx context.Context, accessToken, customerID string, update models.ProfileUpdate) (*models.CustomerProfile, error)
}

// Opts holds configuration options for the gate.
type Opts struct {
	Countdown time.Duration
}

// Option defines a configuration option for the gate.
type Option func(*Opts)

// WithCountdown overrides the OTP countdown window.
func WithCountdown(d time.Duration) Option {
	return func(o *Opts) { o.Countdown = d }
}

// ChallengeView describes the OTP entry presented to the caller.
type ChallengeView struct {
	Token      string    `json:"token,omitempty"`
	Deadline   time.Time `json:"deadline,omitempty"`
	MaskedTo   string    `json:"maskedTo,omitempty"`
	AutoVerify bool      `json:"autoVerify"`
	// Skipped is set when a valid session with a complete profile made the
	// OTP challenge unnecessary.
	Skipped bool `json:"skipped"`
}

// Gate is the per-session identity & profile gate.
type Gate struct {
	sessionID string
	store     store.Store
	provider  otp.Provider
	profiles  ProfileService
	countdown time.Duration
	now       func() time.Time

	state       models.GateState
	challenge   *models.IdentitySession
	lastRequest models.LoginRequest
	autoArmed   bool
	session     *models.AuthSession
	profile     *models.CustomerProfile
}

// NewGate creates an idle gate for a wizard session.
func NewGate(sessionID string, st store.Store, provider otp.Provider, profiles ProfileService, opts ...Option) *Gate {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	countdown := cfg.Countdown
	if countdown == 0 {
		countdown = otp.DefaultCountdown
	}
	return &Gate{
		sessionID: sessionID,
		store:     st,
		provider:  provider,
		profiles:  profiles,
		countdown: countdown,
		now:       time.Now,
		state:     models.GateIdle,
	}
}

// State returns the gate's current state.
func (g *Gate) State() models.GateState {
	return g.state
}

// Session returns the authenticated-session descriptor once the gate has
// verified, or nil before that.
func (g *Gate) Session() *models.AuthSession {
	return g.session
}

// Profile returns the customer profile fetched on verification, or nil.
func (g *Gate) Profile() *models.CustomerProfile {
	return g.profile
}

// Deadline returns the current challenge's countdown deadline.
func (g *Gate) Deadline() time.Time {
	if g.challenge == nil {
		return time.Time{}
	}
	return g.challenge.Deadline
}

// AutoVerifyArmed reports whether the next full code entry may auto-submit.
func (g *Gate) AutoVerifyArmed() bool {
	return g.autoArmed
}

// Begin opens the gate for a login request. When a persisted session with a
// complete profile already exists the OTP challenge is skipped entirely and
// the gate moves straight to READY.
func (g *Gate) Begin(ctx context.Context, req models.LoginRequest) (*ChallengeView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if restored := g.restoreSession(); restored {
		slog.Info("identity gate skipped otp for restored session", "session_id", g.sessionID)
		g.state = models.GateReady
		return &ChallengeView{Skipped: true}, nil
	}

	challenge, err := g.provider.Issue(ctx, req)
	if err != nil {
		return nil, err
	}
	g.challenge = challenge
	g.lastRequest = req
	g.state = models.GateAwaitingOtp
	// Displaying the entry arms exactly one automatic submission.
	g.autoArmed = true

	slog.Info("identity gate challenge opened", "session_id", g.sessionID, "deadline", challenge.Deadline)
	return &ChallengeView{
		Token:      challenge.Token,
		Deadline:   challenge.Deadline,
		MaskedTo:   maskPhone(req.PhoneNumber),
		AutoVerify: true,
	}, nil
}

// Resend re-issues the challenge for the last login request. The countdown
// restarts and the auto-verify arming resets with the fresh display.
func (g *Gate) Resend(ctx context.Context) (*ChallengeView, error) {
	if g.state != models.GateAwaitingOtp && g.state != models.GateOtpFailed {
		return nil, models.ErrNoIdentitySession
	}
	challenge, err := g.provider.Issue(ctx, g.lastRequest)
	if err != nil {
		return nil, err
	}
	g.challenge = challenge
	g.state = models.GateAwaitingOtp
	g.autoArmed = true

	slog.Info("identity gate challenge resent", "session_id", g.sessionID, "deadline", challenge.Deadline)
	return &ChallengeView{
		Token:      challenge.Token,
		Deadline:   challenge.Deadline,
		MaskedTo:   maskPhone(g.lastRequest.PhoneNumber),
		AutoVerify: true,
	}, nil
}

// Verify submits an OTP code. auto marks an automatic submission triggered by
// a full code entry; it is honored at most once per displayed challenge and
// silently ignored once disarmed.
func (g *Gate) Verify(ctx context.Context, code string, auto bool) error {
	if g.state != models.GateAwaitingOtp && g.state != models.GateOtpFailed {
		return models.ErrNoIdentitySession
	}
	// A malformed code is a field-level error, not a failed attempt: the
	// state, the countdown and the auto-verify arming all stay as they are.
	vr := models.VerifyRequest{Token: g.challenge.Token, Code: code}
	if err := vr.Validate(); err != nil {
		return err
	}

	if auto {
		if !g.autoArmed {
			return nil
		}
		g.autoArmed = false
	}

	g.state = models.GateVerifying
	result, err := g.provider.Verify(ctx, g.challenge.Token, code)
	if err != nil {
		// The countdown keeps running; only a resend restarts it.
		g.fail()
		return err
	}
	return g.complete(ctx, result)
}

func (g *Gate) fail() {
	g.state = models.GateOtpFailed
	g.autoArmed = false
}

// complete records the verified session, fetches the profile and branches on
// completeness.
func (g *Gate) complete(ctx context.Context, result *models.VerifyResult) error {
	session := &models.AuthSession{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		CustomerID:   result.CustomerID,
		Phone:        g.lastRequest.PhoneNumber.CountryCode + g.lastRequest.PhoneNumber.Number,
		CreatedAt:    g.now(),
	}

	profile, err := g.profiles.GetProfile(ctx, session.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to fetch profile after verification: %w", err)
	}
	if session.CustomerID == "" {
		session.CustomerID = profile.ID
	}
	session.FullName = profile.FullName
	session.Email = profile.Email

	g.session = session
	g.profile = profile
	g.state = models.GateVerified
	if err := g.persistSession(); err != nil {
		slog.Error("failed to persist auth session", "error", err, "session_id", g.sessionID)
	}

	if profile.IsComplete() {
		g.markComplete()
	} else {
		g.state = models.GateNeedsAdditionalInfo
		slog.Info("identity gate needs additional info", "session_id", g.sessionID, "customer_id", session.CustomerID)
	}
	return nil
}

// SubmitAdditionalInfo merges the missing profile fields. Only set fields are
// sent upstream, so data already present is never overwritten with blanks.
func (g *Gate) SubmitAdditionalInfo(ctx context.Context, update models.ProfileUpdate) error {
	if g.state != models.GateNeedsAdditionalInfo {
		return models.ErrNoIdentitySession
	}
	if update.IsEmpty() {
		return nil
	}
	profile, err := g.profiles.UpdateProfile(ctx, g.session.AccessToken, g.session.CustomerID, update)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	g.profile = profile
	g.session.FullName = profile.FullName
	if profile.IsComplete() {
		g.markComplete()
		if err := g.persistSession(); err != nil {
			slog.Error("failed to persist auth session", "error", err, "session_id", g.sessionID)
		}
	}
	return nil
}

func (g *Gate) markComplete() {
	g.state = models.GateReady
	if err := g.store.PutKey(g.sessionID, models.KeyProfileComplete, "true"); err != nil {
		slog.Error("failed to persist profile-complete flag", "error", err, "session_id", g.sessionID)
	}
	slog.Info("identity gate ready", "session_id", g.sessionID, "customer_id", g.session.CustomerID)
}

func (g *Gate) persistSession() error {
	payload, err := json.Marshal(g.session)
	if err != nil {
		return err
	}
	return g.store.PutKey(g.sessionID, models.KeyAuthSession, string(payload))
}

// restoreSession loads a persisted auth session and reports whether it can
// short-circuit the OTP challenge.
func (g *Gate) restoreSession() bool {
	raw, ok, err := g.store.GetKey(g.sessionID, models.KeyAuthSession)
	if err != nil || !ok {
		return false
	}
	complete, ok, err := g.store.GetKey(g.sessionID, models.KeyProfileComplete)
	if err != nil || !ok || complete != "true" {
		return false
	}
	var session models.AuthSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		slog.Warn("discarding unreadable persisted auth session", "error", err, "session_id", g.sessionID)
		return false
	}
	if session.AccessToken == "" {
		return false
	}
	g.session = &session
	return true
}

// maskPhone hides all but the last two digits of the subscriber number.
func maskPhone(p models.PhoneNumber) string {
	n := p.Number
	if len(n) <= 2 {
		return n
	}
	masked := make([]byte, len(n))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(n)-2:], n[len(n)-2:])
	return p.CountryCode + string(masked)
}
