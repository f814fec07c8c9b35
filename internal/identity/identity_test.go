package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polisbay/quoteflow/internal/models"
	"github.com/polisbay/quoteflow/internal/store"
)

// stubProvider is a deterministic otp.Provider for gate tests.
type stubProvider struct {
	code    string
	issues  int
	expired bool
}

func (p *stubProvider) Issue(ctx context.Context, req models.LoginRequest) (*models.IdentitySession, error) {
	p.issues++
	return &models.IdentitySession{
		Token:       "tok-" + string(rune('a'+p.issues-1)),
		Phone:       req.PhoneNumber,
		Deadline:    time.Now().Add(60 * time.Second),
		LastRequest: req,
	}, nil
}

func (p *stubProvider) Verify(ctx context.Context, token, code string) (*models.VerifyResult, error) {
	if p.expired {
		return nil, models.ErrOtpExpired
	}
	if code != p.code {
		return nil, models.ErrOtpInvalid
	}
	return &models.VerifyResult{AccessToken: "access-1", CustomerID: "cust-1"}, nil
}

// stubProfiles serves a canned profile and applies merge-only updates.
type stubProfiles struct {
	profile models.CustomerProfile
	updates []models.ProfileUpdate
}

func (s *stubProfiles) GetProfile(ctx context.Context, accessToken string) (*models.CustomerProfile, error) {
	p := s.profile
	return &p, nil
}

func (s *stubProfiles) UpdateProfile(ctx context.Context, accessToken, customerID string, update models.ProfileUpdate) (*models.CustomerProfile, error) {
	s.updates = append(s.updates, update)
	if update.FullName != nil {
		s.profile.FullName = *update.FullName
	}
	if update.BirthDate != nil {
		s.profile.BirthDate = *update.BirthDate
	}
	if update.CityID != nil {
		s.profile.CityID = *update.CityID
	}
	if update.DistrictID != nil {
		s.profile.DistrictID = *update.DistrictID
	}
	p := s.profile
	return &p, nil
}

func completeProfile() models.CustomerProfile {
	return models.CustomerProfile{
		ID: "cust-1", FullName: "Ada Lovelace", BirthDate: "1990-01-01",
		CityID: "34", DistrictID: "3401",
	}
}

func newTestGate(profile models.CustomerProfile) (*Gate, *stubProvider, *stubProfiles, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	provider := &stubProvider{code: "123456"}
	profiles := &stubProfiles{profile: profile}
	return NewGate("sess-1", st, provider, profiles), provider, profiles, st
}

func TestGateHappyPath(t *testing.T) {
	g, _, _, st := newTestGate(completeProfile())

	view, err := g.Begin(context.Background(), models.LoginRequest{
		IdentityNumber: "12345678901",
		PhoneNumber:    models.PhoneNumber{CountryCode: "90", Number: "5321112233"},
		AgentID:        "agent-1",
	})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if view.Skipped {
		t.Fatal("fresh session should not skip the otp challenge")
	}
	if g.State() != models.GateAwaitingOtp {
		t.Fatalf("expected AWAITING_OTP, got %s", g.State())
	}
	if view.MaskedTo != "90********33" {
		t.Errorf("unexpected masked phone %q", view.MaskedTo)
	}

	if err := g.Verify(context.Background(), "123456", false); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if g.State() != models.GateReady {
		t.Fatalf("expected READY, got %s", g.State())
	}
	if g.Session() == nil || g.Session().AccessToken != "access-1" {
		t.Error("expected auth session to be recorded")
	}

	if _, ok, _ := st.GetKey("sess-1", models.KeyAuthSession); !ok {
		t.Error("auth session should be persisted")
	}
	if v, ok, _ := st.GetKey("sess-1", models.KeyProfileComplete); !ok || v != "true" {
		t.Error("profile-complete flag should be persisted")
	}
}

func TestGateIncompleteProfileBranch(t *testing.T) {
	profile := completeProfile()
	profile.CityID = ""
	profile.DistrictID = ""
	g, _, profiles, _ := newTestGate(profile)

	if _, err := g.Begin(context.Background(), validLogin()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := g.Verify(context.Background(), "123456", false); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if g.State() != models.GateNeedsAdditionalInfo {
		t.Fatalf("expected NEEDS_ADDITIONAL_INFO, got %s", g.State())
	}

	city, district := "34", "3401"
	if err := g.SubmitAdditionalInfo(context.Background(), models.ProfileUpdate{CityID: &city, DistrictID: &district}); err != nil {
		t.Fatalf("SubmitAdditionalInfo failed: %v", err)
	}
	if g.State() != models.GateReady {
		t.Fatalf("expected READY after completion, got %s", g.State())
	}

	// Merge semantics: the update carried only the missing fields.
	if len(profiles.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(profiles.updates))
	}
	if profiles.updates[0].FullName != nil || profiles.updates[0].BirthDate != nil {
		t.Error("update must not resend fields already present")
	}
}

func TestGateFailedVerifyKeepsCountdown(t *testing.T) {
	g, _, _, _ := newTestGate(completeProfile())

	if _, err := g.Begin(context.Background(), validLogin()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	deadline := g.Deadline()

	if err := g.Verify(context.Background(), "000000", false); !errors.Is(err, models.ErrOtpInvalid) {
		t.Fatalf("expected ErrOtpInvalid, got %v", err)
	}
	if g.State() != models.GateOtpFailed {
		t.Fatalf("expected OTP_FAILED, got %s", g.State())
	}
	if !g.Deadline().Equal(deadline) {
		t.Error("failed verification must not restart the countdown")
	}

	// Retry succeeds from the failed state against the same challenge.
	if err := g.Verify(context.Background(), "123456", false); err != nil {
		t.Fatalf("retry Verify failed: %v", err)
	}
	if g.State() != models.GateReady {
		t.Fatalf("expected READY, got %s", g.State())
	}
}

func TestGateResendRestartsCountdown(t *testing.T) {
	g, provider, _, _ := newTestGate(completeProfile())

	first, err := g.Begin(context.Background(), validLogin())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	second, err := g.Resend(context.Background())
	if err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	if provider.issues != 2 {
		t.Fatalf("expected 2 issued challenges, got %d", provider.issues)
	}
	if second.Token == first.Token {
		t.Error("resend should mint a fresh token")
	}
	if second.Deadline.Before(first.Deadline) {
		t.Error("resend should restart the countdown")
	}
}

func TestGateAutoVerifyFiresAtMostOnce(t *testing.T) {
	g, _, _, _ := newTestGate(completeProfile())

	if _, err := g.Begin(context.Background(), validLogin()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !g.AutoVerifyArmed() {
		t.Fatal("display should arm auto-verify")
	}

	// First automatic submission consumes the arming, even on failure.
	if err := g.Verify(context.Background(), "000000", true); !errors.Is(err, models.ErrOtpInvalid) {
		t.Fatalf("expected ErrOtpInvalid, got %v", err)
	}
	if g.AutoVerifyArmed() {
		t.Error("failed auto submission must disarm auto-verify")
	}

	// A second automatic submission is a silent no-op.
	if err := g.Verify(context.Background(), "123456", true); err != nil {
		t.Fatalf("disarmed auto submission should be a no-op, got %v", err)
	}
	if g.State() != models.GateOtpFailed {
		t.Errorf("disarmed auto submission must not change state, got %s", g.State())
	}

	// Resend re-arms with the fresh display.
	if _, err := g.Resend(context.Background()); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	if !g.AutoVerifyArmed() {
		t.Error("resend should re-arm auto-verify")
	}
	if err := g.Verify(context.Background(), "123456", true); err != nil {
		t.Fatalf("re-armed auto submission failed: %v", err)
	}
	if g.State() != models.GateReady {
		t.Errorf("expected READY, got %s", g.State())
	}
}

func TestGateSkipsOtpForRestoredSession(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.PutKey("sess-1", models.KeyAuthSession,
		`{"access_token":"access-0","customer_id":"cust-1"}`); err != nil {
		t.Fatal(err)
	}
	if err := st.PutKey("sess-1", models.KeyProfileComplete, "true"); err != nil {
		t.Fatal(err)
	}
	provider := &stubProvider{code: "123456"}
	g := NewGate("sess-1", st, provider, &stubProfiles{profile: completeProfile()})

	view, err := g.Begin(context.Background(), validLogin())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !view.Skipped {
		t.Fatal("expected the otp challenge to be skipped")
	}
	if provider.issues != 0 {
		t.Error("no challenge should be issued for a restored session")
	}
	if g.State() != models.GateReady {
		t.Fatalf("expected READY, got %s", g.State())
	}
	if g.Session() == nil || g.Session().AccessToken != "access-0" {
		t.Error("restored session should carry the persisted access token")
	}
}

func TestGateMalformedCodeRejectedLocally(t *testing.T) {
	g, _, _, _ := newTestGate(completeProfile())
	if _, err := g.Begin(context.Background(), validLogin()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := g.Verify(context.Background(), "12ab56", false); !errors.Is(err, models.ErrInvalidOtpCode) {
		t.Errorf("expected ErrInvalidOtpCode, got %v", err)
	}

	// A field-level rejection is not a failed attempt: the gate keeps waiting
	// and the auto-verify arming survives, even for an automatic submission.
	if g.State() != models.GateAwaitingOtp {
		t.Errorf("malformed code must not change the state, got %s", g.State())
	}
	if !g.AutoVerifyArmed() {
		t.Error("malformed code must not disarm auto-verify")
	}
	if err := g.Verify(context.Background(), "12ab56", true); !errors.Is(err, models.ErrInvalidOtpCode) {
		t.Errorf("expected ErrInvalidOtpCode, got %v", err)
	}
	if !g.AutoVerifyArmed() {
		t.Error("malformed auto submission must not consume the arming")
	}

	if err := g.Verify(context.Background(), "123456", false); err != nil {
		t.Fatalf("well-formed retry failed: %v", err)
	}
	if g.State() != models.GateReady {
		t.Fatalf("expected READY, got %s", g.State())
	}
}

func validLogin() models.LoginRequest {
	return models.LoginRequest{
		IdentityNumber: "12345678901",
		PhoneNumber:    models.PhoneNumber{CountryCode: "90", Number: "5321112233"},
		AgentID:        "agent-1",
	}
}
