package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/polisbay/quoteflow/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(WithBaseURL(srv.URL), WithAgentID("agent-1"))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestLoginSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req models.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.AgentID != "agent-1" {
			t.Errorf("expected client agent id to be filled in, got %q", req.AgentID)
		}
		json.NewEncoder(w).Encode(models.LoginResult{Token: "otp-tok"})
	})

	result, err := c.Login(context.Background(), models.LoginRequest{
		IdentityNumber: "12345678901",
		PhoneNumber:    models.PhoneNumber{Number: "5551234567", CountryCode: "90"},
		AgentID:        "agent-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token != "otp-tok" {
		t.Errorf("unexpected token %q", result.Token)
	}
}

func TestLoginPhoneMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Login(context.Background(), models.LoginRequest{
		IdentityNumber: "12345678901",
		PhoneNumber:    models.PhoneNumber{Number: "5551234567", CountryCode: "90"},
		AgentID:        "agent-1",
	})
	if !errors.Is(err, models.ErrIdentityPhoneMismatch) {
		t.Errorf("expected ErrIdentityPhoneMismatch, got %v", err)
	}
}

func TestVerifyInvalidCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Verify(context.Background(), models.VerifyRequest{Token: "tok", Code: "123456"})
	if !errors.Is(err, models.ErrOtpInvalid) {
		t.Errorf("expected ErrOtpInvalid, got %v", err)
	}
}

func TestUpdateProfileMergeSemantics(t *testing.T) {
	var received map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/customers/cust-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(models.CustomerProfile{ID: "cust-1", FullName: "Ada Kaya"})
	})

	name := "Ada Kaya"
	profile, err := c.UpdateProfile(context.Background(), "tok", "cust-1", models.ProfileUpdate{FullName: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.FullName != "Ada Kaya" {
		t.Errorf("expected updated profile back, got %+v", profile)
	}
	if len(received) != 1 {
		t.Errorf("expected exactly one field in payload, got %v", received)
	}
	if received["fullName"] != "Ada Kaya" {
		t.Errorf("expected fullName to be sent, got %v", received)
	}
}

func TestUpdateProfileEmptySkipsRequest(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	if _, err := c.UpdateProfile(context.Background(), "tok", "cust-1", models.ProfileUpdate{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("empty update must not hit the backend")
	}
}

func TestGetProposal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/proposals/p1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.Proposal{Products: []models.Quote{
			{ID: "q1", CompanyID: "c1", ProductID: "home-1", State: models.QuoteStateActive},
		}})
	})

	proposal, err := c.GetProposal(context.Background(), "tok", "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposal.ID != "p1" {
		t.Errorf("expected proposal id to default to requested id, got %q", proposal.ID)
	}
	if len(proposal.Products) != 1 || proposal.Products[0].ID != "q1" {
		t.Errorf("unexpected quotes %v", proposal.Products)
	}
}

func TestPurchase(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/proposals/p1/purchase" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.PurchaseResult{PolicyID: "pol-9"})
	})

	result, err := c.Purchase(context.Background(), "tok", models.PurchaseRequest{ProposalID: "p1", ProductID: "home-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PolicyID != "pol-9" {
		t.Errorf("unexpected policy id %q", result.PolicyID)
	}
}
