package gateway

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
	c, err := NewClient(WithBaseURL(srv.URL), WithMerchantID("merchant-1"))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestCreateSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		if req["merchantId"] != "merchant-1" {
			t.Errorf("expected merchant id in payload, got %v", req["merchantId"])
		}
		json.NewEncoder(w).Encode(map[string]string{"sessionToken": "sess-tok"})
	})

	session, err := c.CreateSession(context.Background(), "home-p1-1700000000", 1200, "TRY", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.SessionToken != "sess-tok" {
		t.Errorf("unexpected token %q", session.SessionToken)
	}
	if session.MerchantPaymentID != "home-p1-1700000000" {
		t.Errorf("unexpected merchant payment id %q", session.MerchantPaymentID)
	}
}

func TestSubmitCardDeclined(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "do not honor"})
	})

	_, err := c.SubmitCard(context.Background(), models.CardSubmission{SessionToken: "sess-tok"})
	if !errors.Is(err, models.ErrPaymentDeclined) {
		t.Errorf("expected ErrPaymentDeclined, got %v", err)
	}
}

func TestSubmitCardMissingChallenge(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "challengeHtml": ""})
	})

	_, err := c.SubmitCard(context.Background(), models.CardSubmission{SessionToken: "sess-tok"})
	if !errors.Is(err, models.ErrMissingChallenge) {
		t.Errorf("expected ErrMissingChallenge, got %v", err)
	}
}

func TestSubmitCardSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "challengeHtml": "<form>3ds</form>"})
	})

	challenge, err := c.SubmitCard(context.Background(), models.CardSubmission{SessionToken: "sess-tok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if challenge.HTML != "<form>3ds</form>" {
		t.Errorf("unexpected markup %q", challenge.HTML)
	}
}
