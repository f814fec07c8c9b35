// Package payment implements the card settlement flow.
//
// The flow opens a gateway session, exchanges masked card data for a 3-D
// Secure challenge, waits for the challenge's out-of-band result through the
// session store rendezvous, and commits the purchase. The rendezvous consumer
// is idempotent: results are consumed delete-on-read and the commit is guarded
// so a duplicate success signal can never buy a second policy.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polisbay/quoteflow/internal/models"
	"github.com/polisbay/quoteflow/internal/store"
)

// Gateway is the slice of the gateway client the flow needs.
type Gateway interface {
	CreateSession(ctx context.Context, merchantPaymentID string, amount float64, currency string, items []models.OrderItem) (*models.PaymentSession, error)
	SubmitCard(ctx context.Context, submission models.CardSubmission) (*models.ThreeDSecureChallenge, error)
}

// ProposalCommitter commits purchases; satisfied by backend.Client.
type ProposalCommitter interface {
	Purchase(ctx context.Context, accessToken string, req models.PurchaseRequest) (*models.PurchaseResult, error)
}

// StartRequest carries everything the flow needs to open a settlement.
type StartRequest struct {
	Quote           *models.DisplayQuote
	Premium         *models.Premium
	Card            models.MaskedCard
	ComplianceTerms bool
	ComplianceKvkk  bool
	Session         *models.AuthSession
	ProductType     string // product family, e.g. "home"
	Currency        string
}

// Flow is the per-session payment settlement flow.
type Flow struct {
	sessionID string
	store     store.Store
	gateway   Gateway
	proposals ProposalCommitter
	now       func() time.Time

	committed bool
}

// NewFlow creates a settlement flow for a wizard session.
func NewFlow(sessionID string, st store.Store, gw Gateway, proposals ProposalCommitter) *Flow {
	return &Flow{
		sessionID: sessionID,
		store:     st,
		gateway:   gw,
		proposals: proposals,
		now:       time.Now,
	}
}

// Start validates the preconditions, opens the gateway session, persists the
// pending-payment descriptor and obtains the 3-D Secure challenge. The
// returned markup must be rendered in an isolated context; its result arrives
// later through HandleSignal.
func (f *Flow) Start(ctx context.Context, req StartRequest) (*models.ThreeDSecureChallenge, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	merchantID := models.MerchantPaymentID(req.Quote.ProductID, req.Quote.ProposalID, f.now())
	currency := req.Currency
	if currency == "" {
		currency = req.Premium.Currency
	}
	items := []models.OrderItem{{
		Name:     fmt.Sprintf("%s / %s", req.Quote.CompanyName, req.Quote.TierLabel),
		Amount:   req.Premium.GrossAmount,
		Quantity: 1,
	}}

	session, err := f.gateway.CreateSession(ctx, merchantID, req.Premium.GrossAmount, currency, items)
	if err != nil {
		return nil, err
	}

	// Persisted before the challenge so a page reload mid-challenge can still
	// recover the purchase context.
	pending := models.PendingPayment{
		Type:             req.ProductType,
		ProposalID:       req.Quote.ProposalID,
		ProductID:        req.Quote.ProductID,
		QuoteID:          req.Quote.ID,
		InstallmentCount: req.Premium.InstallmentCount,
		MerchantID:       merchantID,
		SessionToken:     session.SessionToken,
		Card:             req.Card,
		CreatedAt:        f.now(),
	}
	if err := f.persistPending(pending); err != nil {
		return nil, fmt.Errorf("failed to persist pending payment: %w", err)
	}

	challenge, err := f.gateway.SubmitCard(ctx, models.CardSubmission{
		SessionToken: session.SessionToken,
		Card:         req.Card,
	})
	if err != nil {
		f.cleanupEphemeral()
		return nil, err
	}

	slog.Info("payment settlement started", "session_id", f.sessionID, "merchant_id", merchantID)
	return challenge, nil
}

// validate fails fast with the field-level sentinel for the first missing
// precondition.
func validate(req StartRequest) error {
	if req.Session == nil || req.Session.AccessToken == "" {
		return models.ErrNoIdentitySession
	}
	if req.Quote == nil {
		return models.ErrNoQuoteSelected
	}
	if req.Premium == nil {
		return models.ErrNoPremiumSelected
	}
	if !req.ComplianceTerms || !req.ComplianceKvkk {
		return models.ErrComplianceNotAccepted
	}
	return nil
}

// HandleSignal consumes a pending 3-D Secure result from the rendezvous and
// finishes the flow. It is safe to call on every "regained focus" trigger:
// when no result is waiting it returns (nil, false, nil), and after the flow
// has settled a stray duplicate signal is a no-op.
//
// On a success signal the purchase is committed and the ephemeral keys are
// cleared. On a failure signal the keys are cleared and a PaymentError
// sentinel is returned; the selected quote survives for a retry.
func (f *Flow) HandleSignal(ctx context.Context, session *models.AuthSession) (*models.PurchaseResult, bool, error) {
	raw, ok, err := f.store.ConsumeKey(f.sessionID, models.KeyThreeDSResult)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read 3-D Secure result: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	if f.committed {
		// A duplicate success signal after settlement must never double-commit.
		slog.Warn("ignoring 3-D Secure signal after settlement", "session_id", f.sessionID)
		return nil, false, nil
	}

	var result models.ThreeDSecureResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		f.cleanupEphemeral()
		return nil, true, fmt.Errorf("unreadable 3-D Secure result: %w", err)
	}

	if !result.Success {
		f.cleanupEphemeral()
		slog.Warn("3-D Secure challenge failed", "session_id", f.sessionID, "error", result.Error)
		if result.Error == "cancelled" {
			return nil, true, models.ErrPaymentCancelled
		}
		return nil, true, models.ErrPaymentDeclined
	}

	pending, err := f.loadPending()
	if err != nil {
		f.cleanupEphemeral()
		return nil, true, err
	}

	purchase, err := f.proposals.Purchase(ctx, session.AccessToken, models.PurchaseRequest{
		ProposalID:       pending.ProposalID,
		ProductID:        pending.ProductID,
		QuoteID:          pending.QuoteID,
		InstallmentCount: pending.InstallmentCount,
		MerchantID:       pending.MerchantID,
		Card:             pending.Card,
	})
	if err != nil {
		f.cleanupEphemeral()
		return nil, true, fmt.Errorf("purchase commit failed: %w", err)
	}
	f.committed = true
	f.Cleanup()

	slog.Info("purchase committed", "session_id", f.sessionID, "policy_id", purchase.PolicyID)
	return purchase, true, nil
}

// Resume reloads the pending-payment descriptor, e.g. after a page reload
// during the 3-D Secure challenge. Returns (nil, nil) when nothing is pending.
func (f *Flow) Resume() (*models.PendingPayment, error) {
	raw, ok, err := f.store.GetKey(f.sessionID, models.KeyPendingPayment)
	if err != nil || !ok {
		return nil, err
	}
	var pending models.PendingPayment
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, fmt.Errorf("unreadable pending payment: %w", err)
	}
	return &pending, nil
}

// Cleanup removes every ephemeral payment key, the selected quote included.
// It is idempotent: running it again on an already-clean session is a no-op.
func (f *Flow) Cleanup() {
	if err := f.store.DeleteKeys(f.sessionID, models.PaymentKeys()...); err != nil {
		slog.Error("payment key cleanup failed", "error", err, "session_id", f.sessionID)
	}
}

// cleanupEphemeral clears the payment keys but keeps the selected quote so a
// failed attempt can be retried without re-selecting.
func (f *Flow) cleanupEphemeral() {
	keys := []models.SessionKey{
		models.KeyPendingPayment,
		models.KeyThreeDSResult, models.KeyThreeDSStatus, models.KeyThreeDSError,
	}
	if err := f.store.DeleteKeys(f.sessionID, keys...); err != nil {
		slog.Error("payment key cleanup failed", "error", err, "session_id", f.sessionID)
	}
}

func (f *Flow) persistPending(p models.PendingPayment) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return f.store.PutKey(f.sessionID, models.KeyPendingPayment, string(payload))
}

func (f *Flow) loadPending() (*models.PendingPayment, error) {
	pending, err := f.Resume()
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, errors.New("no pending payment on file for success signal")
	}
	return pending, nil
}

// RecordResult writes a 3-D Secure result into the rendezvous. This is the
// producer side, called by the callback endpoint that the challenge's
// isolated context posts to.
func RecordResult(st store.Store, sessionID string, result models.ThreeDSecureResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := st.PutKey(sessionID, models.KeyThreeDSResult, string(payload)); err != nil {
		return err
	}
	status := "success"
	if !result.Success {
		status = "failure"
		if result.Error != "" {
			if err := st.PutKey(sessionID, models.KeyThreeDSError, result.Error); err != nil {
				return err
			}
		}
	}
	return st.PutKey(sessionID, models.KeyThreeDSStatus, status)
}
