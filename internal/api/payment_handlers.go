package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/polisbay/quoteflow/internal/models"
	"github.com/polisbay/quoteflow/internal/payment"
	"github.com/polisbay/quoteflow/internal/wizard"
)

// paymentStartBody selects a quote and premium and carries the masked card
// plus the compliance confirmations.
type paymentStartBody struct {
	QuoteID          string            `json:"quoteId"`
	InstallmentCount int               `json:"installmentCount"`
	Card             models.MaskedCard `json:"card"`
	ComplianceTerms  bool              `json:"complianceTerms"`
	ComplianceKvkk   bool              `json:"complianceKvkk"`
}

// paymentStartHandler opens the settlement flow for a quote from the
// session's finished poll and returns the 3-D Secure challenge markup.
func (s *Server) paymentStartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.paymentStartHandler: processing payment start", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body paymentStartBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	sess := s.session(w, r)
	quote, premium := sess.selectQuote(body.QuoteID, body.InstallmentCount)
	if quote != nil {
		// Persist the selection so a failed attempt can retry without
		// re-selecting.
		if payload, err := json.Marshal(quote); err == nil {
			if err := s.store.PutKey(sess.id, models.KeySelectedQuote, string(payload)); err != nil {
				slog.Error("Server.paymentStartHandler: failed to persist selected quote", "error", err, "session_id", sess.id)
			}
		}
	}

	challenge, err := sess.flow.Start(r.Context(), payment.StartRequest{
		Quote:           quote,
		Premium:         premium,
		Card:            body.Card,
		ComplianceTerms: body.ComplianceTerms,
		ComplianceKvkk:  body.ComplianceKvkk,
		Session:         sess.gate.Session(),
		ProductType:     s.productType,
	})
	switch {
	case err == nil:
	case errors.Is(err, models.ErrNoIdentitySession):
		writeJSONResponse(w, http.StatusUnauthorized, models.Error(err.Error()))
		return
	case errors.Is(err, models.ErrNoQuoteSelected),
		errors.Is(err, models.ErrNoPremiumSelected),
		errors.Is(err, models.ErrComplianceNotAccepted):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	case errors.Is(err, models.ErrPaymentDeclined), errors.Is(err, models.ErrMissingChallenge):
		slog.Warn("Server.paymentStartHandler: gateway rejected payment", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusBadGateway, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.paymentStartHandler: payment start failed", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Payment start failed"))
		return
	}

	sess.controller.Advance()
	slog.Info("Server.paymentStartHandler: challenge issued", "session_id", sess.id, "quote_id", body.QuoteID)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"challengeHtml": challenge.HTML,
	}))
}

// selectQuote resolves the quote and installment premium from the session's
// finished poll result.
func (sess *wizardSession) selectQuote(quoteID string, installments int) (*models.DisplayQuote, *models.Premium) {
	_, done, result, err := sess.pollState()
	if !done || err != nil || result == nil {
		return nil, nil
	}
	for i := range result.Quotes {
		if result.Quotes[i].ID != quoteID {
			continue
		}
		q := result.Quotes[i]
		for j := range q.Premiums {
			if q.Premiums[j].InstallmentCount == installments {
				return &q, &q.Premiums[j]
			}
		}
		return &q, nil
	}
	return nil, nil
}

// paymentCallbackHandler is the 3-D Secure webhook: the challenge's isolated
// context posts its result here. The result is written into the rendezvous
// keys; the flow consumes it on the next /payment/status call.
func (s *Server) paymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.paymentCallbackHandler: processing 3-D Secure callback", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session")
	}
	if sessionID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing session identifier"))
		return
	}
	var result models.ThreeDSecureResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := payment.RecordResult(s.store, sessionID, result); err != nil {
		slog.Error("Server.paymentCallbackHandler: failed to record result", "error", err, "session_id", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record result"))
		return
	}
	slog.Info("Server.paymentCallbackHandler: 3-D Secure result recorded", "session_id", sessionID, "success", result.Success)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Result recorded", nil))
}

// paymentStatusHandler is the "regained focus" trigger: it consumes a
// pending 3-D Secure result if one is waiting and reports the settlement
// outcome. Calling it with nothing waiting is a quiet pending response.
func (s *Server) paymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	auth := sess.gate.Session()
	if auth == nil {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error(models.ErrNoIdentitySession.Error()))
		return
	}

	result, handled, err := sess.flow.HandleSignal(r.Context(), auth)
	if !handled && err == nil {
		// Already-settled outcome, or nothing waiting yet.
		outcome := sess.controller.Outcome()
		if outcome.Result != models.OutcomeNone {
			writeJSONResponse(w, http.StatusOK, models.Success(outcome))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Pending(map[string]interface{}{
			"status": "awaiting_challenge",
		}))
		return
	}
	if err != nil {
		outcome := wizard.Outcome{Result: models.OutcomeError, Message: userFacingPaymentError(err)}
		sess.controller.ReportOutcome(outcome)
		slog.Warn("Server.paymentStatusHandler: settlement failed", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusOK, models.Success(outcome))
		return
	}

	outcome := wizard.Outcome{Result: models.OutcomeSuccess, PolicyID: result.PolicyID}
	sess.controller.ReportOutcome(outcome)
	slog.Info("Server.paymentStatusHandler: settlement succeeded", "session_id", sess.id, "policy_id", result.PolicyID)
	writeJSONResponse(w, http.StatusOK, models.Success(outcome))
}

// userFacingPaymentError keeps gateway internals out of the terminal screen.
func userFacingPaymentError(err error) string {
	switch {
	case errors.Is(err, models.ErrPaymentCancelled):
		return models.ErrPaymentCancelled.Error()
	case errors.Is(err, models.ErrPaymentDeclined):
		return models.ErrPaymentDeclined.Error()
	default:
		return "payment could not be completed"
	}
}

// wizardStateHandler reports the controller's position and outcome.
func (s *Server) wizardStateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"step":    sess.controller.Step(),
		"outcome": sess.controller.Outcome(),
		"state":   sess.gate.State(),
	}))
}

// wizardRetryHandler clears a terminal outcome; the user re-enters at the
// step where the flow stopped, with collected data intact.
func (s *Server) wizardRetryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	step := sess.controller.Retry()
	slog.Info("Server.wizardRetryHandler: wizard retry", "session_id", sess.id, "step", step)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"step": step,
	}))
}
