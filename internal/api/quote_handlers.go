package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/polisbay/quoteflow/internal/models"
	"github.com/polisbay/quoteflow/internal/poller"
)

// proposalsRequestBody carries the opaque property payload the backend turns
// into one proposal per coverage tier.
type proposalsRequestBody struct {
	Property json.RawMessage `json:"property"`
}

// proposalsHandler creates the proposal set and persists its identifiers.
// The set is immutable for the lifetime of the poll that follows.
func (s *Server) proposalsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.proposalsHandler: processing proposal request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body proposalsRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	sess := s.session(w, r)
	auth := sess.gate.Session()
	if auth == nil {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error(models.ErrNoIdentitySession.Error()))
		return
	}

	ids, err := s.backend.CreateProposals(r.Context(), auth.AccessToken, body.Property)
	if err != nil {
		slog.Error("Server.proposalsHandler: proposal creation failed", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Proposal creation failed"))
		return
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to persist proposal identifiers"))
		return
	}
	if err := s.store.PutKey(sess.id, models.KeyProposalIDs, string(payload)); err != nil {
		slog.Error("Server.proposalsHandler: failed to persist proposal ids", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to persist proposal identifiers"))
		return
	}
	sess.controller.Advance()

	slog.Info("Server.proposalsHandler: proposals created", "session_id", sess.id, "count", len(ids))
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"proposalIds": ids,
	}))
}

// quotesPollHandler starts the quote aggregation poll for the session's
// proposal set. A fresh start supersedes any poll already in flight.
func (s *Server) quotesPollHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.quotesPollHandler: processing poll request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	auth := sess.gate.Session()
	if auth == nil {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error(models.ErrNoIdentitySession.Error()))
		return
	}

	raw, ok, err := s.store.GetKey(sess.id, models.KeyProposalIDs)
	if err != nil || !ok {
		writeJSONResponse(w, http.StatusConflict, models.Error(models.ErrNoProposals.Error()))
		return
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil || len(ids) == 0 {
		writeJSONResponse(w, http.StatusConflict, models.Error(models.ErrNoProposals.Error()))
		return
	}

	p := poller.New(s.backend, s.backend, auth.AccessToken, ids, s.pollCfg)
	sess.startPoll(p)

	slog.Info("Server.quotesPollHandler: poll started", "session_id", sess.id, "proposals", len(ids))
	writeJSONResponse(w, http.StatusAccepted, models.Pending(map[string]interface{}{
		"proposalIds": ids,
	}))
}

// quotesStatusHandler reports poll progress and, once done, the consolidated
// quote list. Order can be switched with ?sort=price|company.
func (s *Server) quotesStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	p, done, result, err := sess.pollState()
	if p == nil {
		writeJSONResponse(w, http.StatusConflict, models.Error("No poll in progress"))
		return
	}
	if !done {
		writeJSONResponse(w, http.StatusOK, models.Pending(map[string]interface{}{
			"progress": p.Progress(),
		}))
		return
	}
	if err != nil {
		// Explicit error state, distinguishable from "legitimately no offers".
		status := http.StatusBadGateway
		if errors.Is(err, models.ErrNoProposals) {
			status = http.StatusConflict
		}
		slog.Warn("Server.quotesStatusHandler: poll failed", "error", err, "session_id", sess.id)
		writeJSONResponse(w, status, models.Error(err.Error()))
		return
	}

	quotes := result.Quotes
	if r.URL.Query().Get("sort") == string(poller.SortByCompany) {
		sorted := make([]models.DisplayQuote, len(quotes))
		copy(sorted, quotes)
		poller.SortQuotes(sorted, poller.SortByCompany)
		quotes = sorted
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"progress": p.Progress(),
		"reason":   result.Reason,
		"quotes":   quotes,
	}))
}
