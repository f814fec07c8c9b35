// Package api provides HTTP handlers for QuoteFlow endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/polisbay/quoteflow/internal/models"
)

// authLoginHandler opens the identity gate for a session. A valid persisted
// session with a complete profile skips the OTP challenge entirely.
func (s *Server) authLoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.authLoginHandler: processing login request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.authLoginHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.authLoginHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.AgentID == "" {
		req.AgentID = s.backend.AgentID()
	}

	sess := s.session(w, r)
	view, err := sess.gate.Begin(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrIdentityPhoneMismatch):
		// Distinct user path, not a generic error string.
		slog.Warn("Server.authLoginHandler: phone does not match identity", "session_id", sess.id)
		writeJSONResponse(w, http.StatusNotFound, models.Error(models.ErrIdentityPhoneMismatch.Error()))
		return
	case errors.Is(err, models.ErrEmptyIdentityNumber),
		errors.Is(err, models.ErrEmptyPhoneNumber),
		errors.Is(err, models.ErrEmptyAgentID):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.authLoginHandler: login failed", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Login failed"))
		return
	}

	slog.Info("Server.authLoginHandler: challenge opened", "session_id", sess.id, "skipped", view.Skipped)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"sessionId": sess.id,
		"state":     sess.gate.State(),
		"challenge": view,
	}))
}

// verifyRequestBody is the /auth/verify payload. Auto marks an automatic
// submission triggered by a full code entry.
type verifyRequestBody struct {
	Code string `json:"code"`
	Auto bool   `json:"auto,omitempty"`
}

func (s *Server) authVerifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.authVerifyHandler: processing verify request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body verifyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	sess := s.session(w, r)
	err := sess.gate.Verify(r.Context(), body.Code, body.Auto)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidOtpCode):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	case errors.Is(err, models.ErrOtpInvalid),
		errors.Is(err, models.ErrOtpExpired),
		errors.Is(err, models.ErrOtpAttemptsExhausted):
		slog.Warn("Server.authVerifyHandler: verification rejected", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error(err.Error()))
		return
	case errors.Is(err, models.ErrNoIdentitySession):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.authVerifyHandler: verification failed", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Verification failed"))
		return
	}

	// The gate may be READY straight away or waiting on additional info.
	if sess.gate.State() == models.GateReady {
		sess.controller.Advance()
	}
	slog.Info("Server.authVerifyHandler: verified", "session_id", sess.id, "state", sess.gate.State())
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"state":   sess.gate.State(),
		"profile": sess.gate.Profile(),
	}))
}

func (s *Server) authResendHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.authResendHandler: processing resend request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	view, err := sess.gate.Resend(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrNoIdentitySession) {
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
			return
		}
		slog.Error("Server.authResendHandler: resend failed", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Resend failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"challenge": view,
	}))
}

func (s *Server) customerMeHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.customerMeHandler: processing profile request", "method", r.Method)
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
	profile, err := s.backend.GetProfile(r.Context(), auth.AccessToken)
	if err != nil {
		slog.Error("Server.customerMeHandler: profile fetch failed", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Profile fetch failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

// customerUpdateHandler handles PUT /customers/{id}: the additional-info
// sub-form of the identity gate. Merge semantics: only set fields are sent.
func (s *Server) customerUpdateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.customerUpdateHandler: processing update request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPut {
		w.Header().Set("Allow", http.MethodPut)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	customerID := strings.TrimPrefix(r.URL.Path, "/customers/")
	if customerID == "" || strings.Contains(customerID, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown customer path"))
		return
	}
	var update models.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	sess := s.session(w, r)
	if err := sess.gate.SubmitAdditionalInfo(r.Context(), update); err != nil {
		if errors.Is(err, models.ErrNoIdentitySession) {
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
			return
		}
		slog.Error("Server.customerUpdateHandler: update failed", "error", err, "session_id", sess.id)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Profile update failed"))
		return
	}
	if sess.gate.State() == models.GateReady {
		sess.controller.Advance()
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"state":   sess.gate.State(),
		"profile": sess.gate.Profile(),
	}))
}

func (s *Server) citiesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cities, err := s.backend.GetCities(r.Context())
	if err != nil {
		slog.Error("Server.citiesHandler: lookup failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("City lookup failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(cities))
}

func (s *Server) districtsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cityID := strings.TrimPrefix(r.URL.Path, "/address/districts/")
	if cityID == "" || strings.Contains(cityID, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown district path"))
		return
	}
	districts, err := s.backend.GetDistricts(r.Context(), cityID)
	if err != nil {
		slog.Error("Server.districtsHandler: lookup failed", "error", err, "city_id", cityID)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("District lookup failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(districts))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	// A cheap read proves the store is reachable.
	if _, _, err := s.store.GetKey("health", models.SessionKey("probe")); err != nil {
		slog.Error("Server.healthHandler: store unreachable", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Store unreachable"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
