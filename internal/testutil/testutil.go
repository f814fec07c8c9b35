// Package testutil provides common test utilities and helpers for QuoteFlow tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/polisbay/quoteflow/internal/api"
	"github.com/polisbay/quoteflow/internal/backend"
	"github.com/polisbay/quoteflow/internal/gateway"
	"github.com/polisbay/quoteflow/internal/messaging"
	"github.com/polisbay/quoteflow/internal/otp"
	"github.com/polisbay/quoteflow/internal/poller"
	"github.com/polisbay/quoteflow/internal/store"
)

// TestEnv bundles a fully wired API server with its in-memory dependencies
// and stubbed upstreams.
type TestEnv struct {
	Server    *api.Server
	Handler   http.Handler
	Store     *store.InMemoryStore
	Messenger *messaging.MockService
	Backend   *httptest.Server
	Gateway   *httptest.Server
}

// FastPollConfig keeps API-level poll tests quick while preserving the
// ratios between the timing knobs.
func FastPollConfig() poller.Config {
	return poller.Config{
		Budget:          400 * time.Millisecond,
		EmptyCutoff:     100 * time.Millisecond,
		Interval:        20 * time.Millisecond,
		FinishWindow:    40 * time.Millisecond,
		AllowedProducts: []string{"home-1"},
	}
}

// NewTestEnv creates a test API server backed by an in-memory store, a local
// OTP provider delivering over a mock messenger, and the given stub
// upstreams. This centralizes the test server creation logic used across
// multiple test files.
func NewTestEnv(t *testing.T, backendHandler, gatewayHandler http.Handler) *TestEnv {
	t.Helper()

	backendSrv := httptest.NewServer(backendHandler)
	t.Cleanup(backendSrv.Close)
	gatewaySrv := httptest.NewServer(gatewayHandler)
	t.Cleanup(gatewaySrv.Close)

	st := store.NewInMemoryStore()
	msgs := messaging.NewMockService()

	be, err := backend.NewClient(
		backend.WithBaseURL(backendSrv.URL),
		backend.WithAgentID("agent-test"),
	)
	if err != nil {
		t.Fatalf("failed to build backend client: %v", err)
	}
	gw, err := gateway.NewClient(gateway.WithBaseURL(gatewaySrv.URL))
	if err != nil {
		t.Fatalf("failed to build gateway client: %v", err)
	}

	srv, err := api.NewServer(
		api.WithStore(st),
		api.WithBackendClient(be),
		api.WithGatewayClient(gw),
		api.WithOTPProvider(otp.NewLocalProvider(st, msgs)),
		api.WithPollConfig(FastPollConfig()),
	)
	if err != nil {
		t.Fatalf("failed to build api server: %v", err)
	}

	return &TestEnv{
		Server:    srv,
		Handler:   srv.Handler(),
		Store:     st,
		Messenger: msgs,
		Backend:   backendSrv,
		Gateway:   gatewaySrv,
	}
}

// Do runs one request through the server's handler and returns the recorder.
func (e *TestEnv) Do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.Handler.ServeHTTP(rr, req)
	return rr
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(payload)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, url, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}
