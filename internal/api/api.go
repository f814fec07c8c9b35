// Package api provides HTTP handlers and the main API server logic for QuoteFlow.
//
// It exposes the wizard's operations as RESTful endpoints: OTP login and
// verification, profile completion, proposal creation, quote polling, and the
// payment settlement flow with its 3-D Secure callback webhook. The API
// integrates with the store, backend, gateway, otp and scheduler modules.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/polisbay/quoteflow/internal/backend"
	"github.com/polisbay/quoteflow/internal/otp"
	"github.com/polisbay/quoteflow/internal/payment"
	"github.com/polisbay/quoteflow/internal/poller"
	"github.com/polisbay/quoteflow/internal/store"
)

// Constants for API server configuration
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	Store       store.Store
	Backend     *backend.Client
	Gateway     payment.Gateway
	Provider    otp.Provider
	PollConfig  poller.Config
	Countdown   time.Duration
	ProductType string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStore sets the session store.
func WithStore(st store.Store) Option {
	return func(o *Opts) { o.Store = st }
}

// WithBackendClient sets the insurer platform client.
func WithBackendClient(c *backend.Client) Option {
	return func(o *Opts) { o.Backend = c }
}

// WithGatewayClient sets the payment gateway client.
func WithGatewayClient(g payment.Gateway) Option {
	return func(o *Opts) { o.Gateway = g }
}

// WithOTPProvider sets the OTP provider.
func WithOTPProvider(p otp.Provider) Option {
	return func(o *Opts) { o.Provider = p }
}

// WithPollConfig sets the quote poller's timing knobs and product allow-list.
func WithPollConfig(cfg poller.Config) Option {
	return func(o *Opts) { o.PollConfig = cfg }
}

// WithCountdown sets the OTP countdown window.
func WithCountdown(d time.Duration) Option {
	return func(o *Opts) { o.Countdown = d }
}

// WithProductType sets the product family label used on pending payments.
func WithProductType(t string) Option {
	return func(o *Opts) { o.ProductType = t }
}

// Server hosts the QuoteFlow HTTP API.
type Server struct {
	addr        string
	store       store.Store
	backend     *backend.Client
	gateway     payment.Gateway
	provider    otp.Provider
	pollCfg     poller.Config
	countdown   time.Duration
	productType string

	mu       sync.Mutex
	sessions map[string]*wizardSession

	httpSrv *http.Server
}

// NewServer creates an API server, applying any provided options.
func NewServer(opts ...Option) (*Server, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("api.NewServer options set", "addr", cfg.Addr, "store_set", cfg.Store != nil, "backend_set", cfg.Backend != nil)

	if cfg.Store == nil {
		return nil, errors.New("api server requires a store")
	}
	if cfg.Backend == nil {
		return nil, errors.New("api server requires a backend client")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("api server requires a gateway client")
	}
	if cfg.Provider == nil {
		return nil, errors.New("api server requires an otp provider")
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	productType := cfg.ProductType
	if productType == "" {
		productType = "home"
	}
	return &Server{
		addr:        addr,
		store:       cfg.Store,
		backend:     cfg.Backend,
		gateway:     cfg.Gateway,
		provider:    cfg.Provider,
		pollCfg:     cfg.PollConfig,
		countdown:   cfg.Countdown,
		productType: productType,
		sessions:    make(map[string]*wizardSession),
	}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", s.authLoginHandler)
	mux.HandleFunc("/auth/verify", s.authVerifyHandler)
	mux.HandleFunc("/auth/resend", s.authResendHandler)
	mux.HandleFunc("/customers/me", s.customerMeHandler)
	mux.HandleFunc("/customers/", s.customerUpdateHandler)
	mux.HandleFunc("/address/cities", s.citiesHandler)
	mux.HandleFunc("/address/districts/", s.districtsHandler)
	mux.HandleFunc("/proposals", s.proposalsHandler)
	mux.HandleFunc("/quotes/poll", s.quotesPollHandler)
	mux.HandleFunc("/quotes/status", s.quotesStatusHandler)
	mux.HandleFunc("/payment/start", s.paymentStartHandler)
	mux.HandleFunc("/payment/callback", s.paymentCallbackHandler)
	mux.HandleFunc("/payment/status", s.paymentStatusHandler)
	mux.HandleFunc("/wizard", s.wizardStateHandler)
	mux.HandleFunc("/wizard/retry", s.wizardRetryHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("QuoteFlow API listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	s.cancelPolls()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	slog.Info("QuoteFlow API stopped")
	return nil
}

// cancelPolls tears down every session's in-flight poll.
func (s *Server) cancelPolls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.cancelPoll()
	}
}
