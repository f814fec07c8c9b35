package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/polisbay/quoteflow/internal/api"
	"github.com/polisbay/quoteflow/internal/backend"
	"github.com/polisbay/quoteflow/internal/gateway"
	"github.com/polisbay/quoteflow/internal/messaging"
	"github.com/polisbay/quoteflow/internal/otp"
	"github.com/polisbay/quoteflow/internal/poller"
	"github.com/polisbay/quoteflow/internal/scheduler"
	"github.com/polisbay/quoteflow/internal/store"
	"github.com/polisbay/quoteflow/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for QuoteFlow state data
	DefaultStateDir = "/var/lib/quoteflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "quoteflow.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping QuoteFlow with configured modules")
	if err := run(config, flags); err != nil {
		slog.Error("QuoteFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("QuoteFlow exited successfully")
}

func run(config Config, flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	be, err := backend.NewClient(
		backend.WithBaseURL(config.BackendURL),
		backend.WithAgentID(config.AgentID),
	)
	if err != nil {
		return err
	}
	gw, err := gateway.NewClient(
		gateway.WithBaseURL(config.GatewayURL),
		gateway.WithMerchantID(config.MerchantID),
	)
	if err != nil {
		return err
	}

	provider, stopMessaging, err := buildOTPProvider(config, flags, st, be)
	if err != nil {
		return err
	}
	defer stopMessaging()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.ScheduleSweep(st, config.SweepSpec, 0); err != nil {
		return err
	}

	srv, err := api.NewServer(
		api.WithAddr(*flags.apiAddr),
		api.WithStore(st),
		api.WithBackendClient(be),
		api.WithGatewayClient(gw),
		api.WithOTPProvider(provider),
		api.WithCountdown(config.OtpCountdown),
		api.WithPollConfig(poller.Config{
			Budget:          config.PollBudget,
			EmptyCutoff:     config.PollEmptyCutoff,
			Interval:        config.PollInterval,
			FinishWindow:    config.ProgressFinishWindow,
			AllowedProducts: config.AllowedProducts,
		}),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

// buildStore constructs the session store, choosing the backend by DSN type.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildOTPProvider wires the configured OTP channel: the remote provider
// delegates to the insurer platform; the local provider delivers codes over
// Twilio SMS or WhatsApp.
func buildOTPProvider(config Config, flags Flags, st store.Store, be *backend.Client) (otp.Provider, func(), error) {
	countdownOpt := otp.WithCountdown(config.OtpCountdown)
	noop := func() {}

	switch config.OtpChannel {
	case "twilio":
		svc, err := messaging.NewTwilioService()
		if err != nil {
			return nil, noop, err
		}
		slog.Info("OTP delivery over Twilio SMS")
		return otp.NewLocalProvider(st, svc, countdownOpt), func() { _ = svc.Stop() }, nil
	case "whatsapp":
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.dbDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, noop, err
		}
		svc := messaging.NewWhatsAppService(client)
		slog.Info("OTP delivery over WhatsApp")
		return otp.NewLocalProvider(st, svc, countdownOpt), func() { _ = svc.Stop() }, nil
	default:
		slog.Info("OTP delegated to the insurer platform")
		return otp.NewRemoteProvider(be, countdownOpt), noop, nil
	}
}
