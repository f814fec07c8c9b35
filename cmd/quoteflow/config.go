package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/polisbay/quoteflow/internal/otp"
	"github.com/polisbay/quoteflow/internal/poller"
	"github.com/polisbay/quoteflow/internal/util"
)

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	APIAddr     string

	BackendURL string
	GatewayURL string
	AgentID    string
	MerchantID string

	OtpChannel      string // "remote" (default), "twilio" or "whatsapp"
	NumericCode     bool   // WhatsApp numeric login code instead of a QR code
	AllowedProducts []string
	SweepSpec       string

	// Timing knobs; behavior is identical at the stated defaults.
	PollBudget           time.Duration
	PollEmptyCutoff      time.Duration
	PollInterval         time.Duration
	OtpCountdown         time.Duration
	ProgressFinishWindow time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput *string
	numeric  *bool
	stateDir *string
	dbDSN    *string
	apiAddr  *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("QUOTEFLOW_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),

		BackendURL: os.Getenv("BACKEND_BASE_URL"),
		GatewayURL: os.Getenv("GATEWAY_BASE_URL"),
		AgentID:    os.Getenv("AGENT_ID"),
		MerchantID: os.Getenv("MERCHANT_ID"),

		OtpChannel:      os.Getenv("OTP_CHANNEL"),
		NumericCode:     util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
		AllowedProducts: util.ParseListEnv("ALLOWED_PRODUCTS"),
		SweepSpec:       os.Getenv("SWEEP_CRON"),

		PollBudget:           util.ParseDurationEnv("QUOTE_POLL_BUDGET", poller.DefaultBudget),
		PollEmptyCutoff:      util.ParseDurationEnv("QUOTE_POLL_EMPTY_CUTOFF", poller.DefaultEmptyCutoff),
		PollInterval:         util.ParseDurationEnv("QUOTE_POLL_INTERVAL", poller.DefaultInterval),
		OtpCountdown:         util.ParseDurationEnv("OTP_COUNTDOWN", otp.DefaultCountdown),
		ProgressFinishWindow: util.ParseDurationEnv("PROGRESS_FINISH_WINDOW", poller.DefaultFinishWindow),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No QUOTEFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"QUOTEFLOW_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"BACKEND_BASE_URL_SET", config.BackendURL != "",
		"GATEWAY_BASE_URL_SET", config.GatewayURL != "",
		"OTP_CHANNEL", config.OtpChannel,
		"WHATSAPP_NUMERIC_CODE", config.NumericCode,
		"ALLOWED_PRODUCTS", config.AllowedProducts,
		"QUOTE_POLL_BUDGET", config.PollBudget,
		"QUOTE_POLL_EMPTY_CUTOFF", config.PollEmptyCutoff,
		"QUOTE_POLL_INTERVAL", config.PollInterval,
		"OTP_COUNTDOWN", config.OtpCountdown,
		"PROGRESS_FINISH_WINDOW", config.ProgressFinishWindow)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput: flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:  flag.Bool("numeric-code", config.NumericCode, "use numeric WhatsApp login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		stateDir: flag.String("state-dir", config.StateDir, "state directory for QuoteFlow data (overrides $QUOTEFLOW_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}
