// Package store provides storage backends for QuoteFlow.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/polisbay/quoteflow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// PutKey stores or replaces a session key.
func (s *PostgresStore) PutKey(sessionID string, key models.SessionKey, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO session_keys (session_id, key, value, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		sessionID, string(key), value, time.Now())
	if err != nil {
		slog.Error("PostgresStore PutKey failed", "error", err, "sessionID", sessionID, "key", key)
		return fmt.Errorf("failed to put session key %s: %w", key, err)
	}
	slog.Debug("PostgresStore PutKey succeeded", "sessionID", sessionID, "key", key)
	return nil
}

// GetKey reads a session key without consuming it.
func (s *PostgresStore) GetKey(sessionID string, key models.SessionKey) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM session_keys WHERE session_id = $1 AND key = $2`,
		sessionID, string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetKey failed", "error", err, "sessionID", sessionID, "key", key)
		return "", false, err
	}
	return value, true, nil
}

// ConsumeKey reads a session key and deletes it atomically using
// DELETE ... RETURNING, so concurrent consumers cannot both observe a value.
func (s *PostgresStore) ConsumeKey(sessionID string, key models.SessionKey) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`DELETE FROM session_keys WHERE session_id = $1 AND key = $2 RETURNING value`,
		sessionID, string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("PostgresStore ConsumeKey failed", "error", err, "sessionID", sessionID, "key", key)
		return "", false, err
	}
	slog.Debug("PostgresStore ConsumeKey succeeded", "sessionID", sessionID, "key", key)
	return value, true, nil
}

// DeleteKeys removes the given keys; missing keys are ignored.
func (s *PostgresStore) DeleteKeys(sessionID string, keys ...models.SessionKey) error {
	for _, key := range keys {
		if _, err := s.db.Exec(
			`DELETE FROM session_keys WHERE session_id = $1 AND key = $2`,
			sessionID, string(key)); err != nil {
			slog.Error("PostgresStore DeleteKeys failed", "error", err, "sessionID", sessionID, "key", key)
			return fmt.Errorf("failed to delete session key %s: %w", key, err)
		}
	}
	slog.Debug("PostgresStore DeleteKeys succeeded", "sessionID", sessionID, "count", len(keys))
	return nil
}

// ClearSession removes every key belonging to a session.
func (s *PostgresStore) ClearSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM session_keys WHERE session_id = $1`, sessionID)
	if err != nil {
		slog.Error("PostgresStore ClearSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to clear session %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore ClearSession succeeded", "sessionID", sessionID)
	return nil
}

// SaveIdentitySession stores or updates an OTP challenge by token.
func (s *PostgresStore) SaveIdentitySession(is models.IdentitySession) error {
	payload, err := json.Marshal(is)
	if err != nil {
		slog.Error("PostgresStore SaveIdentitySession marshal failed", "error", err, "token", is.Token)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO identity_sessions (token, payload, deadline, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token) DO UPDATE SET payload = EXCLUDED.payload, deadline = EXCLUDED.deadline`,
		is.Token, string(payload), is.Deadline, is.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveIdentitySession failed", "error", err, "token", is.Token)
		return fmt.Errorf("failed to save identity session: %w", err)
	}
	slog.Debug("PostgresStore SaveIdentitySession succeeded", "token", is.Token)
	return nil
}

// GetIdentitySession retrieves an OTP challenge; (nil, nil) when unknown.
func (s *PostgresStore) GetIdentitySession(token string) (*models.IdentitySession, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM identity_sessions WHERE token = $1`, token).Scan(&payload)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetIdentitySession not found", "token", token)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetIdentitySession failed", "error", err, "token", token)
		return nil, err
	}
	var is models.IdentitySession
	if err := json.Unmarshal([]byte(payload), &is); err != nil {
		slog.Error("PostgresStore GetIdentitySession unmarshal failed", "error", err, "token", token)
		return nil, err
	}
	return &is, nil
}

// DeleteIdentitySession removes an OTP challenge.
func (s *PostgresStore) DeleteIdentitySession(token string) error {
	_, err := s.db.Exec(`DELETE FROM identity_sessions WHERE token = $1`, token)
	if err != nil {
		slog.Error("PostgresStore DeleteIdentitySession failed", "error", err, "token", token)
		return err
	}
	slog.Debug("PostgresStore DeleteIdentitySession succeeded", "token", token)
	return nil
}

// PurgeExpiredIdentitySessions removes challenges past their deadline.
func (s *PostgresStore) PurgeExpiredIdentitySessions(before time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM identity_sessions WHERE deadline < $1`, before)
	if err != nil {
		slog.Error("PostgresStore PurgeExpiredIdentitySessions failed", "error", err)
		return 0, err
	}
	n, _ := res.RowsAffected()
	slog.Debug("PostgresStore PurgeExpiredIdentitySessions succeeded", "purged", n)
	return int(n), nil
}

// PurgeStaleKeys removes stale instances of a session key.
func (s *PostgresStore) PurgeStaleKeys(key models.SessionKey, before time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM session_keys WHERE key = $1 AND updated_at < $2`, string(key), before)
	if err != nil {
		slog.Error("PostgresStore PurgeStaleKeys failed", "error", err, "key", key)
		return 0, err
	}
	n, _ := res.RowsAffected()
	slog.Debug("PostgresStore PurgeStaleKeys succeeded", "key", key, "purged", n)
	return int(n), nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
