// Package store provides storage backends for QuoteFlow.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/polisbay/quoteflow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// PutKey stores or replaces a session key.
func (s *SQLiteStore) PutKey(sessionID string, key models.SessionKey, value string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO session_keys (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(key), value, time.Now())
	if err != nil {
		slog.Error("SQLiteStore PutKey failed", "error", err, "sessionID", sessionID, "key", key)
		return fmt.Errorf("failed to put session key %s: %w", key, err)
	}
	slog.Debug("SQLiteStore PutKey succeeded", "sessionID", sessionID, "key", key)
	return nil
}

// GetKey reads a session key without consuming it.
func (s *SQLiteStore) GetKey(sessionID string, key models.SessionKey) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM session_keys WHERE session_id = ? AND key = ?`,
		sessionID, string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetKey failed", "error", err, "sessionID", sessionID, "key", key)
		return "", false, err
	}
	return value, true, nil
}

// ConsumeKey reads a session key and deletes it in the same transaction.
func (s *SQLiteStore) ConsumeKey(sessionID string, key models.SessionKey) (string, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore ConsumeKey begin failed", "error", err, "sessionID", sessionID, "key", key)
		return "", false, err
	}
	defer tx.Rollback()

	var value string
	err = tx.QueryRow(
		`SELECT value FROM session_keys WHERE session_id = ? AND key = ?`,
		sessionID, string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore ConsumeKey select failed", "error", err, "sessionID", sessionID, "key", key)
		return "", false, err
	}

	if _, err := tx.Exec(
		`DELETE FROM session_keys WHERE session_id = ? AND key = ?`,
		sessionID, string(key)); err != nil {
		slog.Error("SQLiteStore ConsumeKey delete failed", "error", err, "sessionID", sessionID, "key", key)
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	slog.Debug("SQLiteStore ConsumeKey succeeded", "sessionID", sessionID, "key", key)
	return value, true, nil
}

// DeleteKeys removes the given keys; missing keys are ignored.
func (s *SQLiteStore) DeleteKeys(sessionID string, keys ...models.SessionKey) error {
	for _, key := range keys {
		if _, err := s.db.Exec(
			`DELETE FROM session_keys WHERE session_id = ? AND key = ?`,
			sessionID, string(key)); err != nil {
			slog.Error("SQLiteStore DeleteKeys failed", "error", err, "sessionID", sessionID, "key", key)
			return fmt.Errorf("failed to delete session key %s: %w", key, err)
		}
	}
	slog.Debug("SQLiteStore DeleteKeys succeeded", "sessionID", sessionID, "count", len(keys))
	return nil
}

// ClearSession removes every key belonging to a session.
func (s *SQLiteStore) ClearSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM session_keys WHERE session_id = ?`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore ClearSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to clear session %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore ClearSession succeeded", "sessionID", sessionID)
	return nil
}

// SaveIdentitySession stores or updates an OTP challenge by token.
func (s *SQLiteStore) SaveIdentitySession(is models.IdentitySession) error {
	payload, err := json.Marshal(is)
	if err != nil {
		slog.Error("SQLiteStore SaveIdentitySession marshal failed", "error", err, "token", is.Token)
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO identity_sessions (token, payload, deadline, created_at) VALUES (?, ?, ?, ?)`,
		is.Token, string(payload), is.Deadline, is.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveIdentitySession failed", "error", err, "token", is.Token)
		return fmt.Errorf("failed to save identity session: %w", err)
	}
	slog.Debug("SQLiteStore SaveIdentitySession succeeded", "token", is.Token)
	return nil
}

// GetIdentitySession retrieves an OTP challenge; (nil, nil) when unknown.
func (s *SQLiteStore) GetIdentitySession(token string) (*models.IdentitySession, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM identity_sessions WHERE token = ?`, token).Scan(&payload)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetIdentitySession not found", "token", token)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetIdentitySession failed", "error", err, "token", token)
		return nil, err
	}
	var is models.IdentitySession
	if err := json.Unmarshal([]byte(payload), &is); err != nil {
		slog.Error("SQLiteStore GetIdentitySession unmarshal failed", "error", err, "token", token)
		return nil, err
	}
	return &is, nil
}

// DeleteIdentitySession removes an OTP challenge.
func (s *SQLiteStore) DeleteIdentitySession(token string) error {
	_, err := s.db.Exec(`DELETE FROM identity_sessions WHERE token = ?`, token)
	if err != nil {
		slog.Error("SQLiteStore DeleteIdentitySession failed", "error", err, "token", token)
		return err
	}
	slog.Debug("SQLiteStore DeleteIdentitySession succeeded", "token", token)
	return nil
}

// PurgeExpiredIdentitySessions removes challenges past their deadline.
func (s *SQLiteStore) PurgeExpiredIdentitySessions(before time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM identity_sessions WHERE deadline < ?`, before)
	if err != nil {
		slog.Error("SQLiteStore PurgeExpiredIdentitySessions failed", "error", err)
		return 0, err
	}
	n, _ := res.RowsAffected()
	slog.Debug("SQLiteStore PurgeExpiredIdentitySessions succeeded", "purged", n)
	return int(n), nil
}

// PurgeStaleKeys removes stale instances of a session key.
func (s *SQLiteStore) PurgeStaleKeys(key models.SessionKey, before time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM session_keys WHERE key = ? AND updated_at < ?`, string(key), before)
	if err != nil {
		slog.Error("SQLiteStore PurgeStaleKeys failed", "error", err, "key", key)
		return 0, err
	}
	n, _ := res.RowsAffected()
	slog.Debug("SQLiteStore PurgeStaleKeys succeeded", "key", key, "purged", n)
	return int(n), nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
