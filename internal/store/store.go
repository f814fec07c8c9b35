// Package store provides storage backends for QuoteFlow.
//
// It persists the wizard's session keys (pending-payment descriptor, 3-D
// Secure rendezvous keys, proposal-id set) and identity sessions, with
// in-memory, SQLite and PostgreSQL implementations.
package store

import (
	"sync"
	"time"

	"github.com/polisbay/quoteflow/internal/models"
)

// Store is the persistence abstraction shared by the wizard flows.
//
// Session keys form a single-writer, single-reader rendezvous: ConsumeKey
// implements delete-on-read so duplicate deliveries of the same key (e.g. a
// stray 3-D Secure signal) observe an empty slot instead of a stale value.
type Store interface {
	// PutKey stores or replaces a session key.
	PutKey(sessionID string, key models.SessionKey, value string) error
	// GetKey reads a session key without consuming it.
	GetKey(sessionID string, key models.SessionKey) (string, bool, error)
	// ConsumeKey reads a session key and deletes it atomically.
	ConsumeKey(sessionID string, key models.SessionKey) (string, bool, error)
	// DeleteKeys removes the given keys. Missing keys are not an error, so
	// cleanup is idempotent.
	DeleteKeys(sessionID string, keys ...models.SessionKey) error
	// ClearSession removes every key belonging to a session.
	ClearSession(sessionID string) error

	// SaveIdentitySession stores or updates an OTP challenge by token.
	SaveIdentitySession(s models.IdentitySession) error
	// GetIdentitySession retrieves an OTP challenge. Returns (nil, nil) when
	// the token is unknown.
	GetIdentitySession(token string) (*models.IdentitySession, error)
	// DeleteIdentitySession removes an OTP challenge.
	DeleteIdentitySession(token string) error

	// PurgeExpiredIdentitySessions removes challenges whose deadline passed
	// before the given instant and reports how many were removed.
	PurgeExpiredIdentitySessions(before time.Time) (int, error)
	// PurgeStaleKeys removes every instance of a session key last written
	// before the given instant and reports how many were removed.
	PurgeStaleKeys(key models.SessionKey, before time.Time) (int, error)

	// Close releases the backend's resources.
	Close() error
}

type memoryKey struct {
	sessionID string
	key       models.SessionKey
}

type memoryValue struct {
	value     string
	updatedAt time.Time
}

// InMemoryStore is a Store kept entirely in process memory, used in tests and
// as the fallback when no database DSN is configured.
type InMemoryStore struct {
	mu       sync.Mutex
	keys     map[memoryKey]memoryValue
	sessions map[string]models.IdentitySession
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		keys:     make(map[memoryKey]memoryValue),
		sessions: make(map[string]models.IdentitySession),
	}
}

// PutKey stores or replaces a session key.
func (s *InMemoryStore) PutKey(sessionID string, key models.SessionKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[memoryKey{sessionID, key}] = memoryValue{value: value, updatedAt: time.Now()}
	return nil
}

// GetKey reads a session key without consuming it.
func (s *InMemoryStore) GetKey(sessionID string, key models.SessionKey) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.keys[memoryKey{sessionID, key}]
	return v.value, ok, nil
}

// ConsumeKey reads a session key and deletes it atomically.
func (s *InMemoryStore) ConsumeKey(sessionID string, key models.SessionKey) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey{sessionID, key}
	v, ok := s.keys[k]
	if ok {
		delete(s.keys, k)
	}
	return v.value, ok, nil
}

// DeleteKeys removes the given keys; missing keys are ignored.
func (s *InMemoryStore) DeleteKeys(sessionID string, keys ...models.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.keys, memoryKey{sessionID, key})
	}
	return nil
}

// ClearSession removes every key belonging to a session.
func (s *InMemoryStore) ClearSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.keys {
		if k.sessionID == sessionID {
			delete(s.keys, k)
		}
	}
	return nil
}

// SaveIdentitySession stores or updates an OTP challenge by token.
func (s *InMemoryStore) SaveIdentitySession(is models.IdentitySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[is.Token] = is
	return nil
}

// GetIdentitySession retrieves an OTP challenge; (nil, nil) when unknown.
func (s *InMemoryStore) GetIdentitySession(token string) (*models.IdentitySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	is, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	return &is, nil
}

// DeleteIdentitySession removes an OTP challenge.
func (s *InMemoryStore) DeleteIdentitySession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// PurgeExpiredIdentitySessions removes challenges past their deadline.
func (s *InMemoryStore) PurgeExpiredIdentitySessions(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for token, is := range s.sessions {
		if is.Deadline.Before(before) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

// PurgeStaleKeys removes stale instances of a session key.
func (s *InMemoryStore) PurgeStaleKeys(key models.SessionKey, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for k, v := range s.keys {
		if k.key == key && v.updatedAt.Before(before) {
			delete(s.keys, k)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
