// Package session issues and validates short-lived access tokens.
//
// A token is only ever created for a verified operator, carries a fixed
// lifetime from the moment of creation, and cannot be renewed. Once the
// lifetime elapses the operator must verify again.
package session

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TokenBytes is the entropy of a session token before hex encoding.
const TokenBytes = 32

// DefaultTTL is the fixed session lifetime.
const DefaultTTL = time.Hour

var (
	// ErrNotVerified is returned when a session is requested without a
	// passed verification.
	ErrNotVerified = errors.New("session: verification required")

	// ErrInvalidToken is returned for tokens that were never issued or
	// have been revoked.
	ErrInvalidToken = errors.New("session: invalid token")

	// ErrExpired is returned for tokens past their lifetime.
	ErrExpired = errors.New("session: token expired")
)

// Session is one issued token with its validity window.
type Session struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager issues tokens and checks them against a Store.
type Manager struct {
	mu    sync.Mutex
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager over a Store. A nil store gets an
// in-memory one.
func NewManager(store Store, opts ...Option) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create issues a new session. The verified flag is the caller's
// attestation that challenge verification just passed; without it no
// token is issued.
func (m *Manager) Create(verified bool) (Session, error) {
	if !verified {
		return Session{}, ErrNotVerified
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := newToken()
	if err != nil {
		return Session{}, err
	}

	now := m.now()
	s := Session{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Put(s); err != nil {
		return Session{}, fmt.Errorf("session: store: %w", err)
	}
	return s, nil
}

// Validate checks a token and returns its session. Expired sessions are
// evicted on the spot.
func (m *Manager) Validate(token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok, err := m.store.Get(token)
	if err != nil {
		return Session{}, fmt.Errorf("session: store: %w", err)
	}
	if !ok {
		return Session{}, ErrInvalidToken
	}
	if !m.now().Before(s.ExpiresAt) {
		_ = m.store.Delete(token)
		return Session{}, ErrExpired
	}
	return s, nil
}

// Revoke removes a session before its natural expiry.
func (m *Manager) Revoke(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Delete(token)
}

// Purge drops all expired sessions from the store.
func (m *Manager) Purge() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Purge(m.now())
}

func newToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := crand.Read(buf); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
