package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	DefaultSessionTTL = time.Hour
	tokenBytes        = 24
)

type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Registry maps admin session tokens to their expiry. Any number of sessions
// may be live at once; there is no revocation besides expiry.
type Registry struct {
	mu           sync.Mutex
	passwordHash []byte
	ttl          time.Duration
	sessions     map[string]time.Time
	now          func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewRegistry expects a bcrypt hash of the admin password.
func NewRegistry(passwordHash []byte, opts ...Option) (*Registry, error) {
	if _, err := bcrypt.Cost(passwordHash); err != nil {
		return nil, fmt.Errorf("auth: admin password hash: %w", err)
	}
	r := &Registry{
		passwordHash: passwordHash,
		ttl:          DefaultSessionTTL,
		sessions:     make(map[string]time.Time),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// HashPassword produces the hash NewRegistry expects.
func HashPassword(password string, cost int) ([]byte, error) {
	if password == "" {
		return nil, errors.New("auth: empty admin password")
	}
	return bcrypt.GenerateFromPassword([]byte(password), cost)
}

// GenerateToken creates a random hex token of tokenBytes bytes.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Login checks password and mints a new session.
func (r *Registry) Login(password string) (Session, error) {
	if password == "" {
		return Session{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(r.passwordHash, []byte(password)); err != nil {
		return Session{}, ErrUnauthorized
	}

	token, err := GenerateToken()
	if err != nil {
		return Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := Session{Token: token, ExpiresAt: r.now().Add(r.ttl)}
	r.sessions[token] = s.ExpiresAt
	return s, nil
}

// Authorize fails for missing, unknown and expired tokens. Expired entries are
// evicted here.
func (r *Registry) Authorize(token string) error {
	if token == "" {
		return ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	expiresAt, ok := r.sessions[token]
	if !ok {
		return ErrUnauthorized
	}
	if expiresAt.Before(r.now()) {
		delete(r.sessions, token)
		return ErrUnauthorized
	}
	return nil
}

// Len reports the number of stored sessions, including expired ones not yet checked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
