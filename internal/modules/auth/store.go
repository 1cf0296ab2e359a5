// Package auth provides bearer token issuance and request gating for the
// mutating API surface.
package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenStore holds issued bearer tokens in memory.
// Tokens expire after the configured TTL; a restart revokes everything,
// which is acceptable for a single-operator gateway.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenStore creates a token store with the given token lifetime
func NewTokenStore(ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenStore{
		tokens: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a new opaque token and returns it with its expiry
func (s *TokenStore) Issue() (string, time.Time) {
	token := uuid.NewString()
	expiry := s.now().Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.tokens[token] = expiry

	return token, expiry
}

// Validate reports whether the token is known and unexpired
func (s *TokenStore) Validate(token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.tokens[token]
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		delete(s.tokens, token)
		return false
	}
	return true
}

// Revoke removes a token; returns false if it was not known
func (s *TokenStore) Revoke(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token]; !ok {
		return false
	}
	delete(s.tokens, token)
	return true
}

// prune drops expired tokens; caller holds the lock
func (s *TokenStore) prune() {
	now := s.now()
	for token, expiry := range s.tokens {
		if now.After(expiry) {
			delete(s.tokens, token)
		}
	}
}
