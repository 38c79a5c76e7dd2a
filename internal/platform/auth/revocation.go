package auth

import (
	"sync"
	"time"
)

// TokenRevocationStore tracks signed-out tokens until they would have expired
// anyway, plus a per-user cutoff that invalidates every token issued before it.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // token id -> natural expiry
	cutoffs map[string]cutoff    // subject -> revoke-before
	now     func() time.Time
}

type cutoff struct {
	at        time.Time
	expiresAt time.Time
}

func NewTokenRevocationStore() *TokenRevocationStore {
	return &TokenRevocationStore{
		entries: make(map[string]time.Time),
		cutoffs: make(map[string]cutoff),
		now:     time.Now,
	}
}

// Revoke invalidates a single token until expiresAt.
func (s *TokenRevocationStore) Revoke(tokenID string, expiresAt time.Time) {
	if tokenID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tokenID] = expiresAt
}

// RevokeAllForUser invalidates every token for subject issued before the
// current second. maxTTL bounds how long the cutoff has to be remembered.
func (s *TokenRevocationStore) RevokeAllForUser(subject string, maxTTL time.Duration) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	// token iat claims have second precision
	s.cutoffs[subject] = cutoff{at: now.Truncate(time.Second), expiresAt: now.Add(maxTTL)}
}

// IsRevoked checks the principal's token id and its subject's cutoff.
func (s *TokenRevocationStore) IsRevoked(p *Principal) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entries[p.TokenID]; ok && p.TokenID != "" {
		return true
	}
	if c, ok := s.cutoffs[p.Subject]; ok && p.IssuedAt.Before(c.at) {
		return true
	}
	return false
}

// Count returns the number of individually revoked tokens.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep drops entries whose tokens have expired and returns how many went.
func (s *TokenRevocationStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, id)
			removed++
		}
	}
	for subject, c := range s.cutoffs {
		if now.After(c.expiresAt) {
			delete(s.cutoffs, subject)
			removed++
		}
	}
	return removed
}
