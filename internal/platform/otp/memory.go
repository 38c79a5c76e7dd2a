package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps codes in process memory. Expired entries stay until
// Sweep removes them.
type MemoryStore struct {
	mu       sync.Mutex
	codes    map[string]Entry
	verified map[string]time.Time
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes:    make(map[string]Entry),
		verified: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *MemoryStore) SaveCode(_ context.Context, email string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = e
	return nil
}

func (m *MemoryStore) LoadCode(_ context.Context, email string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.codes[email]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemoryStore) DeleteCode(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, email)
	return nil
}

func (m *MemoryStore) RecordFailure(_ context.Context, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.codes[email]
	if !ok {
		return 0, nil
	}
	e.Attempts++
	m.codes[email] = e
	return e.Attempts, nil
}

func (m *MemoryStore) ConsumeCode(_ context.Context, email, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.codes[email]
	if !ok || e.Code != code || e.Attempts >= MaxAttempts {
		return false, nil
	}
	delete(m.codes, email)
	return true, nil
}

func (m *MemoryStore) MarkVerified(_ context.Context, email string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified[email] = until
	return nil
}

func (m *MemoryStore) ConsumeVerified(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.verified[email]
	if !ok {
		return false, nil
	}
	delete(m.verified, email)
	return !m.now().After(until), nil
}

// Sweep drops expired codes and verified marks and returns how many went.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for email, e := range m.codes {
		if now.After(e.ExpiresAt) {
			delete(m.codes, email)
			removed++
		}
	}
	for email, until := range m.verified {
		if now.After(until) {
			delete(m.verified, email)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored codes.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}
