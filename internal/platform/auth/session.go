package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Role is the role stored on a user profile.
type Role string

const (
	RoleDoctor Role = "Doctor"
	RoleAdmin  Role = "Admin"
)

// Capability is what a session is allowed to do once the allow-list is applied.
type Capability string

const (
	CapabilityDoctor Capability = "doctor"
	CapabilityAdmin  Capability = "admin"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is the slice of a user record needed to open a session.
type Profile struct {
	ID    uuid.UUID
	Email string
	Name  string
	Role  Role
}

// ProfileLookup loads profiles for authenticated principals.
type ProfileLookup interface {
	ProfileByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	ProfileByEmail(ctx context.Context, email string) (*Profile, error)
}

// Session is a principal resolved to a profile and a capability.
type Session struct {
	UserID     uuid.UUID
	Email      string
	Name       string
	Role       Role
	Capability Capability
	TokenID    string
	ExpiresAt  time.Time
}

func (s *Session) IsAdmin() bool { return s.Capability == CapabilityAdmin }

// CanAccessDoctor reports whether the session may read the given doctor's data.
func (s *Session) CanAccessDoctor(doctorID uuid.UUID) bool {
	return s.IsAdmin() || s.UserID == doctorID
}

type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventAccountDeleted EventKind = "account_deleted"
)

// Event is published whenever a user's authentication state changes.
type Event struct {
	Kind   EventKind
	UserID string
	Reason string
	At     time.Time
}

// Sessions resolves principals into sessions and fans auth state changes out
// to subscribers.
type Sessions struct {
	lookup      ProfileLookup
	revocations *TokenRevocationStore
	adminEmails map[string]struct{}
	maxTokenTTL time.Duration
	logger      zerolog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewSessions(lookup ProfileLookup, revocations *TokenRevocationStore, adminEmails []string, maxTokenTTL time.Duration, logger zerolog.Logger) *Sessions {
	allow := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		allow[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return &Sessions{
		lookup:      lookup,
		revocations: revocations,
		adminEmails: allow,
		maxTokenTTL: maxTokenTTL,
		logger:      logger,
		subs:        make(map[int]func(Event)),
	}
}

// ResolveCapability grants admin only when the stored role is Admin and the
// email is on the allow-list. Everyone else is a doctor scoped to themselves.
func (s *Sessions) ResolveCapability(email string, role Role) Capability {
	if role != RoleAdmin {
		return CapabilityDoctor
	}
	if _, ok := s.adminEmails[strings.ToLower(email)]; ok {
		return CapabilityAdmin
	}
	return CapabilityDoctor
}

// Resolve loads the principal's profile and builds its Session.
func (s *Sessions) Resolve(ctx context.Context, p *Principal) (*Session, error) {
	var (
		prof *Profile
		err  error
	)
	switch p.Provider {
	case ProviderLocal:
		id, perr := uuid.Parse(p.Subject)
		if perr != nil {
			return nil, ErrProfileNotFound
		}
		prof, err = s.lookup.ProfileByID(ctx, id)
	default:
		prof, err = s.lookup.ProfileByEmail(ctx, p.Email)
	}
	if err != nil {
		return nil, err
	}
	if prof == nil {
		return nil, ErrProfileNotFound
	}

	return &Session{
		UserID:     prof.ID,
		Email:      prof.Email,
		Name:       prof.Name,
		Role:       prof.Role,
		Capability: s.ResolveCapability(prof.Email, prof.Role),
		TokenID:    p.TokenID,
		ExpiresAt:  p.ExpiresAt,
	}, nil
}

// SignOut revokes the principal's token and tells subscribers.
func (s *Sessions) SignOut(p *Principal, reason string) {
	if s.revocations != nil {
		if p.TokenID != "" {
			s.revocations.Revoke(p.TokenID, p.ExpiresAt)
		} else {
			s.revocations.RevokeAllForUser(p.Subject, s.maxTokenTTL)
		}
	}
	s.Publish(Event{Kind: EventSignedOut, UserID: p.Subject, Reason: reason})
}

// EndAllSessions invalidates every outstanding token of a user.
func (s *Sessions) EndAllSessions(userID uuid.UUID, kind EventKind, reason string) {
	if s.revocations != nil {
		s.revocations.RevokeAllForUser(userID.String(), s.maxTokenTTL)
	}
	s.Publish(Event{Kind: kind, UserID: userID.String(), Reason: reason})
}

// Subscribe registers fn for auth events and returns its unsubscribe func.
func (s *Sessions) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Publish delivers ev synchronously to every subscriber.
func (s *Sessions) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.mu.RLock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	s.logger.Info().
		Str("event", string(ev.Kind)).
		Str("user_id", ev.UserID).
		Str("reason", ev.Reason).
		Msg("auth state changed")

	for _, fn := range subs {
		fn(ev)
	}
}

// SubscriberCount is used by tests and the health endpoint.
func (s *Sessions) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
