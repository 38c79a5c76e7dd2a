// Package otp issues and checks the one-time email verification codes used
// before registration. Codes are held server-side, keyed by email.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardwatch/wardwatch/internal/platform/notification"
)

var (
	ErrEmailRequired   = errors.New("Email is required")
	ErrCodeRequired    = errors.New("Email and OTP are required")
	ErrCodeNotFound    = errors.New("No OTP requested for this email")
	ErrCodeExpired     = errors.New("OTP has expired")
	ErrCodeMismatch    = errors.New("Invalid OTP")
	ErrTooManyAttempts = errors.New("Too many attempts, request a new OTP")
)

const (
	DefaultTTL     = 5 * time.Minute
	VerifiedWindow = 15 * time.Minute
	MaxAttempts    = 5
	codeDigits     = 6
)

// Entry is a stored code.
type Entry struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	Attempts  int       `json:"attempts"`
}

// Store persists codes and verified marks. Load returns nil, nil when no
// code exists for the email.
//
// RecordFailure and ConsumeCode must be atomic with respect to each other:
// RecordFailure returns the attempt count after incrementing it, or 0 when
// no code is stored, and ConsumeCode removes the code only if it still
// matches and has fewer than MaxAttempts failures.
type Store interface {
	SaveCode(ctx context.Context, email string, e Entry) error
	LoadCode(ctx context.Context, email string) (*Entry, error)
	DeleteCode(ctx context.Context, email string) error
	RecordFailure(ctx context.Context, email string) (int, error)
	ConsumeCode(ctx context.Context, email, code string) (bool, error)
	MarkVerified(ctx context.Context, email string, until time.Time) error
	ConsumeVerified(ctx context.Context, email string) (bool, error)
}

// Mailer sends a rendered template to one address.
type Mailer interface {
	SendEmail(ctx context.Context, templateID string, data map[string]string, to, replyTo string) (*notification.ChannelResult, error)
}

// Issued is returned to the caller after a code went out.
type Issued struct {
	Code      string
	ExpiresAt time.Time
}

// Service generates, delivers, and verifies codes.
type Service struct {
	store  Store
	mailer Mailer
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(store Store, mailer Mailer, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, mailer: mailer, ttl: ttl, now: time.Now, logger: logger}
}

// NormalizeEmail lower-cases and trims an address so lookups match.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Issue stores a fresh code for email, replacing any previous one, and mails
// it. The code is removed again if delivery fails.
func (s *Service) Issue(ctx context.Context, email string) (*Issued, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	expires := s.now().Add(s.ttl)
	if err := s.store.SaveCode(ctx, email, Entry{Code: code, ExpiresAt: expires}); err != nil {
		return nil, fmt.Errorf("store otp: %w", err)
	}

	_, err = s.mailer.SendEmail(ctx, notification.TemplateOTP, map[string]string{
		"code":    code,
		"minutes": strconv.Itoa(int(s.ttl.Minutes())),
	}, email, "")
	if err != nil {
		if derr := s.store.DeleteCode(ctx, email); derr != nil {
			s.logger.Warn().Err(derr).Msg("otp: cleanup after failed send")
		}
		return nil, fmt.Errorf("send otp: %w", err)
	}

	s.logger.Info().Time("expires_at", expires).Msg("otp issued")
	return &Issued{Code: code, ExpiresAt: expires}, nil
}

// Verify checks code against the stored entry. A code is valid up to and
// including its expiry instant. Success consumes the code and marks the
// email verified for VerifiedWindow.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return ErrCodeRequired
	}

	entry, err := s.store.LoadCode(ctx, email)
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}
	if entry == nil {
		return ErrCodeNotFound
	}

	now := s.now()
	if now.After(entry.ExpiresAt) {
		_ = s.store.DeleteCode(ctx, email)
		return ErrCodeExpired
	}
	if entry.Code != code {
		attempts, err := s.store.RecordFailure(ctx, email)
		if err != nil {
			return fmt.Errorf("store otp: %w", err)
		}
		switch {
		case attempts == 0:
			return ErrCodeNotFound
		case attempts >= MaxAttempts:
			_ = s.store.DeleteCode(ctx, email)
			return ErrTooManyAttempts
		}
		return ErrCodeMismatch
	}

	ok, err := s.store.ConsumeCode(ctx, email, code)
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if !ok {
		// Locked out or replaced since it was loaded.
		return ErrCodeNotFound
	}
	if err := s.store.MarkVerified(ctx, email, now.Add(VerifiedWindow)); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// ConsumeVerified reports whether email passed verification recently and
// clears the mark, so one verification allows one registration.
func (s *Service) ConsumeVerified(ctx context.Context, email string) (bool, error) {
	return s.store.ConsumeVerified(ctx, NormalizeEmail(email))
}

func generateCode() (string, error) {
	// 100000..999999
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()+100000), nil
}
