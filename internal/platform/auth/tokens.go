package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose distinguishes session tokens from single-use flow tokens such as
// password reset links, so one can never be replayed as the other.
type Purpose string

const (
	PurposeSession       Purpose = "session"
	PurposePasswordReset Purpose = "password_reset"
)

type Claims struct {
	jwt.RegisteredClaims
	Email   string  `json:"email"`
	Purpose Purpose `json:"purpose"`
}

// TokenIssuer mints and verifies HS256 tokens signed with a shared secret.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// IssuedToken is a signed token together with the claims it carries.
type IssuedToken struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issue mints a session token for the user.
func (i *TokenIssuer) Issue(userID uuid.UUID, email string) (*IssuedToken, error) {
	return i.issue(userID, email, PurposeSession, i.ttl)
}

// IssueFor mints a token for a non-session purpose with its own lifetime.
func (i *TokenIssuer) IssueFor(purpose Purpose, userID uuid.UUID, email string, ttl time.Duration) (*IssuedToken, error) {
	if purpose == PurposeSession {
		return nil, errors.New("use Issue for session tokens")
	}
	return i.issue(userID, email, purpose, ttl)
}

func (i *TokenIssuer) issue(userID uuid.UUID, email string, purpose Purpose, ttl time.Duration) (*IssuedToken, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:   email,
		Purpose: purpose,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &IssuedToken{Token: signed, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse verifies signature, issuer, expiry and purpose.
func (i *TokenIssuer) Parse(raw string, purpose Purpose) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate implements Authenticator for session tokens.
func (i *TokenIssuer) Authenticate(_ context.Context, raw string) (*Principal, error) {
	claims, err := i.Parse(raw, PurposeSession)
	if err != nil {
		return nil, err
	}
	p := &Principal{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Provider: ProviderLocal,
		TokenID:  claims.ID,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}
