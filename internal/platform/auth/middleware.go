package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	PrincipalKey contextKey = "principal"
	SessionKey   contextKey = "session"
)

// Provider names the identity provider that vouched for a principal.
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderFirebase Provider = "firebase"
)

var (
	ErrMissingToken = errors.New("missing authorization header")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Principal is an authenticated caller before its profile has been resolved.
type Principal struct {
	Subject   string
	Email     string
	Provider  Provider
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Authenticator turns a raw bearer token into a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*Principal, error)
}

// Authenticators tries each authenticator in order and returns the first success.
type Authenticators []Authenticator

func (a Authenticators) Authenticate(ctx context.Context, rawToken string) (*Principal, error) {
	for _, authn := range a {
		if authn == nil {
			continue
		}
		if p, err := authn.Authenticate(ctx, rawToken); err == nil {
			return p, nil
		}
	}
	return nil, ErrInvalidToken
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("invalid authorization format")
	}
	return strings.TrimSpace(token), nil
}

// JWTMiddleware authenticates the bearer token, rejects revoked tokens and
// stores the Principal on the request context.
func JWTMiddleware(authn Authenticator, revocations *TokenRevocationStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := BearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			ctx := c.Request().Context()
			principal, err := authn.Authenticate(ctx, raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}
			if revocations != nil && revocations.IsRevoked(principal) {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrTokenRevoked.Error())
			}

			c.SetRequest(c.Request().WithContext(ContextWithPrincipal(ctx, principal)))
			return next(c)
		}
	}
}

func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(PrincipalKey).(*Principal)
	return p
}

func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(SessionKey).(*Session)
	return s
}

// UserIDFromContext returns the resolved user id, or the raw token subject
// when no session has been resolved yet.
func UserIDFromContext(ctx context.Context) string {
	if s := SessionFromContext(ctx); s != nil {
		return s.UserID.String()
	}
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Subject
	}
	return ""
}
