package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireSession resolves the authenticated principal into a Session. A
// principal whose profile cannot be loaded is signed out.
func (s *Sessions) RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			p := PrincipalFromContext(ctx)
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrMissingToken.Error())
			}

			sess, err := s.Resolve(ctx, p)
			if err != nil {
				if !errors.Is(err, ErrProfileNotFound) {
					s.logger.Error().Err(err).Str("user_id", p.Subject).Msg("profile lookup failed")
				}
				s.SignOut(p, "profile lookup failed")
				return echo.NewHTTPError(http.StatusUnauthorized, "session ended, please sign in again")
			}

			c.SetRequest(c.Request().WithContext(ContextWithSession(ctx, sess)))
			return next(c)
		}
	}
}

// RequireAdmin admits admin sessions only. Anyone else reaching an admin
// route is signed out.
func (s *Sessions) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			sess := SessionFromContext(ctx)
			if sess == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "no active session")
			}
			if !sess.IsAdmin() {
				if p := PrincipalFromContext(ctx); p != nil {
					s.SignOut(p, "admin access denied")
				}
				return echo.NewHTTPError(http.StatusForbidden, "admin access required")
			}
			return next(c)
		}
	}
}
