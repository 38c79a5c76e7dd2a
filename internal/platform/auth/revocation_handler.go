package auth

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type revocationStatsResponse struct {
	RevokedTokens int `json:"revokedTokens"`
}

// RegisterRevocationRoutes mounts session management on an admin-only group:
//
//	POST /users/:id/sessions/end  sign a user out everywhere
//	GET  /revocations             count of individually revoked tokens
func (s *Sessions) RegisterRevocationRoutes(admin *echo.Group) {
	admin.POST("/users/:id/sessions/end", s.handleEndSessions)
	admin.GET("/revocations", s.handleRevocationStats)
}

func (s *Sessions) handleEndSessions(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	reason := "ended by administrator"
	if sess := SessionFromContext(c.Request().Context()); sess != nil {
		reason += " " + sess.Email
	}
	s.EndAllSessions(userID, EventSignedOut, reason)
	return c.NoContent(http.StatusNoContent)
}

func (s *Sessions) handleRevocationStats(c echo.Context) error {
	count := 0
	if s.revocations != nil {
		count = s.revocations.Count()
	}
	return c.JSON(http.StatusOK, revocationStatsResponse{RevokedTokens: count})
}
