// Package contact forwards the public contact form to the support inbox.
package contact

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardwatch/wardwatch/internal/platform/notification"
)

// Mailer sends one templated email.
type Mailer interface {
	SendEmail(ctx context.Context, templateID string, data map[string]string, to, replyTo string) (*notification.ChannelResult, error)
}

type Handler struct {
	mailer  Mailer
	support string
	logger  zerolog.Logger
}

func NewHandler(mailer Mailer, supportEmail string, logger zerolog.Logger) *Handler {
	return &Handler{mailer: mailer, support: supportEmail, logger: logger}
}

func (h *Handler) RegisterRoutes(public *echo.Group, limiter echo.MiddlewareFunc) {
	if limiter != nil {
		public.POST("/contact", h.Submit, limiter)
		return
	}
	public.POST("/contact", h.Submit)
}

type Request struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (h *Handler) Submit(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing required fields"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	if req.Name == "" || req.Email == "" || req.Message == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing required fields"})
	}

	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		phone = "Not provided"
	}
	res, err := h.mailer.SendEmail(c.Request().Context(), notification.TemplateContactForm, map[string]string{
		"name":    req.Name,
		"email":   req.Email,
		"phone":   phone,
		"message": req.Message,
	}, h.support, req.Email)
	if err != nil {
		h.logger.Error().Err(err).Str("from", req.Email).Msg("contact form delivery failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to send message", "details": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "messageId": res.MessageID})
}
