package otp

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler serves the public send/verify endpoints.
type Handler struct {
	svc        *Service
	exposeCode bool
}

// NewHandler creates a Handler. exposeCode returns the code in the send
// response and must only be set in development.
func NewHandler(svc *Service, exposeCode bool) *Handler {
	return &Handler{svc: svc, exposeCode: exposeCode}
}

// RegisterRoutes mounts the endpoints. limiter guards send-otp against abuse.
func (h *Handler) RegisterRoutes(api *echo.Group, limiter echo.MiddlewareFunc) {
	if limiter != nil {
		api.POST("/send-otp", h.SendOTP, limiter)
	} else {
		api.POST("/send-otp", h.SendOTP)
	}
	api.POST("/verify-otp", h.VerifyOTP)
}

type sendRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
	// Older clients still post these; they are ignored.
	StoredOTP string `json:"storedOtp,omitempty"`
	Expiry    int64  `json:"expiry,omitempty"`
}

func (h *Handler) SendOTP(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid request body"})
	}

	issued, err := h.svc.Issue(c.Request().Context(), req.Email)
	if err != nil {
		if errors.Is(err, ErrEmailRequired) {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": err.Error()})
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Failed to send OTP", "error": err.Error()})
	}

	resp := echo.Map{
		"message": "OTP sent successfully",
		"expiry":  issued.ExpiresAt.UnixMilli(),
	}
	if h.exposeCode {
		resp["otp"] = issued.Code
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) VerifyOTP(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid request body", "verified": false})
	}

	err := h.svc.Verify(c.Request().Context(), req.Email, req.OTP)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"message": "OTP verified successfully", "verified": true})
	case errors.Is(err, ErrCodeRequired),
		errors.Is(err, ErrCodeNotFound),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrCodeMismatch),
		errors.Is(err, ErrTooManyAttempts):
		return c.JSON(http.StatusBadRequest, echo.Map{"message": err.Error(), "verified": false})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Failed to verify OTP", "error": err.Error()})
	}
}
