package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wardwatch/wardwatch/internal/platform/auth"
	"github.com/wardwatch/wardwatch/internal/platform/blobstore"
	"github.com/wardwatch/wardwatch/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the sign-in flows. limiter guards the
// endpoints that send email or check passwords.
func (h *Handler) RegisterPublicRoutes(public *echo.Group, limiter echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if limiter != nil {
		mw = append(mw, limiter)
	}
	public.POST("/auth/register", h.Register)
	public.POST("/auth/login", h.Login, mw...)
	public.POST("/auth/password-reset", h.RequestPasswordReset, mw...)
	public.POST("/auth/password-reset/confirm", h.ConfirmPasswordReset, mw...)
}

// RegisterRoutes mounts the signed-in routes. tokenOnly carries JWT
// verification without session resolution so logout works after the
// profile is gone.
func (h *Handler) RegisterRoutes(tokenOnly, api, admin *echo.Group) {
	tokenOnly.POST("/auth/logout", h.Logout)

	api.GET("/profile", h.GetProfile)
	api.PUT("/profile", h.UpdateProfile)
	api.PUT("/profile/password", h.ChangePassword)
	api.DELETE("/profile", h.DeleteAccount)
	api.POST("/profile/image/upload-url", h.ImageUploadURL)
	api.PUT("/profile/image", h.SetImage)
	api.GET("/profile/image", h.GetImage)

	if admin != nil {
		admin.GET("/doctors", h.SearchDoctors)
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoProfileImage):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotVerified),
		errors.Is(err, ErrWrongPassword),
		errors.Is(err, ErrInvalidResetToken),
		errors.Is(err, ErrImageNotUploaded),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, blobstore.ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrImagesDisabled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func session(c echo.Context) (*auth.Session, error) {
	sess := auth.SessionFromContext(c.Request().Context())
	if sess == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "no active session")
	}
	return sess, nil
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := validate.Bind(c, &req); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Error())
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Logout(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrMissingToken.Error())
	}
	h.svc.Logout(p)
	return c.NoContent(http.StatusNoContent)
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email" msg:"Invalid email"`
}

type resetConfirmRequest struct {
	Token    string `json:"token" validate:"required" msg:"Reset token is required"`
	Password string `json:"password" validate:"required,min=6" msg:"Password must be at least 6 characters"`
}

func (h *Handler) RequestPasswordReset(c echo.Context) error {
	var req resetRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		c.Logger().Error(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "If an account exists for this email, a reset link has been sent."})
}

func (h *Handler) ConfirmPasswordReset(c echo.Context) error {
	var req resetConfirmRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ConfirmPasswordReset(c.Request().Context(), req.Token, req.Password); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password updated, please sign in again."})
}

func (h *Handler) GetProfile(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Profile(c.Request().Context(), sess.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var f ProfileFields
	if err := validate.Bind(c, &f); err != nil {
		return err
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), sess.UserID, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required" msg:"Current password is required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6" msg:"Password must be at least 6 characters"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request().Context(), sess.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type deleteAccountRequest struct {
	Password string `json:"password" validate:"required" msg:"Password is required"`
}

func (h *Handler) DeleteAccount(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req deleteAccountRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.DeleteAccount(c.Request().Context(), sess.UserID, req.Password); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchDoctors(c echo.Context) error {
	doctors, err := h.svc.SearchDoctors(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return httpError(err)
	}
	if doctors == nil {
		doctors = []*User{}
	}
	return c.JSON(http.StatusOK, echo.Map{"data": doctors, "total": len(doctors)})
}

type uploadURLRequest struct {
	ContentType string `json:"contentType"`
}

func (h *Handler) ImageUploadURL(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req uploadURLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ticket, err := h.svc.ImageUploadURL(c.Request().Context(), sess.UserID, req.ContentType)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ticket)
}

type setImageRequest struct {
	StorageID string `json:"storageId" validate:"required" msg:"storageId is required"`
}

func (h *Handler) SetImage(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req setImageRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	img, err := h.svc.SetImage(c.Request().Context(), sess.UserID, req.StorageID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, img)
}

func (h *Handler) GetImage(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	u, err := h.svc.ImageURL(c.Request().Context(), sess.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"url": u})
}
