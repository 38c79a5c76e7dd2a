package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wardwatch/wardwatch/internal/domain/vitals"
	"github.com/wardwatch/wardwatch/internal/platform/auth"
	"github.com/wardwatch/wardwatch/internal/platform/validate"
	"github.com/wardwatch/wardwatch/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts doctor routes on api and the cross-doctor view on
// admin. Both groups already carry session middleware.
func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.POST("/patients", h.AddPatient)
	api.GET("/patients/stats", h.Stats)
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.PUT("/patients/:id/active-status", h.UpdateActiveStatus)
	api.DELETE("/patients/:id", h.DeletePatient)

	if admin != nil {
		admin.GET("/doctors/:id/patients", h.ListDoctorPatients)
	}
}

// AddRequest is the body of POST /patients.
type AddRequest struct {
	Patient Fields        `json:"patient"`
	Reading vitals.Fields `json:"reading"`
}

type activeStatusRequest struct {
	ActiveStatus ActiveStatus `json:"activeStatus" validate:"oneof=Active Discharged" msg:"Status must be Active or Discharged"`
}

func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Message)
	case errors.Is(err, ErrNotFound), errors.Is(err, vitals.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrDischarged), errors.Is(err, ErrNotDischarged):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, vitals.ErrEmptyFields), errors.Is(err, vitals.ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
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

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) list(c echo.Context, doctorID uuid.UUID) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), doctorID,
		ActiveStatus(c.QueryParam("status")), Range(c.QueryParam("range")), c.QueryParam("q"),
		pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Path(), c.QueryParams()))
}

func (h *Handler) ListPatients(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	return h.list(c, sess.UserID)
}

func (h *Handler) ListDoctorPatients(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	return h.list(c, doctorID)
}

func (h *Handler) AddPatient(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req AddRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.AddPatient(c.Request().Context(), sess.UserID, req.Patient, req.Reading)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !sess.CanAccessDoctor(p.DoctorID) {
		return httpError(ErrNotFound)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var f Fields
	if err := validate.Bind(c, &f); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), sess.UserID, id, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateActiveStatus(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req activeStatusRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.UpdateActiveStatus(c.Request().Context(), sess.UserID, id, req.ActiveStatus)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), sess.UserID, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Stats(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Stats(c.Request().Context(), sess.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}
