package vitals

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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

// RegisterRoutes mounts the reading endpoints on a group that already
// requires a resolved session.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/readings", h.ListReadings)
	api.GET("/patients/:id/readings/latest", h.LatestReading)
	api.POST("/patients/:id/readings", h.AddReading)
	api.PUT("/readings/:id", h.UpdateReading)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoHealthData):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDischarged), errors.Is(err, ErrNotLatest):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrEmptyFields), errors.Is(err, ErrInvalidStatus):
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

// visiblePatient parses :id and checks that the session may read it.
func (h *Handler) visiblePatient(c echo.Context, sess *auth.Session) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ref, err := h.svc.Patient(c.Request().Context(), id)
	if err != nil {
		return uuid.Nil, httpError(err)
	}
	if !sess.CanAccessDoctor(ref.DoctorID) {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, ErrPatientNotFound.Error())
	}
	return id, nil
}

func (h *Handler) ListReadings(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := h.visiblePatient(c, sess)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReadings(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Reading{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Path(), c.QueryParams()))
}

func (h *Handler) LatestReading(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := h.visiblePatient(c, sess)
	if err != nil {
		return err
	}
	r, err := h.svc.Latest(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) AddReading(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var f Fields
	if err := validate.Bind(c, &f); err != nil {
		return err
	}
	r, err := h.svc.AddReading(c.Request().Context(), sess.UserID, id, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateReading(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var f Fields
	if err := validate.Bind(c, &f); err != nil {
		return err
	}
	r, err := h.svc.UpdateReading(c.Request().Context(), sess.UserID, id, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}
