package alerting

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/wardwatch/wardwatch/internal/domain/patient"
	"github.com/wardwatch/wardwatch/internal/domain/vitals"
	"github.com/wardwatch/wardwatch/internal/platform/auth"
	"github.com/wardwatch/wardwatch/internal/platform/notification"
	"github.com/wardwatch/wardwatch/internal/platform/validate"
	"github.com/wardwatch/wardwatch/pkg/pagination"
)

type Handler struct {
	svc        *Service
	dispatcher Dispatcher
}

func NewHandler(svc *Service, dispatcher Dispatcher) *Handler {
	return &Handler{svc: svc, dispatcher: dispatcher}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.PUT("/patients/:id/status", h.ChangeStatus)
	api.GET("/patients/:id/notifications", h.ListLogs)
}

// RegisterRelay mounts the unauthenticated notification relay. limiter
// keeps it from being used as an open mail relay.
func (h *Handler) RegisterRelay(public *echo.Group, limiter echo.MiddlewareFunc) {
	if limiter != nil {
		public.POST("/send-notification", h.Relay, limiter)
		return
	}
	public.POST("/send-notification", h.Relay)
}

type statusRequest struct {
	Status vitals.Status `json:"status" validate:"oneof=Normal Critical" msg:"Status must be Normal or Critical"`
}

func httpError(err error) error {
	switch {
	case errors.Is(err, patient.ErrNotFound), errors.Is(err, vitals.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, patient.ErrNotFound.Error())
	case errors.Is(err, vitals.ErrNoHealthData), errors.Is(err, vitals.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, vitals.ErrNoHealthData.Error())
	case errors.Is(err, ErrDischarged), errors.Is(err, vitals.ErrDischarged):
		return echo.NewHTTPError(http.StatusConflict, ErrDischarged.Error())
	case errors.Is(err, vitals.ErrInvalidStatus):
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

func (h *Handler) ChangeStatus(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.ChangeStatus(c.Request().Context(), sess.UserID, id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListLogs(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.Patient(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if !sess.CanAccessDoctor(p.DoctorID) {
		return httpError(patient.ErrNotFound)
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListLogs(ctx, id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*NotificationLog{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Path(), c.QueryParams()))
}

// RelayRequest is the body of POST /api/send-notification.
type RelayRequest struct {
	PatientName  string `json:"patientName"`
	PatientPhone string `json:"patientPhone"`
	FamilyEmail  string `json:"familyEmail"`
	FamilyPhone  string `json:"familyPhone"`
	NewStatus    string `json:"newStatus"`
	OldStatus    string `json:"oldStatus"`
	Timestamp    string `json:"timestamp"`
}

type relayResponse struct {
	Success     bool                   `json:"success"`
	Results     notification.Outcome   `json:"results"`
	MethodsUsed []notification.Channel `json:"methodsUsed"`
	Message     string                 `json:"message"`
}

// Relay sends a status notification for a caller that already knows the
// recipients. Delivery failures are reported per channel with a 200.
func (h *Handler) Relay(c echo.Context) error {
	var req RelayRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
	}
	if req.PatientName == "" || req.NewStatus == "" || req.OldStatus == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
	}

	out, err := h.dispatcher.Dispatch(c.Request().Context(), notification.Request{
		TemplateID: notification.TransitionTemplate(req.OldStatus, req.NewStatus),
		Data: map[string]string{
			"patient_name":  req.PatientName,
			"patient_phone": req.PatientPhone,
			"old_status":    req.OldStatus,
			"new_status":    req.NewStatus,
			"time":          req.Timestamp,
		},
		EmailTo: strings.TrimSpace(req.FamilyEmail),
		SMSTo:   strings.TrimSpace(req.FamilyPhone),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	methods := out.Delivered()
	if methods == nil {
		methods = []notification.Channel{}
	}
	msg := "No contact info"
	if len(out.Attempted()) > 0 {
		msg = "Sent via: " + strings.Join(lo.Map(methods, func(ch notification.Channel, _ int) string {
			return string(ch)
		}), ", ")
	}
	return c.JSON(http.StatusOK, relayResponse{
		Success:     true,
		Results:     out,
		MethodsUsed: methods,
		Message:     msg,
	})
}
