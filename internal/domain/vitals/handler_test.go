package vitals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardwatch/wardwatch/internal/platform/auth"
	"github.com/wardwatch/wardwatch/internal/platform/validate"
	"github.com/wardwatch/wardwatch/internal/platform/websocket"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(f.svc), f, e
}

func withSession(req *http.Request, userID uuid.UUID, capability auth.Capability) *http.Request {
	sess := &auth.Session{UserID: userID, Capability: capability}
	return req.WithContext(auth.ContextWithSession(req.Context(), sess))
}

func TestHandler_AddReading(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"heartRate":72,"bloodPressure":"120/80","oxygen":98,"temperature":98.6,"status":"Normal"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = withSession(req, f.doctorID, auth.CapabilityDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patient.ID.String())

	if err := h.AddReading(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var r Reading
	json.Unmarshal(rec.Body.Bytes(), &r)
	if r.BloodPressure != "120/80" {
		t.Errorf("expected blood pressure 120/80, got %q", r.BloodPressure)
	}
}

func TestHandler_AddReading_EmptyFields(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"heartRate":72,"bloodPressure":"","oxygen":98,"temperature":98.6,"status":"Normal"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = withSession(req, f.doctorID, auth.CapabilityDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patient.ID.String())

	err := h.AddReading(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
	if he.Message != ErrEmptyFields.Error() {
		t.Errorf("expected %q, got %v", ErrEmptyFields.Error(), he.Message)
	}
}

func TestHandler_ListReadings_Access(t *testing.T) {
	tests := []struct {
		name       string
		sameDoctor bool
		capability auth.Capability
		wantCode   int
	}{
		{"owner", true, auth.CapabilityDoctor, http.StatusOK},
		{"admin", false, auth.CapabilityAdmin, http.StatusOK},
		{"other doctor", false, auth.CapabilityDoctor, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, f, e := newTestHandler()
			f.svc.AddReading(context.Background(), f.doctorID, f.patient.ID, normalFields())

			user := uuid.New()
			if tt.sameDoctor {
				user = f.doctorID
			}
			req := withSession(httptest.NewRequest(http.MethodGet, "/", nil), user, tt.capability)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues(f.patient.ID.String())

			err := h.ListReadings(c)
			code := rec.Code
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, code)
			}
		})
	}
}

func TestHandler_LatestReading_NoData(t *testing.T) {
	h, f, e := newTestHandler()
	req := withSession(httptest.NewRequest(http.MethodGet, "/", nil), f.doctorID, auth.CapabilityDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patient.ID.String())

	err := h.LatestReading(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_UpdateReading_Discharged(t *testing.T) {
	h, f, e := newTestHandler()
	r, _ := f.svc.AddReading(context.Background(), f.doctorID, f.patient.ID, normalFields())
	f.patient.Discharged = true

	body := `{"heartRate":80,"bloodPressure":"110/70","oxygen":97,"temperature":98.4,"status":"Normal"}`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = withSession(req, f.doctorID, auth.CapabilityDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())

	err := h.UpdateReading(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_NoSession(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.ListReadings(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

type recordingPublisher struct {
	msgs []websocket.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg websocket.Message) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestPublishChanges(t *testing.T) {
	f := newFixture()
	pub := &recordingPublisher{}
	f.svc.OnChange(PublishChanges(pub, zerolog.Nop()))

	f.svc.AddReading(context.Background(), f.doctorID, f.patient.ID, normalFields())

	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.Type != websocket.TypeReadingChanged {
		t.Errorf("expected type %s, got %s", websocket.TypeReadingChanged, msg.Type)
	}
	if msg.Topic != websocket.PatientTopic(f.patient.ID) {
		t.Errorf("expected topic %s, got %s", websocket.PatientTopic(f.patient.ID), msg.Topic)
	}
}
