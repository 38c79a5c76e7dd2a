package alerting

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

	"github.com/wardwatch/wardwatch/internal/domain/patient"
	"github.com/wardwatch/wardwatch/internal/domain/vitals"
	"github.com/wardwatch/wardwatch/internal/platform/auth"
	"github.com/wardwatch/wardwatch/internal/platform/notification"
	"github.com/wardwatch/wardwatch/internal/platform/validate"
	"github.com/wardwatch/wardwatch/pkg/pagination"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(f.svc, f.svc.dispatcher), f, e
}

func withSession(req *http.Request, userID uuid.UUID, capability auth.Capability) *http.Request {
	sess := &auth.Session{UserID: userID, Capability: capability}
	return req.WithContext(auth.ContextWithSession(req.Context(), sess))
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func httpCode(t *testing.T, err error, rec *httptest.ResponseRecorder) int {
	t.Helper()
	if err == nil {
		return rec.Code
	}
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_ChangeStatus(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.addPatient(vitals.StatusNormal, nil)

	req := withSession(jsonRequest(http.MethodPut, `{"status":"Critical"}`), f.doctorID, auth.CapabilityDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.ChangeStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res Result
	json.Unmarshal(rec.Body.Bytes(), &res)
	if !res.Changed || !res.Notified || res.NewStatus != vitals.StatusCritical {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestHandler_ChangeStatus_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		setup    func(f *fixture) uuid.UUID
		expected int
	}{
		{"bad status", `{"status":"Stable"}`, func(f *fixture) uuid.UUID {
			return f.addPatient(vitals.StatusNormal, nil).ID
		}, http.StatusBadRequest},
		{"unknown patient", `{"status":"Critical"}`, func(f *fixture) uuid.UUID {
			return uuid.New()
		}, http.StatusNotFound},
		{"discharged", `{"status":"Critical"}`, func(f *fixture) uuid.UUID {
			return f.addPatient(vitals.StatusNormal, func(p *patient.Patient) { p.ActiveStatus = patient.Discharged }).ID
		}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, f, e := newTestHandler()
			id := tt.setup(f)
			req := withSession(jsonRequest(http.MethodPut, tt.body), f.doctorID, auth.CapabilityDoctor)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues(id.String())

			err := h.ChangeStatus(c)
			if code := httpCode(t, err, rec); code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, code)
			}
		})
	}
}

func TestHandler_ChangeStatus_NoSession(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, `{"status":"Critical"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	if code := httpCode(t, h.ChangeStatus(c), rec); code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
}

func TestHandler_ListLogs(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.addPatient(vitals.StatusNormal, nil)
	f.svc.ChangeStatus(context.Background(), f.doctorID, p.ID, vitals.StatusCritical)

	t.Run("owner", func(t *testing.T) {
		req := withSession(httptest.NewRequest(http.MethodGet, "/", nil), f.doctorID, auth.CapabilityDoctor)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(p.ID.String())

		if err := h.ListLogs(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var resp pagination.Response
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Total != 1 {
			t.Errorf("expected 1 log, got %d", resp.Total)
		}
	})

	t.Run("other doctor", func(t *testing.T) {
		req := withSession(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New(), auth.CapabilityDoctor)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(p.ID.String())

		if code := httpCode(t, h.ListLogs(c), rec); code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", code)
		}
	})

	t.Run("admin", func(t *testing.T) {
		req := withSession(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New(), auth.CapabilityAdmin)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(p.ID.String())

		if err := h.ListLogs(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func relay(t *testing.T, h *Handler, e *echo.Echo, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)
	if err := h.Relay(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHandler_Relay_MissingFields(t *testing.T) {
	h, _, e := newTestHandler()
	rec, out := relay(t, h, e, `{"patientName":"Asha Rao","newStatus":"Critical"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if out["error"] != "Missing required fields" {
		t.Errorf("expected missing fields error, got %v", out["error"])
	}
}

func TestHandler_Relay_BothChannels(t *testing.T) {
	h, f, e := newTestHandler()
	rec, out := relay(t, h, e, `{"patientName":"Asha Rao","patientPhone":"9876543210",
		"familyEmail":"family@example.com","familyPhone":"9123456780",
		"oldStatus":"Normal","newStatus":"Critical","timestamp":"09:30"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if out["success"] != true {
		t.Error("expected success true")
	}
	if out["message"] != "Sent via: email, sms" {
		t.Errorf("expected both channels, got %v", out["message"])
	}
	if len(f.email.Calls()) != 1 || len(f.sms.Calls()) != 1 {
		t.Errorf("expected 1 email and 1 sms, got %d and %d", len(f.email.Calls()), len(f.sms.Calls()))
	}
}

func TestHandler_Relay_NoContact(t *testing.T) {
	h, _, e := newTestHandler()
	rec, out := relay(t, h, e, `{"patientName":"Asha Rao","oldStatus":"Normal","newStatus":"Critical"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if out["message"] != "No contact info" {
		t.Errorf("expected no contact message, got %v", out["message"])
	}
	results := out["results"].(map[string]any)
	if results["email"] != nil || results["sms"] != nil {
		t.Errorf("expected null channel results, got %v", results)
	}
}

func TestHandler_Relay_EmailUnconfigured(t *testing.T) {
	e := echo.New()
	sms := &notification.MockSMSSender{}
	dispatcher := notification.NewDispatcher(nil, sms, notification.NewTemplateEngine(), "+91", zerolog.Nop())
	h := NewHandler(nil, dispatcher)

	rec, out := relay(t, h, e, `{"patientName":"Asha Rao","familyEmail":"family@example.com",
		"familyPhone":"9123456780","oldStatus":"Critical","newStatus":"Normal"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	results := out["results"].(map[string]any)
	email := results["email"].(map[string]any)
	if email["success"] != false || !strings.Contains(email["error"].(string), "SMTP credentials not configured") {
		t.Errorf("expected unconfigured email failure, got %v", email)
	}
	if out["message"] != "Sent via: sms" {
		t.Errorf("expected sms only, got %v", out["message"])
	}
}
