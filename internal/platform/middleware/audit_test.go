package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardwatch/wardwatch/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newAuditContext(method, path string, sess *auth.Session) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	if sess != nil {
		req = req.WithContext(auth.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAudit_RecordsPatientAccess(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{}
	doctorID := uuid.New()
	patientID := uuid.New()

	c, _ := newAuditContext(http.MethodPut, "/api/v1/patients/"+patientID.String()+"/status",
		&auth.Session{UserID: doctorID, Capability: auth.CapabilityDoctor})
	c.Set("request_id", "req-7")

	err := Audit(zerolog.New(&buf), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", rec.count())
	}
	entry := rec.entries[0]
	if entry.UserID != doctorID.String() {
		t.Errorf("expected user %s, got %s", doctorID, entry.UserID)
	}
	if entry.PatientID != patientID.String() {
		t.Errorf("expected patient %s, got %s", patientID, entry.PatientID)
	}
	if entry.Action != "update" || entry.Resource != "patients" {
		t.Errorf("expected update on patients, got %s on %s", entry.Action, entry.Resource)
	}
	if entry.Capability != "doctor" || entry.RequestID != "req-7" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if !strings.Contains(buf.String(), `"message":"patient_data_access"`) {
		t.Errorf("expected structured audit log, got %s", buf.String())
	}
}

func TestAudit_SkipsUnauthenticatedAndOtherPaths(t *testing.T) {
	rec := &mockRecorder{}
	mw := Audit(zerolog.Nop(), rec)
	handler := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	c, _ := newAuditContext(http.MethodPost, "/api/v1/auth/login", nil)
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ = newAuditContext(http.MethodGet, "/health", &auth.Session{UserID: uuid.New()})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.count() != 0 {
		t.Errorf("expected no audit entries, got %d", rec.count())
	}
}

func TestAudit_RecorderErrorDoesNotFailRequest(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{err: errors.New("disk full")}
	c, _ := newAuditContext(http.MethodGet, "/api/v1/patients", &auth.Session{UserID: uuid.New()})

	err := Audit(zerolog.New(&buf), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("expected request to succeed, got %v", err)
	}
	if !strings.Contains(buf.String(), "failed to record audit entry") {
		t.Errorf("expected recorder failure to be logged, got %s", buf.String())
	}
}

func TestExtractPatientID(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/patients/" + id, id},
		{"/api/v1/patients/" + id + "/readings", id},
		{"/api/v1/patients/stats", ""},
		{"/api/v1/profile", ""},
	}
	for _, tt := range tests {
		if got := extractPatientID(tt.path); got != tt.want {
			t.Errorf("extractPatientID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestHTTPMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "read",
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("httpMethodToAction(%s) = %s, want %s", method, got, want)
		}
	}
}
