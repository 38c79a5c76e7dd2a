package contact

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardwatch/wardwatch/internal/platform/notification"
)

func newTestHandler(email notification.EmailSender) *Handler {
	d := notification.NewDispatcher(email, nil, notification.NewTemplateEngine(), "+91", zerolog.Nop())
	return NewHandler(d, "support@wardwatch.example", zerolog.Nop())
}

func post(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Submit(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestSubmit(t *testing.T) {
	sender := &notification.MockEmailSender{}
	h := newTestHandler(sender)

	rec, out := post(t, h, `{"name":"Ravi Kumar","email":"ravi@example.com","message":"Please call me back."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if out["success"] != true {
		t.Errorf("expected success, got %v", out)
	}
	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if calls[0].To != "support@wardwatch.example" || calls[0].ReplyTo != "ravi@example.com" {
		t.Errorf("unexpected routing: to=%s reply-to=%s", calls[0].To, calls[0].ReplyTo)
	}
	if calls[0].Subject != "New Contact Form: Ravi Kumar" {
		t.Errorf("unexpected subject %q", calls[0].Subject)
	}
	if !strings.Contains(calls[0].Body, "Not provided") {
		t.Error("expected missing phone to read Not provided")
	}
}

func TestSubmit_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no name", `{"email":"ravi@example.com","message":"hi"}`},
		{"no email", `{"name":"Ravi","message":"hi"}`},
		{"blank message", `{"name":"Ravi","email":"ravi@example.com","message":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &notification.MockEmailSender{}
			rec, out := post(t, newTestHandler(sender), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if out["error"] != "Missing required fields" {
				t.Errorf("unexpected error %v", out["error"])
			}
			if len(sender.Calls()) != 0 {
				t.Error("expected nothing sent")
			}
		})
	}
}

func TestSubmit_TransportFailure(t *testing.T) {
	sender := &notification.MockEmailSender{ShouldFail: true, FailError: "dial tcp: connection refused"}
	rec, out := post(t, newTestHandler(sender), `{"name":"Ravi","email":"ravi@example.com","message":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(out["details"].(string), "connection refused") {
		t.Errorf("expected transport error in details, got %v", out["details"])
	}
}

func TestSubmit_Unconfigured(t *testing.T) {
	rec, _ := post(t, newTestHandler(nil), `{"name":"Ravi","email":"ravi@example.com","message":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
