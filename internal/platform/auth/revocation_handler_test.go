package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestEndSessions_RevokesAndPublishes(t *testing.T) {
	store := NewTokenRevocationStore()
	sessions := newTestSessions(newMockProfileLookup(), store)

	var got []Event
	sessions.Subscribe(func(ev Event) { got = append(got, ev) })

	userID := uuid.New()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(userID.String())

	if err := sessions.handleEndSessions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if len(got) != 1 || got[0].Kind != EventSignedOut || got[0].UserID != userID.String() {
		t.Errorf("expected one signed_out event for %s, got %+v", userID, got)
	}

	old := &Principal{Subject: userID.String(), IssuedAt: time.Now().Add(-time.Minute)}
	if !store.IsRevoked(old) {
		t.Error("expected tokens issued before the call to be revoked")
	}
}

func TestEndSessions_InvalidID(t *testing.T) {
	sessions := newTestSessions(newMockProfileLookup(), NewTokenRevocationStore())

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := sessions.handleEndSessions(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestRevocationStats(t *testing.T) {
	store := NewTokenRevocationStore()
	store.Revoke("a", time.Now().Add(time.Hour))
	store.Revoke("b", time.Now().Add(time.Hour))
	sessions := newTestSessions(newMockProfileLookup(), store)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := sessions.handleRevocationStats(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body revocationStatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RevokedTokens != 2 {
		t.Errorf("expected 2 revoked tokens, got %d", body.RevokedTokens)
	}
}
