package blobstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newTestStore(now time.Time) *MemoryStore {
	s := NewMemoryStore("http://localhost:8000/")
	s.now = func() time.Time { return now }
	return s
}

func queryOf(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.Query()
}

func TestProfileImageKey(t *testing.T) {
	a := ProfileImageKey("user-1")
	b := ProfileImageKey("user-1")
	if !strings.HasPrefix(a, "profiles/user-1/") {
		t.Errorf("expected profiles/user-1/ prefix, got %q", a)
	}
	if a == b {
		t.Error("expected distinct keys per call")
	}
}

func TestMemoryStore_PresignUpload(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newTestStore(now)

	raw, err := s.PresignUpload(context.Background(), "profiles/u/1", "image/png", 15*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(raw, "http://localhost:8000/blobs?") {
		t.Errorf("expected url under base, got %q", raw)
	}
	q := queryOf(t, raw)
	if q.Get("key") != "profiles/u/1" {
		t.Errorf("expected key profiles/u/1, got %q", q.Get("key"))
	}
	want := now.Add(15 * time.Minute).Unix()
	if got := q.Get("expires"); got != strconv.FormatInt(want, 10) {
		t.Errorf("expected expires %d, got %s", want, got)
	}

	if _, err := s.PresignUpload(context.Background(), "k", "application/pdf", time.Minute); err != ErrInvalidContentType {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
}

func TestMemoryStore_PutExistsDelete(t *testing.T) {
	s := NewMemoryStore("")
	ctx := context.Background()

	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Fatal("expected key to be absent")
	}
	if _, err := s.PresignDownload(ctx, "k", time.Minute); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}

	if err := s.Put("k", "image/jpeg", strings.NewReader("jpeg-bytes")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := s.Exists(ctx, "k"); !ok {
		t.Fatal("expected key to exist")
	}
	data, ct, err := s.Get("k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "jpeg-bytes" || ct != "image/jpeg" {
		t.Errorf("expected stored content, got %q %q", data, ct)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestMemoryStore_PutRejects(t *testing.T) {
	s := NewMemoryStore("")
	if err := s.Put("k", "text/plain", strings.NewReader("x")); err != ErrInvalidContentType {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
	big := strings.NewReader(strings.Repeat("a", MaxImageSize+1))
	if err := s.Put("k", "image/png", big); err != ErrFileTooLarge {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestMemoryStore_HTTPRoundTrip(t *testing.T) {
	now := time.Now()
	s := newTestStore(now)
	e := echo.New()
	s.RegisterRoutes(e.Group(""))

	uploadURL, _ := s.PresignUpload(context.Background(), "profiles/u/2", "image/png", time.Minute)
	u, _ := url.Parse(uploadURL)

	req := httptest.NewRequest(http.MethodPut, "/blobs?"+u.RawQuery, strings.NewReader("png-bytes"))
	req.Header.Set(echo.HeaderContentType, "image/png")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on upload, got %d: %s", rec.Code, rec.Body.String())
	}

	downloadURL, err := s.PresignDownload(context.Background(), "profiles/u/2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, _ = url.Parse(downloadURL)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blobs?"+u.RawQuery, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on download, got %d", rec.Code)
	}
	if rec.Body.String() != "png-bytes" {
		t.Errorf("expected png-bytes, got %q", rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
}

func TestMemoryStore_ExpiredLink(t *testing.T) {
	start := time.Now()
	s := newTestStore(start)
	e := echo.New()
	s.RegisterRoutes(e.Group(""))

	uploadURL, _ := s.PresignUpload(context.Background(), "k", "image/png", time.Minute)
	u, _ := url.Parse(uploadURL)

	s.now = func() time.Time { return start.Add(2 * time.Minute) }
	req := httptest.NewRequest(http.MethodPut, "/blobs?"+u.RawQuery, strings.NewReader("x"))
	req.Header.Set(echo.HeaderContentType, "image/png")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for expired link, got %d", rec.Code)
	}
}

func TestMemoryStore_UploadMissingKey(t *testing.T) {
	s := NewMemoryStore("")
	e := echo.New()
	s.RegisterRoutes(e.Group(""))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/blobs", strings.NewReader("x")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
