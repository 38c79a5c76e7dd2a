// Package blobstore hands out short-lived presigned URLs for profile images.
// Clients upload and download directly against the backend; the service only
// records the storage id. Backends are MinIO, S3, and an in-memory store that
// serves its own upload/download endpoints for development and tests.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrLinkExpired        = errors.New("link has expired")
)

// MaxImageSize is the largest profile image accepted by the in-memory store (5 MB).
const MaxImageSize = 5 * 1024 * 1024

// AllowedContentTypes lists image MIME types accepted for profile pictures.
var AllowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

// Store is a blob backend able to mint presigned URLs.
type Store interface {
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// ProfileImageKey builds a fresh object key for a user's profile picture.
func ProfileImageKey(userID string) string {
	return "profiles/" + userID + "/" + uuid.NewString()
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	contentType string
	content     []byte
	createdAt   time.Time
}

// MemoryStore keeps blobs in a map and signs URLs that point back at its own
// HTTP handler, mounted under baseURL.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	baseURL string
	now     func() time.Time
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string]*storedBlob),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}
}

func (s *MemoryStore) PresignUpload(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if contentType != "" && !AllowedContentTypes[contentType] {
		return "", ErrInvalidContentType
	}
	return s.signedURL(key, ttl), nil
}

func (s *MemoryStore) PresignDownload(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrBlobNotFound
	}
	return s.signedURL(key, ttl), nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Put stores content under key.
func (s *MemoryStore) Put(key, contentType string, content io.Reader) error {
	if !AllowedContentTypes[contentType] {
		return ErrInvalidContentType
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxImageSize+1))
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	if len(data) > MaxImageSize {
		return ErrFileTooLarge
	}

	s.mu.Lock()
	s.blobs[key] = &storedBlob{contentType: contentType, content: data, createdAt: s.now().UTC()}
	s.mu.Unlock()
	return nil
}

// Get returns the content and content type stored under key.
func (s *MemoryStore) Get(key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	return b.content, b.contentType, nil
}

func (s *MemoryStore) signedURL(key string, ttl time.Duration) string {
	q := url.Values{}
	q.Set("key", key)
	q.Set("expires", strconv.FormatInt(s.now().Add(ttl).Unix(), 10))
	return s.baseURL + "/blobs?" + q.Encode()
}

func (s *MemoryStore) checkExpiry(raw string) error {
	exp, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ErrLinkExpired
	}
	if s.now().Unix() > exp {
		return ErrLinkExpired
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP handler for the in-memory store
// ---------------------------------------------------------------------------

// RegisterRoutes mounts the upload/download endpoints the memory store signs for.
func (s *MemoryStore) RegisterRoutes(g *echo.Group) {
	g.PUT("/blobs", s.handleUpload)
	g.GET("/blobs", s.handleDownload)
}

func (s *MemoryStore) handleUpload(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "key is required"})
	}
	if err := s.checkExpiry(c.QueryParam("expires")); err != nil {
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	}

	err := s.Put(key, c.Request().Header.Get(echo.HeaderContentType), c.Request().Body)
	if err != nil {
		switch {
		case errors.Is(err, ErrFileTooLarge):
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrInvalidContentType):
			return c.JSON(http.StatusUnsupportedMediaType, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.NoContent(http.StatusOK)
}

func (s *MemoryStore) handleDownload(c echo.Context) error {
	if err := s.checkExpiry(c.QueryParam("expires")); err != nil {
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	}
	data, contentType, err := s.Get(c.QueryParam("key"))
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.Stream(http.StatusOK, contentType, bytes.NewReader(data))
}
