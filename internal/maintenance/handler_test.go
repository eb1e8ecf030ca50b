package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honkspotter/internal/media"
)

type fakeOrphans struct {
	images  []media.Image
	deleted []string
	cutoff  time.Time
	limit   int
	listErr error
}

func (f *fakeOrphans) ListOrphans(_ context.Context, cutoff time.Time, limit int) ([]media.Image, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.images, f.listErr
}

func (f *fakeOrphans) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeAssets struct {
	fail      map[string]bool
	destroyed []string
}

func (f *fakeAssets) Destroy(_ context.Context, publicID string) error {
	if f.fail[publicID] {
		return errors.New("cloudinary unavailable")
	}
	f.destroyed = append(f.destroyed, publicID)
	return nil
}

func cleanupRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestCleanupHandler_Authorization(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		method string
		token  string
		status int
	}{
		{name: "disabled without secret", secret: "", method: http.MethodPost, token: "x", status: http.StatusNotFound},
		{name: "missing token", secret: "s3cret", method: http.MethodPost, status: http.StatusUnauthorized},
		{name: "wrong token", secret: "s3cret", method: http.MethodPost, token: "nope", status: http.StatusUnauthorized},
		{name: "wrong method", secret: "s3cret", method: http.MethodDelete, token: "s3cret", status: http.StatusMethodNotAllowed},
		{name: "get allowed", secret: "s3cret", method: http.MethodGet, token: "s3cret", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCleanupHandler(&fakeOrphans{}, &fakeAssets{}, nil, tt.secret, time.Hour, 10)

			req := cleanupRequest(tt.token)
			req.Method = tt.method
			rec := httptest.NewRecorder()
			h.Handle(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCleanupHandler_DeletesOrphans(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	orphans := &fakeOrphans{images: []media.Image{
		{ID: "a", PublicID: "honkspotter/a"},
		{ID: "b", PublicID: "honkspotter/b"},
		{ID: "c", PublicID: "honkspotter/c"},
	}}
	assets := &fakeAssets{fail: map[string]bool{"honkspotter/b": true}}

	h := NewCleanupHandler(orphans, assets, nil, "s3cret", 24*time.Hour, 50)
	h.now = func() time.Time { return now }

	rec := httptest.NewRecorder()
	h.Handle(rec, cleanupRequest("s3cret"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string        `json:"status"`
		Result CleanupResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CleanupResult{Scanned: 3, Deleted: 2, Failed: 1}, body.Result)

	assert.Equal(t, []string{"a", "c"}, orphans.deleted, "rows whose asset could not be destroyed are kept")
	assert.Equal(t, []string{"honkspotter/a", "honkspotter/c"}, assets.destroyed)
	assert.True(t, now.Add(-24*time.Hour).Equal(orphans.cutoff))
	assert.Equal(t, 50, orphans.limit)
}

func TestCleanupHandler_Failures(t *testing.T) {
	t.Run("list error", func(t *testing.T) {
		h := NewCleanupHandler(&fakeOrphans{listErr: errors.New("db down")}, &fakeAssets{}, nil, "s3cret", time.Hour, 10)
		rec := httptest.NewRecorder()
		h.Handle(rec, cleanupRequest("s3cret"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "db down")
	})

	t.Run("storage not configured", func(t *testing.T) {
		h := NewCleanupHandler(&fakeOrphans{}, nil, nil, "s3cret", time.Hour, 10)
		rec := httptest.NewRecorder()
		h.Handle(rec, cleanupRequest("s3cret"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
