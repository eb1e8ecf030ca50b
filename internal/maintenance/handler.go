package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"honkspotter/internal/media"
	"honkspotter/internal/observability"
)

type OrphanStore interface {
	ListOrphans(ctx context.Context, cutoff time.Time, limit int) ([]media.Image, error)
	Delete(ctx context.Context, id string) error
}

type AssetDestroyer interface {
	Destroy(ctx context.Context, publicID string) error
}

type CleanupResult struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

type CleanupHandler struct {
	images     OrphanStore
	assets     AssetDestroyer
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
	batchSize  int
	now        func() time.Time
}

func NewCleanupHandler(
	images OrphanStore,
	assets AssetDestroyer,
	logger *observability.Logger,
	cronSecret string,
	retention time.Duration,
	batchSize int,
) *CleanupHandler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &CleanupHandler{
		images:     images,
		assets:     assets,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	if h.assets == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "image storage is not configured"})
		return
	}

	result, err := h.cleanupOrphanImages(r.Context())
	if err != nil {
		observability.CaptureError(h.logger, "image_cleanup_failed", err, nil)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("image_cleanup_completed", map[string]any{
		"scanned": result.Scanned,
		"deleted": result.Deleted,
		"failed":  result.Failed,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

// cleanupOrphanImages destroys the remote asset before the row so a failed
// destroy leaves the row for the next run.
func (h *CleanupHandler) cleanupOrphanImages(ctx context.Context) (CleanupResult, error) {
	orphans, err := h.images.ListOrphans(ctx, h.now().Add(-h.retention), h.batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	result := CleanupResult{Scanned: len(orphans)}
	for _, image := range orphans {
		if err := h.assets.Destroy(ctx, image.PublicID); err != nil {
			result.Failed++
			h.logger.Warn("image_destroy_failed", map[string]any{"image_id": image.ID, "error": err.Error()})
			continue
		}
		if err := h.images.Delete(ctx, image.ID); err != nil && !errors.Is(err, media.ErrImageNotFound) {
			result.Failed++
			h.logger.Warn("image_row_delete_failed", map[string]any{"image_id": image.ID, "error": err.Error()})
			continue
		}
		result.Deleted++
	}

	return result, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
