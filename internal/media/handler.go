package media

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"honkspotter/internal/observability"
)

const (
	maxImageBytes = 5 << 20
	// multipart framing on top of the image itself
	maxUploadBodyBytes = maxImageBytes + 1<<20
	publicIDPrefix     = "honkspotter/"
)

type Storage interface {
	Upload(ctx context.Context, upload Upload) (StoredImage, error)
	Destroy(ctx context.Context, publicID string) error
}

type ImageStore interface {
	Create(ctx context.Context, image Image) error
	Get(ctx context.Context, id string) (Image, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	images  ImageStore
	storage Storage
	logger  *observability.Logger
	now     func() time.Time
}

// NewHandler accepts a nil storage; upload and delete then answer 503.
func NewHandler(images ImageStore, storage Storage, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handler{
		images:  images,
		storage: storage,
		logger:  logger.Channel(observability.ChannelDebug),
		now:     time.Now,
	}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "image storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too big, max size 5MB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file part")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no selected file")
		return
	}
	ext, ok := Extension(header.Filename)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid file type")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "file is empty")
		return
	}
	if len(data) > maxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too big, max size 5MB")
		return
	}

	clean, contentType, err := Sanitize(data, ext)
	if err != nil {
		h.logger.Debug("image_rejected", map[string]any{"reason": err.Error()})
		writeError(w, http.StatusBadRequest, "could not process image")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		h.internalError(w, "image_id_failed", err)
		return
	}

	stored, err := h.storage.Upload(r.Context(), Upload{
		Data:        clean,
		Filename:    id.String() + "." + ext,
		PublicID:    publicIDPrefix + id.String(),
		ContentType: contentType,
	})
	if err != nil {
		h.logger.Error("image_upload_failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusBadGateway, "failed to upload image")
		return
	}

	image := Image{ID: id.String(), URL: stored.URL, PublicID: stored.PublicID, CreatedAt: h.now().UTC()}
	if err := h.images.Create(r.Context(), image); err != nil {
		if destroyErr := h.storage.Destroy(r.Context(), stored.PublicID); destroyErr != nil {
			h.logger.Error("image_rollback_failed", map[string]any{"public_id": stored.PublicID, "error": destroyErr.Error()})
		}
		h.internalError(w, "image_record_failed", err)
		return
	}

	h.logger.Debug("image_uploaded", map[string]any{"image_id": image.ID, "bytes": len(clean)})
	writeJSON(w, http.StatusCreated, map[string]string{"id": image.ID})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	image, err := h.images.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		h.internalError(w, "image_lookup_failed", err)
		return
	}

	http.Redirect(w, r, image.URL, http.StatusFound)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "image storage is not configured")
		return
	}

	id, ok := imageID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	image, err := h.images.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		h.internalError(w, "image_lookup_failed", err)
		return
	}

	if err := h.storage.Destroy(r.Context(), image.PublicID); err != nil {
		h.logger.Error("image_destroy_failed", map[string]any{"image_id": id, "error": err.Error()})
		writeError(w, http.StatusBadGateway, "failed to delete image")
		return
	}

	if err := h.images.Delete(r.Context(), id); err != nil && !errors.Is(err, ErrImageNotFound) {
		h.internalError(w, "image_delete_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Image deleted successfully"})
}

func (h *Handler) internalError(w http.ResponseWriter, event string, err error) {
	observability.CaptureError(h.logger, event, err, nil)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func imageID(r *http.Request) (string, bool) {
	parsed, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
