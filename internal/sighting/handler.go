package sighting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"honkspotter/internal/auth"
	"honkspotter/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Store interface {
	List(ctx context.Context, userID string) ([]Sighting, error)
	Create(ctx context.Context, s Sighting, authorID string) error
	AuthorByEmail(ctx context.Context, email string) (Author, error)
}

type Handler struct {
	store    Store
	security *observability.Logger
	debug    *observability.Logger
	now      func() time.Time
}

func NewHandler(store Store, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handler{
		store:    store,
		security: logger.Channel(observability.ChannelSecurity),
		debug:    logger.Channel(observability.ChannelDebug),
		now:      time.Now,
	}
}

type submitResponse struct {
	Msg      string   `json:"msg"`
	Sighting Sighting `json:"sighting"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID != "" {
		parsed, err := uuid.Parse(userID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user_id format")
			return
		}
		userID = parsed.String()
	}

	sightings, err := h.store.List(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "list_sightings_failed", err)
		return
	}

	h.debug.Debug("sightings_listed", map[string]any{"count": len(sightings), "user_id": userID})
	writeJSON(w, http.StatusOK, map[string]any{"sightings": sightings})
}

// Submit must be mounted behind auth.Middleware.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing JWT")
		return
	}
	ip := observability.ClientIP(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var input Input
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	clean, coords, err := input.Validate()
	if err != nil {
		h.security.Warn("sighting_rejected", map[string]any{"ip": ip, "reason": err.Error()})
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	author, err := h.store.AuthorByEmail(r.Context(), claims.Identity)
	if err != nil {
		if errors.Is(err, ErrAuthorNotFound) {
			h.security.Warn("sighting_author_missing", map[string]any{"ip": ip})
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.internalError(w, r, "sighting_author_lookup_failed", err)
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		h.internalError(w, r, "sighting_id_failed", err)
		return
	}

	sighting := Sighting{
		ID:        id.String(),
		Name:      clean.Name,
		Notes:     clean.Notes,
		Coords:    coords,
		Image:     clean.Image,
		User:      &author,
		CreatedAt: h.now().UTC(),
	}
	if err := h.store.Create(r.Context(), sighting, author.ID); err != nil {
		h.internalError(w, r, "sighting_create_failed", err)
		return
	}

	h.security.Info("sighting_submitted", map[string]any{"ip": ip, "sighting_id": sighting.ID})
	writeJSON(w, http.StatusCreated, submitResponse{
		Msg:      "Successfully submitted goose sighting",
		Sighting: sighting,
	})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, event string, err error) {
	observability.CaptureError(h.debug, event, err, map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
