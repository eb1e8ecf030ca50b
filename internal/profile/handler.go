package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"honkspotter/internal/auth"
	"honkspotter/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Store interface {
	Update(ctx context.Context, email string, update Update, now time.Time) (Profile, error)
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

// Update must be mounted behind auth.Middleware. Access tokens issued
// before the change keep the old profile claims until they are refreshed.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing JWT")
		return
	}
	ip := observability.ClientIP(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var body Update
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	update, err := body.Normalize()
	if err != nil {
		h.security.Warn("profile_update_rejected", map[string]any{"ip": ip, "reason": err.Error()})
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := h.store.Update(r.Context(), claims.Identity, update, h.now())
	switch {
	case errors.Is(err, ErrUserNotFound):
		h.security.Warn("profile_update_user_missing", map[string]any{"ip": ip})
		writeError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already taken")
		return
	case err != nil:
		observability.CaptureError(h.debug, "profile_update_failed", err, map[string]any{"path": r.URL.Path})
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.security.Info("profile_updated", map[string]any{"ip": ip})
	writeJSON(w, http.StatusOK, map[string]any{
		"msg":  "Profile updated successfully",
		"user": profile,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
