package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"honkspotter/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	cookies CookieConfig
	logger  *observability.Logger
	now     func() time.Time
}

func NewHandler(service *Service, cookies CookieConfig, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handler{
		service: service,
		cookies: cookies,
		logger:  logger.Channel(observability.ChannelDebug),
		now:     time.Now,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r = withClientIP(r)

	body, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.cookies.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: session.AccessToken})
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	r = withClientIP(r)

	body, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.service.Signup(r.Context(), body.Email, body.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.cookies.setSessionCookies(w, session)
	writeJSON(w, http.StatusCreated, tokenResponse{AccessToken: session.AccessToken})
}

// Refresh checks the double-submit pair (cookie and header) before the token
// itself is looked at.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	r = withClientIP(r)

	refreshCookie, err := r.Cookie(RefreshCookieName)
	if err != nil || refreshCookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	csrfHeader := r.Header.Get(CSRFHeaderName)
	csrfCookie, err := r.Cookie(CSRFCookieName)
	if err != nil || csrfHeader == "" ||
		subtle.ConstantTimeCompare([]byte(csrfHeader), []byte(csrfCookie.Value)) != 1 {
		writeError(w, http.StatusUnauthorized, "CSRF token mismatch")
		return
	}

	session, err := h.service.Refresh(r.Context(), refreshCookie.Value, csrfHeader)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.cookies.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: session.AccessToken})
}

// Logout must be mounted behind Middleware.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	r = withClientIP(r)

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing JWT")
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.cookies.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"msg": "Logged out"})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Kind == KindInternal {
		observability.CaptureError(h.logger, "auth_request_failed", err, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch authErr.Kind {
	case KindBadRequest, KindWeakPassword:
		writeError(w, http.StatusBadRequest, authErr.Message)
	case KindInvalidCredentials, KindUnauthorized:
		writeError(w, http.StatusUnauthorized, authErr.Message)
	case KindAccountLocked:
		retryAfter := int(math.Ceil(authErr.LockedUntil.Sub(h.now()).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":        authErr.Message,
			"locked_until": authErr.LockedUntil.UTC().Format(time.RFC3339),
		})
	case KindConflict:
		writeError(w, http.StatusConflict, authErr.Message)
	case KindNotFound:
		writeError(w, http.StatusNotFound, authErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	// Extra keys are ignored; only a malformed body is rejected.
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return credentialsRequest{}, false
	}
	return body, true
}

func withClientIP(r *http.Request) *http.Request {
	return r.WithContext(ContextWithClientIP(r.Context(), observability.ClientIP(r)))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
