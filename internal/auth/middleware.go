package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey int

const (
	claimsContextKey contextKey = iota
	clientIPContextKey
)

// Middleware accepts an access token from a Bearer Authorization header or
// from the access token cookie.
func Middleware(service *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing JWT")
			return
		}

		claims, err := service.Authenticate(token)
		if err != nil {
			message := "invalid or expired token"
			var authErr *Error
			if errors.As(err, &authErr) {
				message = authErr.Message
			}
			writeError(w, http.StatusUnauthorized, message)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

func ContextWithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(Claims)
	return claims, ok
}

func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// bearerToken reads a Bearer Authorization header, falling back to the access
// cookie when the header is absent or carries another scheme.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "Bearer") {
		token = strings.TrimSpace(token)
		return token, token != ""
	}

	cookie, err := r.Cookie(AccessCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
