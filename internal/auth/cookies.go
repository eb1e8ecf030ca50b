package auth

import (
	"net/http"
	"strings"
	"time"
)

const (
	AccessCookieName  = "access_token_cookie"
	RefreshCookieName = "refresh_token_cookie"
	CSRFCookieName    = "csrf_refresh_token"
	CSRFHeaderName    = "X-CSRF-TOKEN"
)

type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

func DefaultCookieConfig() CookieConfig {
	return CookieConfig{Secure: true, SameSite: http.SameSiteStrictMode}
}

// ParseSameSite maps Strict, Lax and None; anything else is Strict.
func ParseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// setSessionCookies sets the HttpOnly refresh cookie and the script readable
// CSRF cookie that clients echo in X-CSRF-TOKEN.
func (c CookieConfig) setSessionCookies(w http.ResponseWriter, session Session) {
	http.SetCookie(w, c.cookie(RefreshCookieName, session.RefreshToken, session.RefreshExpiresAt, true))
	http.SetCookie(w, c.cookie(CSRFCookieName, session.CSRFToken, session.RefreshExpiresAt, false))
}

func (c CookieConfig) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName, CSRFCookieName} {
		cookie := c.cookie(name, "", time.Unix(0, 0), name != CSRFCookieName)
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func (c CookieConfig) cookie(name, value string, expires time.Time, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  expires.UTC(),
		Secure:   c.Secure,
		HttpOnly: httpOnly,
		SameSite: c.SameSite,
	}
}
