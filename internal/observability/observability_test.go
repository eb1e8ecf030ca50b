package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		out = append(out, record)
	}
	return out
}

func TestLogger_Channels(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := NewLogger(buf, false)

	logger.Channel(ChannelSecurity).Warn("login_failed", map[string]any{"reason": "bad_password"})
	logger.Channel(ChannelDebug).Debug("dropped", nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1, "debug records are dropped when debug is off")
	assert.Equal(t, "login_failed", lines[0]["msg"])
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "security", lines[0]["channel"])
	assert.Equal(t, "bad_password", lines[0]["reason"])
}

func TestLogger_DebugEnabled(t *testing.T) {
	buf := new(bytes.Buffer)
	NewLogger(buf, true).Channel(ChannelDebug).Debug("image_uploaded", map[string]any{"id": "abc"})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "DEBUG", lines[0]["level"])
	assert.Equal(t, "abc", lines[0]["id"])
}

func TestLogger_NilSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() { logger.Info("ignored", nil) })
	assert.NotPanics(t, func() { NopLogger().Error("ignored", map[string]any{"k": 1}) })
}

func TestCaptureError(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := NewLogger(buf, false)

	CaptureError(logger, "sighting_insert_failed", nil, nil)
	assert.Empty(t, buf.String(), "nil errors are ignored")

	CaptureError(logger, "sighting_insert_failed", errors.New("db down"), map[string]any{"user": "u1"})
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR", lines[0]["level"])
	assert.Equal(t, "db down", lines[0]["error"])
	assert.Equal(t, "u1", lines[0]["user"])
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{name: "first forwarded hop", forwarded: "203.0.113.7, 10.0.0.1", remoteAddr: "10.0.0.2:1234", want: "203.0.113.7"},
		{name: "remote addr with port", remoteAddr: "198.51.100.4:5555", want: "198.51.100.4"},
		{name: "remote addr without port", remoteAddr: "198.51.100.4", want: "198.51.100.4"},
		{name: "blank forwarded falls back", forwarded: " , ", remoteAddr: "192.0.2.1:80", want: "192.0.2.1"},
		{name: "nothing known", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestRequestLoggingMiddleware(t *testing.T) {
	buf := new(bytes.Buffer)
	metrics := NewMetrics()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/image/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	})
	handler := RequestLoggingMiddleware(NewLogger(buf, false), metrics, mux)

	for _, path := range []string{"/api/image/a", "/api/image/b", "/nowhere"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "http_request", lines[0]["msg"])
	assert.Equal(t, "/api/image/a", lines[0]["path"])
	assert.EqualValues(t, http.StatusFound, lines[0]["status"])

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `honkspotter_http_requests_total{method="GET",route="GET /api/image/{id}",status="302"} 2`)
	assert.Contains(t, body, `honkspotter_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
}

func TestMetrics_AuthEvent(t *testing.T) {
	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.AuthEvent("login_success") })

	metrics := NewMetrics()
	metrics.AuthEvent("login_failed")
	metrics.AuthEvent("login_failed")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `honkspotter_auth_events_total{event="login_failed"} 2`)
}

func TestRecoverMiddleware(t *testing.T) {
	buf := new(bytes.Buffer)
	handler := RecoverMiddleware(NewLogger(buf, false), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "boom")
	assert.Contains(t, buf.String(), "panic_recovered")
}
