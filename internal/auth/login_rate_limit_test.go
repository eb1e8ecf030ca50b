package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRateLimiter_BlocksAfterBurst(t *testing.T) {
	clock := newTestClock()
	limiter := NewLoginRateLimiter(3, time.Minute)
	limiter.now = clock.Now

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := limiter.Middleware(next)

	request := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusNoContent, request("198.51.100.1").Code)
	}

	blocked := request("198.51.100.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "20", blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, request("198.51.100.2").Code, "other clients keep their own bucket")

	clock.Advance(21 * time.Second)
	assert.Equal(t, http.StatusNoContent, request("198.51.100.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, request("198.51.100.1").Code)
}

func TestLoginRateLimiter_UsesForwardedFor(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	first := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	first.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	second.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLoginRateLimiter_EvictsIdleBuckets(t *testing.T) {
	clock := newTestClock()
	limiter := NewLoginRateLimiter(1, time.Minute)
	limiter.now = clock.Now
	limiter.maxMemory = 2

	allowed, _ := limiter.allow("a")
	require.True(t, allowed)
	allowed, _ = limiter.allow("b")
	require.True(t, allowed)

	clock.Advance(2 * time.Minute)
	allowed, _ = limiter.allow("c")
	require.True(t, allowed)

	assert.Len(t, limiter.byIP, 1)
}
