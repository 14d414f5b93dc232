package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficwatch/internal/auth"
	"trafficwatch/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitAnonymous(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultPolicy())
	handler := RateLimit(limiter, "geo-test", false)(okHandler())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test-geo/", nil)
		req.RemoteAddr = "203.0.113.5:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 5; i++ {
		rec := send()
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": "Rate limit exceeded. Please try again later."}, body)
}

func TestRateLimitAuthenticatedUsesSubject(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultPolicy())
	handler := RateLimit(limiter, "login", false)(okHandler())

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/login/", nil)
		req.RemoteAddr = remote
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Subject: "alice"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Changing address does not reset an authenticated requester's budget.
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, send(fmt.Sprintf("203.0.113.%d:1", i+1)))
	}
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1:1"))
}

func TestRateLimitUsesInterceptorAddress(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultPolicy())
	handler := RateLimit(limiter, "geo-test", false)(okHandler())

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		req = req.WithContext(WithClientAddress(req.Context(), "192.0.2.44"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i < 5 {
			require.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "different derived address has its own budget")
}

func TestRateLimitExemptMethod(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultPolicy())
	handler := RateLimit(limiter, "login", false)(okHandler())

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/login/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimitUnknownGroup(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultPolicy())
	handler := RateLimit(limiter, "missing", false)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
