package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	t.Run("falls back to RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		assert.Equal(t, "192.168.1.1", ClientIP(req))
	})

	t.Run("prefers first X-Forwarded-For hop", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
		assert.Equal(t, "203.0.113.1", ClientIP(req))
	})

	t.Run("uses X-Real-IP when no forwarded header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "203.0.113.2")
		assert.Equal(t, "203.0.113.2", ClientIP(req))
	})
}

func TestRateLimiter_BurstThenBlock(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2})
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are limited independently")

	now = now.Add(31 * time.Second)
	assert.True(t, rl.Allow("a"), "a token refills after window/requests")
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(AuthLimit)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(time.Hour)
	rl.Allow("fresh")

	assert.Equal(t, 1, rl.Sweep(30*time.Minute))
}

func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})

	router := gin.New()
	router.POST("/auth/login", rl.Middleware(), func(c *gin.Context) {
		OKResponse(c, "ok", nil)
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), CodeRateLimited)
}
