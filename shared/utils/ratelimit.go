package utils

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

var (
	// AuthLimit protects sign-in, one-time-code and callback routes from brute force
	AuthLimit = RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}
	// APILimit applies to authenticated API traffic
	APILimit = RateLimitConfig{RequestsPerWindow: 300, Window: time.Minute, Burst: 100}
)

// RateLimiter keeps one token bucket per client key
type RateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*visitor
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter for the given profile
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:      cfg,
		limiters: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow reports whether a request for key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.limiters[key]
	if !ok {
		every := rl.cfg.Window / time.Duration(rl.cfg.RequestsPerWindow)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), rl.cfg.Burst)}
		rl.limiters[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than maxIdle
func (rl *RateLimiter) Sweep(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := rl.now().Add(-maxIdle)
	for key, v := range rl.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Middleware returns a gin handler limiting requests per client IP
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(ClientIP(c.Request)) {
			retry := rl.cfg.Window / time.Duration(rl.cfg.RequestsPerWindow)
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			AbortWithError(c, http.StatusTooManyRequests, CodeRateLimited, "Too many requests, please slow down")
			return
		}
		c.Next()
	}
}

// ClientIP extracts the caller address, preferring proxy headers set by the edge
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
