// ratelimit.go provides two kinds of request limits: an in-process token bucket for the
// login and registration routes, and Redis-backed per-key limits for the gateway routes so
// every replica shares one budget per API key.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/xplorixa/portal/internal/auth"
	"github.com/xplorixa/portal/internal/telemetry"
)

// RateLimitConfig holds configuration for the in-process limiter
type RateLimitConfig struct {
	// RequestsPerMinute is the refill rate of each client's bucket
	RequestsPerMinute int
	// BurstSize is the bucket capacity
	BurstSize int
	// CleanupInterval is how often idle buckets are dropped
	CleanupInterval time.Duration
}

// AuthRateLimitConfig returns the limits for login and registration
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter is a per-client token bucket
type RateLimiter struct {
	config  RateLimitConfig
	entries map[string]*bucket
	mu      sync.RWMutex
	stopCh  chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine. Call Stop when done.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			rl.mu.Lock()
			for key, b := range rl.entries {
				if b.lastUpdate.Before(cutoff) {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) refill(b *bucket, now time.Time) float64 {
	perSecond := float64(rl.config.RequestsPerMinute) / 60.0
	return min(float64(rl.config.BurstSize), b.tokens+now.Sub(b.lastUpdate).Seconds()*perSecond)
}

// Allow takes one token from key's bucket, reporting whether one was available.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.entries[key]
	if !ok {
		rl.entries[key] = &bucket{tokens: float64(rl.config.BurstSize) - 1, lastUpdate: now}
		return true
	}

	b.tokens = rl.refill(b, now)
	b.lastUpdate = now
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RemainingTokens returns how many whole tokens key has left.
func (rl *RateLimiter) RemainingTokens(key string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	b, ok := rl.entries[key]
	if !ok {
		return rl.config.BurstSize
	}
	return int(rl.refill(b, time.Now()))
}

// RateLimitMiddleware limits requests per client using the token bucket.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.RemainingTokens(key)))
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.RemainingTokens(key)))
		c.Next()
	}
}

// getRateLimitKey picks the bucket for a request: user_id, then api_key_id, then client IP.
func getRateLimitKey(c *gin.Context) string {
	if id := c.GetString(UserIDKey); id != "" {
		return "user:" + id
	}
	if id := c.GetString(APIKeyIDKey); id != "" {
		return "apikey:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}

// GatewayRateLimit enforces perMinute requests per API key on one gateway route, shared
// across replicas through Redis. It runs before APIKeyGateway so throttled calls are not
// charged against the key's usage quota; the bucket is keyed on the key's display prefix,
// falling back to the client IP when no key is sent.
//
// If Redis is unreachable the request is let through and the error is logged.
func GatewayRateLimit(limiter *redis_rate.Limiter, perMinute int) gin.HandlerFunc {
	limit := redis_rate.PerMinute(perMinute)

	return func(c *gin.Context) {
		path := routePath(c)
		key := "gateway:" + path + ":" + gatewayClientKey(c)

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			slog.Warn("gateway rate limiter unavailable, allowing request", "path", path, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retry := int(res.RetryAfter.Seconds() + 0.999)
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			telemetry.GatewayRequestsTotal.WithLabelValues(path, "rate_limited").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}

func gatewayClientKey(c *gin.Context) string {
	if raw := c.GetHeader(auth.APIKeyHeader); raw != "" {
		return "key:" + auth.DisplayPrefix(raw)
	}
	return "ip:" + c.ClientIP()
}
