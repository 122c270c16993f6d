package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/yungbote/compoundlab-backend/internal/http/response"
	"github.com/yungbote/compoundlab-backend/internal/observability"
)

// RateLimiter hands each client IP its own token bucket. Idle buckets expire
// out of the cache so the map does not grow with every address ever seen.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *gocache.Cache
	mu      sync.Mutex
	metrics *observability.Metrics
}

func NewRateLimiter(perMinute, burst int, metrics *observability.Metrics) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		buckets: gocache.New(10*time.Minute, 20*time.Minute),
		metrics: metrics,
	}
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if v, ok := rl.buckets.Get(key); ok {
		lim := v.(*rate.Limiter)
		rl.buckets.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(rl.limit, rl.burst)
	rl.buckets.SetDefault(key, lim)
	return lim
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	if rl == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if !rl.bucket(c.ClientIP()).Allow() {
			if rl.metrics != nil {
				rl.metrics.IncSecurityEvent("rate_limited")
			}
			c.Header("Retry-After", "60")
			response.RespondError(c, http.StatusTooManyRequests, "rate_limited", errRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
