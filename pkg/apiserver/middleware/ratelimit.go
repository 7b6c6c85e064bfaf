package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/prodflow/prodflow/pkg/config"
)

const limiterTTL = 5 * time.Minute

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

// RateLimit throttles authenticated requests per company. A zero rate
// disables limiting. Must run after Auth.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	var limiters sync.Map

	return func(c *gin.Context) {
		key := c.GetString("company_id")
		if key == "" {
			key = c.ClientIP()
		}
		if !limiterFor(&limiters, key, cfg.RequestsPerSecond, burst).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate_limited",
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}

func limiterFor(limiters *sync.Map, key string, rps float64, burst int) *rate.Limiter {
	now := time.Now()
	if v, ok := limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if now.Before(cached.expiresAt) {
			return cached.limiter
		}
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	limiters.Store(key, &cachedLimiter{limiter: limiter, expiresAt: now.Add(limiterTTL)})
	return limiter
}
