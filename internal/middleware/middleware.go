package middleware

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"code-judge/internal/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RequestLogger logs one structured line per request. Health and metrics
// probes are skipped to keep the log readable.
func RequestLogger() gin.HandlerFunc {
	log := logging.L().Named("http")
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		)
	}
}

// Recovery converts panics into a 500 response instead of killing the
// process.
func Recovery() gin.HandlerFunc {
	log := logging.L().Named("http")
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic recovered",
			zap.Any("error", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.ByteString("stack", debug.Stack()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
			"code":  "INTERNAL_SERVER_ERROR",
		})
	})
}

// clientLimiter pairs a token bucket with its last use so idle entries can be
// reaped.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter maintains one token bucket per client key (user ID or IP).
type KeyedRateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewKeyedRateLimiter creates a per-client limiter and starts its reaper.
func NewKeyedRateLimiter(r rate.Limit, burst int) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     r,
		burst:    burst,
	}
	go krl.reap()
	return krl
}

func (krl *KeyedRateLimiter) get(key string) *rate.Limiter {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	entry, ok := krl.limiters[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(krl.rate, krl.burst)}
		krl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (krl *KeyedRateLimiter) reap() {
	for range time.Tick(10 * time.Minute) {
		krl.mu.Lock()
		for key, entry := range krl.limiters {
			if time.Since(entry.lastSeen) > 10*time.Minute {
				delete(krl.limiters, key)
			}
		}
		krl.mu.Unlock()
	}
}

// RateLimit throttles requests per authenticated user, falling back to the
// client IP for anonymous callers.
func RateLimit(krl *KeyedRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			key = "user:" + strconv.FormatUint(uint64(userID), 10)
		}
		if !krl.get(key).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
				"code":  "RATE_LIMITED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
