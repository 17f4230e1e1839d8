package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"quickcomm/internal/observability"
)

// CORS echoes allowed origins with credentials. Disallowed origins are served
// without CORS headers rather than refused. An empty list allows every origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			_, ok := allowed[origin]
			if ok || len(allowed) == 0 {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
				h.Add("Vary", "Origin")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Idle limiters are dropped after limiterIdleTTL; the map is swept at most
// once per limiterSweepInterval, on the path that inserts new clients.
const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// RateLimiter hands out one token bucket per client.
type RateLimiter struct {
	mu        sync.RWMutex
	limiters  map[string]*clientLimiter
	lastSweep time.Time

	requestsPerSecond float64
	burst             int
	idleTTL           time.Duration
	now               func() time.Time
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = max(1, int(requestsPerSecond))
	}
	return &RateLimiter{
		limiters:          make(map[string]*clientLimiter),
		lastSweep:         time.Now(),
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		idleTTL:           limiterIdleTTL,
		now:               time.Now,
	}
}

func (rl *RateLimiter) Allow(clientID string) bool {
	return rl.getClientLimiter(clientID).Allow()
}

func (rl *RateLimiter) getClientLimiter(clientID string) *rate.Limiter {
	now := rl.now()
	rl.mu.RLock()
	entry, exists := rl.limiters[clientID]
	rl.mu.RUnlock()
	if exists {
		entry.lastSeen.Store(now.UnixNano())
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if entry, exists := rl.limiters[clientID]; exists {
		entry.lastSeen.Store(now.UnixNano())
		return entry.limiter
	}
	if now.Sub(rl.lastSweep) >= limiterSweepInterval {
		rl.sweepLocked(now)
	}
	entry = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.requestsPerSecond), rl.burst)}
	entry.lastSeen.Store(now.UnixNano())
	rl.limiters[clientID] = entry
	return entry.limiter
}

// sweepLocked drops limiters idle for longer than idleTTL and returns how
// many were removed. rl.mu must be held for writing.
func (rl *RateLimiter) sweepLocked(now time.Time) int {
	cutoff := now.Add(-rl.idleTTL).UnixNano()
	removed := 0
	for id, entry := range rl.limiters {
		if entry.lastSeen.Load() < cutoff {
			delete(rl.limiters, id)
			removed++
		}
	}
	rl.lastSweep = now
	return removed
}

// Len reports how many clients currently hold a limiter.
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// Middleware rejects clients over their budget with 429. A nil limiter lets everything through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl != nil && !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please slow down"})
			return
		}
		c.Next()
	}
}

// Metrics records request count and latency per route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		observability.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
