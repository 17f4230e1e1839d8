package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return clock }
	rl.lastSweep = clock

	for i := range 3 {
		require.True(t, rl.Allow(fmt.Sprintf("10.0.0.%d", i)))
	}
	require.Equal(t, 3, rl.Len())

	// one client stays active while the others go idle
	clock = clock.Add(limiterIdleTTL - time.Second)
	rl.Allow("10.0.0.0")
	clock = clock.Add(2 * time.Second)

	require.True(t, rl.Allow("10.0.0.9"))
	require.Equal(t, 2, rl.Len(), "idle clients swept when a new client arrived")

	rl.mu.RLock()
	_, kept := rl.limiters["10.0.0.0"]
	_, dropped := rl.limiters["10.0.0.1"]
	rl.mu.RUnlock()
	require.True(t, kept)
	require.False(t, dropped)
}

func TestRateLimiterSweepsAtMostOncePerInterval(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return clock }
	rl.lastSweep = clock
	rl.idleTTL = time.Second

	require.True(t, rl.Allow("a"))
	clock = clock.Add(2 * time.Second)
	require.True(t, rl.Allow("b"))
	require.Equal(t, 2, rl.Len(), "idle entry kept until the sweep interval has passed")

	clock = clock.Add(limiterSweepInterval)
	require.True(t, rl.Allow("c"))
	require.Equal(t, 1, rl.Len())
}

func TestNilRateLimiterAllowsEverything(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var rl *RateLimiter
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	for range 3 {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
