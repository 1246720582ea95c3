package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdscolour/clawfactory/internal/middleware"
)

func newRateLimitedRouter(t *testing.T, max int, window time.Duration) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	router := gin.New()
	router.Use(middleware.RateLimit(client, max, window))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router, mr
}

func get(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BlocksAboveThreshold(t *testing.T) {
	router, _ := newRateLimitedRouter(t, 3, time.Second)

	for i := 0; i < 3; i++ {
		w := get(router, "10.0.0.1")
		require.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
	}

	w := get(router, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimit_CountsPerClientIP(t *testing.T) {
	router, _ := newRateLimitedRouter(t, 1, time.Second)

	require.Equal(t, http.StatusOK, get(router, "10.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1").Code)

	// A different client has its own budget.
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.2").Code)
}

func TestRateLimit_WindowResets(t *testing.T) {
	router, mr := newRateLimitedRouter(t, 1, time.Second)

	require.Equal(t, http.StatusOK, get(router, "10.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1").Code)

	mr.FastForward(2 * time.Second)

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1").Code)
}

func TestRateLimit_PanicsOnBadConfiguration(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	assert.Panics(t, func() { middleware.RateLimit(nil, 10, time.Second) })
	assert.Panics(t, func() { middleware.RateLimit(client, 0, time.Second) })
	assert.Panics(t, func() { middleware.RateLimit(client, 10, 0) })
}
