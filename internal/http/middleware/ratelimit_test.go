package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"medtrans/internal/http/middleware"
)

func TestKeyedLimiterIsPerKey(t *testing.T) {
	l := middleware.NewKeyedLimiter(0.001, 2)
	assert.True(t, l.Allow("d1"))
	assert.True(t, l.Allow("d1"))
	assert.False(t, l.Allow("d1"))
	assert.True(t, l.Allow("d2"))
	assert.Equal(t, 2, l.Size())
}

func TestRateLimitCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := middleware.NewKeyedLimiter(0.001, 1)
	newRouter := func(v *stubVerifier) *gin.Engine {
		r := gin.New()
		r.Use(middleware.Auth(v), middleware.RateLimitCaller(limiter))
		r.PATCH("/status", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}
	do := func(r *gin.Engine) int {
		req := httptest.NewRequest(http.MethodPatch, "/status", nil)
		req.Header.Set("Authorization", "Bearer x")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	driver := newRouter(tokenWithRole("d1", "driver"))
	assert.Equal(t, http.StatusNoContent, do(driver))
	assert.Equal(t, http.StatusTooManyRequests, do(driver))

	admin := newRouter(tokenWithRole("a1", "admin"))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, do(admin))
	}
}
