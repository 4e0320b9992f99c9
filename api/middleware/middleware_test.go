package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/wacul/ptr"

	"github.com/blnkfinance/vetflow/config"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, "server running...") })
	r.GET("/sessions/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"id": c.Param("id")}) })
	return r
}

func serve(r *gin.Engine, path string, header map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for key, value := range header {
		req.Header.Set(key, value)
	}
	req.RemoteAddr = "10.0.0.1:1234"
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp.Code
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		secret       string
		path         string
		key          string
		expectedCode int
	}{
		{name: "Valid key", secret: "master-key", path: "/sessions/s1", key: "master-key", expectedCode: http.StatusOK},
		{name: "Missing key", secret: "master-key", path: "/sessions/s1", expectedCode: http.StatusUnauthorized},
		{name: "Wrong key", secret: "master-key", path: "/sessions/s1", key: "guess", expectedCode: http.StatusUnauthorized},
		{name: "Root path is open", secret: "master-key", path: "/", expectedCode: http.StatusOK},
		{name: "Secret not configured", path: "/sessions/s1", key: "anything", expectedCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.MockConfig(&config.Configuration{Server: config.ServerConfig{Secure: true, SecretKey: tt.secret}})
			r := newRouter(SecretKeyAuthMiddleware())

			header := map[string]string{}
			if tt.key != "" {
				header[KeyHeader] = tt.key
			}
			assert.Equal(t, tt.expectedCode, serve(r, tt.path, header))
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	conf := &config.Configuration{RateLimit: config.RateLimitConfig{
		RequestsPerSecond:  ptr.Float64(0.001),
		Burst:              ptr.Int(1),
		CleanupIntervalSec: ptr.Int(60),
	}}
	r := newRouter(RateLimitMiddleware(conf))

	assert.Equal(t, http.StatusOK, serve(r, "/sessions/s1", nil))
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "/sessions/s1", nil))
	assert.Equal(t, http.StatusOK, serve(r, "/sessions/s1", map[string]string{"Accept": "text/event-stream"}))
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	r := newRouter(RateLimitMiddleware(&config.Configuration{}))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "/sessions/s1", nil))
	}
}
