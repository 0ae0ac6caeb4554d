package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/qbconnector/internal/infrastructure/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func corsRouter(cfg CORSConfig) *gin.Engine {
	router := gin.New()
	router.Use(CORSWithConfig(cfg))
	router.POST("/api/v1/tasks", func(c *gin.Context) {
		c.String(http.StatusCreated, "queued")
	})
	return router
}

func TestCORSWithConfig(t *testing.T) {
	t.Run("empty whitelist sets no headers", func(t *testing.T) {
		router := corsRouter(DefaultCORSConfig())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil)
		req.Header.Set("Origin", "http://shop.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"*"}
		cfg.AllowCredentials = true
		router := corsRouter(cfg)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil)
		req.Header.Set("Origin", "http://shop.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), IdempotencyKeyHeader)
	})

	t.Run("explicit origin with credentials", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"http://shop.example.com"}
		cfg.AllowCredentials = true
		router := corsRouter(cfg)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil)
		req.Header.Set("Origin", "http://shop.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "http://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("unlisted origin", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"http://shop.example.com"}
		router := corsRouter(cfg)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil)
		req.Header.Set("Origin", "http://evil.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short circuits", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"*"}
		router := corsRouter(cfg)

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
		req.Header.Set("Origin", "http://shop.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	})
}

func TestCORSConfigFromHTTP(t *testing.T) {
	cors := CORSConfigFromHTTP(config.HTTPConfig{
		CORSAllowOrigins: []string{"http://a"},
		CORSAllowMethods: []string{"GET"},
	})
	assert.Equal(t, []string{"http://a"}, cors.AllowOrigins)
	assert.Equal(t, []string{"GET"}, cors.AllowMethods)
	assert.Equal(t, DefaultCORSConfig().AllowHeaders, cors.AllowHeaders)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, getRequestID(c))
	})

	t.Run("generates id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		id := w.Header().Get(RequestIDKey)
		assert.Len(t, id, 32)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("keeps client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDKey, "wc-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "wc-42", w.Header().Get(RequestIDKey))
		assert.Equal(t, "wc-42", w.Body.String())
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDKey, strings.Repeat("a", MaxRequestIDLength+1))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Len(t, w.Header().Get(RequestIDKey), 32)
	})
}

func TestSecureWithConfig(t *testing.T) {
	serve := func(cfg SecurityConfig) http.Header {
		router := gin.New()
		router.Use(SecureWithConfig(cfg))
		router.GET("/wsdl", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wsdl", nil))
		return w.Header()
	}

	h := serve(DefaultSecurityConfig())
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Empty(t, h.Get("Strict-Transport-Security"))

	cfg := DefaultSecurityConfig()
	cfg.HSTSEnabled = true
	assert.Equal(t, "max-age=31536000; includeSubDomains", serve(cfg).Get("Strict-Transport-Security"))
}
