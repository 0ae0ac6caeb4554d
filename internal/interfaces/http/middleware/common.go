package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/erp/qbconnector/internal/infrastructure/config"
	"github.com/gin-gonic/gin"
)

const (
	// RequestIDKey is the gin context key and header for the request id
	RequestIDKey = "X-Request-ID"
	// requestIDContextKey is the key the logger middleware reads
	requestIDContextKey = "request_id"
	// IdempotencyKeyHeader carries the client key used to de-duplicate submissions
	IdempotencyKeyHeader = "Idempotency-Key"
	// MaxRequestIDLength bounds client supplied request ids
	MaxRequestIDLength = 128
)

// CORSConfig holds CORS middleware configuration
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig returns the CORS configuration for the task API
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:  []string{},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", RequestIDKey, IdempotencyKeyHeader, "SOAPAction", "Accept", "Origin"},
		ExposeHeaders: []string{RequestIDKey},
		MaxAge:        12 * time.Hour,
	}
}

// CORSConfigFromHTTP applies the http section of the application config
func CORSConfigFromHTTP(cfg config.HTTPConfig) CORSConfig {
	cors := DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORSAllowOrigins
	if len(cfg.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.CORSAllowMethods
	}
	if len(cfg.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.CORSAllowHeaders
	}
	return cors
}

// CORSWithConfig returns a CORS middleware with custom configuration.
// An empty origin list sets no CORS headers at all.
func CORSWithConfig(cfg CORSConfig) gin.HandlerFunc {
	allowWildcard := slices.Contains(cfg.AllowOrigins, "*")

	allowedOrigin := func(origin string) string {
		if allowWildcard {
			return "*"
		}
		if origin != "" && slices.Contains(cfg.AllowOrigins, origin) {
			return origin
		}
		return ""
	}

	return func(c *gin.Context) {
		if allowed := allowedOrigin(c.GetHeader("Origin")); allowed != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			if cfg.AllowCredentials && allowed != "*" {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
			h.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
			if len(cfg.ExposeHeaders) > 0 {
				h.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge.Seconds())))
			}
		}

		// Preflights never reach the handlers
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestID adds a unique request ID to each request. A client supplied id is
// kept when it is short enough.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDKey)
		if requestID == "" || len(requestID) > MaxRequestIDLength {
			requestID = generateRequestID()
		}
		c.Set(requestIDContextKey, requestID)
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(RequestIDKey, requestID)
		c.Next()
	}
}

func generateRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(buf)
}

// SecurityConfig holds configuration for security headers
type SecurityConfig struct {
	HSTSEnabled bool
	HSTSMaxAge  int // in seconds
}

// DefaultSecurityConfig leaves HSTS off; most installs sit behind a TLS proxy that sets it.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTSMaxAge: 31536000,
	}
}

// SecureWithConfig adds security headers to responses
func SecureWithConfig(cfg SecurityConfig) gin.HandlerFunc {
	var hstsValue string
	if cfg.HSTSEnabled {
		hstsValue = fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge)
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if hstsValue != "" {
			h.Set("Strict-Transport-Security", hstsValue)
		}
		c.Next()
	}
}

// getRequestID returns the id assigned by RequestID
func getRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDContextKey); id != "" {
		return id
	}
	return c.GetHeader(RequestIDKey)
}
