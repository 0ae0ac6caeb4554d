package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/qbconnector/internal/infrastructure/auth"
	"github.com/erp/qbconnector/internal/infrastructure/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret-key-at-least-32-chars"

func newTestJWTService(secret string) *auth.JWTService {
	return auth.NewJWTService(config.APIConfig{
		JWTSecret: secret,
		JWTIssuer: "qbconnector",
		TokenTTL:  time.Hour,
	})
}

func jwtRouter(svc *auth.JWTService) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), JWTAuthMiddlewareWithConfig(DefaultJWTConfig(svc, zap.NewNop())))
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "up") })
	router.POST("/api/v1/tasks", func(c *gin.Context) {
		c.String(http.StatusOK, GetJWTSubject(c))
	})
	return router
}

func serveWithToken(router http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil)
	if authHeader != "" {
		req.Header.Set(AuthHeaderKey, authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService(testSecret)
	token, _, err := svc.GenerateToken("shop-sync", "admin")
	require.NoError(t, err)

	w := serveWithToken(jwtRouter(svc), BearerPrefix+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shop-sync", w.Body.String())
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService(testSecret)
	router := jwtRouter(svc)

	other := newTestJWTService("another-secret-key-at-least-32-chars")
	foreign, _, err := other.GenerateToken("intruder")
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "qbconnector",
			Subject:   "shop-sync",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "ERR_UNAUTHORIZED"},
		{"not bearer", "Basic YWRtaW46cGFzc3dvcmQ=", "ERR_UNAUTHORIZED"},
		{"empty token", "Bearer ", "ERR_UNAUTHORIZED"},
		{"garbage", "Bearer not-a-jwt", "ERR_TOKEN_INVALID"},
		{"wrong secret", BearerPrefix + foreign, "ERR_TOKEN_INVALID"},
		{"expired", BearerPrefix + expired, "ERR_TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWithToken(router, tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	router := jwtRouter(newTestJWTService(testSecret))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthMiddleware_DisabledWithoutSecret(t *testing.T) {
	w := serveWithToken(jwtRouter(newTestJWTService("")), "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestJWTAuthMiddleware_OnError(t *testing.T) {
	cfg := DefaultJWTConfig(newTestJWTService(testSecret), nil)
	cfg.OnError = func(c *gin.Context, err error) {
		c.AbortWithStatus(http.StatusTeapot)
	}
	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.POST("/api/v1/tasks", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusTeapot, serveWithToken(router, "").Code)
}

func TestGetJWTClaims(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetJWTClaims(c))

	claims := &auth.Claims{Users: []string{"admin"}}
	c.Set(JWTClaimsKey, claims)
	assert.Same(t, claims, GetJWTClaims(c))
}
