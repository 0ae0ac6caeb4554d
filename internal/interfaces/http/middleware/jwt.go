package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/erp/qbconnector/internal/infrastructure/auth"
	"github.com/erp/qbconnector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey  = "jwt_claims"
	JWTSubjectKey = "jwt_subject"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

var errMissingToken = errors.New("missing bearer token")

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	// JWTService validates tokens. A service without a secret disables the check.
	JWTService *auth.JWTService
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// Optional callback if token is invalid (default: return 401)
	OnError func(c *gin.Context, err error)
	Logger  *zap.Logger
}

// DefaultJWTConfig returns default JWT middleware configuration
func DefaultJWTConfig(jwtService *auth.JWTService, logger *zap.Logger) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths:  []string{"/health"},
		Logger:     logger,
	}
}

// JWTAuthMiddlewareWithConfig requires a bearer token on every request it guards
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	if cfg.JWTService == nil || !cfg.JWTService.Enabled() {
		if cfg.Logger != nil {
			cfg.Logger.Warn("api.jwt_secret is empty; task endpoints are unauthenticated")
		}
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			handleAuthError(c, cfg, errMissingToken, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			handleAuthError(c, cfg, errMissingToken, "Invalid authorization header format")
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
		if tokenString == "" {
			handleAuthError(c, cfg, errMissingToken, "Missing token")
			return
		}

		claims, err := cfg.JWTService.ValidateToken(tokenString)
		if err != nil {
			handleAuthError(c, cfg, err, "Token validation failed")
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTSubjectKey, claims.Subject)

		if cfg.Logger != nil {
			cfg.Logger.Debug("JWT authentication successful",
				zap.String("subject", claims.Subject),
				zap.Strings("users", claims.Users),
			)
		}
		c.Next()
	}
}

func handleAuthError(c *gin.Context, cfg JWTMiddlewareConfig, err error, message string) {
	if cfg.OnError != nil {
		cfg.OnError(c, err)
		return
	}

	if cfg.Logger != nil {
		cfg.Logger.Warn("JWT authentication failed",
			zap.Error(err),
			zap.String("message", message),
			zap.String("path", c.Request.URL.Path),
		)
	}

	var code, text string
	switch {
	case errors.Is(err, errMissingToken):
		code, text = dto.ErrCodeUnauthorized, "Authentication required"
	case errors.Is(err, auth.ErrExpiredToken):
		code, text = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		code, text = dto.ErrCodeTokenInvalid, "Token is not yet valid"
	default:
		code, text = dto.ErrCodeTokenInvalid, "Invalid token"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, text, getRequestID(c)))
}

// GetJWTClaims retrieves JWT claims from gin.Context; nil when auth is disabled
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetJWTSubject retrieves the token subject from context
func GetJWTSubject(c *gin.Context) string {
	return c.GetString(JWTSubjectKey)
}
