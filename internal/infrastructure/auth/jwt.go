// Package auth issues and verifies the bearer tokens that guard the task
// submission API.
package auth

import (
	"errors"
	"time"

	"github.com/erp/qbconnector/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingSubject   = errors.New("missing subject in claims")
	ErrMissingSecret    = errors.New("jwt secret is not configured")
)

// Claims identifies the system submitting work. Users restricts which
// connector usernames the caller may queue tasks for; empty means any.
type Claims struct {
	jwt.RegisteredClaims
	Users []string `json:"users,omitempty"`
}

// AllowsUser reports whether the token may act for username
func (c *Claims) AllowsUser(username string) bool {
	if len(c.Users) == 0 {
		return true
	}
	for _, u := range c.Users {
		if u == username {
			return true
		}
	}
	return false
}

// GetExpiresAtTime returns the expiration time
func (c *Claims) GetExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// JWTService handles JWT token operations
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.APIConfig) *JWTService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		ttl:    ttl,
	}
}

// Enabled reports whether a secret is configured
func (s *JWTService) Enabled() bool {
	return len(s.secret) > 0
}

// GenerateToken signs a token for subject. users optionally limits the
// connector usernames the token may submit for.
func (s *JWTService) GenerateToken(subject string, users ...string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrMissingSecret
	}
	if subject == "" {
		return "", time.Time{}, ErrMissingSubject
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Users: users,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, issuer and lifetime and returns the claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrMissingSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
