package auth

import (
	"testing"
	"time"

	"github.com/erp/qbconnector/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return NewJWTService(config.APIConfig{
		JWTSecret: "test-secret-key-at-least-32-chars",
		JWTIssuer: "qbconnector",
		TokenTTL:  time.Hour,
	})
}

func TestNewJWTService_DefaultTTL(t *testing.T) {
	svc := NewJWTService(config.APIConfig{JWTSecret: "s"})
	assert.Equal(t, 24*time.Hour, svc.ttl)
	assert.True(t, svc.Enabled())
	assert.False(t, NewJWTService(config.APIConfig{}).Enabled())
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newTestJWTService()

	token, expiresAt, err := svc.GenerateToken("erp-sync", "admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "erp-sync", claims.Subject)
	assert.Equal(t, []string{"admin"}, claims.Users)
	assert.True(t, claims.AllowsUser("admin"))
	assert.False(t, claims.AllowsUser("someone-else"))
	assert.WithinDuration(t, expiresAt, claims.GetExpiresAtTime(), time.Second)
}

func TestClaims_AllowsAnyUserWhenUnrestricted(t *testing.T) {
	assert.True(t, (&Claims{}).AllowsUser("anyone"))
}

func TestGenerateToken_Errors(t *testing.T) {
	_, _, err := NewJWTService(config.APIConfig{}).GenerateToken("svc")
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, _, err = newTestJWTService().GenerateToken("")
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := newTestJWTService()

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.APIConfig{JWTSecret: "another-secret-key-32-characters", JWTIssuer: "qbconnector"})
		token, _, err := other.GenerateToken("svc")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(config.APIConfig{JWTSecret: "test-secret-key-at-least-32-chars", JWTIssuer: "elsewhere"})
		token, _, err := other.GenerateToken("svc")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc",
			Issuer:    "qbconnector",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "svc", Issuer: "qbconnector"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "qbconnector",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrMissingSubject)
	})
}
