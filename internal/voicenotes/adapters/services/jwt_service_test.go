package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapter "familyvoice/internal/voicenotes/adapters/services"
	"familyvoice/internal/voicenotes/ports/services"
)

const testSecretKey = "test-secret-key-for-voice-notes"

func signToken(t *testing.T, secret string, claims adapter.Claims, method jwt.SigningMethod) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() adapter.Claims {
	return adapter.Claims{
		UserID:   "user-123",
		Username: "mom",
		Role:     "parent",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestServiceJWT_ValidateAccessToken(t *testing.T) {
	ctx := context.Background()
	service := adapter.NewJWT(testSecretKey)

	t.Run("success - valid token yields identity", func(t *testing.T) {
		token := signToken(t, testSecretKey, validClaims(), jwt.SigningMethodHS256)

		identity, err := service.ValidateAccessToken(ctx, token)

		require.NoError(t, err)
		assert.Equal(t, "user-123", identity.UserID)
		assert.Equal(t, "mom", identity.Username)
		assert.Equal(t, "parent", identity.Role)
	})

	t.Run("error - expired token", func(t *testing.T) {
		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		token := signToken(t, testSecretKey, claims, jwt.SigningMethodHS256)

		identity, err := service.ValidateAccessToken(ctx, token)

		require.Nil(t, identity)
		require.ErrorIs(t, err, services.ErrExpiredJWTToken)
	})

	t.Run("error - wrong secret", func(t *testing.T) {
		token := signToken(t, "another-secret", validClaims(), jwt.SigningMethodHS256)

		identity, err := service.ValidateAccessToken(ctx, token)

		require.Nil(t, identity)
		require.ErrorIs(t, err, services.ErrInvalidJWTToken)
	})

	t.Run("error - malformed token", func(t *testing.T) {
		identity, err := service.ValidateAccessToken(ctx, "not-a-jwt")

		require.Nil(t, identity)
		require.ErrorIs(t, err, services.ErrInvalidJWTToken)
	})

	t.Run("error - missing user_id claim", func(t *testing.T) {
		claims := validClaims()
		claims.UserID = ""
		token := signToken(t, testSecretKey, claims, jwt.SigningMethodHS256)

		identity, err := service.ValidateAccessToken(ctx, token)

		require.Nil(t, identity)
		require.ErrorIs(t, err, services.ErrInvalidJWTToken)
	})
}
