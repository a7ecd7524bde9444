package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestGenerateAndValidate(t *testing.T) {
	svc, err := NewService("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := svc.GenerateToken("user-1", RoleModerator)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.True(t, claims.HasRole(RoleModerator))
	assert.False(t, claims.HasRole(RoleAdmin))
}

func TestValidateTokenErrors(t *testing.T) {
	svc, err := NewService("test-secret", time.Hour)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		issued := time.Now().Add(-2 * time.Hour)
		svc.now = func() time.Time { return issued }
		token, err := svc.GenerateToken("user-1", RoleUser)
		require.NoError(t, err)
		svc.now = time.Now

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewService("another-secret", time.Hour)
		require.NoError(t, err)
		token, err := other.GenerateToken("user-1", RoleUser)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing user id", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenVerification)
	})
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("root")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
