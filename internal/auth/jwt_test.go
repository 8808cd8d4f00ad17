package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateValidate(t *testing.T) {
	s := NewJWTService("secret", 1)
	tok, err := s.Generate("op-1", "ops@example.com", RoleApprover)
	require.NoError(t, err)

	claims, err := s.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.Subject)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.Equal(t, RoleApprover, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestGenerate_UnknownRole(t *testing.T) {
	_, err := NewJWTService("secret", 1).Generate("op", "a@b", "viewer")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestValidate_Rejects(t *testing.T) {
	s := NewJWTService("secret", 1)
	tok, err := NewJWTService("other", 1).Generate("op", "a@b", RoleAdmin)
	require.NoError(t, err)
	_, err = s.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	raw, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Validate(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Validate("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
