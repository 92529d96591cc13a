package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tokens := NewTokens("secret")

	tok, err := tokens.GenerateToken(42, RoleAdmin, time.Hour)
	require.NoError(t, err)

	id, err := tokens.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.UserID)
	assert.True(t, id.IsAdmin())
}

func TestValidateToken_Rejects(t *testing.T) {
	tokens := NewTokens("secret")
	good, err := tokens.GenerateToken(1, RoleCustomer, time.Hour)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokens("other").ValidateToken(good)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewTokens("secret")
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.ValidateToken(good)
		assert.Error(t, err)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": 1}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tokens.ValidateToken(unsigned)
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).
			SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = tokens.ValidateToken(tok)
		assert.Error(t, err)
	})
}

func TestGenerateToken_Validation(t *testing.T) {
	tokens := NewTokens("secret")

	_, err := tokens.GenerateToken(0, RoleCustomer, time.Hour)
	assert.Error(t, err)

	_, err = tokens.GenerateToken(1, "root", time.Hour)
	assert.Error(t, err)
}
