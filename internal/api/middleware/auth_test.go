package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestVerifyTokenRoundTrip(t *testing.T) {
	am := NewAuthMiddleware(testSecret)

	signed := signToken(t, jwt.MapClaims{
		"user_id":  "42",
		"username": "alice",
		"avatar":   "http://example.com/a.png",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	identity, err := am.VerifyToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "42", identity.UserID)
	assert.Equal(t, "alice", identity.DisplayName)
	assert.Equal(t, "http://example.com/a.png", identity.Avatar)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	am := NewAuthMiddleware(testSecret)

	signed := signToken(t, jwt.MapClaims{
		"user_id": "42",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	_, err := am.VerifyToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	am := NewAuthMiddleware("other-secret")

	signed := signToken(t, jwt.MapClaims{
		"user_id": "42",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	_, err := am.VerifyToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRequiresUserID(t *testing.T) {
	am := NewAuthMiddleware(testSecret)

	signed := signToken(t, jwt.MapClaims{
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	_, err := am.VerifyToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenGarbage(t *testing.T) {
	am := NewAuthMiddleware(testSecret)
	_, err := am.VerifyToken("definitely.not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
