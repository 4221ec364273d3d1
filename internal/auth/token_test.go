package auth

import (
	"testing"
	"time"

	"github.com/and161185/imagify/internal/errs"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret string, claims jwt.Claims, method jwt.SigningMethod) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestGenerateAndParseToken(t *testing.T) {
	tm := NewTokenManager("testsecret", time.Hour)
	token, err := tm.GenerateToken(42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := tm.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, 42, userID)
}

func TestDefaultTTL(t *testing.T) {
	tm := NewTokenManager("testsecret", 0)
	require.Equal(t, DefaultTokenTTL, tm.ttl)
}

func TestParseInvalidToken(t *testing.T) {
	tm := NewTokenManager("testsecret", time.Hour)

	_, err := tm.ParseToken("invalid.token.string")
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestParseTokenWithWrongSignature(t *testing.T) {
	tm := NewTokenManager("testsecret", time.Hour)

	other := NewTokenManager("wrongsecret", time.Hour)
	badTokenStr, err := other.GenerateToken(1)
	require.NoError(t, err)

	_, err = tm.ParseToken(badTokenStr)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestParseExpiredToken(t *testing.T) {
	tm := NewTokenManager("testsecret", time.Hour)

	expired := signed(t, "testsecret", userClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, jwt.SigningMethodHS256)

	_, err := tm.ParseToken(expired)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestParseTokenWrongAlgorithm(t *testing.T) {
	tm := NewTokenManager("testsecret", time.Hour)

	token := signed(t, "testsecret", userClaims{
		UserID:           1,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}, jwt.SigningMethodHS512)

	_, err := tm.ParseToken(token)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestParseTokenWithoutUser(t *testing.T) {
	tm := NewTokenManager("testsecret", time.Hour)

	token := signed(t, "testsecret", userClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}, jwt.SigningMethodHS256)

	_, err := tm.ParseToken(token)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)

	require.NoError(t, CheckPassword(hash, "s3cret"))
	require.ErrorIs(t, CheckPassword(hash, "wrong"), errs.ErrInvalidCredentials)
}
