package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_AccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 30*24*time.Hour)

	token, err := m.GenerateAccessToken("acct-123", "patient")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-123", claims.AccountID)
	assert.Equal(t, "patient", claims.Role)
	assert.Equal(t, "acct-123", claims.Subject)
}

func TestJWTManager_RefreshTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 30*24*time.Hour)

	token, err := m.GenerateRefreshToken("acct-123", "doctor")
	require.NoError(t, err)

	claims, err := m.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-123", claims.AccountID)
	assert.Equal(t, "doctor", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTManager_RefreshTokensAreUnique(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 30*24*time.Hour)

	t1, err := m.GenerateRefreshToken("acct-123", "patient")
	require.NoError(t, err)
	t2, err := m.GenerateRefreshToken("acct-123", "patient")
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute, -time.Minute)

	access, err := m.GenerateAccessToken("acct-123", "patient")
	require.NoError(t, err)
	refresh, err := m.GenerateRefreshToken("acct-123", "patient")
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(access)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = m.ValidateRefreshToken(refresh)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	m1 := NewJWTManager("secret-one", 15*time.Minute, time.Hour)
	m2 := NewJWTManager("secret-two", 15*time.Minute, time.Hour)

	token, err := m1.GenerateAccessToken("acct-123", "patient")
	require.NoError(t, err)

	_, err = m2.ValidateAccessToken(token)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestJWTManager_GarbageToken(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, time.Hour)

	_, err := m.ValidateAccessToken("not.a.token")
	assert.Error(t, err)

	_, err = m.ValidateRefreshToken("")
	assert.Error(t, err)
}
