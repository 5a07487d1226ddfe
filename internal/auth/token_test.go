package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/authkit/internal/auth"
)

func newTokenManager() *auth.TokenManager {
	return auth.NewTokenManager("test-secret-0123456789abcdef", 15*time.Minute, 5*time.Minute)
}

func TestTokenManager_AccessToken_RoundTrip(t *testing.T) {
	tm := newTokenManager()

	token, err := tm.GenerateAccessToken("user123", "user@example.com", "sess1")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeAccess, claims.Type)
	assert.Equal(t, "user123", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "sess1", claims.SessionID)
	assert.Empty(t, claims.AttemptID)
}

func TestTokenManager_ChallengeToken_CarriesAttemptID(t *testing.T) {
	tm := newTokenManager()

	token, err := tm.GenerateMFAChallengeToken("user123", "user@example.com", "attempt42")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeMFAChallenge, claims.Type)
	assert.Equal(t, "attempt42", claims.AttemptID)
	assert.Empty(t, claims.SessionID)
}

func TestTokenManager_ValidateToken_TamperedSignature(t *testing.T) {
	tm := newTokenManager()

	token, err := tm.GenerateAccessToken("user123", "user@example.com", "sess1")
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"

	_, err = tm.ValidateToken(tampered)
	assert.Error(t, err)
}

func TestTokenManager_ValidateToken_WrongSecret(t *testing.T) {
	tm := newTokenManager()
	other := auth.NewTokenManager("another-secret-0123456789abcd", 15*time.Minute, 5*time.Minute)

	token, err := tm.GenerateAccessToken("user123", "user@example.com", "sess1")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_ValidateToken_Expired(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-0123456789abcdef", -time.Minute, -time.Minute)

	token, err := tm.GenerateAccessToken("user123", "user@example.com", "sess1")
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_ValidateToken_Garbage(t *testing.T) {
	tm := newTokenManager()

	_, err := tm.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}
