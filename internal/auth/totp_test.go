package auth

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTOTPManager(t *testing.T) *TOTPManager {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := NewTOTPManager(key, "ChatForge")
	require.NoError(t, err)
	return tm
}

// ============================================================================
// Constructor Tests
// ============================================================================

func TestTOTPManager_NewTOTPManager_ValidKey(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := NewTOTPManager(key, "ChatForge")
	assert.NoError(t, err)
	assert.NotNil(t, tm)
}

func TestTOTPManager_NewTOTPManager_InvalidKeyLength(t *testing.T) {
	// Test with various invalid key lengths
	tests := []int{0, 16, 24, 31, 33, 64}
	for _, length := range tests {
		key := make([]byte, length)
		tm, err := NewTOTPManager(key, "ChatForge")
		assert.Error(t, err)
		assert.Nil(t, tm)
		assert.Contains(t, err.Error(), "must be exactly 32 bytes")
	}
}

// ============================================================================
// Secret Generation Tests
// ============================================================================

func TestTOTPManager_GenerateSecret_Success(t *testing.T) {
	tm := newTOTPManager(t)

	secret, uri, err := tm.GenerateSecret("user@example.com")
	assert.NoError(t, err)
	assert.Len(t, secret, 32) // 20 random bytes -> 32 chars of base32
	assert.Contains(t, uri, "otpauth://totp/")
	assert.Contains(t, uri, "issuer=ChatForge")
}

func TestTOTPManager_GenerateSecret_UniquePerCall(t *testing.T) {
	tm := newTOTPManager(t)

	s1, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)
	s2, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2)
}

func TestTOTPManager_QRCodeDataURL_Format(t *testing.T) {
	tm := newTOTPManager(t)

	_, uri, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	qrCode, err := tm.QRCodeDataURL(uri)
	require.NoError(t, err)

	// QR code should be a data URL
	assert.True(t, strings.HasPrefix(qrCode, "data:image/png;base64,"))

	// Extract and decode base64 part
	pngData, err := base64.StdEncoding.DecodeString(qrCode[len("data:image/png;base64,"):])
	assert.NoError(t, err)
	require.Greater(t, len(pngData), 4)

	// PNG signature: 137 80 78 71
	assert.Equal(t, byte(137), pngData[0])
	assert.Equal(t, byte(80), pngData[1])
	assert.Equal(t, byte(78), pngData[2])
	assert.Equal(t, byte(71), pngData[3])
}

// ============================================================================
// Encryption/Decryption Tests - SECURITY CRITICAL
// ============================================================================

func TestTOTPManager_EncryptDecrypt_RoundTrip(t *testing.T) {
	tm := newTOTPManager(t)

	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	encrypted, nonce, err := tm.EncryptSecret(secret)
	require.NoError(t, err)
	assert.Equal(t, 12, len(nonce)) // GCM nonce is 12 bytes
	assert.NotContains(t, string(encrypted), secret)

	decrypted, err := tm.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, secret, decrypted)
}

func TestTOTPManager_DecryptSecret_TamperedCiphertext(t *testing.T) {
	tm := newTOTPManager(t)

	encrypted, nonce, err := tm.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	// Flip bits; GCM authentication must reject the result
	encrypted[0] ^= 0xFF

	decrypted, err := tm.DecryptSecret(encrypted, nonce)
	assert.Error(t, err)
	assert.Empty(t, decrypted)
	assert.Contains(t, err.Error(), "failed to decrypt")
}

func TestTOTPManager_DecryptSecret_WrongNonce(t *testing.T) {
	tm := newTOTPManager(t)

	encrypted, _, err := tm.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	wrongNonce := make([]byte, 12)
	_, err = rand.Read(wrongNonce)
	require.NoError(t, err)

	decrypted, err := tm.DecryptSecret(encrypted, wrongNonce)
	assert.Error(t, err)
	assert.Empty(t, decrypted)
}

func TestTOTPManager_DecryptSecret_WrongKey(t *testing.T) {
	tm := newTOTPManager(t)
	other := newTOTPManager(t)

	encrypted, nonce, err := tm.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	// A different process key must fail loudly, never return garbage
	decrypted, err := other.DecryptSecret(encrypted, nonce)
	assert.Error(t, err)
	assert.Empty(t, decrypted)
}

// ============================================================================
// TOTP Validation Tests - SECURITY CRITICAL
// ============================================================================

func TestTOTPManager_ValidateCode_ValidCode(t *testing.T) {
	tm := newTOTPManager(t)

	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	valid, err := tm.ValidateCode(secret, code, 1)
	assert.NoError(t, err)
	assert.True(t, valid)
}

func TestTOTPManager_ValidateCode_AdjacentTimeSteps(t *testing.T) {
	tm := newTOTPManager(t)

	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	// Codes from the previous and next 30-second steps pass with skew=1
	for _, offset := range []time.Duration{-30 * time.Second, 30 * time.Second} {
		code, err := totp.GenerateCode(secret, time.Now().Add(offset))
		require.NoError(t, err)

		valid, err := tm.ValidateCode(secret, code, 1)
		assert.NoError(t, err)
		assert.True(t, valid, "code at offset %v should validate", offset)
	}
}

func TestTOTPManager_ValidateCode_ExpiredCode(t *testing.T) {
	tm := newTOTPManager(t)

	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	// 3 minutes ago: well outside the skew window
	expiredCode, err := totp.GenerateCode(secret, time.Now().Add(-3*time.Minute))
	require.NoError(t, err)

	valid, err := tm.ValidateCode(secret, expiredCode, 1)
	assert.NoError(t, err)
	assert.False(t, valid)
}

func TestTOTPManager_ValidateCode_ZeroSkewRejectsDrift(t *testing.T) {
	tm := newTOTPManager(t)

	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	// A code two full steps in the past never falls inside skew=0
	driftedCode, err := totp.GenerateCode(secret, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	valid, err := tm.ValidateCode(secret, driftedCode, 0)
	assert.NoError(t, err)
	assert.False(t, valid)
}
