package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTP parameters compatible with standard authenticator apps:
// 6-digit codes, 30-second step, HMAC-SHA1.
const (
	totpPeriod     = 30
	totpSecretSize = 20 // 20 random bytes -> 32-char base32 secret
)

// TOTPManager handles TOTP secret lifecycle: generation, encryption at rest,
// provisioning URIs, and code validation.
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key, read-only after construction
	issuer        string
}

// NewTOTPManager creates a new TOTP manager.
// encryptionKey must be exactly 32 bytes for AES-256.
func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
	}, nil
}

// GenerateSecret creates a fresh TOTP secret for the given account label.
// Returns the base32 secret and its otpauth:// provisioning URI.
func (tm *TOTPManager) GenerateSecret(accountLabel string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountLabel,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

// QRCodeDataURL renders a provisioning URI as a PNG data URL for enrollment.
func (tm *TOTPManager) QRCodeDataURL(provisioningURI string) (string, error) {
	qr, err := qrcode.New(provisioningURI, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// ValidateCode checks a submitted code against a base32 secret.
// skew is the number of adjacent 30-second steps accepted on either side of
// now; skew=1 tolerates common clock drift. Does not mutate state.
func (tm *TOTPManager) ValidateCode(secret, code string, skew uint) (bool, error) {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP code: %w", err)
	}

	return valid, nil
}

// EncryptSecret encrypts a TOTP secret with AES-256-GCM.
// Returns the ciphertext and the random 12-byte nonce.
func (tm *TOTPManager) EncryptSecret(secret string) ([]byte, []byte, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, []byte(secret), nil), nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP secret. A failure here means the
// ciphertext is corrupted or the process key is wrong; it is a deployment
// error, never user input, and must not be swallowed.
func (tm *TOTPManager) DecryptSecret(encrypted, nonce []byte) (string, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}
