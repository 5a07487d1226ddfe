package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-0123456789abcdef")
	t.Setenv("MFA_ENCRYPTION_KEY", strings.Repeat("ab", 32)) // 32 bytes hex-encoded
	t.Setenv("DB_PASSWORD", "postgres")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 5*time.Minute, cfg.Auth.MFAChallengeExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	assert.Len(t, cfg.MFA.EncryptionKey, 32)
	assert.Equal(t, 10, cfg.MFA.BackupCodeCount)
	assert.Equal(t, 5, cfg.Lockout.FailureThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Lockout.Window)
	assert.Equal(t, 30*time.Minute, cfg.Lockout.Duration)
	assert.Equal(t, 90*24*time.Hour, cfg.Lockout.AttemptRetention)
	assert.Equal(t, 60, cfg.Lockout.MFAForceScore)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_TTL", "24h")
	t.Setenv("LOCKOUT_FAILURE_THRESHOLD", "3")
	t.Setenv("LOCKOUT_DURATION", "10m")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 3, cfg.Lockout.FailureThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Lockout.Duration)
	assert.Equal(t, "production", cfg.Server.Env)
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("MFA_ENCRYPTION_KEY", strings.Repeat("ab", 32))
	t.Setenv("DB_PASSWORD", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_MissingDBPassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-0123456789abcdef")
	t.Setenv("MFA_ENCRYPTION_KEY", strings.Repeat("ab", 32))
	t.Setenv("DB_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")
}

func TestLoad_MFAKeyNotHex(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MFA_ENCRYPTION_KEY", "not-hex-at-all")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hex")
}

func TestLoad_MFAKeyWrongLength(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MFA_ENCRYPTION_KEY", strings.Repeat("ab", 16)) // 16 bytes, not 32

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestLoad_InvalidEnvName(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV", "sandbox")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ShortJWTSecretRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "too-short")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "authkit",
		Password: "s3cret",
		Name:     "authkit",
		SSLMode:  "require",
	}

	dsn := cfg.DSN()
	assert.Equal(t, "host=db.internal port=5433 user=authkit password=s3cret dbname=authkit sslmode=require", dsn)
}
