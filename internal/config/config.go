package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the explicit, process-scoped configuration. Every component takes
// its slice of this struct through its constructor; there is no ambient
// global state.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Session  SessionConfig
	MFA      MFAConfig
	Lockout  LockoutConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string `validate:"required"`
	Port              int    `validate:"min=1,max=65535"`
	User              string `validate:"required"`
	Password          string `validate:"required"`
	Name              string `validate:"required"`
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port     string `validate:"required"`
	Env      string `validate:"oneof=development staging production"`
	LogLevel string
}

type AuthConfig struct {
	JWTSecret            string        `validate:"required,min=16"`
	AccessTokenExpiry    time.Duration `validate:"gt=0"`
	MFAChallengeExpiry   time.Duration `validate:"gt=0"`
	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
	TimingDelayOnSuccess bool
}

type SessionConfig struct {
	TTL           time.Duration `validate:"gt=0"` // refresh-token window; extended on refresh
	SweepInterval time.Duration `validate:"gt=0"`
}

type MFAConfig struct {
	// EncryptionKey is the process-wide AES-256 key for secrets at rest,
	// hex-encoded in the environment. Read-only after initialization.
	EncryptionKey   []byte `validate:"len=32"`
	Issuer          string `validate:"required"`
	BackupCodeCount int    `validate:"min=1"`
	TOTPSkew        uint
	EmailCodeExpiry time.Duration `validate:"gt=0"`
}

type LockoutConfig struct {
	FailureThreshold int           `validate:"min=1"`  // failures within the window before lockout
	Window           time.Duration `validate:"gt=0"`   // rolling lookback window
	Duration         time.Duration `validate:"gt=0"`   // auto-unlock delay
	AttemptRetention time.Duration `validate:"gt=0"`   // how long attempt rows are kept
	MFAForceScore    int           `validate:"min=0,max=100"` // risk score at which MFA is forced
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

// Load reads configuration from the environment (and .env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	mfaKeyHex := getEnv("MFA_ENCRYPTION_KEY", "")
	if mfaKeyHex == "" {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY is required")
	}
	mfaKey, err := hex.DecodeString(mfaKeyHex)
	if err != nil {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must be hex-encoded: %w", err)
	}
	if len(mfaKey) != 32 {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(mfaKey))
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "authkit"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      getEnv("ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:            jwtSecret,
			AccessTokenExpiry:    getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			MFAChallengeExpiry:   getEnvAsDuration("MFA_CHALLENGE_EXPIRY", 5*time.Minute),
			TimingDelayBaseMs:    getEnvAsInt("TIMING_DELAY_BASE_MS", 200),
			TimingDelayRandomMs:  getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
			TimingDelayOnSuccess: getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
		},
		Session: SessionConfig{
			TTL:           getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		},
		MFA: MFAConfig{
			EncryptionKey:   mfaKey,
			Issuer:          getEnv("MFA_ISSUER", "ChatForge"),
			BackupCodeCount: getEnvAsInt("MFA_BACKUP_CODE_COUNT", 10),
			TOTPSkew:        uint(getEnvAsInt("MFA_TOTP_SKEW", 1)),
			EmailCodeExpiry: getEnvAsDuration("MFA_EMAIL_CODE_EXPIRY", 10*time.Minute),
		},
		Lockout: LockoutConfig{
			FailureThreshold: getEnvAsInt("LOCKOUT_FAILURE_THRESHOLD", 5),
			Window:           getEnvAsDuration("LOCKOUT_WINDOW", 15*time.Minute),
			Duration:         getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			AttemptRetention: getEnvAsDuration("LOGIN_ATTEMPT_RETENTION", 90*24*time.Hour),
			MFAForceScore:    getEnvAsInt("LOCKOUT_MFA_FORCE_SCORE", 60),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
