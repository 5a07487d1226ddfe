package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/chatforge/authkit/internal/auth"
	"github.com/chatforge/authkit/internal/models"
	"github.com/chatforge/authkit/pkg/logger"
)

// MFAConfigRepository defines the interface for MFA configuration storage
type MFAConfigRepository interface {
	Create(ctx context.Context, c *models.MFAConfiguration) (*models.MFAConfiguration, error)
	GetByUserAndMethod(ctx context.Context, userID string, method models.MFAMethod) (*models.MFAConfiguration, error)
	MarkEnabled(ctx context.Context, configID string, at time.Time) error
	UpdateLastUsed(ctx context.Context, configID string, at time.Time) error
	ReplaceBackupCodes(ctx context.Context, configID string, entries []models.BackupCodeEntry, usedAt time.Time) error
	Disable(ctx context.Context, userID string) (bool, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// EmailOTPRepository defines the interface for email one-time code storage
type EmailOTPRepository interface {
	Create(ctx context.Context, otp *models.EmailOTP) error
	GetPending(ctx context.Context, userID string, now time.Time) (*models.EmailOTP, error)
	Consume(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserMFAFlagger records the user-level MFA flag checked at login
type UserMFAFlagger interface {
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
}

// MFAServiceConfig holds MFA behavior configuration
type MFAServiceConfig struct {
	BackupCodeCount int
	TOTPSkew        uint
	EmailCodeExpiry time.Duration
}

// MFAService manages second-factor enrollment and verification. Setup is a
// two-phase handshake: SetupTOTP stores a disabled configuration and returns
// the secret exactly once; ConfirmSetup flips it on only after the user
// proves possession by submitting a valid code.
type MFAService struct {
	configs MFAConfigRepository
	otps    EmailOTPRepository
	users   UserMFAFlagger
	events  SecurityEventRecorder
	totp    *auth.TOTPManager
	email   EmailSender
	config  MFAServiceConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewMFAService creates a new MFAService
func NewMFAService(
	configs MFAConfigRepository,
	otps EmailOTPRepository,
	users UserMFAFlagger,
	events SecurityEventRecorder,
	totpManager *auth.TOTPManager,
	email EmailSender,
	config MFAServiceConfig,
	logger *slog.Logger,
) *MFAService {
	return &MFAService{
		configs: configs,
		otps:    otps,
		users:   users,
		events:  events,
		totp:    totpManager,
		email:   email,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// SetupTOTP begins TOTP enrollment. Returns the provisioning material and
// plaintext backup codes exactly once; the configuration stays disabled until
// ConfirmSetup succeeds. Returns ErrMFAAlreadyEnabled if an enabled TOTP
// configuration already exists.
func (s *MFAService) SetupTOTP(ctx context.Context, userID, email string) (*models.MFASetupResult, error) {
	existing, err := s.configs.GetByUserAndMethod(ctx, userID, models.MFAMethodTOTP)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing MFA configuration", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if existing != nil && existing.IsEnabled {
		return nil, models.ErrMFAAlreadyEnabled
	}
	if existing != nil {
		// Abandoned setup: discard it so enrollment can restart cleanly.
		if err := s.configs.DeleteByUser(ctx, userID); err != nil {
			s.logger.Error("failed to clear pending MFA configuration", slog.String("user_id", userID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	secret, provisioningURI, err := s.totp.GenerateSecret(email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	qrCode, err := s.totp.QRCodeDataURL(provisioningURI)
	if err != nil {
		s.logger.Error("failed to render QR code", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	encrypted, nonce, err := s.totp.EncryptSecret(secret)
	if err != nil {
		s.logger.Error("failed to encrypt TOTP secret", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	plainCodes, entries, err := s.mintBackupCodes()
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	config, err := s.configs.Create(ctx, &models.MFAConfiguration{
		UserID:          userID,
		Method:          models.MFAMethodTOTP,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
		BackupCodes:     entries,
	})
	if err != nil {
		s.logger.Error("failed to store MFA configuration", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.events.Record(ctx, &models.SecurityEvent{
		EventType: models.EventTypeMFASetup,
		UserID:    &userID,
		RiskLevel: models.RiskLevelLow,
		Success:   true,
		Details:   models.EventMetadata{"method": string(models.MFAMethodTOTP)},
	})

	s.logger.Info("TOTP setup started", slog.String("user_id", userID))

	return &models.MFASetupResult{
		ConfigurationID: config.ID,
		Secret:          secret,
		OTPAuthURL:      provisioningURI,
		QRCode:          qrCode,
		BackupCodes:     plainCodes,
	}, nil
}

// ConfirmSetup completes enrollment by verifying the user's first code
// against the stored secret. Only this transition enables the configuration
// and sets the user-level MFA flag. Returns ErrInvalidCredential for a wrong
// code, ErrNotFound when no pending setup exists.
func (s *MFAService) ConfirmSetup(ctx context.Context, userID, code string) error {
	config, err := s.configs.GetByUserAndMethod(ctx, userID, models.MFAMethodTOTP)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load MFA configuration", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if config.IsEnabled {
		return models.ErrMFAAlreadyEnabled
	}

	valid, err := s.validateTOTP(config, code)
	if err != nil {
		return err
	}
	if !valid {
		s.recordMFAFailure(ctx, userID, "setup_confirmation")
		return models.ErrInvalidCredential
	}

	now := s.now()
	if err := s.configs.MarkEnabled(ctx, config.ID, now); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Lost the race with a concurrent confirmation; already enabled.
			return models.ErrMFAAlreadyEnabled
		}
		s.logger.Error("failed to enable MFA configuration", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.SetMFAEnabled(ctx, userID, true); err != nil {
		s.logger.Error("failed to set user MFA flag", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.events.Record(ctx, &models.SecurityEvent{
		EventType: models.EventTypeMFAEnabled,
		UserID:    &userID,
		RiskLevel: models.RiskLevelLow,
		Success:   true,
		Details:   models.EventMetadata{"method": string(models.MFAMethodTOTP)},
	})

	s.logger.Info("MFA enabled", slog.String("user_id", userID))
	return nil
}

// VerifyTOTP checks a time-based code against the user's enabled
// configuration. Verification is stateless with respect to the secret; only
// last_used_at is touched on success.
func (s *MFAService) VerifyTOTP(ctx context.Context, userID, code string) error {
	config, err := s.enabledConfig(ctx, userID, models.MFAMethodTOTP)
	if err != nil {
		return err
	}

	valid, err := s.validateTOTP(config, code)
	if err != nil {
		return err
	}
	if !valid {
		s.recordMFAFailure(ctx, userID, string(models.MFAMethodTOTP))
		return models.ErrInvalidCredential
	}

	if err := s.configs.UpdateLastUsed(ctx, config.ID, s.now()); err != nil {
		s.logger.Error("failed to update MFA last used", slog.String("user_id", userID), slog.Any("error", err))
	}

	return nil
}

// VerifyBackupCode checks a recovery code against the stored list and burns
// it on success: the entry is marked used in the same statement that records
// the use, so a code can never verify twice. A resubmitted consumed code is
// recognized and returns ErrReplayedCode; callers present it to the user as
// an ordinary invalid credential. Returns the count of unused codes left.
func (s *MFAService) VerifyBackupCode(ctx context.Context, userID, code string) (int, error) {
	config, err := s.enabledConfig(ctx, userID, models.MFAMethodTOTP)
	if err != nil {
		return 0, err
	}

	matchIdx := -1
	for i := range config.BackupCodes {
		if auth.MatchBackupCode(config.BackupCodes[i].CodeHash, code) {
			matchIdx = i
			break
		}
	}

	if matchIdx < 0 {
		s.recordMFAFailure(ctx, userID, string(models.MFAMethodBackupCode))
		return 0, models.ErrInvalidCredential
	}

	if config.BackupCodes[matchIdx].IsUsed() {
		s.events.Record(ctx, &models.SecurityEvent{
			EventType: models.EventTypeBackupCodeReplayed,
			UserID:    &userID,
			RiskLevel: models.RiskLevelHigh,
			Success:   false,
			Details:   models.EventMetadata{"first_used_at": config.BackupCodes[matchIdx].UsedAt},
		})
		s.logger.Warn("consumed backup code resubmitted", slog.String("user_id", userID))
		return 0, models.ErrReplayedCode
	}

	now := s.now()
	config.BackupCodes[matchIdx].UsedAt = &now

	if err := s.configs.ReplaceBackupCodes(ctx, config.ID, config.BackupCodes, now); err != nil {
		s.logger.Error("failed to consume backup code", slog.String("user_id", userID), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	remaining := 0
	for i := range config.BackupCodes {
		if !config.BackupCodes[i].IsUsed() {
			remaining++
		}
	}

	s.events.Record(ctx, &models.SecurityEvent{
		EventType: models.EventTypeBackupCodeUsed,
		UserID:    &userID,
		RiskLevel: models.RiskLevelMedium,
		Success:   true,
		Details:   models.EventMetadata{"remaining_codes": remaining},
	})

	s.logger.Info("backup code used",
		slog.String("user_id", userID),
		slog.Int("remaining", remaining))

	return remaining, nil
}

// RegenerateBackupCodes replaces the full backup-code set. Every previously
// issued code stops working immediately. Returns the new plaintext codes,
// available exactly once.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	config, err := s.enabledConfig(ctx, userID, models.MFAMethodTOTP)
	if err != nil {
		return nil, err
	}

	plainCodes, entries, err := s.mintBackupCodes()
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.configs.ReplaceBackupCodes(ctx, config.ID, entries, s.now()); err != nil {
		s.logger.Error("failed to store backup codes", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("backup codes regenerated", slog.String("user_id", userID))
	return plainCodes, nil
}

// SendEmailCode generates a 6-digit code, stores its hash, and delivers the
// plaintext by email. Any previously pending code for the user is replaced.
func (s *MFAService) SendEmailCode(ctx context.Context, userID, email string) error {
	code, err := generateNumericCode(6)
	if err != nil {
		s.logger.Error("failed to generate email code", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), auth.BackupCodeBcryptCost)
	if err != nil {
		s.logger.Error("failed to hash email code", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := s.now()
	if err := s.otps.Create(ctx, &models.EmailOTP{
		UserID:    userID,
		CodeHash:  string(hash),
		SentTo:    email,
		ExpiresAt: now.Add(s.config.EmailCodeExpiry),
	}); err != nil {
		s.logger.Error("failed to store email code", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	expiryMinutes := int(s.config.EmailCodeExpiry.Minutes())
	if err := s.email.SendMFACode(ctx, email, code, expiryMinutes); err != nil {
		return models.ErrInternalServer
	}

	s.logger.Info("email MFA code sent",
		slog.String("user_id", userID),
		slog.String("email", logger.SanitizedEmail(email)))

	return nil
}

// VerifyEmailCode checks a delivered code and consumes it on success.
// Expired or absent codes fail as ErrInvalidCredential.
func (s *MFAService) VerifyEmailCode(ctx context.Context, userID, code string) error {
	otp, err := s.otps.GetPending(ctx, userID, s.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recordMFAFailure(ctx, userID, string(models.MFAMethodEmail))
			return models.ErrInvalidCredential
		}
		s.logger.Error("failed to load pending email code", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(code)) != nil {
		s.recordMFAFailure(ctx, userID, string(models.MFAMethodEmail))
		return models.ErrInvalidCredential
	}

	if err := s.otps.Consume(ctx, otp.ID); err != nil {
		s.logger.Error("failed to consume email code", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}

// Disable turns MFA off for a user: secrets and backup codes are cleared and
// the user-level flag drops. Returns ErrMFANotEnabled when nothing was on.
func (s *MFAService) Disable(ctx context.Context, userID string) error {
	disabled, err := s.configs.Disable(ctx, userID)
	if err != nil {
		s.logger.Error("failed to disable MFA", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !disabled {
		return models.ErrMFANotEnabled
	}

	if err := s.users.SetMFAEnabled(ctx, userID, false); err != nil {
		s.logger.Error("failed to clear user MFA flag", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.events.Record(ctx, &models.SecurityEvent{
		EventType: models.EventTypeMFADisabled,
		UserID:    &userID,
		RiskLevel: models.RiskLevelMedium,
		Success:   true,
	})

	s.logger.Info("MFA disabled", slog.String("user_id", userID))
	return nil
}

// Verify dispatches a challenge response by method
func (s *MFAService) Verify(ctx context.Context, userID string, method models.MFAMethod, code string) error {
	switch method {
	case models.MFAMethodTOTP:
		return s.VerifyTOTP(ctx, userID, code)
	case models.MFAMethodBackupCode:
		_, err := s.VerifyBackupCode(ctx, userID, code)
		return err
	case models.MFAMethodEmail:
		return s.VerifyEmailCode(ctx, userID, code)
	default:
		return models.ErrBadRequest
	}
}

// CleanupExpiredCodes prunes stale email one-time codes
func (s *MFAService) CleanupExpiredCodes(ctx context.Context) (int64, error) {
	count, err := s.otps.DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to cleanup expired email codes", slog.Any("error", err))
		return 0, err
	}
	return count, nil
}

func (s *MFAService) enabledConfig(ctx context.Context, userID string, method models.MFAMethod) (*models.MFAConfiguration, error) {
	config, err := s.configs.GetByUserAndMethod(ctx, userID, method)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrMFANotEnabled
		}
		s.logger.Error("failed to load MFA configuration", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !config.IsEnabled {
		return nil, models.ErrMFANotEnabled
	}
	return config, nil
}

func (s *MFAService) validateTOTP(config *models.MFAConfiguration, code string) (bool, error) {
	secret, err := s.totp.DecryptSecret(config.SecretEncrypted, config.SecretNonce)
	if err != nil {
		// Wrong process key or corrupted ciphertext; surface loudly.
		s.logger.Error("failed to decrypt TOTP secret",
			slog.String("configuration_id", config.ID),
			slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	valid, err := s.totp.ValidateCode(secret, code, s.config.TOTPSkew)
	if err != nil {
		s.logger.Error("failed to validate TOTP code", slog.String("configuration_id", config.ID), slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	return valid, nil
}

func (s *MFAService) mintBackupCodes() ([]string, []models.BackupCodeEntry, error) {
	codes, err := auth.GenerateBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	formatted := make([]string, len(codes))
	entries := make([]models.BackupCodeEntry, len(codes))
	for i, code := range codes {
		hash, err := auth.HashBackupCode(code)
		if err != nil {
			return nil, nil, err
		}
		formatted[i] = auth.FormatBackupCode(code)
		entries[i] = models.BackupCodeEntry{CodeHash: hash, CreatedAt: now}
	}

	return formatted, entries, nil
}

func (s *MFAService) recordMFAFailure(ctx context.Context, userID, method string) {
	s.events.Record(ctx, &models.SecurityEvent{
		EventType: models.EventTypeMFAFailed,
		UserID:    &userID,
		RiskLevel: models.RiskLevelMedium,
		Success:   false,
		Details:   models.EventMetadata{"method": method},
	})
}

func generateNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	return fmt.Sprintf("%0*d", digits, n), nil
}
