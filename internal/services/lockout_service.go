package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chatforge/authkit/internal/models"
	"github.com/chatforge/authkit/pkg/logger"
)

// LoginAttemptRepository defines the interface for the append-only attempt log
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	MarkMFACompleted(ctx context.Context, attemptID string) error
	CountFailures(ctx context.Context, email string, since time.Time) (int, error)
	HasSeenIP(ctx context.Context, email, ipAddress string) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LockoutRepository defines the interface for account lockout storage
type LockoutRepository interface {
	Create(ctx context.Context, l *models.AccountLockout) (*models.AccountLockout, error)
	GetActiveByEmail(ctx context.Context, email string) (*models.AccountLockout, error)
	Release(ctx context.Context, lockoutID string, at time.Time) (bool, error)
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
	ListByEmail(ctx context.Context, email string, limit int) ([]*models.AccountLockout, error)
}

// LockoutPolicyConfig holds brute-force policy parameters
type LockoutPolicyConfig struct {
	FailureThreshold int           // failures within the window before lockout
	Window           time.Duration // rolling lookback window
	Duration         time.Duration // auto-unlock delay
	AttemptRetention time.Duration
	MFAForceScore    int // risk score at which MFA is forced
}

// Risk score weights. Recent failures dominate; the remaining terms flag
// anomalous context. The sum is clamped to [0,100].
const (
	riskPerFailure   = 10
	riskFailureCap   = 50
	riskNewIP        = 25
	riskMFARequired  = 15
	riskOffHours     = 10
	offHoursStartUTC = 22
	offHoursEndUTC   = 6
)

// LockoutService enforces the brute-force policy over the append-only
// attempt log. Lockout release is read-time: an expired lockout stops
// blocking the moment its deadline passes, whether or not the sweep job has
// run.
type LockoutService struct {
	attempts LoginAttemptRepository
	lockouts LockoutRepository
	events   SecurityEventRecorder
	config   LockoutPolicyConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(
	attempts LoginAttemptRepository,
	lockouts LockoutRepository,
	events SecurityEventRecorder,
	config LockoutPolicyConfig,
	logger *slog.Logger,
) *LockoutService {
	return &LockoutService{
		attempts: attempts,
		lockouts: lockouts,
		events:   events,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckAccess gates every login against the active lockout for the email.
// A lockout whose auto-unlock deadline has passed is released inline and no
// longer blocks; one still in force returns ErrAccountLocked.
func (s *LockoutService) CheckAccess(ctx context.Context, email string) error {
	lockout, err := s.lockouts.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		s.logger.Error("failed to check lockout", slog.String("email", logger.SanitizedEmail(email)), slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := s.now()
	if lockout.IsReleasable(now) {
		if _, err := s.lockouts.Release(ctx, lockout.ID, now); err != nil {
			s.logger.Error("failed to release expired lockout", slog.String("lockout_id", lockout.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}

		s.events.Record(ctx, &models.SecurityEvent{
			EventType: models.EventTypeAccountUnlocked,
			UserID:    lockout.UserID,
			Email:     &lockout.Email,
			RiskLevel: models.RiskLevelLow,
			Success:   true,
			Details:   models.EventMetadata{"trigger": "auto_unlock"},
		})

		return nil
	}

	return models.ErrAccountLocked
}

// AttemptContext carries the request attributes the risk score reads
type AttemptContext struct {
	Email             string
	UserID            *string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Success           bool
	FailureReason     string
	MFARequired       bool
}

// AttemptResult reports the recorded attempt and the policy outcome
type AttemptResult struct {
	Attempt   *models.LoginAttempt
	RiskScore int
	ForceMFA  bool
	Locked    bool
}

// RecordAttempt appends an immutable attempt row with its computed risk
// score, and locks the account when failures within the rolling window reach
// the threshold. The attempt that trips the threshold is marked blocked.
func (s *LockoutService) RecordAttempt(ctx context.Context, ac AttemptContext) (*AttemptResult, error) {
	now := s.now()

	score, err := s.riskScore(ctx, ac, now)
	if err != nil {
		return nil, err
	}

	attempt := &models.LoginAttempt{
		Email:             ac.Email,
		UserID:            ac.UserID,
		IPAddress:         ac.IPAddress,
		UserAgent:         ac.UserAgent,
		DeviceFingerprint: ac.DeviceFingerprint,
		Success:           ac.Success,
		MFARequired:       ac.MFARequired,
		RiskScore:         score,
		AttemptedAt:       now,
	}
	if ac.FailureReason != "" {
		attempt.FailureReason = &ac.FailureReason
	}

	// Pending-MFA attempts are unresolved, not failures; they never count
	// toward the lockout threshold.
	locked := false
	if !ac.Success && ac.FailureReason != models.FailureReasonMFAPending {
		failures, err := s.attempts.CountFailures(ctx, ac.Email, now.Add(-s.config.Window))
		if err != nil {
			s.logger.Error("failed to count failures", slog.String("email", logger.SanitizedEmail(ac.Email)), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		// This attempt is not yet in the count.
		if failures+1 >= s.config.FailureThreshold {
			attempt.Blocked = true
			locked = true
		}
	}

	if err := s.attempts.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.String("email", logger.SanitizedEmail(ac.Email)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if locked {
		if err := s.lock(ctx, ac, now); err != nil {
			return nil, err
		}
	}

	return &AttemptResult{
		Attempt:   attempt,
		RiskScore: score,
		ForceMFA:  score >= s.config.MFAForceScore,
		Locked:    locked,
	}, nil
}

// MarkMFACompleted finalizes the attempt row created before the MFA
// challenge resolved
func (s *LockoutService) MarkMFACompleted(ctx context.Context, attemptID string) error {
	if err := s.attempts.MarkMFACompleted(ctx, attemptID); err != nil {
		s.logger.Error("failed to mark attempt MFA completed", slog.String("attempt_id", attemptID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// AdminUnlock releases an active lockout ahead of its deadline
func (s *LockoutService) AdminUnlock(ctx context.Context, email string) error {
	lockout, err := s.lockouts.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load lockout", slog.String("email", logger.SanitizedEmail(email)), slog.Any("error", err))
		return models.ErrInternalServer
	}

	released, err := s.lockouts.Release(ctx, lockout.ID, s.now())
	if err != nil {
		s.logger.Error("failed to release lockout", slog.String("lockout_id", lockout.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !released {
		return models.ErrNotFound
	}

	s.events.Record(ctx, &models.SecurityEvent{
		EventType: models.EventTypeAccountUnlocked,
		UserID:    lockout.UserID,
		Email:     &lockout.Email,
		RiskLevel: models.RiskLevelMedium,
		Success:   true,
		Details:   models.EventMetadata{"trigger": "admin"},
	})

	s.logger.Info("account unlocked by admin", slog.String("email", logger.SanitizedEmail(email)))
	return nil
}

// ReleaseExpiredLockouts is the sweep counterpart to the read-time release
// in CheckAccess. Idempotent; safe under concurrent sweeps.
func (s *LockoutService) ReleaseExpiredLockouts(ctx context.Context) (int64, error) {
	count, err := s.lockouts.ReleaseExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to release expired lockouts", slog.Any("error", err))
		return 0, err
	}

	if count > 0 {
		s.logger.Info("expired lockouts released", slog.Int64("count", count))
	}

	return count, nil
}

// PruneAttempts deletes attempt rows past the retention horizon
func (s *LockoutService) PruneAttempts(ctx context.Context) (int64, error) {
	count, err := s.attempts.DeleteOlderThan(ctx, s.now().Add(-s.config.AttemptRetention))
	if err != nil {
		s.logger.Error("failed to prune login attempts", slog.Any("error", err))
		return 0, err
	}

	if count > 0 {
		s.logger.Info("login attempts pruned", slog.Int64("count", count))
	}

	return count, nil
}

// LockoutHistory returns past lockouts for an email, newest first
func (s *LockoutService) LockoutHistory(ctx context.Context, email string, limit int) ([]*models.AccountLockout, error) {
	lockouts, err := s.lockouts.ListByEmail(ctx, email, limit)
	if err != nil {
		s.logger.Error("failed to list lockouts", slog.String("email", logger.SanitizedEmail(email)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return lockouts, nil
}

func (s *LockoutService) lock(ctx context.Context, ac AttemptContext, now time.Time) error {
	unlockAt := now.Add(s.config.Duration)
	lockout := &models.AccountLockout{
		UserID:             ac.UserID,
		Email:              ac.Email,
		IPAddress:          ac.IPAddress,
		Reason:             models.LockoutReasonFailedAttempts,
		FailedAttemptCount: s.config.FailureThreshold,
		LockedAt:           now,
		AutoUnlockAt:       &unlockAt,
	}

	if _, err := s.lockouts.Create(ctx, lockout); err != nil {
		// A conflict means another writer locked the account between our
		// check and insert; the account is locked either way.
		if errors.Is(err, models.ErrConflict) {
			return nil
		}
		s.logger.Error("failed to create lockout", slog.String("email", logger.SanitizedEmail(ac.Email)), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.events.Record(ctx, &models.SecurityEvent{
		EventType: models.EventTypeAccountLocked,
		UserID:    ac.UserID,
		Email:     &ac.Email,
		IPAddress: &ac.IPAddress,
		RiskLevel: models.RiskLevelHigh,
		Success:   true,
		Details: models.EventMetadata{
			"failed_attempts": s.config.FailureThreshold,
			"auto_unlock_at":  unlockAt,
		},
	})

	s.logger.Warn("account locked",
		slog.String("email", logger.SanitizedEmail(ac.Email)),
		slog.Time("auto_unlock_at", unlockAt))

	return nil
}

// riskScore weighs the attempt's context. Failures within the window
// dominate; a never-seen source IP, an MFA requirement, and off-hours timing
// each add a fixed term.
func (s *LockoutService) riskScore(ctx context.Context, ac AttemptContext, now time.Time) (int, error) {
	failures, err := s.attempts.CountFailures(ctx, ac.Email, now.Add(-s.config.Window))
	if err != nil {
		s.logger.Error("failed to count failures for risk score", slog.String("email", logger.SanitizedEmail(ac.Email)), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	score := failures * riskPerFailure
	if score > riskFailureCap {
		score = riskFailureCap
	}

	seen, err := s.attempts.HasSeenIP(ctx, ac.Email, ac.IPAddress)
	if err != nil {
		s.logger.Error("failed to check IP history", slog.String("email", logger.SanitizedEmail(ac.Email)), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	if !seen {
		score += riskNewIP
	}

	if ac.MFARequired {
		score += riskMFARequired
	}

	hour := now.UTC().Hour()
	if hour >= offHoursStartUTC || hour < offHoursEndUTC {
		score += riskOffHours
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return score, nil
}
