package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatforge/authkit/internal/models"
)

// SessionRepository defines the interface for session database operations
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	Extend(ctx context.Context, sessionID string, now, newExpiry time.Time) (*models.Session, error)
	Terminate(ctx context.Context, sessionID, reason string, now time.Time) (bool, error)
	TerminateByUserID(ctx context.Context, userID, excludeSessionID, reason string, now time.Time) (int, error)
	TerminateExpired(ctx context.Context, now time.Time) (int64, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.Session, error)
	GetStatistics(ctx context.Context, userID string, now time.Time) (*models.SessionStats, error)
}

// SessionConfig holds session lifecycle configuration
type SessionConfig struct {
	TTL time.Duration
}

// createRetries bounds id regeneration on the (vanishing) chance of a
// uuid collision surfacing as a unique-constraint violation.
const createRetries = 3

// SessionService is the authoritative source of truth for whether a bearer
// token is still valid, and for multi-device session visibility.
type SessionService struct {
	repo   SessionRepository
	events SecurityEventRecorder
	config SessionConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(repo SessionRepository, events SecurityEventRecorder, config SessionConfig, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:   repo,
		events: events,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Create opens a session for a freshly authenticated user. Returns the
// session and the plaintext refresh token; only the token's SHA-256 hash is
// persisted, so the plaintext is available to the caller exactly once.
func (s *SessionService) Create(ctx context.Context, userID string, device models.DeviceInfo) (*models.Session, string, error) {
	refreshToken, err := generateRefreshToken()
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}

	now := s.now()
	session := &models.Session{
		UserID:            userID,
		RefreshTokenHash:  hashRefreshToken(refreshToken),
		DeviceFingerprint: device.Fingerprint,
		DeviceType:        models.ParseDeviceType(device.UserAgent),
		IPAddress:         device.IPAddress,
		UserAgent:         device.UserAgent,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(s.config.TTL),
		IsActive:          true,
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		session.ID = uuid.New().String()

		err = s.repo.Create(ctx, session)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrConflict) {
			s.logger.Error("failed to create session",
				slog.String("user_id", userID),
				slog.Any("error", err))
			return nil, "", models.ErrInternalServer
		}
	}
	if err != nil {
		s.logger.Error("session id collisions exhausted retries", slog.String("user_id", userID))
		return nil, "", models.ErrInternalServer
	}

	s.events.Record(ctx, &models.SecurityEvent{
		EventType: models.EventTypeLoginSuccess,
		UserID:    &session.UserID,
		SessionID: &session.ID,
		IPAddress: &session.IPAddress,
		UserAgent: &session.UserAgent,
		RiskLevel: models.RiskLevelLow,
		Success:   true,
		Details: models.EventMetadata{
			"device_type": string(session.DeviceType),
		},
	})

	s.logger.Info("session created",
		slog.String("session_id", session.ID),
		slog.String("user_id", userID),
		slog.String("device_type", string(session.DeviceType)))

	return session, refreshToken, nil
}

// Validate is the read-time authorization check. It returns ErrNotFound for
// a missing session and ErrSessionExpired for one that exists but is
// terminated or past expiry; callers treat both as unauthorized but may log
// them differently. Expiry is checked here against the clock, never deferred
// to the sweep job.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load session", slog.String("session_id", sessionID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !session.IsActive || session.IsExpired(s.now()) {
		return nil, models.ErrSessionExpired
	}

	return session, nil
}

// Refresh extends an active session's expiry by the TTL window and advances
// last_activity. The session id never changes across refreshes. Returns
// ErrNotFound / ErrSessionExpired when the session cannot be refreshed.
func (s *SessionService) Refresh(ctx context.Context, sessionID string) (*models.Session, error) {
	now := s.now()

	session, err := s.repo.Extend(ctx, sessionID, now, now.Add(s.config.TTL))
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to refresh session", slog.String("session_id", sessionID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// The conditional update matched nothing: distinguish missing from
	// expired/terminated for the caller's logs.
	if _, getErr := s.repo.GetByID(ctx, sessionID); errors.Is(getErr, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	return nil, models.ErrSessionExpired
}

// RefreshByToken verifies the presented refresh token against the stored
// hash before extending. The comparison is constant-time.
func (s *SessionService) RefreshByToken(ctx context.Context, sessionID, refreshToken string) (*models.Session, error) {
	session, err := s.Validate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	presented := hashRefreshToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(session.RefreshTokenHash)) != 1 {
		s.logger.Warn("refresh token mismatch", slog.String("session_id", sessionID))
		return nil, models.ErrInvalidCredential
	}

	return s.Refresh(ctx, sessionID)
}

// Terminate soft-deletes a session. Idempotent: returns false (and no error)
// when the session was already inactive. A terminated session is never
// reactivated.
func (s *SessionService) Terminate(ctx context.Context, sessionID, reason string) (bool, error) {
	terminated, err := s.repo.Terminate(ctx, sessionID, reason, s.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, models.ErrNotFound
		}
		s.logger.Error("failed to terminate session", slog.String("session_id", sessionID), slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	if terminated {
		s.events.Record(ctx, &models.SecurityEvent{
			EventType: models.EventTypeLogout,
			SessionID: &sessionID,
			RiskLevel: models.RiskLevelLow,
			Success:   true,
			Details:   models.EventMetadata{"reason": reason},
		})
		s.logger.Info("session terminated",
			slog.String("session_id", sessionID),
			slog.String("reason", reason))
	}

	return terminated, nil
}

// TerminateUserSessions bulk-terminates a user's active sessions, sparing
// excludeSessionID when non-empty ("logout everywhere else"). Returns the
// count terminated.
func (s *SessionService) TerminateUserSessions(ctx context.Context, userID, excludeSessionID, reason string) (int, error) {
	count, err := s.repo.TerminateByUserID(ctx, userID, excludeSessionID, reason, s.now())
	if err != nil {
		s.logger.Error("failed to terminate user sessions", slog.String("user_id", userID), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if count > 0 {
		s.events.Record(ctx, &models.SecurityEvent{
			EventType: models.EventTypeLogoutAll,
			UserID:    &userID,
			RiskLevel: models.RiskLevelLow,
			Success:   true,
			Details: models.EventMetadata{
				"terminated_count": count,
				"reason":           reason,
			},
		})
	}

	s.logger.Info("user sessions terminated",
		slog.String("user_id", userID),
		slog.Int("count", count))

	return count, nil
}

// CleanupExpired is the sweep job: it marks inactive every session past
// expiry. Each row transition is independent, so concurrent sweeps are safe
// and the operation is idempotent.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.TerminateExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to cleanup expired sessions", slog.Any("error", err))
		return 0, err
	}

	if count > 0 {
		s.logger.Info("expired sessions cleaned up", slog.Int64("count", count))
	}

	return count, nil
}

// List returns all sessions for a user, newest first
func (s *SessionService) List(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list sessions", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return sessions, nil
}

// GetStatistics aggregates session counts for dashboards
func (s *SessionService) GetStatistics(ctx context.Context, userID string) (*models.SessionStats, error) {
	stats, err := s.repo.GetStatistics(ctx, userID, s.now())
	if err != nil {
		s.logger.Error("failed to get session statistics", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return stats, nil
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
