package services

import (
	"context"
	"time"

	"github.com/chatforge/authkit/internal/models"
)

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc            func(ctx context.Context, s *models.Session) error
	GetByIDFunc           func(ctx context.Context, sessionID string) (*models.Session, error)
	ExtendFunc            func(ctx context.Context, sessionID string, now, newExpiry time.Time) (*models.Session, error)
	TerminateFunc         func(ctx context.Context, sessionID, reason string, now time.Time) (bool, error)
	TerminateByUserIDFunc func(ctx context.Context, userID, excludeSessionID, reason string, now time.Time) (int, error)
	TerminateExpiredFunc  func(ctx context.Context, now time.Time) (int64, error)
	ListByUserIDFunc      func(ctx context.Context, userID string) ([]*models.Session, error)
	GetStatisticsFunc     func(ctx context.Context, userID string, now time.Time) (*models.SessionStats, error)
}

func (m *MockSessionRepository) Create(ctx context.Context, s *models.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	return nil
}

func (m *MockSessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, sessionID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) Extend(ctx context.Context, sessionID string, now, newExpiry time.Time) (*models.Session, error) {
	if m.ExtendFunc != nil {
		return m.ExtendFunc(ctx, sessionID, now, newExpiry)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) Terminate(ctx context.Context, sessionID, reason string, now time.Time) (bool, error) {
	if m.TerminateFunc != nil {
		return m.TerminateFunc(ctx, sessionID, reason, now)
	}
	return true, nil
}

func (m *MockSessionRepository) TerminateByUserID(ctx context.Context, userID, excludeSessionID, reason string, now time.Time) (int, error) {
	if m.TerminateByUserIDFunc != nil {
		return m.TerminateByUserIDFunc(ctx, userID, excludeSessionID, reason, now)
	}
	return 0, nil
}

func (m *MockSessionRepository) TerminateExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.TerminateExpiredFunc != nil {
		return m.TerminateExpiredFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockSessionRepository) ListByUserID(ctx context.Context, userID string) ([]*models.Session, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return []*models.Session{}, nil
}

func (m *MockSessionRepository) GetStatistics(ctx context.Context, userID string, now time.Time) (*models.SessionStats, error) {
	if m.GetStatisticsFunc != nil {
		return m.GetStatisticsFunc(ctx, userID, now)
	}
	return &models.SessionStats{UserID: userID}, nil
}

// MockMFAConfigRepository implements MFAConfigRepository for testing
type MockMFAConfigRepository struct {
	CreateFunc             func(ctx context.Context, c *models.MFAConfiguration) (*models.MFAConfiguration, error)
	GetByUserAndMethodFunc func(ctx context.Context, userID string, method models.MFAMethod) (*models.MFAConfiguration, error)
	MarkEnabledFunc        func(ctx context.Context, configID string, at time.Time) error
	UpdateLastUsedFunc     func(ctx context.Context, configID string, at time.Time) error
	ReplaceBackupCodesFunc func(ctx context.Context, configID string, entries []models.BackupCodeEntry, usedAt time.Time) error
	DisableFunc            func(ctx context.Context, userID string) (bool, error)
	DeleteByUserFunc       func(ctx context.Context, userID string) error
}

func (m *MockMFAConfigRepository) Create(ctx context.Context, c *models.MFAConfiguration) (*models.MFAConfiguration, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, c)
	}
	created := *c
	created.ID = "config_test_123"
	return &created, nil
}

func (m *MockMFAConfigRepository) GetByUserAndMethod(ctx context.Context, userID string, method models.MFAMethod) (*models.MFAConfiguration, error) {
	if m.GetByUserAndMethodFunc != nil {
		return m.GetByUserAndMethodFunc(ctx, userID, method)
	}
	return nil, models.ErrNotFound
}

func (m *MockMFAConfigRepository) MarkEnabled(ctx context.Context, configID string, at time.Time) error {
	if m.MarkEnabledFunc != nil {
		return m.MarkEnabledFunc(ctx, configID, at)
	}
	return nil
}

func (m *MockMFAConfigRepository) UpdateLastUsed(ctx context.Context, configID string, at time.Time) error {
	if m.UpdateLastUsedFunc != nil {
		return m.UpdateLastUsedFunc(ctx, configID, at)
	}
	return nil
}

func (m *MockMFAConfigRepository) ReplaceBackupCodes(ctx context.Context, configID string, entries []models.BackupCodeEntry, usedAt time.Time) error {
	if m.ReplaceBackupCodesFunc != nil {
		return m.ReplaceBackupCodesFunc(ctx, configID, entries, usedAt)
	}
	return nil
}

func (m *MockMFAConfigRepository) Disable(ctx context.Context, userID string) (bool, error) {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, userID)
	}
	return true, nil
}

func (m *MockMFAConfigRepository) DeleteByUser(ctx context.Context, userID string) error {
	if m.DeleteByUserFunc != nil {
		return m.DeleteByUserFunc(ctx, userID)
	}
	return nil
}

// MockEmailOTPRepository implements EmailOTPRepository for testing
type MockEmailOTPRepository struct {
	CreateFunc        func(ctx context.Context, otp *models.EmailOTP) error
	GetPendingFunc    func(ctx context.Context, userID string, now time.Time) (*models.EmailOTP, error)
	ConsumeFunc       func(ctx context.Context, id string) error
	DeleteExpiredFunc func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockEmailOTPRepository) Create(ctx context.Context, otp *models.EmailOTP) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, otp)
	}
	return nil
}

func (m *MockEmailOTPRepository) GetPending(ctx context.Context, userID string, now time.Time) (*models.EmailOTP, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, userID, now)
	}
	return nil, models.ErrNotFound
}

func (m *MockEmailOTPRepository) Consume(ctx context.Context, id string) error {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id)
	}
	return nil
}

func (m *MockEmailOTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now)
	}
	return 0, nil
}

// MockUserRepository implements UserCredentialStore and UserMFAFlagger for
// testing
type MockUserRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	SetMFAEnabledFunc  func(ctx context.Context, userID string, enabled bool) error
	UpdatePasswordFunc func(ctx context.Context, userID, newHash string, history []string, at time.Time) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	if m.SetMFAEnabledFunc != nil {
		return m.SetMFAEnabledFunc(ctx, userID, enabled)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, userID, newHash string, history []string, at time.Time) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, userID, newHash, history, at)
	}
	return nil
}

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	RecordFunc           func(ctx context.Context, attempt *models.LoginAttempt) error
	MarkMFACompletedFunc func(ctx context.Context, attemptID string) error
	CountFailuresFunc    func(ctx context.Context, email string, since time.Time) (int, error)
	HasSeenIPFunc        func(ctx context.Context, email, ipAddress string) (bool, error)
	DeleteOlderThanFunc  func(ctx context.Context, cutoff time.Time) (int64, error)

	Recorded []*models.LoginAttempt
}

func (m *MockLoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	attempt.ID = "attempt_test_123"
	m.Recorded = append(m.Recorded, attempt)
	return nil
}

func (m *MockLoginAttemptRepository) MarkMFACompleted(ctx context.Context, attemptID string) error {
	if m.MarkMFACompletedFunc != nil {
		return m.MarkMFACompletedFunc(ctx, attemptID)
	}
	return nil
}

func (m *MockLoginAttemptRepository) CountFailures(ctx context.Context, email string, since time.Time) (int, error) {
	if m.CountFailuresFunc != nil {
		return m.CountFailuresFunc(ctx, email, since)
	}
	return 0, nil
}

func (m *MockLoginAttemptRepository) HasSeenIP(ctx context.Context, email, ipAddress string) (bool, error) {
	if m.HasSeenIPFunc != nil {
		return m.HasSeenIPFunc(ctx, email, ipAddress)
	}
	return true, nil
}

func (m *MockLoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockLockoutRepository implements LockoutRepository for testing
type MockLockoutRepository struct {
	CreateFunc           func(ctx context.Context, l *models.AccountLockout) (*models.AccountLockout, error)
	GetActiveByEmailFunc func(ctx context.Context, email string) (*models.AccountLockout, error)
	ReleaseFunc          func(ctx context.Context, lockoutID string, at time.Time) (bool, error)
	ReleaseExpiredFunc   func(ctx context.Context, now time.Time) (int64, error)
	ListByEmailFunc      func(ctx context.Context, email string, limit int) ([]*models.AccountLockout, error)

	Created []*models.AccountLockout
}

func (m *MockLockoutRepository) Create(ctx context.Context, l *models.AccountLockout) (*models.AccountLockout, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, l)
	}
	created := *l
	created.ID = "lockout_test_123"
	created.IsActive = true
	m.Created = append(m.Created, &created)
	return &created, nil
}

func (m *MockLockoutRepository) GetActiveByEmail(ctx context.Context, email string) (*models.AccountLockout, error) {
	if m.GetActiveByEmailFunc != nil {
		return m.GetActiveByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockLockoutRepository) Release(ctx context.Context, lockoutID string, at time.Time) (bool, error) {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, lockoutID, at)
	}
	return true, nil
}

func (m *MockLockoutRepository) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.ReleaseExpiredFunc != nil {
		return m.ReleaseExpiredFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockLockoutRepository) ListByEmail(ctx context.Context, email string, limit int) ([]*models.AccountLockout, error) {
	if m.ListByEmailFunc != nil {
		return m.ListByEmailFunc(ctx, email, limit)
	}
	return []*models.AccountLockout{}, nil
}

// MockSecurityEventRepository implements SecurityEventRepositoryInterface
// for testing
type MockSecurityEventRepository struct {
	CreateFunc func(ctx context.Context, e *models.SecurityEvent) (*models.SecurityEvent, error)
	QueryFunc  func(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error)
}

func (m *MockSecurityEventRepository) Create(ctx context.Context, e *models.SecurityEvent) (*models.SecurityEvent, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, e)
	}
	return e, nil
}

func (m *MockSecurityEventRepository) Query(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, filter)
	}
	return []*models.SecurityEvent{}, nil
}

// MockEventRecorder captures recorded security events
type MockEventRecorder struct {
	Events []*models.SecurityEvent
}

func (m *MockEventRecorder) Record(ctx context.Context, event *models.SecurityEvent) {
	m.Events = append(m.Events, event)
}

// HasEvent reports whether an event of the given type was recorded
func (m *MockEventRecorder) HasEvent(eventType string) bool {
	for _, e := range m.Events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	SendMFACodeFunc func(ctx context.Context, email, code string, expiryMinutes int) error

	SentCodes []string
}

func (m *MockEmailSender) SendMFACode(ctx context.Context, email, code string, expiryMinutes int) error {
	if m.SendMFACodeFunc != nil {
		return m.SendMFACodeFunc(ctx, email, code, expiryMinutes)
	}
	m.SentCodes = append(m.SentCodes, code)
	return nil
}

// NewTestUser creates an active user for tests
func NewTestUser(id, email, passwordHash string) *models.User {
	now := time.Now()
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         "user",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestSession creates an active session expiring in the given TTL
func NewTestSession(id, userID string, ttl time.Duration) *models.Session {
	now := time.Now()
	return &models.Session{
		ID:             id,
		UserID:         userID,
		DeviceType:     models.DeviceTypeDesktop,
		IPAddress:      "203.0.113.10",
		UserAgent:      "Mozilla/5.0",
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		IsActive:       true,
	}
}

// NewTestDevice creates request device info for tests
func NewTestDevice() models.DeviceInfo {
	return models.DeviceInfo{
		IPAddress:   "203.0.113.10",
		UserAgent:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
		Fingerprint: "fp_test_123",
	}
}
