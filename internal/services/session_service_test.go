package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/authkit/internal/models"
)

func newSessionService(repo *MockSessionRepository, events *MockEventRecorder) *SessionService {
	return NewSessionService(repo, events, SessionConfig{TTL: 7 * 24 * time.Hour}, slog.Default())
}

func TestSessionService_Create_Success(t *testing.T) {
	var stored *models.Session
	repo := &MockSessionRepository{
		CreateFunc: func(ctx context.Context, s *models.Session) error {
			stored = s
			return nil
		},
	}
	events := &MockEventRecorder{}
	svc := newSessionService(repo, events)

	session, refreshToken, err := svc.Create(context.Background(), "user123", NewTestDevice())

	require.NoError(t, err)
	require.NotNil(t, session)
	assert.NotEmpty(t, session.ID)
	assert.NotEmpty(t, refreshToken)
	assert.True(t, session.IsActive)
	assert.Equal(t, "user123", session.UserID)

	// Only the hash of the refresh token is persisted.
	sum := sha256.Sum256([]byte(refreshToken))
	assert.Equal(t, hex.EncodeToString(sum[:]), stored.RefreshTokenHash)
	assert.NotEqual(t, refreshToken, stored.RefreshTokenHash)

	// Expiry lands TTL from creation.
	assert.WithinDuration(t, session.CreatedAt.Add(7*24*time.Hour), session.ExpiresAt, time.Second)

	assert.True(t, events.HasEvent(models.EventTypeLoginSuccess))
}

func TestSessionService_Create_UniqueTokensPerSession(t *testing.T) {
	repo := &MockSessionRepository{}
	svc := newSessionService(repo, &MockEventRecorder{})

	s1, t1, err := svc.Create(context.Background(), "user123", NewTestDevice())
	require.NoError(t, err)
	s2, t2, err := svc.Create(context.Background(), "user123", NewTestDevice())
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID)
	assert.NotEqual(t, t1, t2)
}

func TestSessionService_Validate_Active(t *testing.T) {
	session := NewTestSession("sess1", "user123", time.Hour)
	repo := &MockSessionRepository{
		GetByIDFunc: func(ctx context.Context, sessionID string) (*models.Session, error) {
			return session, nil
		},
	}
	svc := newSessionService(repo, &MockEventRecorder{})

	got, err := svc.Validate(context.Background(), "sess1")

	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
}

func TestSessionService_Validate_NotFound(t *testing.T) {
	svc := newSessionService(&MockSessionRepository{}, &MockEventRecorder{})

	_, err := svc.Validate(context.Background(), "missing")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSessionService_Validate_ExpiredIsDistinctFromNotFound(t *testing.T) {
	expired := NewTestSession("sess1", "user123", time.Hour)
	expired.ExpiresAt = time.Now().Add(-time.Minute)

	repo := &MockSessionRepository{
		GetByIDFunc: func(ctx context.Context, sessionID string) (*models.Session, error) {
			return expired, nil
		},
	}
	svc := newSessionService(repo, &MockEventRecorder{})

	_, err := svc.Validate(context.Background(), "sess1")

	assert.ErrorIs(t, err, models.ErrSessionExpired)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestSessionService_Validate_ExpiryCheckedAtReadTime(t *testing.T) {
	// The session row is still active; no sweep has run. The read itself
	// must reject it the moment the clock passes expires_at.
	session := NewTestSession("sess1", "user123", time.Hour)
	session.IsActive = true

	repo := &MockSessionRepository{
		GetByIDFunc: func(ctx context.Context, sessionID string) (*models.Session, error) {
			return session, nil
		},
	}
	svc := newSessionService(repo, &MockEventRecorder{})
	svc.now = func() time.Time { return session.ExpiresAt.Add(time.Nanosecond) }

	_, err := svc.Validate(context.Background(), "sess1")

	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestSessionService_Validate_TerminatedSession(t *testing.T) {
	session := NewTestSession("sess1", "user123", time.Hour)
	session.IsActive = false

	repo := &MockSessionRepository{
		GetByIDFunc: func(ctx context.Context, sessionID string) (*models.Session, error) {
			return session, nil
		},
	}
	svc := newSessionService(repo, &MockEventRecorder{})

	_, err := svc.Validate(context.Background(), "sess1")

	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestSessionService_Refresh_ExtendsWithoutRotatingID(t *testing.T) {
	var gotNewExpiry time.Time
	session := NewTestSession("sess1", "user123", time.Hour)

	repo := &MockSessionRepository{
		ExtendFunc: func(ctx context.Context, sessionID string, now, newExpiry time.Time) (*models.Session, error) {
			gotNewExpiry = newExpiry
			extended := *session
			extended.ExpiresAt = newExpiry
			extended.LastActivityAt = now
			return &extended, nil
		},
	}
	svc := newSessionService(repo, &MockEventRecorder{})

	got, err := svc.Refresh(context.Background(), "sess1")

	require.NoError(t, err)
	assert.Equal(t, "sess1", got.ID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), gotNewExpiry, time.Second)
}

func TestSessionService_Refresh_ExpiredSession(t *testing.T) {
	expired := NewTestSession("sess1", "user123", time.Hour)
	expired.ExpiresAt = time.Now().Add(-time.Minute)

	repo := &MockSessionRepository{
		ExtendFunc: func(ctx context.Context, sessionID string, now, newExpiry time.Time) (*models.Session, error) {
			return nil, models.ErrNotFound
		},
		GetByIDFunc: func(ctx context.Context, sessionID string) (*models.Session, error) {
			return expired, nil
		},
	}
	svc := newSessionService(repo, &MockEventRecorder{})

	_, err := svc.Refresh(context.Background(), "sess1")

	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestSessionService_Refresh_MissingSession(t *testing.T) {
	repo := &MockSessionRepository{
		ExtendFunc: func(ctx context.Context, sessionID string, now, newExpiry time.Time) (*models.Session, error) {
			return nil, models.ErrNotFound
		},
	}
	svc := newSessionService(repo, &MockEventRecorder{})

	_, err := svc.Refresh(context.Background(), "missing")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSessionService_RefreshByToken_WrongToken(t *testing.T) {
	session := NewTestSession("sess1", "user123", time.Hour)
	sum := sha256.Sum256([]byte("the-real-token"))
	session.RefreshTokenHash = hex.EncodeToString(sum[:])

	repo := &MockSessionRepository{
		GetByIDFunc: func(ctx context.Context, sessionID string) (*models.Session, error) {
			return session, nil
		},
	}
	svc := newSessionService(repo, &MockEventRecorder{})

	_, err := svc.RefreshByToken(context.Background(), "sess1", "a-forged-token")

	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestSessionService_RefreshByToken_Success(t *testing.T) {
	session := NewTestSession("sess1", "user123", time.Hour)
	sum := sha256.Sum256([]byte("the-real-token"))
	session.RefreshTokenHash = hex.EncodeToString(sum[:])

	repo := &MockSessionRepository{
		GetByIDFunc: func(ctx context.Context, sessionID string) (*models.Session, error) {
			return session, nil
		},
		ExtendFunc: func(ctx context.Context, sessionID string, now, newExpiry time.Time) (*models.Session, error) {
			extended := *session
			extended.ExpiresAt = newExpiry
			return &extended, nil
		},
	}
	svc := newSessionService(repo, &MockEventRecorder{})

	got, err := svc.RefreshByToken(context.Background(), "sess1", "the-real-token")

	require.NoError(t, err)
	assert.Equal(t, "sess1", got.ID)
}

func TestSessionService_Terminate_Idempotent(t *testing.T) {
	calls := 0
	repo := &MockSessionRepository{
		TerminateFunc: func(ctx context.Context, sessionID, reason string, now time.Time) (bool, error) {
			calls++
			return calls == 1, nil
		},
	}
	events := &MockEventRecorder{}
	svc := newSessionService(repo, events)

	first, err := svc.Terminate(context.Background(), "sess1", models.TerminationReasonLogout)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := svc.Terminate(context.Background(), "sess1", models.TerminationReasonLogout)
	require.NoError(t, err)
	assert.False(t, second)

	// Only the transition emits an event, not the no-op repeat.
	assert.Len(t, events.Events, 1)
	assert.Equal(t, models.EventTypeLogout, events.Events[0].EventType)
}

func TestSessionService_TerminateUserSessions_SparesCurrent(t *testing.T) {
	var gotExclude string
	repo := &MockSessionRepository{
		TerminateByUserIDFunc: func(ctx context.Context, userID, excludeSessionID, reason string, now time.Time) (int, error) {
			gotExclude = excludeSessionID
			return 3, nil
		},
	}
	events := &MockEventRecorder{}
	svc := newSessionService(repo, events)

	count, err := svc.TerminateUserSessions(context.Background(), "user123", "keep-me", models.TerminationReasonLogoutAll)

	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, "keep-me", gotExclude)
	assert.True(t, events.HasEvent(models.EventTypeLogoutAll))
}

func TestSessionService_CleanupExpired(t *testing.T) {
	repo := &MockSessionRepository{
		TerminateExpiredFunc: func(ctx context.Context, now time.Time) (int64, error) {
			return 12, nil
		},
	}
	svc := newSessionService(repo, &MockEventRecorder{})

	count, err := svc.CleanupExpired(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
}
