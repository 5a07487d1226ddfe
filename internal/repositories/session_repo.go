package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/chatforge/authkit/internal/database"
	"github.com/chatforge/authkit/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository handles database operations for sessions
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

// rowScanner supports both single-row and multi-row scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const sessionColumns = `id, user_id, refresh_token_hash, device_fingerprint, device_type,
       ip_address, user_agent, created_at, last_activity_at, expires_at,
       is_active, terminated_at, termination_reason`

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var s models.Session
	var deviceType string

	err := scanner.Scan(
		&s.ID, &s.UserID, &s.RefreshTokenHash, &s.DeviceFingerprint, &deviceType,
		&s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt,
		&s.IsActive, &s.TerminatedAt, &s.TerminationReason,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	s.DeviceType = models.DeviceType(deviceType)
	return &s, nil
}

func scanSessionRows(rows pgx.Rows) ([]*models.Session, error) {
	defer rows.Close()

	sessions := make([]*models.Session, 0)

	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// Create inserts a new session row
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (
			id, user_id, refresh_token_hash, device_fingerprint, device_type,
			ip_address, user_agent, created_at, last_activity_at, expires_at, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.RefreshTokenHash, s.DeviceFingerprint, string(s.DeviceType),
		s.IPAddress, s.UserAgent, s.CreatedAt, s.LastActivityAt, s.ExpiresAt, s.IsActive,
	)

	return database.MapPostgresError(err)
}

// GetByID fetches a session by id
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	return scanSessionRow(r.pool.QueryRow(ctx, query, sessionID))
}

// Extend pushes out expiry and advances last_activity on an active session.
// Returns the updated row, or ErrNotFound when the session no longer
// qualifies (missing, inactive, or already past expiry as of `now`).
func (r *SessionRepository) Extend(ctx context.Context, sessionID string, now, newExpiry time.Time) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET expires_at = $3,
		    last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1 AND is_active = TRUE AND expires_at > $2
		RETURNING ` + sessionColumns

	return scanSessionRow(r.pool.QueryRow(ctx, query, sessionID, now, newExpiry))
}

// Terminate soft-deletes a session. Returns false when the row was already
// inactive (the transition is idempotent, not an error).
func (r *SessionRepository) Terminate(ctx context.Context, sessionID, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE sessions
		SET is_active = FALSE, terminated_at = $3, termination_reason = $2
		WHERE id = $1 AND is_active = TRUE
	`

	tag, err := r.pool.Exec(ctx, query, sessionID, reason, now)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return tag.RowsAffected() > 0, nil
}

// TerminateByUserID bulk-terminates active sessions for a user, optionally
// sparing one session id. Returns the count terminated.
func (r *SessionRepository) TerminateByUserID(ctx context.Context, userID, excludeSessionID, reason string, now time.Time) (int, error) {
	query := `
		UPDATE sessions
		SET is_active = FALSE, terminated_at = $4, termination_reason = $3
		WHERE user_id = $1 AND is_active = TRUE AND ($2 = '' OR id != $2::uuid)
	`

	tag, err := r.pool.Exec(ctx, query, userID, excludeSessionID, reason, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return int(tag.RowsAffected()), nil
}

// TerminateExpired marks every active-but-expired session inactive. Each row
// transition is independent, so concurrent sweeps are safe.
func (r *SessionRepository) TerminateExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET is_active = FALSE, terminated_at = $1, termination_reason = $2
		WHERE is_active = TRUE AND expires_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, now, models.TerminationReasonExpired)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}

// ListByUserID returns all sessions for a user, newest first
func (r *SessionRepository) ListByUserID(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	return scanSessionRows(rows)
}

// GetStatistics aggregates session counts for a user
func (r *SessionRepository) GetStatistics(ctx context.Context, userID string, now time.Time) (*models.SessionStats, error) {
	query := `
		SELECT device_type,
		       COUNT(*) FILTER (WHERE is_active AND expires_at > $2) AS active,
		       COUNT(*) AS total
		FROM sessions
		WHERE user_id = $1
		GROUP BY device_type
	`

	rows, err := r.pool.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query session statistics: %w", err)
	}
	defer rows.Close()

	stats := &models.SessionStats{
		UserID:       userID,
		ByDeviceType: make(map[models.DeviceType]int),
	}

	for rows.Next() {
		var deviceType string
		var active, total int
		if err := rows.Scan(&deviceType, &active, &total); err != nil {
			return nil, fmt.Errorf("failed to scan session statistics: %w", err)
		}
		stats.ActiveCount += active
		stats.TotalCount += total
		stats.ByDeviceType[models.DeviceType(deviceType)] += active
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session statistics: %w", err)
	}

	return stats, nil
}
