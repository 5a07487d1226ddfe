package repositories

import (
	"context"
	"time"

	"github.com/chatforge/authkit/internal/database"
	"github.com/chatforge/authkit/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LoginAttemptRepository handles database operations for login attempts.
// Attempts are append-only; there is no update path.
type LoginAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{pool: db.Pool}
}

// Record appends a login attempt
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (
			email, user_id, ip_address, user_agent, device_fingerprint,
			success, failure_reason, mfa_required, mfa_completed, risk_score, blocked, attempted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		attempt.Email, attempt.UserID, attempt.IPAddress, attempt.UserAgent, attempt.DeviceFingerprint,
		attempt.Success, attempt.FailureReason, attempt.MFARequired, attempt.MFACompleted,
		attempt.RiskScore, attempt.Blocked, attempt.AttemptedAt,
	).Scan(&attempt.ID)

	return database.MapPostgresError(err)
}

// MarkMFACompleted flags the attempt that finished its MFA challenge. This is
// the one sanctioned mutation: it finalizes the row created at password
// verification time, before the attempt outcome was known.
func (r *LoginAttemptRepository) MarkMFACompleted(ctx context.Context, attemptID string) error {
	query := `UPDATE login_attempts SET mfa_completed = TRUE, success = TRUE WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, attemptID)
	return database.MapPostgresError(err)
}

// CountFailures returns failed attempts for an email within the window.
// Attempts awaiting MFA completion are pending, not failures, and are
// excluded so an unresolved challenge cannot trip a lockout.
func (r *LoginAttemptRepository) CountFailures(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = FALSE AND attempted_at >= $2
		  AND (failure_reason IS NULL OR failure_reason != 'mfa_pending')
	`

	var count int
	err := r.pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// LastFailureTime returns the most recent failure timestamp within the window
func (r *LoginAttemptRepository) LastFailureTime(ctx context.Context, email string, since time.Time) (*time.Time, error) {
	query := `
		SELECT attempted_at FROM login_attempts
		WHERE email = $1 AND success = FALSE AND attempted_at >= $2
		  AND (failure_reason IS NULL OR failure_reason != 'mfa_pending')
		ORDER BY attempted_at DESC
		LIMIT 1
	`

	var t time.Time
	err := r.pool.QueryRow(ctx, query, email, since).Scan(&t)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &t, nil
}

// HasSeenIP reports whether this email has ever succeeded from this IP.
// Feeds the IP-novelty term of the risk score.
func (r *LoginAttemptRepository) HasSeenIP(ctx context.Context, email, ipAddress string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM login_attempts
			WHERE email = $1 AND ip_address = $2 AND success = TRUE
		)
	`

	var seen bool
	err := r.pool.QueryRow(ctx, query, email, ipAddress).Scan(&seen)
	return seen, database.MapPostgresError(err)
}

// DeleteOlderThan prunes attempts past the retention horizon
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
