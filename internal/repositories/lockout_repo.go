package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/chatforge/authkit/internal/database"
	"github.com/chatforge/authkit/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockoutRepository handles database operations for account lockouts
type LockoutRepository struct {
	pool *pgxpool.Pool
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{pool: db.Pool}
}

const lockoutColumns = `id, user_id, email, ip_address, reason, failed_attempt_count,
       locked_at, unlocked_at, auto_unlock_at, is_active`

func scanLockoutRow(scanner rowScanner) (*models.AccountLockout, error) {
	var l models.AccountLockout

	err := scanner.Scan(
		&l.ID, &l.UserID, &l.Email, &l.IPAddress, &l.Reason, &l.FailedAttemptCount,
		&l.LockedAt, &l.UnlockedAt, &l.AutoUnlockAt, &l.IsActive,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &l, nil
}

// Create inserts a new lockout. The partial unique index on (email) where
// is_active enforces at most one active lockout per email; a conflict maps
// to ErrConflict and means another writer locked the account first.
func (r *LockoutRepository) Create(ctx context.Context, l *models.AccountLockout) (*models.AccountLockout, error) {
	query := `
		INSERT INTO account_lockouts (
			user_id, email, ip_address, reason, failed_attempt_count, locked_at, auto_unlock_at, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING ` + lockoutColumns

	return scanLockoutRow(r.pool.QueryRow(ctx, query,
		l.UserID, l.Email, l.IPAddress, l.Reason, l.FailedAttemptCount, l.LockedAt, l.AutoUnlockAt,
	))
}

// GetActiveByEmail returns the active lockout for an email, if any
func (r *LockoutRepository) GetActiveByEmail(ctx context.Context, email string) (*models.AccountLockout, error) {
	query := `SELECT ` + lockoutColumns + ` FROM account_lockouts WHERE email = $1 AND is_active = TRUE`

	return scanLockoutRow(r.pool.QueryRow(ctx, query, email))
}

// Release closes a lockout. Idempotent: returns false when already closed.
func (r *LockoutRepository) Release(ctx context.Context, lockoutID string, at time.Time) (bool, error) {
	query := `
		UPDATE account_lockouts
		SET is_active = FALSE, unlocked_at = $2
		WHERE id = $1 AND is_active = TRUE
	`

	tag, err := r.pool.Exec(ctx, query, lockoutID, at)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return tag.RowsAffected() > 0, nil
}

// ReleaseExpired closes every active lockout whose auto-unlock deadline has
// passed. Row transitions are independent; safe under concurrent sweeps.
func (r *LockoutRepository) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE account_lockouts
		SET is_active = FALSE, unlocked_at = $1
		WHERE is_active = TRUE AND auto_unlock_at IS NOT NULL AND auto_unlock_at <= $1
	`

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}

// ListByEmail returns lockout history for an email, newest first
func (r *LockoutRepository) ListByEmail(ctx context.Context, email string, limit int) ([]*models.AccountLockout, error) {
	query := `SELECT ` + lockoutColumns + ` FROM account_lockouts WHERE email = $1 ORDER BY locked_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lockouts: %w", err)
	}
	defer rows.Close()

	lockouts := make([]*models.AccountLockout, 0)
	for rows.Next() {
		l, err := scanLockoutRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lockout: %w", err)
		}
		lockouts = append(lockouts, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lockout rows: %w", err)
	}

	return lockouts, nil
}
