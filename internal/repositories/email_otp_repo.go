package repositories

import (
	"context"
	"time"

	"github.com/chatforge/authkit/internal/database"
	"github.com/chatforge/authkit/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EmailOTPRepository stores hashed one-time codes for the email MFA method
type EmailOTPRepository struct {
	pool *pgxpool.Pool
}

// NewEmailOTPRepository creates a new EmailOTPRepository
func NewEmailOTPRepository(db *database.DB) *EmailOTPRepository {
	return &EmailOTPRepository{pool: db.Pool}
}

// Create stores a fresh code hash, replacing any pending code for the user
func (r *EmailOTPRepository) Create(ctx context.Context, otp *models.EmailOTP) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM email_otps WHERE user_id = $1`, otp.UserID); err != nil {
		return database.MapPostgresError(err)
	}

	query := `
		INSERT INTO email_otps (user_id, code_hash, sent_to, expires_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, otp.UserID, otp.CodeHash, otp.SentTo, otp.ExpiresAt)
	return database.MapPostgresError(err)
}

// GetPending returns the unexpired code for a user, if any
func (r *EmailOTPRepository) GetPending(ctx context.Context, userID string, now time.Time) (*models.EmailOTP, error) {
	query := `
		SELECT id, user_id, code_hash, sent_to, created_at, expires_at
		FROM email_otps
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	var otp models.EmailOTP
	err := r.pool.QueryRow(ctx, query, userID, now).Scan(
		&otp.ID, &otp.UserID, &otp.CodeHash, &otp.SentTo, &otp.CreatedAt, &otp.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &otp, nil
}

// Consume deletes a code after successful verification (single use)
func (r *EmailOTPRepository) Consume(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM email_otps WHERE id = $1`, id)
	return database.MapPostgresError(err)
}

// DeleteExpired prunes stale codes
func (r *EmailOTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM email_otps WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
