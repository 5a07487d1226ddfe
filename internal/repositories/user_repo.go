package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chatforge/authkit/internal/database"
	"github.com/chatforge/authkit/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository is the credential-store access layer
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

const userColumns = `id, email, password_hash, password_history, role, is_active,
       mfa_enabled, password_changed_at, created_at, updated_at`

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var u models.User
	var history []byte

	err := scanner.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &history, &u.Role, &u.IsActive,
		&u.MFAEnabled, &u.PasswordChangedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if len(history) > 0 {
		if err := json.Unmarshal(history, &u.PasswordHistory); err != nil {
			return nil, fmt.Errorf("failed to decode password history: %w", err)
		}
	}

	return &u, nil
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash, role, is_active, password_changed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		u.Email, u.PasswordHash, u.Role, u.IsActive, u.PasswordChangedAt,
	))
}

// GetByID fetches a user by id
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail fetches a user by normalized email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

// SetMFAEnabled records the user-level MFA flag
func (r *UserRepository) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	query := `UPDATE users SET mfa_enabled = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, userID, enabled)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdatePassword rotates the password hash. The caller supplies the updated
// history list (previous hashes, newest first) so reuse can be rejected.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, newHash string, history []string, at time.Time) error {
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode password history: %w", err)
	}

	query := `
		UPDATE users
		SET password_hash = $2,
		    password_history = $3,
		    password_changed_at = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, newHash, historyJSON, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
