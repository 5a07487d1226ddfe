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

// MFAConfigRepository handles database operations for MFA configurations
type MFAConfigRepository struct {
	pool *pgxpool.Pool
}

// NewMFAConfigRepository creates a new MFAConfigRepository
func NewMFAConfigRepository(db *database.DB) *MFAConfigRepository {
	return &MFAConfigRepository{pool: db.Pool}
}

const mfaConfigColumns = `id, user_id, method, secret_encrypted, secret_nonce, backup_codes,
       contact_info, is_enabled, setup_completed_at, last_used_at, created_at`

func scanMFAConfigRow(scanner rowScanner) (*models.MFAConfiguration, error) {
	var c models.MFAConfiguration
	var method string
	var backupCodes []byte

	err := scanner.Scan(
		&c.ID, &c.UserID, &method, &c.SecretEncrypted, &c.SecretNonce, &backupCodes,
		&c.ContactInfo, &c.IsEnabled, &c.SetupCompletedAt, &c.LastUsedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	c.Method = models.MFAMethod(method)
	if len(backupCodes) > 0 {
		if err := json.Unmarshal(backupCodes, &c.BackupCodes); err != nil {
			return nil, fmt.Errorf("failed to decode backup codes: %w", err)
		}
	}

	return &c, nil
}

// Create inserts a disabled configuration pending its first verification
func (r *MFAConfigRepository) Create(ctx context.Context, c *models.MFAConfiguration) (*models.MFAConfiguration, error) {
	codes, err := json.Marshal(c.BackupCodes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup codes: %w", err)
	}

	query := `
		INSERT INTO mfa_configurations (
			user_id, method, secret_encrypted, secret_nonce, backup_codes, contact_info, is_enabled
		)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING ` + mfaConfigColumns

	return scanMFAConfigRow(r.pool.QueryRow(ctx, query,
		c.UserID, string(c.Method), c.SecretEncrypted, c.SecretNonce, codes, c.ContactInfo,
	))
}

// GetByUserAndMethod fetches the configuration for a (user, method) pair
func (r *MFAConfigRepository) GetByUserAndMethod(ctx context.Context, userID string, method models.MFAMethod) (*models.MFAConfiguration, error) {
	query := `SELECT ` + mfaConfigColumns + ` FROM mfa_configurations WHERE user_id = $1 AND method = $2`

	return scanMFAConfigRow(r.pool.QueryRow(ctx, query, userID, string(method)))
}

// MarkEnabled flips is_enabled after the first successful verification
func (r *MFAConfigRepository) MarkEnabled(ctx context.Context, configID string, at time.Time) error {
	query := `
		UPDATE mfa_configurations
		SET is_enabled = TRUE, setup_completed_at = $2
		WHERE id = $1 AND is_enabled = FALSE
	`

	tag, err := r.pool.Exec(ctx, query, configID, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdateLastUsed records a successful verification
func (r *MFAConfigRepository) UpdateLastUsed(ctx context.Context, configID string, at time.Time) error {
	query := `UPDATE mfa_configurations SET last_used_at = $2 WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, configID, at)
	return database.MapPostgresError(err)
}

// ReplaceBackupCodes overwrites the stored backup-code list. Used both to
// issue a fresh set and to consume a code: the caller passes the updated
// entries with the matched one marked used, and that mark lands in the same
// statement as last_used_at, so a consumed code cannot verify twice.
func (r *MFAConfigRepository) ReplaceBackupCodes(ctx context.Context, configID string, entries []models.BackupCodeEntry, usedAt time.Time) error {
	codes, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode backup codes: %w", err)
	}

	query := `UPDATE mfa_configurations SET backup_codes = $2, last_used_at = $3 WHERE id = $1`

	_, err = r.pool.Exec(ctx, query, configID, codes, usedAt)
	return database.MapPostgresError(err)
}

// Disable clears secrets and codes and flips is_enabled off
func (r *MFAConfigRepository) Disable(ctx context.Context, userID string) (bool, error) {
	query := `
		UPDATE mfa_configurations
		SET is_enabled = FALSE, secret_encrypted = NULL, secret_nonce = NULL,
		    backup_codes = '[]', setup_completed_at = NULL
		WHERE user_id = $1 AND is_enabled = TRUE
	`

	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteByUser removes all configurations for a user
func (r *MFAConfigRepository) DeleteByUser(ctx context.Context, userID string) error {
	query := `DELETE FROM mfa_configurations WHERE user_id = $1`

	_, err := r.pool.Exec(ctx, query, userID)
	return database.MapPostgresError(err)
}
