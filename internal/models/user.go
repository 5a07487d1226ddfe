package models

import "time"

// User is the credential-store view of an account: id, email, password hash
// and history, role, and active flag. Profile data lives elsewhere.
type User struct {
	ID                string     `db:"id"`
	Email             string     `db:"email"`
	PasswordHash      string     `db:"password_hash"`
	PasswordHistory   []string   `db:"password_history"` // previous hashes, newest first
	Role              string     `db:"role"`
	IsActive          bool       `db:"is_active"`
	MFAEnabled        bool       `db:"mfa_enabled"`
	PasswordChangedAt *time.Time `db:"password_changed_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}
