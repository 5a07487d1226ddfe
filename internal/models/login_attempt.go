package models

import "time"

// Failure reasons recorded on login attempts
const (
	FailureReasonInvalidCredentials = "invalid_credentials"
	FailureReasonAccountLocked      = "account_locked"
	FailureReasonMFAFailed          = "mfa_failed"
	FailureReasonMFAPending         = "mfa_pending"
)

// LoginAttempt is one immutable row per authentication try. Attempts are
// never mutated or deleted within the retention window; the lockout policy
// reads them to compute rolling failure counts.
type LoginAttempt struct {
	ID                string     `db:"id"`
	Email             string     `db:"email"`
	UserID            *string    `db:"user_id"` // nil when the email never resolved
	IPAddress         string     `db:"ip_address"`
	UserAgent         string     `db:"user_agent"`
	DeviceFingerprint string     `db:"device_fingerprint"`
	Success           bool       `db:"success"`
	FailureReason     *string    `db:"failure_reason"`
	MFARequired       bool       `db:"mfa_required"`
	MFACompleted      bool       `db:"mfa_completed"`
	RiskScore         int        `db:"risk_score"` // bounded [0,100]
	Blocked           bool       `db:"blocked"`    // true implies an AccountLockout row
	AttemptedAt       time.Time  `db:"attempted_at"`
}

// Lockout reasons
const (
	LockoutReasonFailedAttempts = "failed_attempts"
	LockoutReasonAdmin          = "admin_action"
)

// AccountLockout tracks a locked account. At most one active lockout exists
// per email; it closes when AutoUnlockAt passes or an admin unlocks it.
type AccountLockout struct {
	ID                 string     `db:"id"`
	UserID             *string    `db:"user_id"`
	Email              string     `db:"email"`
	IPAddress          string     `db:"ip_address"`
	Reason             string     `db:"reason"`
	FailedAttemptCount int        `db:"failed_attempt_count"`
	LockedAt           time.Time  `db:"locked_at"`
	UnlockedAt         *time.Time `db:"unlocked_at"`
	AutoUnlockAt       *time.Time `db:"auto_unlock_at"`
	IsActive           bool       `db:"is_active"`
}

// IsReleasable reports whether the lockout's auto-unlock deadline has passed.
func (l *AccountLockout) IsReleasable(now time.Time) bool {
	return l.AutoUnlockAt != nil && !now.Before(*l.AutoUnlockAt)
}
