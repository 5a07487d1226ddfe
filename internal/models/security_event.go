package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for the security audit trail
const (
	EventTypeLoginSuccess       = "login_success"
	EventTypeLoginFailed        = "login_failed"
	EventTypeLogout             = "logout"
	EventTypeLogoutAll          = "logout_all"
	EventTypeSessionExpired     = "session_expired"
	EventTypeMFASetup           = "mfa_setup"
	EventTypeMFAEnabled         = "mfa_enabled"
	EventTypeMFADisabled        = "mfa_disabled"
	EventTypeMFAFailed          = "mfa_failed"
	EventTypeBackupCodeUsed     = "backup_code_used"
	EventTypeBackupCodeReplayed = "backup_code_replayed"
	EventTypeAccountLocked      = "account_locked"
	EventTypeAccountUnlocked    = "account_unlocked"
	EventTypePasswordChanged    = "password_changed"
)

// RiskLevel buckets events for audit queries.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// SecurityEvent is one append-only audit entry. No update or delete path
// exists for events anywhere in the system.
type SecurityEvent struct {
	ID        uuid.UUID     `db:"id"`
	EventType string        `db:"event_type"`
	UserID    *string       `db:"user_id"`
	Email     *string       `db:"email"`
	SessionID *string       `db:"session_id"`
	IPAddress *string       `db:"ip_address"`
	UserAgent *string       `db:"user_agent"`
	RiskLevel RiskLevel     `db:"risk_level"`
	Success   bool          `db:"success"`
	Details   EventMetadata `db:"details"`
	CreatedAt time.Time     `db:"created_at"`
}

// EventFilter narrows audit queries. Zero values are ignored.
type EventFilter struct {
	UserID    string
	EventType string
	RiskLevel RiskLevel
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// EventMetadata holds additional context for security events
type EventMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (em *EventMetadata) Scan(value interface{}) error {
	if value == nil {
		*em = make(EventMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*em = EventMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (em EventMetadata) Value() (driver.Value, error) {
	if em == nil {
		return nil, nil
	}
	return json.Marshal(em)
}
