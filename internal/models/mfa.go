package models

import "time"

// MFAMethod identifies how a second factor is delivered or computed.
type MFAMethod string

const (
	MFAMethodTOTP       MFAMethod = "totp"
	MFAMethodEmail      MFAMethod = "email"
	MFAMethodBackupCode MFAMethod = "backup_code"
)

// MFAConfiguration holds one (user, method) MFA enrollment.
//
// The TOTP secret is AES-256-GCM encrypted at rest; backup codes and email
// one-time codes are stored as bcrypt hashes. Plaintext values exist only in
// the single setup response.
type MFAConfiguration struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	Method           MFAMethod `db:"method"`
	SecretEncrypted  []byte    `db:"secret_encrypted"`
	SecretNonce      []byte    `db:"secret_nonce"` // GCM nonce (12 bytes)
	BackupCodes      []BackupCodeEntry
	ContactInfo      string     `db:"contact_info"` // delivery address for the email method
	IsEnabled        bool       `db:"is_enabled"`
	SetupCompletedAt *time.Time `db:"setup_completed_at"`
	LastUsedAt       *time.Time `db:"last_used_at"`
	CreatedAt        time.Time  `db:"created_at"`
}

// IsSetupComplete reports whether the first verification succeeded.
// Only ConfirmSetup flips a configuration to enabled.
func (c *MFAConfiguration) IsSetupComplete() bool {
	return c.SetupCompletedAt != nil
}

// BackupCodeEntry is a single one-time recovery code. A consumed entry stays
// in the stored list with UsedAt set so a resubmission can be recognized as a
// replay rather than a random wrong code.
type BackupCodeEntry struct {
	CodeHash  string     `json:"code_hash"` // bcrypt hash
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// IsUsed reports whether the code has been consumed.
func (e *BackupCodeEntry) IsUsed() bool {
	return e.UsedAt != nil
}

// MFASetupResult is returned exactly once from setup; the plaintext secret
// and backup codes are not retrievable afterwards.
type MFASetupResult struct {
	ConfigurationID string   `json:"configuration_id"`
	Secret          string   `json:"secret"`       // base32, 32 chars
	OTPAuthURL      string   `json:"otpauth_url"`  // provisioning URI
	QRCode          string   `json:"qr_code"`      // PNG data URL
	BackupCodes     []string `json:"backup_codes"` // grouped XXXX-XXXX
}

// EmailOTP is a short-lived one-time code delivered out of band.
type EmailOTP struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CodeHash  string    `db:"code_hash"` // bcrypt hash
	SentTo    string    `db:"sent_to"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}
