package models

import (
	"strings"
	"time"
)

// DeviceType is a coarse classification parsed from the user agent
type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeUnknown DeviceType = "unknown"
)

// ParseDeviceType classifies a user agent string. Best-effort; anything
// unrecognized is unknown, never an error. Tablets are checked before
// mobile because Android tablet agents carry "Android" without "Mobile".
func ParseDeviceType(userAgent string) DeviceType {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return DeviceTypeUnknown
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"),
		strings.Contains(ua, "kindle"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceTypeTablet
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"),
		strings.Contains(ua, "iphone"):
		return DeviceTypeMobile
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "windows nt"),
		strings.Contains(ua, "x11"), strings.Contains(ua, "electron"),
		strings.Contains(ua, "mozilla"):
		return DeviceTypeDesktop
	default:
		return DeviceTypeUnknown
	}
}

// Termination reasons recorded when a session goes inactive
const (
	TerminationReasonLogout      = "logout"
	TerminationReasonLogoutAll   = "logout_all"
	TerminationReasonExpired     = "expired"
	TerminationReasonAdminAction = "admin_action"
)

// Session is one authenticated device context. Termination is a soft delete:
// is_active flips off, the row stays for audit, and the transition is never
// reversed.
type Session struct {
	ID                string     `db:"id"`
	UserID            string     `db:"user_id"`
	RefreshTokenHash  string     `db:"refresh_token_hash"` // SHA-256, hex
	DeviceFingerprint string     `db:"device_fingerprint"`
	DeviceType        DeviceType `db:"device_type"`
	IPAddress         string     `db:"ip_address"`
	UserAgent         string     `db:"user_agent"`
	CreatedAt         time.Time  `db:"created_at"`
	LastActivityAt    time.Time  `db:"last_activity_at"`
	ExpiresAt         time.Time  `db:"expires_at"`
	IsActive          bool       `db:"is_active"`
	TerminatedAt      *time.Time `db:"terminated_at"`
	TerminationReason *string    `db:"termination_reason"`
}

// IsExpired reports whether the session is past its expiry as of now.
// Expiry is decided at read time; the background sweep only reconciles rows.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStats aggregates a user's sessions for dashboards
type SessionStats struct {
	UserID       string             `json:"user_id"`
	ActiveCount  int                `json:"active_count"`
	TotalCount   int                `json:"total_count"`
	ByDeviceType map[DeviceType]int `json:"by_device_type"`
}

// DeviceInfo carries the request attributes a new session records
type DeviceInfo struct {
	IPAddress   string `validate:"required"`
	UserAgent   string
	Fingerprint string
}
