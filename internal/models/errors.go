package models

import "errors"

// Sentinel errors shared across repositories and services. Callers branch
// with errors.Is; infrastructure layers wrap with %w for context.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrBadRequest     = errors.New("bad request")
	ErrForbidden      = errors.New("forbidden")
	ErrInternalServer = errors.New("internal server error")

	// ErrSessionExpired is distinct from ErrNotFound so callers can log the
	// difference; both mean unauthorized.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidCredential covers missing accounts, wrong passwords, and
	// failed MFA codes alike, so responses cannot be used for enumeration.
	ErrInvalidCredential = errors.New("invalid credentials")

	// ErrAccountLocked is deliberately distinguishable from a credential
	// failure but discloses no remaining-attempt count.
	ErrAccountLocked = errors.New("account temporarily locked, try again later")

	ErrMFANotEnabled     = errors.New("mfa not enabled")
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")

	// ErrReplayedCode marks a consumed backup code presented again. Internal
	// only: callers surface it to users as ErrInvalidCredential while the
	// audit trail records the replay.
	ErrReplayedCode = errors.New("backup code already used")
)
