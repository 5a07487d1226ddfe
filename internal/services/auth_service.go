package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/chatforge/authkit/internal/auth"
	"github.com/chatforge/authkit/internal/models"
	pkgauth "github.com/chatforge/authkit/pkg/auth"
	"github.com/chatforge/authkit/pkg/logger"
)

// passwordHistoryDepth is how many previous hashes are kept to reject reuse
const passwordHistoryDepth = 5

// dummyBcryptHash is compared against when the email does not resolve, so a
// missing account costs the same bcrypt work as a wrong password.
const dummyBcryptHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// LoginResult is the outcome of a Login call. Exactly one of two shapes
// comes back: a completed session (tokens set) or a pending MFA challenge
// (MFARequired true, ChallengeToken set).
type LoginResult struct {
	MFARequired    bool
	ChallengeToken string
	MFAMethod      models.MFAMethod
	Session        *models.Session
	AccessToken    string
	RefreshToken   string
	RiskScore      int
}

// AuthService orchestrates the login state machine: lockout gate, credential
// verification, risk scoring, MFA challenge, and session issue.
type AuthService struct {
	users    UserCredentialStore
	sessions *SessionService
	mfa      *MFAService
	lockouts *LockoutService
	events   SecurityEventRecorder
	tokens   *auth.TokenManager
	timing   *auth.TimingDelay
	logger   *slog.Logger
}

// UserCredentialStore is the narrow user access the auth flow needs
type UserCredentialStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID, newHash string, history []string, at time.Time) error
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserCredentialStore,
	sessions *SessionService,
	mfa *MFAService,
	lockouts *LockoutService,
	events SecurityEventRecorder,
	tokens *auth.TokenManager,
	timing *auth.TimingDelay,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		mfa:      mfa,
		lockouts: lockouts,
		events:   events,
		tokens:   tokens,
		timing:   timing,
		logger:   logger,
	}
}

// Login runs the full authentication flow for an email/password pair.
//
// Failure modes are enumeration-safe: a missing account, a wrong password,
// and an inactive account all return ErrInvalidCredential after the same
// bcrypt work and timing delay. Only ErrAccountLocked is distinguishable,
// and it discloses no remaining-attempt count.
func (s *AuthService) Login(ctx context.Context, email, password string, device models.DeviceInfo) (*LoginResult, error) {
	start := time.Now()
	email = normalizeEmail(email)

	if err := s.lockouts.CheckAccess(ctx, email); err != nil {
		if errors.Is(err, models.ErrAccountLocked) {
			s.recordFailure(ctx, email, nil, device, models.FailureReasonAccountLocked)
			s.timing.WaitFrom(start, false)
			return nil, models.ErrAccountLocked
		}
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load user", slog.String("email", logger.SanitizedEmail(email)), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		// Burn the same bcrypt cost as a real comparison.
		_ = pkgauth.ComparePassword(dummyBcryptHash, password)
		s.recordFailure(ctx, email, nil, device, models.FailureReasonInvalidCredentials)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredential
	}

	if pkgauth.ComparePassword(user.PasswordHash, password) != nil || !user.IsActive {
		result := s.recordFailure(ctx, email, &user.ID, device, models.FailureReasonInvalidCredentials)
		s.timing.WaitFrom(start, false)
		if result != nil && result.Locked {
			return nil, models.ErrAccountLocked
		}
		return nil, models.ErrInvalidCredential
	}

	// Password verified. Decide whether a second factor stands between here
	// and a session: enrolled MFA always does; a high risk score forces one
	// even for unenrolled accounts, delivered by email.
	attempt, err := s.lockouts.RecordAttempt(ctx, AttemptContext{
		Email:             email,
		UserID:            &user.ID,
		IPAddress:         device.IPAddress,
		UserAgent:         device.UserAgent,
		DeviceFingerprint: device.Fingerprint,
		Success:           false,
		FailureReason:     models.FailureReasonMFAPending,
		MFARequired:       user.MFAEnabled,
	})
	if err != nil {
		return nil, err
	}

	mfaRequired := user.MFAEnabled || attempt.ForceMFA
	if mfaRequired {
		method := models.MFAMethodTOTP
		if !user.MFAEnabled {
			method = models.MFAMethodEmail
			if err := s.mfa.SendEmailCode(ctx, user.ID, user.Email); err != nil {
				return nil, err
			}
		}

		challenge, err := s.tokens.GenerateMFAChallengeToken(user.ID, user.Email, attempt.Attempt.ID)
		if err != nil {
			s.logger.Error("failed to generate MFA challenge token", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		s.timing.WaitFrom(start, true)
		return &LoginResult{
			MFARequired:    true,
			ChallengeToken: challenge,
			MFAMethod:      method,
			RiskScore:      attempt.RiskScore,
		}, nil
	}

	if err := s.lockouts.MarkMFACompleted(ctx, attempt.Attempt.ID); err != nil {
		return nil, err
	}

	result, err := s.issueSession(ctx, user, device)
	if err != nil {
		return nil, err
	}
	result.RiskScore = attempt.RiskScore

	s.timing.WaitFrom(start, true)
	return result, nil
}

// CompleteMFALogin resolves a pending challenge. The code routes to backup
// verification when isBackupCode is set, to TOTP when the account has an
// enabled configuration, and to the emailed one-time code otherwise. On
// success the pending attempt is finalized and a session opens.
func (s *AuthService) CompleteMFALogin(ctx context.Context, challengeToken, code string, isBackupCode bool, device models.DeviceInfo) (*LoginResult, error) {
	claims, err := s.tokens.ValidateToken(challengeToken)
	if err != nil || claims.Type != auth.TokenTypeMFAChallenge {
		return nil, models.ErrInvalidCredential
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredential
		}
		s.logger.Error("failed to load user", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	verifyErr := s.verifyChallenge(ctx, user, code, isBackupCode)
	if verifyErr != nil {
		if errors.Is(verifyErr, models.ErrInvalidCredential) || errors.Is(verifyErr, models.ErrReplayedCode) {
			result := s.recordFailure(ctx, user.Email, &user.ID, device, models.FailureReasonMFAFailed)
			if result != nil && result.Locked {
				return nil, models.ErrAccountLocked
			}
			// Replay detail is already on the audit trail; the caller sees
			// an ordinary credential failure.
			return nil, models.ErrInvalidCredential
		}
		return nil, verifyErr
	}

	if claims.AttemptID != "" {
		if err := s.lockouts.MarkMFACompleted(ctx, claims.AttemptID); err != nil {
			return nil, err
		}
	}

	return s.issueSession(ctx, user, device)
}

// Logout terminates one session. Idempotent.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	_, err := s.sessions.Terminate(ctx, sessionID, models.TerminationReasonLogout)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return nil
}

// LogoutAll terminates every session for a user except keepSessionID, which
// may be empty to terminate all of them.
func (s *AuthService) LogoutAll(ctx context.Context, userID, keepSessionID string) (int, error) {
	return s.sessions.TerminateUserSessions(ctx, userID, keepSessionID, models.TerminationReasonLogoutAll)
}

// ChangePassword rotates a user's password. The current password must
// verify, the new one must meet policy and not match recent history, and
// every other session terminates so a stolen session cannot outlive the
// rotation.
func (s *AuthService) ChangePassword(ctx context.Context, userID, sessionID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load user", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if pkgauth.ComparePassword(user.PasswordHash, currentPassword) != nil {
		return models.ErrInvalidCredential
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ErrBadRequest
	}

	if pkgauth.ComparePassword(user.PasswordHash, newPassword) == nil {
		return models.ErrBadRequest
	}
	for _, prev := range user.PasswordHistory {
		if pkgauth.ComparePassword(prev, newPassword) == nil {
			return models.ErrBadRequest
		}
	}

	newHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	history := append([]string{user.PasswordHash}, user.PasswordHistory...)
	if len(history) > passwordHistoryDepth {
		history = history[:passwordHistoryDepth]
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash, history, time.Now()); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.sessions.TerminateUserSessions(ctx, userID, sessionID, models.TerminationReasonAdminAction); err != nil {
		return err
	}

	s.events.Record(ctx, &models.SecurityEvent{
		EventType: models.EventTypePasswordChanged,
		UserID:    &userID,
		SessionID: &sessionID,
		RiskLevel: models.RiskLevelMedium,
		Success:   true,
	})

	s.logger.Info("password changed", slog.String("user_id", userID))
	return nil
}

func (s *AuthService) verifyChallenge(ctx context.Context, user *models.User, code string, isBackupCode bool) error {
	if isBackupCode {
		_, err := s.mfa.VerifyBackupCode(ctx, user.ID, code)
		return err
	}
	if user.MFAEnabled {
		return s.mfa.VerifyTOTP(ctx, user.ID, code)
	}
	return s.mfa.VerifyEmailCode(ctx, user.ID, code)
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, device models.DeviceInfo) (*LoginResult, error) {
	session, refreshToken, err := s.sessions.Create(ctx, user.ID, device)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Email, session.ID)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &LoginResult{
		Session:      session,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// recordFailure appends a failed attempt and emits the login_failed event.
// Recording problems are logged but never mask the credential failure the
// caller is about to return.
func (s *AuthService) recordFailure(ctx context.Context, email string, userID *string, device models.DeviceInfo, reason string) *AttemptResult {
	result, err := s.lockouts.RecordAttempt(ctx, AttemptContext{
		Email:             email,
		UserID:            userID,
		IPAddress:         device.IPAddress,
		UserAgent:         device.UserAgent,
		DeviceFingerprint: device.Fingerprint,
		Success:           false,
		FailureReason:     reason,
	})
	if err != nil {
		s.logger.Error("failed to record login failure", slog.String("email", logger.SanitizedEmail(email)), slog.Any("error", err))
		return nil
	}

	s.events.Record(ctx, &models.SecurityEvent{
		EventType: models.EventTypeLoginFailed,
		UserID:    userID,
		Email:     &email,
		IPAddress: &device.IPAddress,
		UserAgent: &device.UserAgent,
		RiskLevel: riskLevelForScore(result.RiskScore),
		Success:   false,
		Details:   models.EventMetadata{"reason": reason, "risk_score": result.RiskScore},
	})

	return result
}

func riskLevelForScore(score int) models.RiskLevel {
	switch {
	case score >= 70:
		return models.RiskLevelHigh
	case score >= 40:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
