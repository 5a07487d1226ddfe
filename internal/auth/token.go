package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in claims
const (
	TokenTypeAccess       = "access"
	TokenTypeMFAChallenge = "mfa_challenge"
)

// TokenClaims are the JWT claims issued by this service. Access tokens are
// bound to a session id; authorization paths must still validate the session
// itself (active and unexpired) rather than trusting the token alone.
type TokenClaims struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	AttemptID string `json:"attempt_id,omitempty"` // pending login attempt a challenge resolves
	jwt.RegisteredClaims
}

// TokenManager handles JWT generation and validation.
type TokenManager struct {
	secret             []byte
	accessTokenExpiry  time.Duration
	mfaChallengeExpiry time.Duration
}

// NewTokenManager creates a new TokenManager.
func NewTokenManager(secret string, accessExpiry, mfaChallengeExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             []byte(secret),
		accessTokenExpiry:  accessExpiry,
		mfaChallengeExpiry: mfaChallengeExpiry,
	}
}

// GenerateAccessToken creates a short-lived access token bound to a session.
func (tm *TokenManager) GenerateAccessToken(userID, email, sessionID string) (string, error) {
	return tm.sign(&TokenClaims{
		Type:      TokenTypeAccess,
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	})
}

// GenerateMFAChallengeToken creates the short-lived token a client holds
// between password verification and MFA completion. attemptID ties the
// challenge back to the login attempt it finalizes.
func (tm *TokenManager) GenerateMFAChallengeToken(userID, email, attemptID string) (string, error) {
	return tm.sign(&TokenClaims{
		Type:      TokenTypeMFAChallenge,
		UserID:    userID,
		Email:     email,
		AttemptID: attemptID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.mfaChallengeExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	})
}

func (tm *TokenManager) sign(claims *TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a token and returns its claims.
func (tm *TokenManager) ValidateToken(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.Type == "" {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}
