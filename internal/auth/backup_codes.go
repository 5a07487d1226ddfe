package auth

import (
	"crypto/rand"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Charset: A-Z 2-9 excluding ambiguous characters (0/O, 1/I/L)
	backupCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	backupCodeLength  = 8

	// BackupCodeBcryptCost is lower than the password cost: codes are
	// 8 chars of cryptographic randomness, and login verification walks
	// the whole list.
	BackupCodeBcryptCost = 10
)

// GenerateBackupCodes generates count random one-time codes. Each call
// produces fresh codes; there is no reuse across calls.
func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		code := make([]byte, backupCodeLength)
		buf := make([]byte, backupCodeLength)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		for j := range code {
			code[j] = backupCodeCharset[int(buf[j])%len(backupCodeCharset)]
		}
		codes[i] = string(code)
	}

	return codes, nil
}

// FormatBackupCode groups a code for display: ABCDEFGH -> ABCD-EFGH.
func FormatBackupCode(code string) string {
	if len(code) != backupCodeLength {
		return code
	}
	return code[:4] + "-" + code[4:]
}

// NormalizeBackupCode strips dashes and whitespace and uppercases, so the
// comparison is insensitive to how the user transcribed the code.
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return code
}

// HashBackupCode returns the bcrypt hash stored in place of the code.
func HashBackupCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(NormalizeBackupCode(code)), BackupCodeBcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash backup code: %w", err)
	}
	return string(hash), nil
}

// MatchBackupCode compares a submitted code against a stored hash.
// bcrypt comparison is constant-time with respect to the code contents.
func MatchBackupCode(codeHash, submitted string) bool {
	return bcrypt.CompareHashAndPassword([]byte(codeHash), []byte(NormalizeBackupCode(submitted))) == nil
}
