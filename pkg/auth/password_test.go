package auth

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{
			name:       "valid strong password",
			password:   "SecureP@ss123",
			shouldFail: false,
		},
		{
			name:       "valid without special characters",
			password:   "SecurePass123",
			shouldFail: false,
		},
		{
			name:       "too short",
			password:   "Pass@1",
			shouldFail: true,
		},
		{
			name:       "missing uppercase",
			password:   "securepass@123",
			shouldFail: true,
		},
		{
			name:       "missing lowercase",
			password:   "SECUREPASS@123",
			shouldFail: true,
		},
		{
			name:       "missing digit",
			password:   "SecurePass@xyz",
			shouldFail: true,
		},
		{
			name:       "common password rejected",
			password:   "Password123",
			shouldFail: true,
		},
		{
			name:       "too long",
			password:   "Aa1" + strings.Repeat("x", 130),
			shouldFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)

			if tt.shouldFail {
				if err == nil {
					t.Errorf("expected error, got nil")
				} else if err.Error() != "invalid password" {
					// Requirements are never echoed back to the caller
					t.Errorf("error message should be generic, got: %v", err)
				}
			} else {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
			}
		})
	}
}

func TestHashAndComparePassword(t *testing.T) {
	password := "SecureP@ss123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == "" {
		t.Error("hash should not be empty")
	}

	if hash == password {
		t.Error("hash should not equal plaintext password")
	}

	if err := ComparePassword(hash, password); err != nil {
		t.Errorf("ComparePassword with correct password failed: %v", err)
	}

	if err := ComparePassword(hash, "WrongPassword123!"); err == nil {
		t.Error("ComparePassword with wrong password should fail")
	}
}

func TestHashPassword_EmptyPassword(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}
