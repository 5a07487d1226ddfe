package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBackupCodes_Count(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	assert.NoError(t, err)
	assert.Len(t, codes, 10)
}

func TestGenerateBackupCodes_Uniqueness(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate code found: %s", code)
		seen[code] = true
	}
}

func TestGenerateBackupCodes_CharsetValidation(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	require.NoError(t, err)

	// Charset excludes ambiguous characters: 0/O and 1/I/L
	for _, code := range codes {
		assert.Equal(t, 8, len(code))
		for _, ch := range code {
			assert.Contains(t, backupCodeCharset, string(ch), "invalid character in code: %c", ch)
		}
	}
}

func TestFormatBackupCode_GroupsForDisplay(t *testing.T) {
	assert.Equal(t, "ABCD-EFGH", FormatBackupCode("ABCDEFGH"))
	// Unexpected lengths pass through untouched
	assert.Equal(t, "ABC", FormatBackupCode("ABC"))
}

func TestNormalizeBackupCode_TranscriptionInsensitive(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ABCD-EFGH", "ABCDEFGH"},
		{"abcd-efgh", "ABCDEFGH"},
		{"  ABCD EFGH  ", "ABCDEFGH"},
		{"abcdefgh", "ABCDEFGH"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeBackupCode(tc.input))
	}
}

func TestHashBackupCode_ProducesBcrypt(t *testing.T) {
	hash, err := HashBackupCode("ABCDEFGH")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))
	assert.NotContains(t, hash, "ABCDEFGH")
}

func TestMatchBackupCode_AcceptsAnyTranscription(t *testing.T) {
	hash, err := HashBackupCode("ABCD-EFGH")
	require.NoError(t, err)

	assert.True(t, MatchBackupCode(hash, "ABCDEFGH"))
	assert.True(t, MatchBackupCode(hash, "abcd-efgh"))
	assert.True(t, MatchBackupCode(hash, " abcd efgh "))
	assert.False(t, MatchBackupCode(hash, "ABCDEFGX"))
}
