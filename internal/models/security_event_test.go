package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMetadata_ScanValueRoundTrip(t *testing.T) {
	original := EventMetadata{"reason": "mfa_failed", "risk_score": float64(75)}

	value, err := original.Value()
	require.NoError(t, err)

	var scanned EventMetadata
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, original, scanned)
}

func TestEventMetadata_ScanNil(t *testing.T) {
	var em EventMetadata
	require.NoError(t, em.Scan(nil))
	assert.NotNil(t, em)
	assert.Empty(t, em)
}

func TestEventMetadata_ScanRejectsNonBytes(t *testing.T) {
	var em EventMetadata
	assert.Error(t, em.Scan(42))
}

func TestEventMetadata_NilValue(t *testing.T) {
	var em EventMetadata
	value, err := em.Value()
	require.NoError(t, err)
	assert.Nil(t, value)
}
