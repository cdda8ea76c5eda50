package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIgnoresKeyOrderAndWhitespace(t *testing.T) {
	a, err := Fingerprint([]byte(`{"roomId":"r-1","guest":{"name":"Ana","email":"ana@example.com"},"nights":3}`))
	require.NoError(t, err)
	b, err := Fingerprint([]byte(`{
		"nights": 3,
		"guest": {"email": "ana@example.com", "name": "Ana"},
		"roomId": "r-1"
	}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFingerprintDetectsMaterialChange(t *testing.T) {
	a, err := Fingerprint([]byte(`{"roomId":"r-1","checkIn":"2026-03-01"}`))
	require.NoError(t, err)
	b, err := Fingerprint([]byte(`{"roomId":"r-2","checkIn":"2026-03-01"}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	// numbers keep their written form
	c, err := Fingerprint([]byte(`{"guests":2}`))
	require.NoError(t, err)
	d, err := Fingerprint([]byte(`{"guests":2.0}`))
	require.NoError(t, err)
	assert.NotEqual(t, c, d)
}

func TestFingerprintRejectsInvalidJSON(t *testing.T) {
	_, err := Fingerprint([]byte(`{"roomId":`))
	assert.ErrorIs(t, err, ErrInvalidBody)

	_, err = Fingerprint([]byte(`{"a":1} {"b":2}`))
	assert.ErrorIs(t, err, ErrInvalidBody)
}

func TestValidateKey(t *testing.T) {
	assert.ErrorIs(t, ValidateKey(""), ErrKeyRequired)
	assert.ErrorIs(t, ValidateKey("short"), ErrKeyInvalid)
	assert.ErrorIs(t, ValidateKey("has space in it"), ErrKeyInvalid)
	assert.ErrorIs(t, ValidateKey(strings.Repeat("k", MaxKeyLength+1)), ErrKeyInvalid)
	assert.NoError(t, ValidateKey("booking-2026-0001"))
	assert.NoError(t, ValidateKey(strings.Repeat("k", MaxKeyLength)))
}
