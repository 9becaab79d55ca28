package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 1, 12, 30, 0, 123456000, time.FixedZone("CET", 3600))

	encoded := EncodeCursor("9f2c|odd-id", ts)
	require.NotEmpty(t, encoded)
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "+")

	c, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, "9f2c|odd-id", c.LastID)
	assert.True(t, ts.Equal(c.Timestamp))
}

func TestEncodeCursor_EmptyID(t *testing.T) {
	assert.Empty(t, EncodeCursor("", time.Now()))
}

func TestDecodeCursor_Empty(t *testing.T) {
	c, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!!"},
		{"no separator", base64.RawURLEncoding.EncodeToString([]byte("abc"))},
		{"bad timestamp", base64.RawURLEncoding.EncodeToString([]byte("yesterday|abc"))},
		{"missing id", base64.RawURLEncoding.EncodeToString([]byte("2026-01-01T00:00:00Z|"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.cursor)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}
