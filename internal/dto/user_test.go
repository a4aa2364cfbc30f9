package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUser_Timestamps(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"int", 100, 100},
		{"int64", int64(1709294400000), 1709294400000},
		{"float64", float64(250), 250},
		{"json.Number", json.Number("9007199254740991"), 9007199254740991},
		{"numeric string", "42", 42},
		{"RFC3339 string", at.Format(time.RFC3339), at.UnixMilli()},
		{"time.Time", at, at.UnixMilli()},
		{"empty string", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := DecodeUser(map[string]any{"id": "u1", "updatedAt": tt.value})
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.UpdatedAt)
		})
	}
}

func TestDecodeUser_Fields(t *testing.T) {
	u, err := DecodeUser(map[string]any{
		"id":            "u1",
		"firstName":     "Ada",
		"lastName":      "Lovelace",
		"email":         "ada@example.com",
		"role":          "admin",
		"emailVerified": true,
		"updatedAt":     10,
		"unknown":       "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.UserRecord{
		ID:            "u1",
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Email:         "ada@example.com",
		Role:          "admin",
		EmailVerified: true,
		UpdatedAt:     10,
	}, u)
}

func TestDecodeUser_Invalid(t *testing.T) {
	_, err := DecodeUser(map[string]any{"id": "u1", "updatedAt": "yesterday"})
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)

	_, err = DecodeUser(map[string]any{"id": []string{"u1"}})
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)
}

func TestUnmarshalUser_PreservesLargeIntegers(t *testing.T) {
	u, err := UnmarshalUser([]byte(`{"id":"u1","updatedAt":9007199254740993}`))
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), u.UpdatedAt)

	_, err = UnmarshalUser([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)
}

func TestEncodeUser_RoundTrip(t *testing.T) {
	in := domain.UserRecord{ID: "u1", FirstName: "Ada", Phone: "555", EmailVerified: true, CreatedAt: 5, UpdatedAt: 9}

	fields := EncodeUser(in)
	assert.NotContains(t, fields, "lastName")
	assert.NotContains(t, fields, "verifiedAt")

	out, err := DecodeUser(fields)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
