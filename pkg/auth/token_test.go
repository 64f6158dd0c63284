package auth

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, err := tg.GenerateToken()
	require.NoError(t, err)

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, decoded, RefreshTokenLength)
	assert.NotContains(t, token, "=")
	assert.NoError(t, tg.ValidateTokenFormat(token))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := tg.GenerateToken()
		require.NoError(t, err)
		assert.False(t, seen[tok], "duplicate token generated")
		seen[tok] = true
	}
}

func TestTokenGenerator_ShortRead(t *testing.T) {
	tg := &TokenGenerator{random: bytes.NewReader(make([]byte, 4))}
	_, err := tg.GenerateToken()
	assert.Error(t, err)
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "bad encoding", token: "not base64!"},
		{name: "too short", token: base64.RawURLEncoding.EncodeToString([]byte("short"))},
		{name: "padded", token: base64.URLEncoding.EncodeToString(make([]byte, 32))},
		{name: "too long", token: strings.Repeat("A", 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tg.ValidateTokenFormat(tt.token))
		})
	}
}
