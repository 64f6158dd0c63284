package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// RefreshTokenLength is the number of random bytes in a refresh token
// (32 bytes = 256 bits)
const RefreshTokenLength = 32

// TokenGenerator generates opaque refresh tokens
type TokenGenerator struct {
	random io.Reader
}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{random: rand.Reader}
}

// GenerateToken creates a new refresh token.
// Format: base64url(32 random bytes), no padding
func (tg *TokenGenerator) GenerateToken() (string, error) {
	randomBytes := make([]byte, RefreshTokenLength)
	if _, err := io.ReadFull(tg.random, randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// ValidateTokenFormat checks that a token could have been produced by
// GenerateToken
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	if len(decoded) != RefreshTokenLength {
		return fmt.Errorf("token has %d bytes, want %d", len(decoded), RefreshTokenLength)
	}
	return nil
}
