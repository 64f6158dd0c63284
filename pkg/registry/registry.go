// Package registry stores the server-side state of opaque refresh tokens.
//
// Tokens are never stored in clear: every implementation keys records by the
// SHA-256 of the token. A token is single-use; Rotate atomically retires the
// presented token and registers its successor, and at most one caller can
// win a rotation for a given token.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of a refresh token
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrNotFound is returned by Get for unknown or expired tokens
	ErrNotFound = errors.New("refresh token not found")
	// ErrExpiredRecord is returned by Rotate when the successor record is
	// already expired; the presented token is left untouched
	ErrExpiredRecord = errors.New("refresh record already expired")
)

// Record is the state held for one refresh token
type Record struct {
	UserID    uuid.UUID  `json:"userId"`
	TenantID  *uuid.UUID `json:"tenantId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// NewRecord builds a record issued at now that lives for ttl
func NewRecord(userID uuid.UUID, tenantID *uuid.UUID, now time.Time, ttl time.Duration) Record {
	return Record{
		UserID:    userID,
		TenantID:  tenantID,
		CreatedAt: now.UTC(),
		ExpiresAt: now.UTC().Add(ttl),
	}
}

// Expired reports whether the record is no longer usable at now
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Registry is the refresh-token store. Implementations are safe for
// concurrent use.
type Registry interface {
	// Put registers token with rec, replacing any previous record
	Put(ctx context.Context, token string, rec Record) error
	// Get returns the live record of token or ErrNotFound
	Get(ctx context.Context, token string) (*Record, error)
	// Rotate removes oldToken and registers newToken with rec in one step.
	// It reports false when oldToken was not live, in which case nothing
	// is registered.
	Rotate(ctx context.Context, oldToken, newToken string, rec Record) (bool, error)
	// Delete removes token. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error
	// Close releases the registry's resources
	Close() error
}

// Key returns the storage key of a token
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
