package identity

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCacheSize = 10000
	DefaultCacheTTL  = 15 * time.Minute
)

// CacheStats reports cache effectiveness
type CacheStats struct {
	Hits      int64
	Misses    int64
	ItemCount int
}

// CachedStore is a read-through cache over Store.
//
// Accounts are cached by id; login identifiers map to an id. Invalidation only
// has to drop the id entry: a stale login mapping resolves to a miss and falls
// back to the store.
type CachedStore struct {
	*Store

	users  *lru.LRU[uuid.UUID, UserAccount]
	logins *lru.LRU[string, uuid.UUID]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedStore wraps store with an expirable LRU
func NewCachedStore(store *Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		Store:  store,
		users:  lru.NewLRU[uuid.UUID, UserAccount](size, nil, ttl),
		logins: lru.NewLRU[string, uuid.UUID](size*2, nil, ttl),
	}
}

// WithTx returns an uncached store bound to tx. Writes made through it are
// not visible to the cache until the caller invalidates.
func (c *CachedStore) WithTx(tx *sql.Tx) *Store {
	return c.Store.WithTx(tx)
}

// GetByID retrieves an account, consulting the cache first
func (c *CachedStore) GetByID(ctx context.Context, id uuid.UUID) (*UserAccount, error) {
	if u, ok := c.users.Get(id); ok {
		c.hits.Add(1)
		return &u, nil
	}
	c.misses.Add(1)

	u, err := c.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(u)
	return u, nil
}

// FindByLogin retrieves an account by username or email, consulting the cache first
func (c *CachedStore) FindByLogin(ctx context.Context, login string) (*UserAccount, error) {
	key := Normalize(login)
	if id, ok := c.logins.Get(key); ok {
		if u, ok := c.users.Get(id); ok && (u.Email == key || u.Username == key) {
			c.hits.Add(1)
			return &u, nil
		}
		c.logins.Remove(key)
	}
	c.misses.Add(1)

	u, err := c.Store.FindByLogin(ctx, key)
	if err != nil {
		return nil, err
	}
	c.put(u)
	return u, nil
}

func (c *CachedStore) put(u *UserAccount) {
	c.users.Add(u.ID, *u)
	c.logins.Add(u.Email, u.ID)
	c.logins.Add(u.Username, u.ID)
}

// Invalidate evicts an account
func (c *CachedStore) Invalidate(id uuid.UUID) {
	c.users.Remove(id)
}

// TouchLastLogin records a login and evicts the account
func (c *CachedStore) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer c.Invalidate(id)
	return c.Store.TouchLastLogin(ctx, id, at)
}

// SetStatus changes the status and evicts the account
func (c *CachedStore) SetStatus(ctx context.Context, id uuid.UUID, status UserStatus) error {
	defer c.Invalidate(id)
	return c.Store.SetStatus(ctx, id, status)
}

// MarkEmailVerified verifies the email and evicts the account
func (c *CachedStore) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	defer c.Invalidate(id)
	return c.Store.MarkEmailVerified(ctx, id)
}

// SetPasswordResetToken stores a reset token and evicts the account
func (c *CachedStore) SetPasswordResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	defer c.Invalidate(id)
	return c.Store.SetPasswordResetToken(ctx, id, token, expiresAt)
}

// ClearPasswordResetToken clears the reset token and evicts the account
func (c *CachedStore) ClearPasswordResetToken(ctx context.Context, id uuid.UUID) error {
	defer c.Invalidate(id)
	return c.Store.ClearPasswordResetToken(ctx, id)
}

// UpdatePassword replaces the password hash and evicts the account
func (c *CachedStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	defer c.Invalidate(id)
	return c.Store.UpdatePassword(ctx, id, passwordHash)
}

// SoftDelete deletes the account and evicts it
func (c *CachedStore) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer c.Invalidate(id)
	return c.Store.SoftDelete(ctx, id, at)
}

// Stats returns cache statistics
func (c *CachedStore) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		ItemCount: c.users.Len(),
	}
}
