package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/result"
	"github.com/platinummonkey/warden/pkg/storage/postgres/testdb"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db := testdb.Open(t, testdb.Schema{Table: MigrationsTable, Migrations: Migrations()})
	return NewStore(db)
}

func newUser(username, email string, tenantID *uuid.UUID) *UserAccount {
	return &UserAccount{
		TenantID:     tenantID,
		Username:     username,
		Email:        email,
		FullName:     "Test " + username,
		PasswordHash: "hash",
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tenantID := uuid.New()

	u := newUser("Alice", "Alice@Example.COM", &tenantID)
	require.NoError(t, store.Create(ctx, u))
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, StatusInactive, u.Status)

	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	require.NotNil(t, got.TenantID)
	assert.Equal(t, tenantID, *got.TenantID)
	assert.Equal(t, "Test Alice", got.FullName)
	assert.False(t, got.EmailVerified)
	assert.Nil(t, got.LastLoginAt)
	assert.False(t, got.IsActive())
	assert.False(t, got.IsPlatform())
}

func TestStore_CreateDuplicate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newUser("bob", "bob@example.com", nil)))

	err := store.Create(ctx, newUser("bobby", "BOB@example.com", nil))
	assert.ErrorIs(t, err, result.ErrConflict)

	err = store.Create(ctx, newUser("Bob", "other@example.com", nil))
	assert.ErrorIs(t, err, result.ErrConflict)
}

func TestStore_FindByLogin(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	u := newUser("carol", "carol@example.com", nil)
	require.NoError(t, store.Create(ctx, u))

	for _, login := range []string{"carol", "CAROL", "carol@example.com", " Carol@Example.com "} {
		got, err := store.FindByLogin(ctx, login)
		require.NoError(t, err, login)
		assert.Equal(t, u.ID, got.ID)
		assert.True(t, got.IsPlatform())
	}

	_, err := store.FindByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, result.ErrNotFound)
}

func TestStore_SoftDeleteHidesAccount(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	u := newUser("dave", "dave@example.com", nil)
	require.NoError(t, store.Create(ctx, u))
	require.NoError(t, store.SoftDelete(ctx, u.ID, time.Now()))

	_, err := store.GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, result.ErrNotFound)
	_, err = store.FindByLogin(ctx, "dave")
	assert.ErrorIs(t, err, result.ErrNotFound)

	// Deleted accounts still reserve their identifiers.
	exists, err := store.EmailExists(ctx, "dave@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	err = store.SetStatus(ctx, u.ID, StatusActive)
	assert.ErrorIs(t, err, result.ErrNotFound)
}

func TestStore_Exists(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newUser("erin", "erin@example.com", nil)))

	exists, err := store.EmailExists(ctx, "ERIN@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.UsernameExists(ctx, "Erin")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.UsernameExists(ctx, "frank")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_StatusAndVerification(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	u := newUser("gina", "gina@example.com", nil)
	require.NoError(t, store.Create(ctx, u))

	require.NoError(t, store.MarkEmailVerified(ctx, u.ID))
	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
	assert.True(t, got.IsActive())

	require.NoError(t, store.SetStatus(ctx, u.ID, StatusInactive))
	got, err = store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, got.Status)

	err = store.SetStatus(ctx, uuid.New(), StatusActive)
	assert.ErrorIs(t, err, result.ErrNotFound)
}

func TestStore_TouchLastLogin(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	u := newUser("hank", "hank@example.com", nil)
	require.NoError(t, store.Create(ctx, u))

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.TouchLastLogin(ctx, u.ID, at))

	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, at.Equal(*got.LastLoginAt))
}

func TestStore_PasswordReset(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	u := newUser("ivy", "ivy@example.com", nil)
	require.NoError(t, store.Create(ctx, u))

	now := time.Now().UTC()
	require.NoError(t, store.SetPasswordResetToken(ctx, u.ID, "reset-token", now.Add(time.Hour)))

	got, err := store.FindByPasswordResetToken(ctx, "reset-token", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	require.NotNil(t, got.PasswordResetToken)
	assert.Equal(t, "reset-token", *got.PasswordResetToken)

	// Past expiry the token no longer matches.
	_, err = store.FindByPasswordResetToken(ctx, "reset-token", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, result.ErrNotFound)

	require.NoError(t, store.UpdatePassword(ctx, u.ID, "new-hash"))
	got, err = store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Nil(t, got.PasswordResetToken)
	assert.Nil(t, got.PasswordResetExpiresAt)

	require.NoError(t, store.SetPasswordResetToken(ctx, u.ID, "second", now.Add(time.Hour)))
	require.NoError(t, store.ClearPasswordResetToken(ctx, u.ID))
	_, err = store.FindByPasswordResetToken(ctx, "second", now)
	assert.ErrorIs(t, err, result.ErrNotFound)
}

func TestStore_CountByTenant(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	t1, t2 := uuid.New(), uuid.New()

	require.NoError(t, store.Create(ctx, newUser("a1", "a1@example.com", &t1)))
	require.NoError(t, store.Create(ctx, newUser("a2", "a2@example.com", &t1)))
	deleted := newUser("a3", "a3@example.com", &t1)
	require.NoError(t, store.Create(ctx, deleted))
	require.NoError(t, store.SoftDelete(ctx, deleted.ID, time.Now()))
	require.NoError(t, store.Create(ctx, newUser("b1", "b1@example.com", &t2)))

	n, err := store.CountByTenant(ctx, t1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountByTenant(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
