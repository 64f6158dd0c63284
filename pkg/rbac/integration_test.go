//go:build integration
// +build integration

package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/storage/postgres/testdb"
)

func TestIntegration_ResolveOnPostgres(t *testing.T) {
	db := testdb.Postgres(t, schemas()...)
	ctx := context.Background()
	tenant, other := uuid.New(), uuid.New()
	base := newGraph(t, db)

	sales := base.module("SALES")
	read := base.operation("READ", 1)
	c := base.forTenant(&tenant).fullChain("pg", sales, read)
	foreign := base.forTenant(&other).fullChain("pg-other", sales, read)
	base.forTenant(&tenant).link(LinkAccountGroup, c.user.ID, foreign.group.ID)

	resolver := NewResolver(base.users, base.store)
	res, err := resolver.Resolve(ctx, c.user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN"}, res.Roles.Sorted())
	assert.Equal(t, []string{"SALES"}, res.Permissions.Sorted())
	assert.Equal(t, []string{"READ"}, res.Operations.Sorted())

	admin := NewAdmin(db, nil, nil)
	expires := time.Now().Add(-time.Minute)
	require.NoError(t, base.store.UpsertLink(ctx, &Link{
		Kind: LinkRoleGroup, LeftID: c.group.ID, RightID: c.role.ID, ExpiresAt: &expires,
	}))

	roles, err := resolver.ResolveRoles(ctx, c.user.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)

	assigned := admin.AssignRoles(ctx, c.group.ID, []uuid.UUID{c.role.ID})
	require.True(t, assigned.Success)
	roles, err = resolver.ResolveRoles(ctx, c.user.ID)
	require.NoError(t, err)
	assert.True(t, roles.Has("ADMIN"))
}
