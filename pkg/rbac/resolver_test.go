package rbac

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/identity"
)

func TestResolver_ScenarioA(t *testing.T) {
	db := setupTestDB(t)
	tenant := uuid.New()
	g := newGraph(t, db).forTenant(&tenant)

	read := g.operation("READ", 1)
	c := g.fullChain("u1", g.module("SALES"), read)

	res, err := NewResolver(g.users, g.store).Resolve(context.Background(), c.user.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"ADMIN"}, res.Roles.Sorted())
	assert.Equal(t, []string{"SALES"}, res.Permissions.Sorted())
	assert.Equal(t, []string{"READ"}, res.Operations.Sorted())
}

func TestResolver_ScenarioB_InactiveRoleGroupLink(t *testing.T) {
	db := setupTestDB(t)
	tenant := uuid.New()
	g := newGraph(t, db).forTenant(&tenant)

	c := g.fullChain("u1", g.module("SALES"), g.operation("READ", 1))
	require.NoError(t, g.store.SetLinkActive(context.Background(), LinkRoleGroup, c.group.ID, c.role.ID, false))

	res, err := NewResolver(g.users, g.store).Resolve(context.Background(), c.user.ID)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
}

func TestResolver_TenantIsolation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	t1, t2 := uuid.New(), uuid.New()
	base := newGraph(t, db)
	g1, g2 := base.forTenant(&t1), base.forTenant(&t2)

	sales := base.module("SALES")
	billing := base.module("BILLING")
	read := base.operation("READ", 1)
	write := base.operation("WRITE", 2)

	// Identically named groups and roles in both tenants.
	c1 := g1.fullChain("t1", sales, read)
	c2 := g2.fullChain("t2", billing, write)

	// Cross-tenant wiring that resolution must ignore.
	g1.link(LinkAccountGroup, c1.user.ID, c2.group.ID)
	g1.link(LinkRoleGroup, c1.group.ID, c2.role.ID)
	g1.link(LinkRolePermission, c1.role.ID, c2.permission.ID)

	resolver := NewResolver(base.users, base.store)

	res1, err := resolver.Resolve(ctx, c1.user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN"}, res1.Roles.Sorted())
	assert.Equal(t, []string{"SALES"}, res1.Permissions.Sorted())
	assert.Equal(t, []string{"READ"}, res1.Operations.Sorted())

	res2, err := resolver.Resolve(ctx, c2.user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN"}, res2.Roles.Sorted())
	assert.Equal(t, []string{"BILLING"}, res2.Permissions.Sorted())
	assert.Equal(t, []string{"WRITE"}, res2.Operations.Sorted())
}

func TestResolver_PlatformUserBypassesTenantFilter(t *testing.T) {
	db := setupTestDB(t)
	tenant := uuid.New()
	base := newGraph(t, db)
	g := base.forTenant(&tenant)

	c := g.fullChain("tenant-admin", base.module("SALES"), base.operation("READ", 1))
	operator := base.user("operator")
	base.link(LinkAccountGroup, operator.ID, c.group.ID)

	res, err := NewResolver(base.users, base.store).Resolve(context.Background(), operator.ID)
	require.NoError(t, err)
	assert.True(t, res.Roles.Has("ADMIN"))
	assert.True(t, res.Operations.Has("READ"))
}

func TestResolver_Exclusions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, g *graph, c chain)
		roles   []string
		perms   []string
		opNames []string
	}{
		{
			name: "inactive group",
			mutate: func(t *testing.T, g *graph, c chain) {
				require.NoError(t, g.store.SetActive(g.ctx, EntityAccessGroup, c.group.ID, false))
			},
		},
		{
			name: "inactive account link",
			mutate: func(t *testing.T, g *graph, c chain) {
				require.NoError(t, g.store.SetLinkActive(g.ctx, LinkAccountGroup, c.user.ID, c.group.ID, false))
			},
		},
		{
			name: "deleted role",
			mutate: func(t *testing.T, g *graph, c chain) {
				require.NoError(t, g.store.SoftDelete(g.ctx, EntityRole, c.role.ID, time.Now()))
			},
		},
		{
			name: "inactive permission",
			mutate: func(t *testing.T, g *graph, c chain) {
				require.NoError(t, g.store.SetActive(g.ctx, EntityPermission, c.permission.ID, false))
			},
			roles: []string{"ADMIN"},
		},
		{
			name: "inactive role permission link",
			mutate: func(t *testing.T, g *graph, c chain) {
				require.NoError(t, g.store.SetLinkActive(g.ctx, LinkRolePermission, c.role.ID, c.permission.ID, false))
			},
			roles: []string{"ADMIN"},
		},
		{
			name: "inactive operation",
			mutate: func(t *testing.T, g *graph, c chain) {
				require.NoError(t, g.store.SetActive(g.ctx, EntityOperation, c.operation.ID, false))
			},
			roles: []string{"ADMIN"},
			perms: []string{"SALES"},
		},
		{
			name: "inactive user",
			mutate: func(t *testing.T, g *graph, c chain) {
				require.NoError(t, g.users.SetStatus(g.ctx, c.user.ID, identity.StatusInactive))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			tenant := uuid.New()
			g := newGraph(t, db).forTenant(&tenant)
			c := g.fullChain("u", g.module("SALES"), g.operation("READ", 1))

			tt.mutate(t, g, c)

			res, err := NewResolver(g.users, g.store).Resolve(context.Background(), c.user.ID)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.roles, res.Roles.Sorted())
			assert.ElementsMatch(t, tt.perms, res.Permissions.Sorted())
			assert.ElementsMatch(t, tt.opNames, res.Operations.Sorted())
		})
	}
}

func TestResolver_ExpiredLinks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tenant := uuid.New()
	g := newGraph(t, db).forTenant(&tenant)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	u := g.user("temp")
	expired := g.group("Expired")
	current := g.group("Current")
	g.expiringLink(LinkAccountGroup, u.ID, expired.ID, now.Add(-time.Minute))
	g.expiringLink(LinkAccountGroup, u.ID, current.ID, now.Add(time.Hour))

	oldRole := g.role("OLD")
	newRole := g.role("NEW")
	g.link(LinkRoleGroup, expired.ID, oldRole.ID)
	g.link(LinkRoleGroup, current.ID, newRole.ID)

	resolver := NewResolver(g.users, g.store, WithResolverClock(func() time.Time { return now }))
	roles, err := resolver.ResolveRoles(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW"}, roles.Sorted())

	later := NewResolver(g.users, g.store, WithResolverClock(func() time.Time { return now.Add(2 * time.Hour) }))
	roles, err = later.ResolveRoles(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestResolver_DeduplicatesAcrossPaths(t *testing.T) {
	db := setupTestDB(t)
	tenant := uuid.New()
	g := newGraph(t, db).forTenant(&tenant)

	sales := g.module("SALES")
	read := g.operation("READ", 1)
	u := g.user("multi")
	role := g.role("SELLER")
	perm := g.permission(sales)
	g.link(LinkRolePermission, role.ID, perm.ID)
	g.link(LinkPermissionOperation, perm.ID, read.ID)

	for _, name := range []string{"A", "B", "C"} {
		grp := g.group(name)
		g.link(LinkAccountGroup, u.ID, grp.ID)
		g.link(LinkRoleGroup, grp.ID, role.ID)
	}

	res, err := NewResolver(g.users, g.store).Resolve(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, res.Roles, 1)
	assert.Len(t, res.Permissions, 1)
	assert.Len(t, res.Operations, 1)
}

func TestResolver_UnknownAndNilUser(t *testing.T) {
	db := setupTestDB(t)
	g := newGraph(t, db)
	resolver := NewResolver(g.users, g.store)

	for _, id := range []uuid.UUID{uuid.Nil, uuid.New()} {
		res, err := resolver.Resolve(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, res.IsEmpty())
	}
}

func TestResolver_UserWithoutGroups(t *testing.T) {
	db := setupTestDB(t)
	g := newGraph(t, db)
	u := g.user("lonely")

	res, err := NewResolver(g.users, g.store).Resolve(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
}

var userRow = []string{"id", "tenant_id", "username", "email", "full_name", "password_hash", "status",
	"email_verified", "last_login_at", "password_reset_token", "password_reset_expires_at", "created_at", "updated_at"}

func mockUser(mock sqlmock.Sqlmock, id, tenant uuid.UUID) {
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM user_accounts").
		WillReturnRows(sqlmock.NewRows(userRow).
			AddRow(id.String(), tenant.String(), "u", "u@example.com", "U", "hash", "active", true, nil, nil, nil, now, now))
}

func TestResolver_BatchesOneQueryPerHop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID, tenant := uuid.New(), uuid.New()
	g1, g2 := uuid.New(), uuid.New()
	r1, r2 := uuid.New(), uuid.New()
	p1, p2 := uuid.New(), uuid.New()

	mockUser(mock, userID, tenant)
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_access_groups")).
		WithArgs(sqlmock.AnyArg(), tenant.String(), userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(g1.String(), "A").AddRow(g2.String(), "B"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE l.access_group_id IN ($3, $4)")).
		WithArgs(sqlmock.AnyArg(), tenant.String(), g1.String(), g2.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).AddRow(r1.String(), "ADMIN").AddRow(r2.String(), "SELLER"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE l.role_id IN ($3, $4)")).
		WithArgs(sqlmock.AnyArg(), tenant.String(), r1.String(), r2.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).AddRow(p1.String(), "SALES").AddRow(p2.String(), "BILLING"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE l.permission_id IN ($2, $3)")).
		WithArgs(sqlmock.AnyArg(), p1.String(), p2.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(uuid.NewString(), "READ"))

	res, err := NewResolver(identity.NewStore(db), NewStore(db)).Resolve(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN", "SELLER"}, res.Roles.Sorted())
	assert.Equal(t, []string{"BILLING", "SALES"}, res.Permissions.Sorted())
	assert.Equal(t, []string{"READ"}, res.Operations.Sorted())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolver_ResolveRolesStopsAtRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID, tenant := uuid.New(), uuid.New()
	mockUser(mock, userID, tenant)
	mock.ExpectQuery("FROM account_access_groups").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(uuid.NewString(), "A"))
	mock.ExpectQuery("FROM role_access_groups").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).AddRow(uuid.NewString(), "ADMIN"))

	roles, err := NewResolver(identity.NewStore(db), NewStore(db)).ResolveRoles(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN"}, roles.Sorted())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolver_StorageErrorIsReturned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID, tenant := uuid.New(), uuid.New()
	mockUser(mock, userID, tenant)
	mock.ExpectQuery("FROM account_access_groups").WillReturnError(errors.New("connection reset"))

	res, err := NewResolver(identity.NewStore(db), NewStore(db)).Resolve(context.Background(), userID)
	assert.Error(t, err)
	assert.Nil(t, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolver_UserLookupErrorIsReturned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM user_accounts").WillReturnError(errors.New("connection reset"))

	_, err = NewResolver(identity.NewStore(db), NewStore(db)).Resolve(context.Background(), uuid.New())
	assert.Error(t, err)
}
