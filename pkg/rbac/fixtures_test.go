package rbac

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/storage/postgres/testdb"
)

func schemas() []testdb.Schema {
	return []testdb.Schema{
		{Table: identity.MigrationsTable, Migrations: identity.Migrations()},
		{Table: MigrationsTable, Migrations: Migrations()},
	}
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return testdb.Open(t, schemas()...)
}

// graph builds RBAC fixtures against a store
type graph struct {
	t      *testing.T
	ctx    context.Context
	users  *identity.Store
	store  *Store
	tenant *uuid.UUID
}

func newGraph(t *testing.T, db *sql.DB) *graph {
	return &graph{
		t:     t,
		ctx:   context.Background(),
		users: identity.NewStore(db),
		store: NewStore(db),
	}
}

// forTenant returns a builder whose nodes belong to tenantID (nil for platform)
func (g *graph) forTenant(tenantID *uuid.UUID) *graph {
	c := *g
	c.tenant = tenantID
	return &c
}

func (g *graph) user(name string) *identity.UserAccount {
	u := &identity.UserAccount{
		TenantID:     g.tenant,
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
		Status:       identity.StatusActive,
	}
	require.NoError(g.t, g.users.Create(g.ctx, u))
	return u
}

func (g *graph) group(name string) *AccessGroup {
	ag := &AccessGroup{
		TenantID:    g.tenant,
		GroupTypeID: uuid.MustParse(TenantGroupTypeID),
		Name:        name,
		Active:      true,
	}
	require.NoError(g.t, g.store.CreateAccessGroup(g.ctx, ag))
	return ag
}

func (g *graph) role(code string) *Role {
	r := &Role{TenantID: g.tenant, Code: code, Name: code, Active: true}
	require.NoError(g.t, g.store.CreateRole(g.ctx, r))
	return r
}

func (g *graph) module(code string) *Module {
	m := &Module{Code: code, Name: code}
	require.NoError(g.t, g.store.CreateModule(g.ctx, m))
	return m
}

func (g *graph) permission(m *Module) *Permission {
	p := &Permission{TenantID: g.tenant, ModuleID: m.ID, Active: true}
	require.NoError(g.t, g.store.CreatePermission(g.ctx, p))
	return p
}

func (g *graph) operation(name string, value int64) *Operation {
	op := &Operation{Name: name, Value: value, Active: true}
	require.NoError(g.t, g.store.CreateOperation(g.ctx, op))
	return op
}

func (g *graph) link(kind LinkKind, left, right uuid.UUID) *Link {
	l := &Link{Kind: kind, LeftID: left, RightID: right, Active: true}
	require.NoError(g.t, g.store.CreateLink(g.ctx, l))
	return l
}

func (g *graph) expiringLink(kind LinkKind, left, right uuid.UUID, expiresAt time.Time) *Link {
	l := &Link{Kind: kind, LeftID: left, RightID: right, Active: true, ExpiresAt: &expiresAt}
	require.NoError(g.t, g.store.CreateLink(g.ctx, l))
	return l
}

// chain is a complete user -> group -> role -> permission -> operation path
type chain struct {
	user       *identity.UserAccount
	group      *AccessGroup
	role       *Role
	permission *Permission
	operation  *Operation
}

// fullChain links one node of each kind. The module and operation are
// created on first use and shared by later chains.
func (g *graph) fullChain(prefix string, m *Module, op *Operation) chain {
	c := chain{
		user:       g.user(prefix + "-user"),
		group:      g.group("Administrators"),
		role:       g.role("ADMIN"),
		permission: g.permission(m),
		operation:  op,
	}
	g.link(LinkAccountGroup, c.user.ID, c.group.ID)
	g.link(LinkRoleGroup, c.group.ID, c.role.ID)
	g.link(LinkRolePermission, c.role.ID, c.permission.ID)
	g.link(LinkPermissionOperation, c.permission.ID, op.ID)
	return c
}
