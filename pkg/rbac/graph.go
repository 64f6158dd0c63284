package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// Named is a resolved graph node
type Named struct {
	ID   uuid.UUID
	Name string
}

// Each hop is one query over the whole id set of the previous hop. $1 is
// always the evaluation time; an optional tenant filter takes $2; the id list
// follows.
const (
	groupsHop = `
		SELECT DISTINCT g.id, g.name
		FROM account_access_groups l
		JOIN access_groups g ON g.id = l.access_group_id
		WHERE l.user_id IN (%s)
		  AND l.active = TRUE AND (l.expires_at IS NULL OR l.expires_at > $1)
		  AND g.active = TRUE AND g.deleted_at IS NULL
		  %s`

	rolesHop = `
		SELECT DISTINCT r.id, r.code
		FROM role_access_groups l
		JOIN roles r ON r.id = l.role_id
		WHERE l.access_group_id IN (%s)
		  AND l.active = TRUE AND (l.expires_at IS NULL OR l.expires_at > $1)
		  AND r.active = TRUE AND r.deleted_at IS NULL
		  %s`

	permissionsHop = `
		SELECT DISTINCT p.id, m.code
		FROM role_permissions l
		JOIN permissions p ON p.id = l.permission_id
		JOIN modules m ON m.id = p.module_id
		WHERE l.role_id IN (%s)
		  AND l.active = TRUE AND (l.expires_at IS NULL OR l.expires_at > $1)
		  AND p.active = TRUE AND p.deleted_at IS NULL
		  %s`

	operationsHop = `
		SELECT DISTINCT o.id, o.name
		FROM permission_operations l
		JOIN operations o ON o.id = l.operation_id
		WHERE l.permission_id IN (%s)
		  AND l.active = TRUE AND (l.expires_at IS NULL OR l.expires_at > $1)
		  AND o.active = TRUE AND o.deleted_at IS NULL
		  %s`
)

// TenantScope selects the tenant filter of a traversal. A nil tenant skips
// filtering entirely; it does not mean "platform rows only".
type TenantScope struct {
	TenantID *uuid.UUID
}

// EffectiveGroups returns the active groups a user is effectively linked to
func (s *Store) EffectiveGroups(ctx context.Context, userID uuid.UUID, scope TenantScope, now time.Time) ([]Named, error) {
	return s.hop(ctx, groupsHop, "g.tenant_id", []uuid.UUID{userID}, scope, now)
}

// EffectiveRoles returns the active roles effectively linked to any of groupIDs
func (s *Store) EffectiveRoles(ctx context.Context, groupIDs []uuid.UUID, scope TenantScope, now time.Time) ([]Named, error) {
	return s.hop(ctx, rolesHop, "r.tenant_id", groupIDs, scope, now)
}

// EffectivePermissions returns the active permissions, named by module code,
// effectively linked to any of roleIDs
func (s *Store) EffectivePermissions(ctx context.Context, roleIDs []uuid.UUID, scope TenantScope, now time.Time) ([]Named, error) {
	return s.hop(ctx, permissionsHop, "p.tenant_id", roleIDs, scope, now)
}

// EffectiveOperations returns the active operations effectively linked to any
// of permissionIDs. Operations are global and never tenant filtered.
func (s *Store) EffectiveOperations(ctx context.Context, permissionIDs []uuid.UUID, now time.Time) ([]Named, error) {
	return s.hop(ctx, operationsHop, "", permissionIDs, TenantScope{}, now)
}

func (s *Store) hop(ctx context.Context, query, tenantColumn string, ids []uuid.UUID, scope TenantScope, now time.Time) ([]Named, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := []any{now.UTC()}
	filter := ""
	if tenantColumn != "" && scope.TenantID != nil {
		filter = fmt.Sprintf("AND %s = $2", tenantColumn)
		args = append(args, *scope.TenantID)
	}
	in, inArgs := postgres.InClause(len(args)+1, ids)
	args = append(args, inArgs...)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(query, in, filter), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to traverse graph: %w", err)
	}
	defer rows.Close()

	var out []Named
	for rows.Next() {
		var n Named
		if err := rows.Scan(&n.ID, &n.Name); err != nil {
			return nil, fmt.Errorf("failed to scan graph node: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to traverse graph: %w", err)
	}
	return out, nil
}

func ids(nodes []Named) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(nodes))
	out := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n.ID)
	}
	return out
}

func names(nodes []Named) Set {
	s := make(Set, len(nodes))
	for _, n := range nodes {
		s[n.Name] = struct{}{}
	}
	return s
}
