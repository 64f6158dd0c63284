package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/result"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// Entity names a catalog table whose rows carry an active flag
type Entity string

const (
	EntityAccessGroup Entity = "access_groups"
	EntityRole        Entity = "roles"
	EntityPermission  Entity = "permissions"
	EntityOperation   Entity = "operations"
)

// Store handles RBAC graph persistence
type Store struct {
	db postgres.DBTX
}

// NewStore creates a new RBAC store
func NewStore(db postgres.DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to tx
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

func conflictOr(err error, what string) error {
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, result.ErrConflict)
	}
	return fmt.Errorf("failed to create %s: %w", what, err)
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, result.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func nullableID(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

// tenantFilter renders an equality filter on column for tenantID, using a
// placeholder at position pos when tenantID is set
func tenantFilter(column string, tenantID *uuid.UUID, pos int) (string, []any) {
	if tenantID == nil {
		return column + " IS NULL", nil
	}
	return fmt.Sprintf("%s = $%d", column, pos), []any{*tenantID}
}

// CreateGroupType creates a group type
func (s *Store) CreateGroupType(ctx context.Context, gt *GroupType) error {
	if gt.ID == uuid.Nil {
		gt.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_types (id, code, name, created_at) VALUES ($1, $2, $3, $4)`,
		gt.ID, gt.Code, gt.Name, now)
	if err != nil {
		return conflictOr(err, "group type "+gt.Code)
	}
	gt.CreatedAt = now
	return nil
}

// GetGroupTypeByCode retrieves a group type by code
func (s *Store) GetGroupTypeByCode(ctx context.Context, code string) (*GroupType, error) {
	var gt GroupType
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, created_at FROM group_types WHERE code = $1`, code,
	).Scan(&gt.ID, &gt.Code, &gt.Name, &gt.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "group type "+code)
	}
	return &gt, nil
}

// CreateAccessGroup creates an access group
func (s *Store) CreateAccessGroup(ctx context.Context, g *AccessGroup) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_groups (id, tenant_id, group_type_id, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, g.ID, g.TenantID, g.GroupTypeID, g.Name, g.Active, now, now)
	if err != nil {
		return conflictOr(err, "access group "+g.Name)
	}
	g.CreatedAt = now
	g.UpdatedAt = now
	return nil
}

// GetAccessGroup retrieves a non-deleted access group
func (s *Store) GetAccessGroup(ctx context.Context, id uuid.UUID) (*AccessGroup, error) {
	var g AccessGroup
	var tenantID uuid.NullUUID
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, group_type_id, name, active, created_at, updated_at
		FROM access_groups
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&g.ID, &tenantID, &g.GroupTypeID, &g.Name, &g.Active, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err, "access group "+id.String())
	}
	g.TenantID = nullableID(tenantID)
	return &g, nil
}

// ListAccessGroups lists the non-deleted access groups of a tenant, or the
// platform groups when tenantID is nil
func (s *Store) ListAccessGroups(ctx context.Context, tenantID *uuid.UUID) ([]*AccessGroup, error) {
	filter, args := tenantFilter("tenant_id", tenantID, 1)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, group_type_id, name, active, created_at, updated_at
		FROM access_groups
		WHERE `+filter+` AND deleted_at IS NULL
		ORDER BY name
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list access groups: %w", err)
	}
	defer rows.Close()

	var groups []*AccessGroup
	for rows.Next() {
		var g AccessGroup
		var tid uuid.NullUUID
		if err := rows.Scan(&g.ID, &tid, &g.GroupTypeID, &g.Name, &g.Active, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan access group: %w", err)
		}
		g.TenantID = nullableID(tid)
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

// CreateRole creates a role
func (s *Store) CreateRole(ctx context.Context, r *Role) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (id, tenant_id, code, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.TenantID, r.Code, r.Name, r.Active, now, now)
	if err != nil {
		return conflictOr(err, "role "+r.Code)
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

const roleColumns = `id, tenant_id, code, name, active, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (*Role, error) {
	var r Role
	var tenantID uuid.NullUUID
	if err := row.Scan(&r.ID, &tenantID, &r.Code, &r.Name, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.TenantID = nullableID(tenantID)
	return &r, nil
}

// GetRole retrieves a non-deleted role
func (s *Store) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	r, err := scanRole(s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, notFoundOr(err, "role "+id.String())
	}
	return r, nil
}

// GetRoleByCode retrieves a non-deleted role by code within a tenant, or among
// platform roles when tenantID is nil
func (s *Store) GetRoleByCode(ctx context.Context, tenantID *uuid.UUID, code string) (*Role, error) {
	filter, args := tenantFilter("tenant_id", tenantID, 2)
	r, err := scanRole(s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE code = $1 AND `+filter+` AND deleted_at IS NULL`,
		append([]any{code}, args...)...))
	if err != nil {
		return nil, notFoundOr(err, "role "+code)
	}
	return r, nil
}

// CreateModule creates a module
func (s *Store) CreateModule(ctx context.Context, m *Module) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO modules (id, code, name, created_at) VALUES ($1, $2, $3, $4)`,
		m.ID, m.Code, m.Name, now)
	if err != nil {
		return conflictOr(err, "module "+m.Code)
	}
	m.CreatedAt = now
	return nil
}

// GetModuleByCode retrieves a module by code
func (s *Store) GetModuleByCode(ctx context.Context, code string) (*Module, error) {
	var m Module
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, created_at FROM modules WHERE code = $1`, code,
	).Scan(&m.ID, &m.Code, &m.Name, &m.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "module "+code)
	}
	return &m, nil
}

// CreatePermission creates a permission over an existing module and fills
// in its derived name
func (s *Store) CreatePermission(ctx context.Context, p *Permission) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	var moduleCode string
	err := s.db.QueryRowContext(ctx, `SELECT code FROM modules WHERE id = $1`, p.ModuleID).Scan(&moduleCode)
	if err != nil {
		return notFoundOr(err, "module "+p.ModuleID.String())
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO permissions (id, tenant_id, module_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.TenantID, p.ModuleID, p.Active, now, now)
	if err != nil {
		return conflictOr(err, "permission "+p.ID.String())
	}
	p.Name = moduleCode
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetPermission retrieves a non-deleted permission with its derived name
func (s *Store) GetPermission(ctx context.Context, id uuid.UUID) (*Permission, error) {
	var p Permission
	var tenantID uuid.NullUUID
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.tenant_id, p.module_id, m.code, p.active, p.created_at, p.updated_at
		FROM permissions p
		JOIN modules m ON m.id = p.module_id
		WHERE p.id = $1 AND p.deleted_at IS NULL
	`, id).Scan(&p.ID, &tenantID, &p.ModuleID, &p.Name, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err, "permission "+id.String())
	}
	p.TenantID = nullableID(tenantID)
	return &p, nil
}

// CreateOperation creates an operation. Value must be a power of two.
func (s *Store) CreateOperation(ctx context.Context, op *Operation) error {
	if !IsPowerOfTwo(op.Value) {
		return fmt.Errorf("operation %s: value %d is not a power of two", op.Name, op.Value)
	}
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (id, name, value, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, op.ID, op.Name, op.Value, op.Active, now, now)
	if err != nil {
		return conflictOr(err, "operation "+op.Name)
	}
	op.CreatedAt = now
	op.UpdatedAt = now
	return nil
}

// GetOperation retrieves a non-deleted operation
func (s *Store) GetOperation(ctx context.Context, id uuid.UUID) (*Operation, error) {
	var op Operation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, value, active, created_at, updated_at
		FROM operations
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&op.ID, &op.Name, &op.Value, &op.Active, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err, "operation "+id.String())
	}
	return &op, nil
}

// SetActive toggles the active flag of a non-deleted catalog row
func (s *Store) SetActive(ctx context.Context, entity Entity, id uuid.UUID, active bool) error {
	return s.touch(ctx, entity, id, `active = $2`, active)
}

// SoftDelete marks a catalog row deleted
func (s *Store) SoftDelete(ctx context.Context, entity Entity, id uuid.UUID, at time.Time) error {
	return s.touch(ctx, entity, id, `deleted_at = $2`, at.UTC())
}

func (s *Store) touch(ctx context.Context, entity Entity, id uuid.UUID, set string, arg any) error {
	switch entity {
	case EntityAccessGroup, EntityRole, EntityPermission, EntityOperation:
	default:
		return fmt.Errorf("unknown entity %q", entity)
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`, entity, set),
		id, arg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", entity, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, result.ErrNotFound)
	}
	return nil
}
