package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/result"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// Invalidator evicts cached state of one user after its memberships change
type Invalidator func(userID uuid.UUID)

// ChangeDirection is the direction of a permission-operation change
type ChangeDirection string

const (
	ChangeAdd    ChangeDirection = "add"
	ChangeRemove ChangeDirection = "remove"
)

// OperationChange adds or removes one operation of a permission
type OperationChange struct {
	OperationID uuid.UUID       `json:"operation_id"`
	Direction   ChangeDirection `json:"direction"`
}

// Admin mutates the RBAC graph. Every batch runs in one transaction.
//
// Assigning an existing pair re-activates it; revoking deactivates it and
// never deletes the row.
type Admin struct {
	db         *sql.DB
	store      *Store
	invalidate Invalidator
	logger     logrus.FieldLogger
}

// NewAdmin creates an RBAC administration service. invalidate may be nil.
func NewAdmin(db *sql.DB, invalidate Invalidator, logger logrus.FieldLogger) *Admin {
	if invalidate == nil {
		invalidate = func(uuid.UUID) {}
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &Admin{
		db:         db,
		store:      NewStore(db),
		invalidate: invalidate,
		logger:     logger,
	}
}

// Store exposes the underlying graph store
func (a *Admin) Store() *Store {
	return a.store
}

func (a *Admin) fail(op string, err error, message string) *result.Error {
	res := result.FromError[struct{}](err, message)
	if res.Is(result.KindInternal) {
		a.logger.WithError(err).WithField("operation", op).Error("RBAC administration failed")
	}
	return res.Error
}

func failed[T any](e *result.Error) result.Result[T] {
	return result.Result[T]{Error: e}
}

func sameTenant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// AssignAccessGroups places a user into groups. Each group must belong to the
// user's tenant. Returns the number of links written.
func (a *Admin) AssignAccessGroups(ctx context.Context, userID uuid.UUID, groupIDs []uuid.UUID, grantedBy *uuid.UUID) result.Result[int] {
	var mismatch bool
	err := postgres.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		user, err := identity.NewStore(tx).GetByID(ctx, userID)
		if err != nil {
			return err
		}
		store := a.store.WithTx(tx)
		for _, groupID := range groupIDs {
			group, err := store.GetAccessGroup(ctx, groupID)
			if err != nil {
				return err
			}
			if !sameTenant(user.TenantID, group.TenantID) {
				mismatch = true
				return fmt.Errorf("access group %s outside user tenant", groupID)
			}
			link := &Link{Kind: LinkAccountGroup, LeftID: userID, RightID: groupID, GrantedBy: grantedBy}
			if err := store.UpsertLink(ctx, link); err != nil {
				return err
			}
		}
		return nil
	})
	if mismatch {
		return result.Fail[int](result.KindInvalid, "access group belongs to a different tenant")
	}
	if err != nil {
		return failed[int](a.fail("assign_access_groups", err, "user or access group not found"))
	}

	a.invalidate(userID)
	return result.OK(len(groupIDs))
}

// RevokeAccessGroup removes a user from a group
func (a *Admin) RevokeAccessGroup(ctx context.Context, userID, groupID uuid.UUID) result.Result[bool] {
	if err := a.store.SetLinkActive(ctx, LinkAccountGroup, userID, groupID, false); err != nil {
		return failed[bool](a.fail("revoke_access_group", err, "access group assignment not found"))
	}
	a.invalidate(userID)
	return result.OK(true)
}

// AssignRoles grants roles to a group. Each role must belong to the group's
// tenant.
func (a *Admin) AssignRoles(ctx context.Context, groupID uuid.UUID, roleIDs []uuid.UUID) result.Result[int] {
	var mismatch bool
	err := postgres.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		store := a.store.WithTx(tx)
		group, err := store.GetAccessGroup(ctx, groupID)
		if err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			role, err := store.GetRole(ctx, roleID)
			if err != nil {
				return err
			}
			if !sameTenant(group.TenantID, role.TenantID) {
				mismatch = true
				return fmt.Errorf("role %s outside group tenant", roleID)
			}
			if err := store.UpsertLink(ctx, &Link{Kind: LinkRoleGroup, LeftID: groupID, RightID: roleID}); err != nil {
				return err
			}
		}
		return nil
	})
	if mismatch {
		return result.Fail[int](result.KindInvalid, "role belongs to a different tenant")
	}
	if err != nil {
		return failed[int](a.fail("assign_roles", err, "access group or role not found"))
	}
	return result.OK(len(roleIDs))
}

// RevokeRole removes a role from a group
func (a *Admin) RevokeRole(ctx context.Context, groupID, roleID uuid.UUID) result.Result[bool] {
	if err := a.store.SetLinkActive(ctx, LinkRoleGroup, groupID, roleID, false); err != nil {
		return failed[bool](a.fail("revoke_role", err, "role assignment not found"))
	}
	return result.OK(true)
}

// AssignPermissions grants permissions to a role. Each permission must belong
// to the role's tenant.
func (a *Admin) AssignPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) result.Result[int] {
	var mismatch bool
	err := postgres.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		store := a.store.WithTx(tx)
		role, err := store.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		for _, permissionID := range permissionIDs {
			perm, err := store.GetPermission(ctx, permissionID)
			if err != nil {
				return err
			}
			if !sameTenant(role.TenantID, perm.TenantID) {
				mismatch = true
				return fmt.Errorf("permission %s outside role tenant", permissionID)
			}
			if err := store.UpsertLink(ctx, &Link{Kind: LinkRolePermission, LeftID: roleID, RightID: permissionID}); err != nil {
				return err
			}
		}
		return nil
	})
	if mismatch {
		return result.Fail[int](result.KindInvalid, "permission belongs to a different tenant")
	}
	if err != nil {
		return failed[int](a.fail("assign_permissions", err, "role or permission not found"))
	}
	return result.OK(len(permissionIDs))
}

// RevokePermission removes a permission from a role
func (a *Admin) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) result.Result[bool] {
	if err := a.store.SetLinkActive(ctx, LinkRolePermission, roleID, permissionID, false); err != nil {
		return failed[bool](a.fail("revoke_permission", err, "permission assignment not found"))
	}
	return result.OK(true)
}

// UpdatePermissionOperations applies a batch of operation changes to a
// permission. Add activates the pair, inserting it when missing; Remove
// deactivates it and is a no-op for a pair that was never linked. Returns the
// number of links changed.
func (a *Admin) UpdatePermissionOperations(ctx context.Context, permissionID uuid.UUID, changes []OperationChange) result.Result[int] {
	for _, c := range changes {
		if c.Direction != ChangeAdd && c.Direction != ChangeRemove {
			return result.Fail[int](result.KindInvalid, fmt.Sprintf("unknown change direction %q", c.Direction))
		}
	}

	var changed int
	err := postgres.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		store := a.store.WithTx(tx)
		if _, err := store.GetPermission(ctx, permissionID); err != nil {
			return err
		}
		for _, c := range changes {
			switch c.Direction {
			case ChangeAdd:
				if _, err := store.GetOperation(ctx, c.OperationID); err != nil {
					return err
				}
				if err := store.UpsertLink(ctx, &Link{Kind: LinkPermissionOperation, LeftID: permissionID, RightID: c.OperationID}); err != nil {
					return err
				}
				changed++
			case ChangeRemove:
				err := store.SetLinkActive(ctx, LinkPermissionOperation, permissionID, c.OperationID, false)
				if errors.Is(err, result.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				changed++
			}
		}
		return nil
	})
	if err != nil {
		return failed[int](a.fail("update_permission_operations", err, "permission or operation not found"))
	}
	return result.OK(changed)
}

// CreateAccessGroup adds a group to the catalog
func (a *Admin) CreateAccessGroup(ctx context.Context, g AccessGroup) result.Result[AccessGroup] {
	if err := a.store.CreateAccessGroup(ctx, &g); err != nil {
		return failed[AccessGroup](a.fail("create_access_group", err, "access group already exists"))
	}
	return result.OK(g)
}

// CreateRole adds a role to the catalog
func (a *Admin) CreateRole(ctx context.Context, r Role) result.Result[Role] {
	if err := a.store.CreateRole(ctx, &r); err != nil {
		return failed[Role](a.fail("create_role", err, "role code already exists"))
	}
	return result.OK(r)
}

// CreateModule adds a module to the catalog
func (a *Admin) CreateModule(ctx context.Context, m Module) result.Result[Module] {
	if err := a.store.CreateModule(ctx, &m); err != nil {
		return failed[Module](a.fail("create_module", err, "module code already exists"))
	}
	return result.OK(m)
}

// CreatePermission adds a permission over an existing module
func (a *Admin) CreatePermission(ctx context.Context, p Permission) result.Result[Permission] {
	if err := a.store.CreatePermission(ctx, &p); err != nil {
		return failed[Permission](a.fail("create_permission", err, "module not found"))
	}
	return result.OK(p)
}

// CreateOperation adds an operation to the catalog
func (a *Admin) CreateOperation(ctx context.Context, op Operation) result.Result[Operation] {
	if !IsPowerOfTwo(op.Value) {
		return result.Fail[Operation](result.KindInvalid, "operation value must be a power of two")
	}
	if err := a.store.CreateOperation(ctx, &op); err != nil {
		return failed[Operation](a.fail("create_operation", err, "operation already exists"))
	}
	return result.OK(op)
}

// SetActive activates or deactivates a catalog row. The change is visible to
// the next resolution.
func (a *Admin) SetActive(ctx context.Context, entity Entity, id uuid.UUID, active bool) result.Result[bool] {
	if err := a.store.SetActive(ctx, entity, id, active); err != nil {
		return failed[bool](a.fail("set_active", err, string(entity)+" not found"))
	}
	return result.OK(active)
}

// Delete soft-deletes a catalog row
func (a *Admin) Delete(ctx context.Context, entity Entity, id uuid.UUID) result.Result[bool] {
	if err := a.store.SoftDelete(ctx, entity, id, time.Now()); err != nil {
		return failed[bool](a.fail("delete", err, string(entity)+" not found"))
	}
	return result.OK(true)
}
