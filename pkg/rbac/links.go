package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/result"
)

// LinkKind identifies one of the four link tables of the graph
type LinkKind int

const (
	// LinkAccountGroup links a user (left) to an access group (right)
	LinkAccountGroup LinkKind = iota
	// LinkRoleGroup links an access group (left) to a role (right)
	LinkRoleGroup
	// LinkRolePermission links a role (left) to a permission (right)
	LinkRolePermission
	// LinkPermissionOperation links a permission (left) to an operation (right)
	LinkPermissionOperation
)

type linkTable struct {
	name      string
	table     string
	left      string
	right     string
	grantedBy bool
}

var linkTables = map[LinkKind]linkTable{
	LinkAccountGroup:        {"account access group", "account_access_groups", "user_id", "access_group_id", true},
	LinkRoleGroup:           {"role access group", "role_access_groups", "access_group_id", "role_id", false},
	LinkRolePermission:      {"role permission", "role_permissions", "role_id", "permission_id", false},
	LinkPermissionOperation: {"permission operation", "permission_operations", "permission_id", "operation_id", false},
}

func (k LinkKind) String() string {
	if t, ok := linkTables[k]; ok {
		return t.name
	}
	return fmt.Sprintf("link(%d)", int(k))
}

func (k LinkKind) table() (linkTable, error) {
	t, ok := linkTables[k]
	if !ok {
		return linkTable{}, fmt.Errorf("unknown link kind %d", int(k))
	}
	return t, nil
}

// Link is a row of one of the link tables
type Link struct {
	ID        uuid.UUID  `json:"id"`
	Kind      LinkKind   `json:"kind"`
	LeftID    uuid.UUID  `json:"left_id"`
	RightID   uuid.UUID  `json:"right_id"`
	GrantedBy *uuid.UUID `json:"granted_by,omitempty"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsEffective reports whether the link itself is usable at now. Endpoint
// activity is checked by the graph queries.
func (l *Link) IsEffective(now time.Time) bool {
	return l.Active && (l.ExpiresAt == nil || l.ExpiresAt.After(now))
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// CreateLink inserts a link. A duplicate pair is a conflict.
func (s *Store) CreateLink(ctx context.Context, l *Link) error {
	t, err := l.Kind.table()
	if err != nil {
		return err
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	cols, placeholders, args := s.linkInsert(t, l, time.Now().UTC())
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, t.table, cols, placeholders), args...)
	if err != nil {
		return conflictOr(err, t.name)
	}
	return nil
}

// UpsertLink inserts a link, or re-activates the existing pair with the new
// expiry. The link's ID is set to the stored row's id.
func (s *Store) UpsertLink(ctx context.Context, l *Link) error {
	t, err := l.Kind.table()
	if err != nil {
		return err
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.Active = true

	set := `active = TRUE, expires_at = excluded.expires_at, updated_at = excluded.updated_at`
	if t.grantedBy {
		set += `, granted_by = excluded.granted_by`
	}

	cols, placeholders, args := s.linkInsert(t, l, time.Now().UTC())
	query := fmt.Sprintf(`
		INSERT INTO %s (%s) VALUES (%s)
		ON CONFLICT (%s, %s) DO UPDATE SET %s
		RETURNING id
	`, t.table, cols, placeholders, t.left, t.right, set)

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&l.ID); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", t.name, err)
	}
	return nil
}

func (s *Store) linkInsert(t linkTable, l *Link, now time.Time) (string, string, []any) {
	l.ExpiresAt = utcPtr(l.ExpiresAt)
	l.CreatedAt = now
	l.UpdatedAt = now

	cols := fmt.Sprintf(`id, %s, %s, active, expires_at, created_at, updated_at`, t.left, t.right)
	placeholders := `$1, $2, $3, $4, $5, $6, $7`
	args := []any{l.ID, l.LeftID, l.RightID, l.Active, l.ExpiresAt, now, now}
	if t.grantedBy {
		cols += `, granted_by`
		placeholders += `, $8`
		args = append(args, l.GrantedBy)
	}
	return cols, placeholders, args
}

// GetLink retrieves the link for a pair
func (s *Store) GetLink(ctx context.Context, kind LinkKind, leftID, rightID uuid.UUID) (*Link, error) {
	t, err := kind.table()
	if err != nil {
		return nil, err
	}

	grantedBy := `NULL`
	if t.grantedBy {
		grantedBy = `granted_by`
	}

	l := Link{Kind: kind}
	var granted uuid.NullUUID
	var expires *time.Time
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, %s, %s, %s, active, expires_at, created_at, updated_at
		FROM %s
		WHERE %s = $1 AND %s = $2
	`, t.left, t.right, grantedBy, t.table, t.left, t.right), leftID, rightID).Scan(
		&l.ID, &l.LeftID, &l.RightID, &granted, &l.Active, &expires, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, t.name)
	}
	l.GrantedBy = nullableID(granted)
	l.ExpiresAt = expires
	return &l, nil
}

// SetLinkActive toggles the active flag of an existing pair
func (s *Store) SetLinkActive(ctx context.Context, kind LinkKind, leftID, rightID uuid.UUID, active bool) error {
	t, err := kind.table()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET active = $3, updated_at = $4 WHERE %s = $1 AND %s = $2`, t.table, t.left, t.right),
		leftID, rightID, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", t.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", t.name, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", t.name, result.ErrNotFound)
	}
	return nil
}
