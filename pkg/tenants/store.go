package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/result"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

const tenantColumns = `id, name, slug, document, status, created_at, updated_at, deleted_at`

// Store handles tenant directory persistence
type Store struct {
	db postgres.DBTX
}

// NewStore creates a new directory store
func NewStore(db postgres.DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to tx
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// NormalizeDocument reduces a tax id to its upper-cased letters and digits so
// that "12.345.678/0001-90" and "12345678000190" collide
func NormalizeDocument(doc string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case unicode.IsLetter(r) && r < unicode.MaxASCII:
			return unicode.ToUpper(r)
		}
		return -1
	}, doc)
}

func (s *Store) exists(ctx context.Context, query string, arg any) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check tenant: %w", err)
	}
	return exists, nil
}

// SlugExists reports whether slug is taken, including by deleted tenants
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM tenants WHERE slug = $1)`, slug)
}

// DocumentExists reports whether a tenant with this document was ever
// registered
func (s *Store) DocumentExists(ctx context.Context, document string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM tenants WHERE document = $1)`, NormalizeDocument(document))
}

// Create inserts a tenant. New tenants are pending unless a status is set.
func (s *Store) Create(ctx context.Context, t *Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	t.Document = NormalizeDocument(t.Document)

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, slug, document, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.Name, t.Slug, t.Document, string(t.Status), now, now)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("tenant %s: %w", t.Slug, result.ErrConflict)
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func scanTenant(row interface{ Scan(...any) error }) (*Tenant, error) {
	var t Tenant
	var status string
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Document, &status, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return &t, nil
}

func (s *Store) getOne(ctx context.Context, where string, arg any, what string) (*Tenant, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE `+where+` AND deleted_at IS NULL`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", what, result.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// GetByID retrieves a non-deleted tenant
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return s.getOne(ctx, `id = $1`, id, id.String())
}

// GetBySlug retrieves a non-deleted tenant by slug
func (s *Store) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.getOne(ctx, `slug = $1`, slug, slug)
}

// SetStatus moves a non-deleted tenant to status
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET status = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tenant %s: %w", id, result.ErrNotFound)
	}
	return nil
}

// PendingCursor is the position after the last tenant of a ListPending page
type PendingCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorOf returns the position just after t
func CursorOf(t *Tenant) *PendingCursor {
	return &PendingCursor{CreatedAt: t.CreatedAt, ID: t.ID}
}

// ListPending returns pending tenants created before olderThan, oldest first
func (s *Store) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*Tenant, error) {
	return s.ListPendingAfter(ctx, olderThan, nil, limit)
}

// ListPendingAfter returns the page of pending tenants created before
// olderThan that follows after, ordered by creation time then id. A nil
// cursor starts at the oldest tenant.
func (s *Store) ListPendingAfter(ctx context.Context, olderThan time.Time, after *PendingCursor, limit int) ([]*Tenant, error) {
	args := []any{string(StatusPending), olderThan.UTC()}
	keyset := ""
	if after != nil {
		keyset = `AND (created_at > $3 OR (created_at = $3 AND id > $4))`
		args = append(args, after.CreatedAt.UTC(), after.ID.String())
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE status = $1 AND created_at < $2 AND deleted_at IS NULL
		  %s
		ORDER BY created_at, id
		LIMIT $%d
	`, keyset, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending tenants: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateBusinessInfo stores the business details of a tenant
func (s *Store) CreateBusinessInfo(ctx context.Context, b *BusinessInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO business_info (tenant_id, legal_name, trade_name, phone, address_line, city, state, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.TenantID, b.LegalName, b.TradeName, b.Phone, b.AddressLine, b.City, b.State, b.PostalCode, b.Country)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("business info %s: %w", b.TenantID, result.ErrConflict)
		}
		return fmt.Errorf("failed to create business info: %w", err)
	}
	return nil
}

// GetBusinessInfo retrieves the business details of a tenant
func (s *Store) GetBusinessInfo(ctx context.Context, tenantID uuid.UUID) (*BusinessInfo, error) {
	var b BusinessInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, legal_name, trade_name, phone, address_line, city, state, postal_code, country
		FROM business_info
		WHERE tenant_id = $1
	`, tenantID).Scan(&b.TenantID, &b.LegalName, &b.TradeName, &b.Phone, &b.AddressLine, &b.City, &b.State, &b.PostalCode, &b.Country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("business info %s: %w", tenantID, result.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business info: %w", err)
	}
	return &b, nil
}

// CreatePlan adds a subscription plan
func (s *Store) CreatePlan(ctx context.Context, p *Plan) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plans (id, code, name, active, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Code, p.Name, p.Active, now)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("plan %s: %w", p.Code, result.ErrConflict)
		}
		return fmt.Errorf("failed to create plan: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// GetPlanByCode retrieves an active plan
func (s *Store) GetPlanByCode(ctx context.Context, code string) (*Plan, error) {
	var p Plan
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, active, created_at FROM plans WHERE code = $1 AND active = TRUE`, code,
	).Scan(&p.ID, &p.Code, &p.Name, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", code, result.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &p, nil
}

// CreateSubscription binds a tenant to a plan
func (s *Store) CreateSubscription(ctx context.Context, sub *Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, plan_id, status, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sub.ID, sub.TenantID, sub.PlanID, string(sub.Status), sub.CurrentPeriodEnd.UTC(), now, now)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now
	return nil
}

// GetSubscription returns the latest subscription of a tenant, or nil when the
// tenant has none
func (s *Store) GetSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	var sub Subscription
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, plan_id, status, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID).Scan(&sub.ID, &sub.TenantID, &sub.PlanID, &status, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	sub.Status = SubscriptionStatus(status)
	return &sub, nil
}
