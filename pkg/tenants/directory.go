package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// DefaultTrialDays is the trial length used when a registration names a plan
// without a trial length
const DefaultTrialDays = 14

// Registration describes a tenant to create
type Registration struct {
	Name     string
	Slug     string
	Document string
	Business BusinessInfo
	// PlanCode starts a trial subscription on that plan when set
	PlanCode  string
	TrialDays int
}

// Directory is the tenant directory service
type Directory struct {
	*Store
	db     *sql.DB
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewDirectory creates a directory over its own database
func NewDirectory(db *sql.DB, logger logrus.FieldLogger) *Directory {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Directory{
		Store:  NewStore(db),
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates a pending tenant with its business details, and a trial
// subscription when a plan is named, in one transaction
func (d *Directory) Register(ctx context.Context, reg Registration) (*Tenant, error) {
	t := &Tenant{
		Name:     reg.Name,
		Slug:     reg.Slug,
		Document: reg.Document,
		Status:   StatusPending,
	}

	err := postgres.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		store := d.Store.WithTx(tx)
		if err := store.Create(ctx, t); err != nil {
			return err
		}

		info := reg.Business
		info.TenantID = t.ID
		if info.LegalName == "" {
			info.LegalName = reg.Name
		}
		if err := store.CreateBusinessInfo(ctx, &info); err != nil {
			return err
		}

		if reg.PlanCode == "" {
			return nil
		}
		plan, err := store.GetPlanByCode(ctx, reg.PlanCode)
		if err != nil {
			return err
		}
		days := reg.TrialDays
		if days <= 0 {
			days = DefaultTrialDays
		}
		return store.CreateSubscription(ctx, &Subscription{
			TenantID:         t.ID,
			PlanID:           plan.ID,
			Status:           SubscriptionTrial,
			CurrentPeriodEnd: d.now().Add(time.Duration(days) * 24 * time.Hour),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("register tenant %s: %w", reg.Slug, err)
	}

	d.logger.WithFields(logrus.Fields{
		"tenant_id": t.ID,
		"slug":      t.Slug,
	}).Info("Tenant registered")
	return t, nil
}

// Activate marks a tenant active. Activating an active tenant is a no-op.
func (d *Directory) Activate(ctx context.Context, id uuid.UUID) error {
	if err := d.SetStatus(ctx, id, StatusActive); err != nil {
		return err
	}
	d.logger.WithField("tenant_id", id).Info("Tenant activated")
	return nil
}

// Suspend marks a tenant suspended
func (d *Directory) Suspend(ctx context.Context, id uuid.UUID) error {
	if err := d.SetStatus(ctx, id, StatusSuspended); err != nil {
		return err
	}
	d.logger.WithField("tenant_id", id).Warn("Tenant suspended")
	return nil
}
