package provisioning

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// Reconciler defaults
const (
	DefaultGracePeriod = 10 * time.Minute
	DefaultBatchSize   = 100
	DefaultWorkers     = 4
	DefaultSchedule    = "@every 5m"
)

// ReconcilerConfig tunes a Reconciler
type ReconcilerConfig struct {
	// GracePeriod skips tenants younger than this, which may still be
	// mid-provisioning
	GracePeriod time.Duration
	BatchSize   int
	Workers     int
}

// Report summarizes one reconciliation run
type Report struct {
	Checked   int         `json:"checked"`
	Activated int         `json:"activated"`
	Orphaned  int         `json:"orphaned"`
	Failed    int         `json:"failed"`
	OrphanIDs []uuid.UUID `json:"orphanIds,omitempty"`
	FailedIDs []uuid.UUID `json:"failedIds,omitempty"`
}

// Reconciler finishes provisioning runs that stopped after the tenant was
// created. A pending tenant that has an administrator is activated; one
// without is reported as orphaned and left for an operator.
type Reconciler struct {
	directory *tenants.Directory
	users     *identity.Store
	config    ReconcilerConfig
	logger    logrus.FieldLogger
	metrics   *observability.Metrics
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

// NewReconciler creates a reconciler
func NewReconciler(directory *tenants.Directory, identityDB *sql.DB, config ReconcilerConfig, logger logrus.FieldLogger, metrics *observability.Metrics) *Reconciler {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &Reconciler{
		directory: directory,
		users:     identity.NewStore(identityDB),
		config:    config,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run checks every stale pending tenant, BatchSize at a time. Orphans stay
// pending and do not hide tenants created after them. A tenant that cannot
// be checked or activated is logged and counted without stopping the run.
func (r *Reconciler) Run(ctx context.Context) (report Report, err error) {
	defer func() { r.metrics.RecordReconcile(report.Activated, report.Orphaned, report.Failed, err) }()

	olderThan := r.now().Add(-r.config.GracePeriod)
	var cursor *tenants.PendingCursor
	for {
		pending, err := r.directory.ListPendingAfter(ctx, olderThan, cursor, r.config.BatchSize)
		if err != nil {
			return report, fmt.Errorf("list pending tenants: %w", err)
		}
		if len(pending) == 0 {
			break
		}
		r.checkBatch(ctx, pending, &report)

		if len(pending) < r.config.BatchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		cursor = tenants.CursorOf(pending[len(pending)-1])
	}

	if report.Checked > 0 {
		r.logger.WithFields(logrus.Fields{
			"checked":   report.Checked,
			"activated": report.Activated,
			"orphaned":  report.Orphaned,
			"failed":    report.Failed,
		}).Info("Reconciliation completed")
	}
	return report, nil
}

func (r *Reconciler) checkBatch(ctx context.Context, pending []*tenants.Tenant, report *Report) {
	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(r.config.Workers)

	for _, tenant := range pending {
		eg.Go(func() error {
			activated, err := r.reconcile(ctx, tenant)

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			switch {
			case err != nil:
				r.logger.WithError(err).WithFields(logrus.Fields{
					"tenant_id": tenant.ID,
					"slug":      tenant.Slug,
				}).Error("Failed to reconcile tenant")
				report.Failed++
				report.FailedIDs = append(report.FailedIDs, tenant.ID)
			case activated:
				report.Activated++
			default:
				report.Orphaned++
				report.OrphanIDs = append(report.OrphanIDs, tenant.ID)
			}
			return nil
		})
	}
	eg.Wait()
}

func (r *Reconciler) reconcile(ctx context.Context, tenant *tenants.Tenant) (bool, error) {
	log := r.logger.WithFields(logrus.Fields{"tenant_id": tenant.ID, "slug": tenant.Slug})

	users, err := r.users.CountByTenant(ctx, tenant.ID)
	if err != nil {
		return false, fmt.Errorf("count users of tenant %s: %w", tenant.ID, err)
	}
	if users == 0 {
		log.Warn("Pending tenant has no administrator")
		return false, nil
	}

	if err := r.directory.Activate(ctx, tenant.ID); err != nil {
		return false, fmt.Errorf("activate tenant %s: %w", tenant.ID, err)
	}
	return true, nil
}

// Schedule registers the reconciler on c. Overlapping runs are skipped.
func (r *Reconciler) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	id, err := c.AddFunc(spec, func() {
		if !r.begin() {
			r.logger.Debug("Reconciliation already running, skipping")
			return
		}
		defer r.end()

		if _, err := r.Run(context.Background()); err != nil {
			r.logger.WithError(err).Error("Reconciliation failed")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule reconciler: %w", err)
	}
	return id, nil
}

func (r *Reconciler) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Reconciler) end() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}
