package provisioning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/result"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// Bootstrap RBAC created for every new tenant
const (
	AdminGroupName = "Administrators"
	AdminRoleCode  = "ADMIN"
	AdminRoleName  = "Admin"
)

// Steps of a provisioning run, used in logs and metrics
const (
	StepValidate  = "validate"
	StepPrecheck  = "precheck"
	StepNaming    = "naming"
	StepTenant    = "tenant"
	StepIdentity  = "identity"
	StepActivate  = "activate"
	StepTokens    = "tokens"
	StepCompleted = "completed"
)

// CompanyInfo describes the tenant to create
type CompanyInfo struct {
	Name        string `json:"name"`
	Document    string `json:"document"`
	TradeName   string `json:"tradeName,omitempty"`
	Phone       string `json:"phone,omitempty"`
	AddressLine string `json:"addressLine,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	Country     string `json:"country,omitempty"`
	// PlanCode starts a trial on that plan when set
	PlanCode string `json:"planCode,omitempty"`
}

// AdminCredentials describes the tenant's first administrator
type AdminCredentials struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Outcome is the result of a successful provisioning
type Outcome struct {
	TenantID     uuid.UUID    `json:"tenantId"`
	TenantSlug   string       `json:"tenantSlug"`
	TenantActive bool         `json:"tenantActive"`
	UserID       uuid.UUID    `json:"userId"`
	Username     string       `json:"username"`
	Session      auth.Session `json:"session"`
}

// SessionIssuer mints sessions for freshly created administrators
type SessionIssuer interface {
	IssueFor(ctx context.Context, user *identity.UserAccount, tenant *tenants.Tenant, roles []string) (auth.Session, error)
}

// Saga provisions a tenant across the tenant directory and the credential
// store.
//
// The two stores do not share a transaction. The tenant is committed first;
// if the identity transaction then fails the tenant is left pending without
// an administrator. That state is reported as a partial failure and picked up
// by the Reconciler. Re-submitting the same company is rejected by the
// pre-checks.
type Saga struct {
	identityDB *sql.DB
	users      *identity.Store
	directory  *tenants.Directory
	hasher     *auth.PasswordHasher
	issuer     SessionIssuer
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
}

// Option configures a Saga
type Option func(*Saga)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Saga) {
		s.logger = logger
	}
}

// WithMetrics records provisioning outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Saga) {
		s.metrics = m
	}
}

// NewSaga creates a provisioning saga
func NewSaga(identityDB *sql.DB, directory *tenants.Directory, hasher *auth.PasswordHasher, issuer SessionIssuer, opts ...Option) *Saga {
	s := &Saga{
		identityDB: identityDB,
		users:      identity.NewStore(identityDB),
		directory:  directory,
		hasher:     hasher,
		issuer:     issuer,
		logger:     observability.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validate(company CompanyInfo, admin AdminCredentials) string {
	switch {
	case strings.TrimSpace(company.Name) == "":
		return "company name is required"
	case tenants.NormalizeDocument(company.Document) == "":
		return "company document is required"
	case admin.Password == "":
		return "admin password is required"
	}
	email := strings.TrimSpace(admin.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "admin email is invalid"
	}
	return ""
}

// Provision creates a tenant, its administrator and the administrator's RBAC
// scaffolding, and opens a session for the administrator
func (s *Saga) Provision(ctx context.Context, company CompanyInfo, admin AdminCredentials) result.Result[Outcome] {
	if msg := validate(company, admin); msg != "" {
		s.metrics.RecordProvisioning(observability.OutcomeRejected, StepValidate)
		return result.Fail[Outcome](result.KindInvalid, msg)
	}
	email := identity.Normalize(admin.Email)
	log := s.logger.WithField("document", tenants.NormalizeDocument(company.Document))

	// Step 1: pre-checks, no writes.
	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return s.internal(log, StepPrecheck, err)
	}
	if taken {
		return s.conflict(StepPrecheck, "email already registered")
	}
	taken, err = s.directory.DocumentExists(ctx, company.Document)
	if err != nil {
		return s.internal(log, StepPrecheck, err)
	}
	if taken {
		return s.conflict(StepPrecheck, "document already registered")
	}

	// Step 2: naming.
	slug, err := uniqueSlug(ctx, company.Name, s.directory.SlugExists)
	if err != nil {
		return s.internal(log, StepNaming, err)
	}
	username, err := uniqueUsername(ctx, email, s.users.UsernameExists)
	if err != nil {
		return s.internal(log, StepNaming, err)
	}
	passwordHash, err := s.hasher.Hash(admin.Password)
	if err != nil {
		return s.internal(log, StepNaming, err)
	}

	// Step 3: tenant directory, committed on its own.
	tenant, err := s.directory.Register(ctx, tenants.Registration{
		Name:     strings.TrimSpace(company.Name),
		Slug:     slug,
		Document: company.Document,
		Business: tenants.BusinessInfo{
			LegalName:   strings.TrimSpace(company.Name),
			TradeName:   company.TradeName,
			Phone:       company.Phone,
			AddressLine: company.AddressLine,
			City:        company.City,
			State:       company.State,
			PostalCode:  company.PostalCode,
			Country:     company.Country,
		},
		PlanCode: company.PlanCode,
	})
	if errors.Is(err, result.ErrConflict) {
		return s.conflict(StepTenant, "company already registered")
	}
	if errors.Is(err, result.ErrNotFound) {
		s.metrics.RecordProvisioning(observability.OutcomeRejected, StepTenant)
		return result.FailWith[Outcome](result.KindInvalid, "unknown plan", err)
	}
	if err != nil {
		return s.internal(log, StepTenant, err)
	}
	log = log.WithFields(logrus.Fields{"tenant_id": tenant.ID, "slug": tenant.Slug})

	// Step 4: administrator and RBAC scaffolding.
	user := &identity.UserAccount{
		TenantID:     &tenant.ID,
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(admin.FullName),
		PasswordHash: passwordHash,
		Status:       identity.StatusInactive,
	}
	if err := s.bootstrapIdentity(ctx, tenant, user); err != nil {
		log.WithError(err).WithField("step", StepIdentity).
			Error("Provisioning partially failed: tenant has no administrator")
		s.metrics.RecordProvisioning(observability.OutcomePartial, StepIdentity)
		return result.FailWith[Outcome](result.KindPartialFailure, result.MsgInternal, err)
	}
	log = log.WithField("user_id", user.ID)

	// Step 4b: activation. The reconciler retries on failure.
	activated := true
	if err := s.directory.Activate(ctx, tenant.ID); err != nil {
		activated = false
		log.WithError(err).WithField("step", StepActivate).Warn("Tenant left pending after provisioning")
	} else {
		tenant.Status = tenants.StatusActive
	}

	// Step 5: session.
	session, err := s.issuer.IssueFor(ctx, user, tenant, []string{AdminRoleName})
	if err != nil {
		return s.internal(log, StepTokens, err)
	}

	log.WithField("step", StepCompleted).Info("Tenant provisioned")
	s.metrics.RecordProvisioning(observability.OutcomeSuccess, StepCompleted)
	return result.OK(Outcome{
		TenantID:     tenant.ID,
		TenantSlug:   tenant.Slug,
		TenantActive: activated,
		UserID:       user.ID,
		Username:     user.Username,
		Session:      session,
	})
}

func (s *Saga) bootstrapIdentity(ctx context.Context, tenant *tenants.Tenant, user *identity.UserAccount) error {
	return postgres.WithTx(ctx, s.identityDB, func(tx *sql.Tx) error {
		if err := s.users.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}

		graph := rbac.NewStore(tx)
		group := &rbac.AccessGroup{
			TenantID:    &tenant.ID,
			GroupTypeID: uuid.MustParse(rbac.TenantGroupTypeID),
			Name:        AdminGroupName,
			Active:      true,
		}
		if err := graph.CreateAccessGroup(ctx, group); err != nil {
			return err
		}
		role := &rbac.Role{TenantID: &tenant.ID, Code: AdminRoleCode, Name: AdminRoleName, Active: true}
		if err := graph.CreateRole(ctx, role); err != nil {
			return err
		}
		if err := graph.CreateLink(ctx, &rbac.Link{Kind: rbac.LinkRoleGroup, LeftID: group.ID, RightID: role.ID, Active: true}); err != nil {
			return err
		}
		return graph.CreateLink(ctx, &rbac.Link{Kind: rbac.LinkAccountGroup, LeftID: user.ID, RightID: group.ID, Active: true})
	})
}

func (s *Saga) conflict(step, msg string) result.Result[Outcome] {
	s.metrics.RecordProvisioning(observability.OutcomeConflict, step)
	return result.Fail[Outcome](result.KindConflict, msg)
}

func (s *Saga) internal(log logrus.FieldLogger, step string, err error) result.Result[Outcome] {
	log.WithError(err).WithField("step", step).Error("Provisioning failed")
	s.metrics.RecordProvisioning(observability.OutcomeError, step)
	return result.Internal[Outcome](fmt.Errorf("provisioning %s: %w", step, err))
}
