package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/ratelimit"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/registry"
	"github.com/platinummonkey/warden/pkg/result"
	"github.com/platinummonkey/warden/pkg/tenants"
)

const tokenTypeBearer = "Bearer"

// UserStore is the part of the credential store the issuer needs
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.UserAccount, error)
	FindByLogin(ctx context.Context, login string) (*identity.UserAccount, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// TenantLookup reads tenants from the directory
type TenantLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*tenants.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*tenants.Tenant, error)
	GetSubscription(ctx context.Context, tenantID uuid.UUID) (*tenants.Subscription, error)
}

// RoleResolver resolves effective authorization
type RoleResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (*rbac.Resolution, error)
	ResolveRoles(ctx context.Context, userID uuid.UUID) (rbac.Set, error)
}

// Issuer authenticates users and manages their sessions
type Issuer struct {
	users    UserStore
	tenants  TenantLookup
	resolver RoleResolver
	registry registry.Registry
	signer   *Signer
	hasher   *PasswordHasher
	tokens   *TokenGenerator

	refreshTTL time.Duration
	now        func() time.Time
	logger     logrus.FieldLogger
	audit      *AuditLogger
	metrics    *observability.Metrics
	limiter    ratelimit.Limiter
}

// Option configures an Issuer
type Option func(*Issuer)

// WithClock overrides the clock used for refresh records and last-login
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithRefreshTTL overrides the refresh token lifetime
func WithRefreshTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

// WithMetrics records session outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// WithLoginLimiter throttles sign-in attempts per login. Throttled attempts
// are rejected like bad credentials. Limiter errors let the attempt through.
func WithLoginLimiter(l ratelimit.Limiter) Option {
	return func(i *Issuer) {
		i.limiter = l
	}
}

// NewIssuer creates a session issuer
func NewIssuer(users UserStore, directory TenantLookup, resolver RoleResolver, reg registry.Registry, signer *Signer, hasher *PasswordHasher, opts ...Option) *Issuer {
	i := &Issuer{
		users:      users,
		tenants:    directory,
		resolver:   resolver,
		registry:   reg,
		signer:     signer,
		hasher:     hasher,
		tokens:     NewTokenGenerator(),
		refreshTTL: registry.DefaultTTL,
		now:        time.Now,
		logger:     observability.Discard(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.audit = NewAuditLogger(i.logger)
	return i
}

// attempt tracks one pass through the authentication state machine
type attempt struct {
	action string
	state  State
	event  AuditEvent
}

func (i *Issuer) begin(action, login string) *attempt {
	return &attempt{
		action: action,
		state:  StateUnauthenticated,
		event:  AuditEvent{Action: action, Login: login},
	}
}

func (a *attempt) advance(next State) {
	if s, err := a.state.Advance(next); err == nil {
		a.state = s
	}
}

func (a *attempt) forUser(u *identity.UserAccount) {
	a.event.UserID = &u.ID
	a.event.TenantID = u.TenantID
}

func (i *Issuer) finish(ctx context.Context, a *attempt, status, reason string) {
	a.event.Status = status
	a.event.State = a.state
	a.event.Reason = reason
	a.event.CreatedAt = i.now()
	_ = i.audit.LogAction(ctx, &a.event)
}

func (i *Issuer) reject(ctx context.Context, a *attempt, reason string) {
	a.advance(StateRejected)
	i.finish(ctx, a, StatusDenied, reason)
}

// Login verifies credentials and opens a session.
//
// Unknown users, inactive users and wrong passwords are indistinguishable to
// the caller.
func (i *Issuer) Login(ctx context.Context, usernameOrEmail, password string) result.Result[Session] {
	login := identity.Normalize(usernameOrEmail)
	a := i.begin(ActionLogin, login)

	if !i.allowLogin(ctx, login) {
		i.hasher.Burn(password)
		i.reject(ctx, a, "throttled")
		i.metrics.RecordLogin(observability.OutcomeRejected)
		return result.Unauthorized[Session]()
	}

	user, err := i.users.FindByLogin(ctx, login)
	if errors.Is(err, result.ErrNotFound) {
		i.hasher.Burn(password)
		i.reject(ctx, a, "unknown login")
		i.metrics.RecordLogin(observability.OutcomeRejected)
		return result.Unauthorized[Session]()
	}
	if err != nil {
		return i.loginFailed(ctx, a, err)
	}
	a.forUser(user)

	if !i.hasher.Verify(user.PasswordHash, password) {
		i.reject(ctx, a, "bad password")
		i.metrics.RecordLogin(observability.OutcomeRejected)
		return result.Unauthorized[Session]()
	}
	if !user.IsActive() {
		i.reject(ctx, a, "account inactive")
		i.metrics.RecordLogin(observability.OutcomeRejected)
		return result.Unauthorized[Session]()
	}
	a.advance(StateCredentialChecked)

	tenant, err := i.tenantOf(ctx, user)
	if errors.Is(err, errTenantUnavailable) {
		i.reject(ctx, a, "tenant unavailable")
		i.metrics.RecordLogin(observability.OutcomeRejected)
		return result.Unauthorized[Session]()
	}
	if err != nil {
		return i.loginFailed(ctx, a, err)
	}

	roles, err := i.resolver.ResolveRoles(ctx, user.ID)
	if err != nil {
		return i.loginFailed(ctx, a, err)
	}

	session, err := i.IssueFor(ctx, user, tenant, roles.Sorted())
	if err != nil {
		return i.loginFailed(ctx, a, err)
	}

	if err := i.users.TouchLastLogin(ctx, user.ID, i.now()); err != nil {
		i.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to record last login")
	}

	a.advance(StateTokenIssued)
	i.finish(ctx, a, StatusSuccess, "")
	i.metrics.RecordLogin(observability.OutcomeSuccess)
	return result.OK(session)
}

func (i *Issuer) loginFailed(ctx context.Context, a *attempt, err error) result.Result[Session] {
	a.advance(StateRejected)
	i.finish(ctx, a, StatusFailure, "internal error")
	i.logger.WithError(err).WithField("login", a.event.Login).Error("Login failed")
	i.metrics.RecordLogin(observability.OutcomeError)
	return result.Internal[Session](err)
}

var errTenantUnavailable = errors.New("tenant unavailable")

// tenantOf loads the tenant of a tenant-bound user. Suspended and missing
// tenants block sign-in; pending tenants do not.
func (i *Issuer) tenantOf(ctx context.Context, user *identity.UserAccount) (*tenants.Tenant, error) {
	if user.TenantID == nil {
		return nil, nil
	}
	tenant, err := i.tenants.GetByID(ctx, *user.TenantID)
	if errors.Is(err, result.ErrNotFound) {
		return nil, errTenantUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", *user.TenantID, err)
	}
	if tenant.Status == tenants.StatusSuspended {
		return nil, errTenantUnavailable
	}
	return tenant, nil
}

func (i *Issuer) allowLogin(ctx context.Context, login string) bool {
	if i.limiter == nil {
		return true
	}
	ok, err := i.limiter.Allow(ctx, "login:"+login)
	if err != nil {
		i.logger.WithError(err).Warn("Login limiter unavailable, allowing attempt")
		return true
	}
	return ok
}

// IssueFor mints a session for an already authenticated user. tenant may be
// nil for platform users.
func (i *Issuer) IssueFor(ctx context.Context, user *identity.UserAccount, tenant *tenants.Tenant, roles []string) (Session, error) {
	access, err := i.signer.Sign(user, tenant, roles)
	if err != nil {
		return Session{}, err
	}
	refresh, err := i.tokens.GenerateToken()
	if err != nil {
		return Session{}, err
	}
	if err := i.registry.Put(ctx, refresh, i.record(user)); err != nil {
		return Session{}, fmt.Errorf("register refresh token: %w", err)
	}
	return i.session(access, refresh), nil
}

func (i *Issuer) record(user *identity.UserAccount) registry.Record {
	return registry.NewRecord(user.ID, user.TenantID, i.now(), i.refreshTTL)
}

func (i *Issuer) session(access, refresh string) Session {
	return Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(i.signer.TTL() / time.Second),
	}
}

// Refresh exchanges a refresh token for a new session. The presented token
// is retired; replaying it fails.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) result.Result[Session] {
	a := i.begin(ActionRefresh, "")

	if err := i.tokens.ValidateTokenFormat(refreshToken); err != nil {
		return i.refreshRejected(ctx, a, "malformed token")
	}

	rec, err := i.registry.Get(ctx, refreshToken)
	if errors.Is(err, registry.ErrNotFound) {
		return i.refreshRejected(ctx, a, "unknown token")
	}
	if err != nil {
		return i.refreshFailed(ctx, a, err)
	}

	user, err := i.users.GetByID(ctx, rec.UserID)
	if err != nil && !errors.Is(err, result.ErrNotFound) {
		return i.refreshFailed(ctx, a, err)
	}
	if user == nil || !user.IsActive() {
		if err := i.registry.Delete(ctx, refreshToken); err != nil {
			i.logger.WithError(err).WithField("user_id", rec.UserID).Warn("Failed to drop refresh token of inactive user")
		}
		return i.refreshRejected(ctx, a, "account inactive")
	}
	a.forUser(user)
	a.advance(StateCredentialChecked)

	tenant, err := i.tenantOf(ctx, user)
	if errors.Is(err, errTenantUnavailable) {
		return i.refreshRejected(ctx, a, "tenant unavailable")
	}
	if err != nil {
		return i.refreshFailed(ctx, a, err)
	}

	roles, err := i.resolver.ResolveRoles(ctx, user.ID)
	if err != nil {
		return i.refreshFailed(ctx, a, err)
	}

	access, err := i.signer.Sign(user, tenant, roles.Sorted())
	if err != nil {
		return i.refreshFailed(ctx, a, err)
	}
	next, err := i.tokens.GenerateToken()
	if err != nil {
		return i.refreshFailed(ctx, a, err)
	}

	rotated, err := i.registry.Rotate(ctx, refreshToken, next, i.record(user))
	if err != nil {
		return i.refreshFailed(ctx, a, err)
	}
	if !rotated {
		return i.refreshRejected(ctx, a, "token already used")
	}

	a.advance(StateTokenIssued)
	i.finish(ctx, a, StatusSuccess, "")
	i.metrics.RecordRefresh(observability.OutcomeSuccess)
	return result.OK(i.session(access, next))
}

func (i *Issuer) refreshRejected(ctx context.Context, a *attempt, reason string) result.Result[Session] {
	i.reject(ctx, a, reason)
	i.metrics.RecordRefresh(observability.OutcomeRejected)
	return result.Unauthorized[Session]()
}

func (i *Issuer) refreshFailed(ctx context.Context, a *attempt, err error) result.Result[Session] {
	a.advance(StateRejected)
	i.finish(ctx, a, StatusFailure, "internal error")
	i.logger.WithError(err).Error("Refresh failed")
	i.metrics.RecordRefresh(observability.OutcomeError)
	return result.Internal[Session](err)
}

// Revoke retires a refresh token. Unknown tokens revoke successfully.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) result.Result[bool] {
	if err := i.registry.Delete(ctx, refreshToken); err != nil {
		i.logger.WithError(err).Error("Revoke failed")
		return result.Internal[bool](err)
	}
	_ = i.audit.LogAction(ctx, &AuditEvent{Action: ActionRevoke, Status: StatusSuccess, CreatedAt: i.now()})
	i.metrics.RecordRevocation()
	return result.OK(true)
}

// ValidateToken reports whether an access token is well-formed, correctly
// signed, unexpired and meant for this service
func (i *Issuer) ValidateToken(token string) bool {
	_, err := i.signer.Parse(token)
	return err == nil
}

// GetUserInfo returns the profile and effective permissions of a user. When
// tenantSlug is set it must name the user's own tenant, unless the user is a
// platform user.
func (i *Issuer) GetUserInfo(ctx context.Context, userID uuid.UUID, tenantSlug string) result.Result[UserInfo] {
	user, err := i.users.GetByID(ctx, userID)
	if err != nil {
		return i.userInfoFailed(err)
	}

	var tenant *tenants.Tenant
	switch {
	case tenantSlug != "":
		tenant, err = i.tenants.GetBySlug(ctx, tenantSlug)
		if err != nil {
			return i.userInfoFailed(err)
		}
		if user.TenantID != nil && *user.TenantID != tenant.ID {
			return result.Unauthorized[UserInfo]()
		}
	case user.TenantID != nil:
		tenant, err = i.tenants.GetByID(ctx, *user.TenantID)
		if err != nil && !errors.Is(err, result.ErrNotFound) {
			return i.userInfoFailed(err)
		}
	}

	resolution, err := i.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return i.userInfoFailed(err)
	}

	info := UserInfo{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FullName:    user.FullName,
		Permissions: resolution.Permissions.Sorted(),
	}
	if tenant != nil {
		info.Tenant = &TenantInfo{ID: tenant.ID, Slug: tenant.Slug, Name: tenant.Name}

		// A tenant without a subscription is valid.
		sub, err := i.tenants.GetSubscription(ctx, tenant.ID)
		if err != nil {
			return i.userInfoFailed(err)
		}
		if sub != nil {
			info.Tenant.Subscription = sub.Status
		}
	}
	return result.OK(info)
}

func (i *Issuer) userInfoFailed(err error) result.Result[UserInfo] {
	res := result.FromError[UserInfo](err, "user or tenant not found")
	if res.Is(result.KindInternal) {
		i.logger.WithError(err).Error("User info lookup failed")
	}
	return res
}
