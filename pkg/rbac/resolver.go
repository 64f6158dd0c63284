package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/result"
)

// UserLookup fetches the account a resolution starts from
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.UserAccount, error)
}

// Resolver turns a user into its effective roles, permissions and operations
// by walking the RBAC graph.
//
// A traversal costs at most five round-trips (the user plus one per hop)
// regardless of graph size. Missing data at any hop yields empty downstream
// sets. Only storage failures are returned as errors.
type Resolver struct {
	users   UserLookup
	graph   *Store
	now     func() time.Time
	metrics *observability.Metrics
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithResolverClock overrides the clock used to evaluate link expiry
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithResolverMetrics records resolution latency and failures
func WithResolverMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a resolver
func NewResolver(users UserLookup, graph *Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		users: users,
		graph: graph,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the full effective authorization of userID
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (res *Resolution, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveResolve("full", time.Since(start), err) }()

	return r.resolve(ctx, userID, true)
}

// ResolveRoles returns only the effective role codes of userID
func (r *Resolver) ResolveRoles(ctx context.Context, userID uuid.UUID) (roles Set, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveResolve("roles", time.Since(start), err) }()

	res, err := r.resolve(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return res.Roles, nil
}

func (r *Resolver) resolve(ctx context.Context, userID uuid.UUID, full bool) (*Resolution, error) {
	res := emptyResolution()
	if userID == uuid.Nil {
		return res, nil
	}

	user, err := r.users.GetByID(ctx, userID)
	if errors.Is(err, result.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", userID, err)
	}
	if !user.IsActive() {
		return res, nil
	}

	scope := TenantScope{TenantID: user.TenantID}
	now := r.now().UTC()

	groups, err := r.graph.EffectiveGroups(ctx, user.ID, scope, now)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return res, nil
	}

	roles, err := r.graph.EffectiveRoles(ctx, ids(groups), scope, now)
	if err != nil {
		return nil, err
	}
	res.Roles = names(roles)
	if !full || len(roles) == 0 {
		return res, nil
	}

	permissions, err := r.graph.EffectivePermissions(ctx, ids(roles), scope, now)
	if err != nil {
		return nil, err
	}
	res.Permissions = names(permissions)
	if len(permissions) == 0 {
		return res, nil
	}

	operations, err := r.graph.EffectiveOperations(ctx, ids(permissions), now)
	if err != nil {
		return nil, err
	}
	res.Operations = names(operations)
	return res, nil
}
