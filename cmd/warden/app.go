package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/provisioning"
	"github.com/platinummonkey/warden/pkg/ratelimit"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/registry"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// app holds the wired service components
type app struct {
	identityDB *sql.DB
	tenantDB   *sql.DB
	redis      *redis.Client

	promRegistry *prometheus.Registry
	metrics      *observability.Metrics

	users      *identity.CachedStore
	directory  *tenants.Directory
	resolver   *rbac.Resolver
	rbacAdmin  *rbac.Admin
	registry   registry.Registry
	limiter    ratelimit.Limiter
	issuer     *auth.Issuer
	saga       *provisioning.Saga
	reconciler *provisioning.Reconciler
}

func newApp(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (a *app, err error) {
	a = &app{promRegistry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close(ctx)
		}
	}()

	a.promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(a.promRegistry)

	if a.identityDB, err = openStore(ctx, cfg.Database, cfg.Database.IdentityURL); err != nil {
		return nil, fmt.Errorf("identity store: %w", err)
	}
	if a.tenantDB, err = openStore(ctx, cfg.Database, cfg.Database.TenantURL); err != nil {
		return nil, fmt.Errorf("tenant store: %w", err)
	}
	a.metrics.RegisterDBStats(a.identityDB, "identity")
	a.metrics.RegisterDBStats(a.tenantDB, "tenants")

	migrationLog := observability.Component(logger, "migrations")
	if err = postgres.RunMigrations(ctx, a.identityDB, identity.MigrationsTable, identity.Migrations(), migrationLog); err != nil {
		return nil, err
	}
	if err = postgres.RunMigrations(ctx, a.identityDB, rbac.MigrationsTable, rbac.Migrations(), migrationLog); err != nil {
		return nil, err
	}
	if err = postgres.RunMigrations(ctx, a.tenantDB, tenants.MigrationsTable, tenants.Migrations(), migrationLog); err != nil {
		return nil, err
	}

	switch cfg.Redis.Registry {
	case config.RegistryRedis:
		a.redis, err = postgres.NewRedisClient(ctx, postgres.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, err
		}
		a.registry = registry.NewRedisRegistry(a.redis, cfg.Redis.KeyPrefix)
	default:
		memory := registry.NewMemoryRegistry(cfg.Cache.RegistrySize, cfg.Auth.RefreshTTL)
		a.metrics.RegisterEvictions("refresh_registry", memory.Evictions)
		a.registry = memory
	}

	if cfg.Auth.LoginAttempts > 0 {
		limits := ratelimit.Config{Attempts: cfg.Auth.LoginAttempts, Window: cfg.Auth.LoginWindow}
		if a.redis != nil {
			a.limiter = ratelimit.NewRedisLimiter(a.redis, limits, "")
		} else {
			memory := ratelimit.NewMemoryLimiter(limits)
			memory.StartCleanup(ctx)
			a.limiter = memory
		}
	}

	a.users = identity.NewCachedStore(identity.NewStore(a.identityDB), cfg.Cache.UserCacheSize, cfg.Cache.UserCacheTTL)
	a.metrics.RegisterCacheStats("users", func() (int64, int64) {
		stats := a.users.Stats()
		return stats.Hits, stats.Misses
	})
	a.directory = tenants.NewDirectory(a.tenantDB, observability.Component(logger, "tenants"))

	graph := rbac.NewStore(a.identityDB)
	a.resolver = rbac.NewResolver(a.users, graph, rbac.WithResolverMetrics(a.metrics))
	a.rbacAdmin = rbac.NewAdmin(a.identityDB, a.users.Invalidate, observability.Component(logger, "rbac"))

	signer, err := auth.NewSigner(auth.SignerConfig{
		Secret:    cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.JWTIssuer,
		Audience:  cfg.Auth.JWTAudience,
		AccessTTL: cfg.Auth.AccessTTL(),
	})
	if err != nil {
		return nil, err
	}
	hasher, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}
	issuerOpts := []auth.Option{
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithLogger(observability.Component(logger, "sessions")),
		auth.WithMetrics(a.metrics),
	}
	if a.limiter != nil {
		issuerOpts = append(issuerOpts, auth.WithLoginLimiter(a.limiter))
	}
	a.issuer = auth.NewIssuer(a.users, a.directory, a.resolver, a.registry, signer, hasher, issuerOpts...)

	provisioningLog := observability.Component(logger, "provisioning")
	a.saga = provisioning.NewSaga(a.identityDB, a.directory, hasher, a.issuer,
		provisioning.WithLogger(provisioningLog),
		provisioning.WithMetrics(a.metrics),
	)
	a.reconciler = provisioning.NewReconciler(a.directory, a.identityDB, provisioning.ReconcilerConfig{
		GracePeriod: cfg.Reconcile.GracePeriod,
		BatchSize:   cfg.Reconcile.BatchSize,
		Workers:     cfg.Reconcile.Workers,
	}, provisioningLog, a.metrics)

	return a, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, url string) (*sql.DB, error) {
	conn := postgres.DefaultConnectionConfig(url)
	if cfg.MaxConns > 0 {
		conn.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		conn.MinConns = cfg.MinConns
	}
	if cfg.Timeout > 0 {
		conn.Timeout = cfg.Timeout
	}
	return postgres.Open(ctx, conn)
}

func (a *app) healthChecker() *observability.HealthChecker {
	return observability.NewHealthChecker(map[string]*sql.DB{
		"identity": a.identityDB,
		"tenants":  a.tenantDB,
	}, a.redis)
}

func (a *app) close(_ context.Context) error {
	var errs []error
	if a.registry != nil {
		// The Redis registry owns the client.
		errs = append(errs, a.registry.Close())
	} else if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.identityDB != nil {
		errs = append(errs, a.identityDB.Close())
	}
	if a.tenantDB != nil {
		errs = append(errs, a.tenantDB.Close())
	}
	return errors.Join(errs...)
}
