package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/observability"
)

var (
	configFile  = flag.String("config", "", "Path to a YAML config file (overrides WARDEN_CONFIG_FILE)")
	migrateOnly = flag.Bool("migrate-only", false, "Apply schema migrations and exit")
	reconcile   = flag.Bool("reconcile-once", false, "Run one reconciliation of pending tenants and exit")
)

func main() {
	flag.Parse()

	if *configFile != "" {
		os.Setenv("WARDEN_CONFIG_FILE", *configFile)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Warden stopped")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	if *migrateOnly {
		logger.Info("Migrations applied")
		return a.close(ctx)
	}

	if *reconcile {
		report, err := a.reconciler.Run(ctx)
		if err != nil {
			a.close(ctx)
			return err
		}
		logger.WithFields(logrus.Fields{
			"checked":   report.Checked,
			"activated": report.Activated,
			"orphaned":  report.Orphaned,
		}).Info("Reconciliation completed")
		return a.close(ctx)
	}

	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(a.metrics))
	observability.RegisterHealthRoutes(router, a.healthChecker())
	observability.RegisterMetricsEndpoint(router, a.promRegistry)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.OpsPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)

	if cfg.Reconcile.Enabled {
		c := cron.New()
		if _, err := a.reconciler.Schedule(c, cfg.Reconcile.Schedule); err != nil {
			a.close(ctx)
			return err
		}
		c.Start()
		logger.WithField("schedule", cfg.Reconcile.Schedule).Info("Tenant reconciliation scheduled")

		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	shutdown.RegisterShutdownFunc(a.close)

	go func() {
		defer observability.RecoverPanic(logger, "ops server")

		logger.WithField("addr", server.Addr).Info("Starting ops server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Ops server failed")
		}
	}()

	return shutdown.WaitForShutdown()
}
