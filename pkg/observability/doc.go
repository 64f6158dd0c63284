// Package observability provides structured logging, Prometheus metrics,
// health checks and graceful shutdown for the warden service.
//
// # Logging
//
// The process logger is a logrus logger; components receive a
// logrus.FieldLogger tagged with their name:
//
//	logger, err := observability.NewLogger("info", "json", os.Stdout)
//	authLog := observability.Component(logger, "auth")
//
// # Metrics
//
// Metrics are registered on a caller-owned registry. Every recording method
// tolerates a nil *Metrics, so components can be built without metrics:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordLogin(observability.OutcomeSuccess)
//	metrics.RegisterDBStats(identityDB, "identity")
//
// # Health
//
// HealthChecker pings every database and, when configured, Redis. /healthz is
// a liveness probe; /readyz returns 503 when any dependency is unhealthy.
package observability
