package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the session and provisioning counters
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomePartial  = "partial_failure"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics.
//
// All recording methods are safe to call on a nil *Metrics, which records
// nothing. Components take an optional *Metrics and never check for nil.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Session metrics
	LoginsTotal      *prometheus.CounterVec
	RefreshesTotal   *prometheus.CounterVec
	RevocationsTotal prometheus.Counter

	// Resolver metrics
	ResolveDuration    *prometheus.HistogramVec
	ResolveErrorsTotal *prometheus.CounterVec

	// Provisioning metrics
	ProvisioningTotal     *prometheus.CounterVec
	ReconcileRunsTotal    *prometheus.CounterVec
	TenantsActivatedTotal prometheus.Counter
	TenantsFailedTotal    prometheus.Counter
	OrphanedTenants       prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_token_refreshes_total",
				Help: "Total number of refresh token exchanges by outcome",
			},
			[]string{"outcome"},
		),
		RevocationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_token_revocations_total",
				Help: "Total number of refresh token revocations",
			},
		),

		ResolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_resolve_duration_seconds",
				Help:    "Permission resolution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"scope"},
		),
		ResolveErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_resolve_errors_total",
				Help: "Total number of permission resolutions failed by storage errors",
			},
			[]string{"scope"},
		),

		ProvisioningTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_provisioning_total",
				Help: "Total number of tenant provisioning attempts by outcome and last step reached",
			},
			[]string{"outcome", "step"},
		),
		ReconcileRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_reconcile_runs_total",
				Help: "Total number of reconciliation runs",
			},
			[]string{"status"},
		),
		TenantsActivatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_reconcile_tenants_activated_total",
				Help: "Total number of pending tenants activated by reconciliation",
			},
		),
		TenantsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_reconcile_tenants_failed_total",
				Help: "Total number of pending tenants reconciliation could not check or activate",
			},
		),
		OrphanedTenants: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_orphaned_tenants",
				Help: "Pending tenants without an admin identity at the last reconciliation",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.RefreshesTotal,
		m.RevocationsTotal,
		m.ResolveDuration,
		m.ResolveErrorsTotal,
		m.ProvisioningTotal,
		m.ReconcileRunsTotal,
		m.TenantsActivatedTotal,
		m.TenantsFailedTotal,
		m.OrphanedTenants,
	)

	return m
}

// RegisterDBStats exposes connection pool statistics of db under name
func (m *Metrics) RegisterDBStats(db *sql.DB, name string) {
	if m == nil {
		return
	}
	m.registry.MustRegister(collectors.NewDBStatsCollector(db, name))
}

// RegisterCacheStats exposes hit and miss counters read from stats on scrape
func (m *Metrics) RegisterCacheStats(cache string, stats func() (hits, misses int64)) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"cache": cache}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "warden_cache_hits_total",
			Help:        "Total number of cache hits",
			ConstLabels: labels,
		}, func() float64 {
			hits, _ := stats()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "warden_cache_misses_total",
			Help:        "Total number of cache misses",
			ConstLabels: labels,
		}, func() float64 {
			_, misses := stats()
			return float64(misses)
		}),
	)
}

// RegisterEvictions exposes a counter of live entries a bounded store dropped
// for capacity, read from evictions on scrape
func (m *Metrics) RegisterEvictions(store string, evictions func() int64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        "warden_capacity_evictions_total",
		Help:        "Total number of live entries dropped because a bounded store was full",
		ConstLabels: prometheus.Labels{"store": store},
	}, func() float64 {
		return float64(evictions())
	}))
}

// RecordLogin counts a login attempt
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

// RecordRefresh counts a refresh token exchange
func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(outcome).Inc()
}

// RecordRevocation counts a revocation
func (m *Metrics) RecordRevocation() {
	if m == nil {
		return
	}
	m.RevocationsTotal.Inc()
}

// ObserveResolve records a resolution; err marks a storage failure
func (m *Metrics) ObserveResolve(scope string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ResolveDuration.WithLabelValues(scope).Observe(d.Seconds())
	if err != nil {
		m.ResolveErrorsTotal.WithLabelValues(scope).Inc()
	}
}

// RecordProvisioning counts a provisioning attempt
func (m *Metrics) RecordProvisioning(outcome, step string) {
	if m == nil {
		return
	}
	m.ProvisioningTotal.WithLabelValues(outcome, step).Inc()
}

// RecordReconcile records the result of a reconciliation run
func (m *Metrics) RecordReconcile(activated, orphaned, failed int, err error) {
	if m == nil {
		return
	}
	status := OutcomeSuccess
	if err != nil {
		status = OutcomeError
	}
	m.ReconcileRunsTotal.WithLabelValues(status).Inc()
	m.TenantsActivatedTotal.Add(float64(activated))
	m.TenantsFailedTotal.Add(float64(failed))
	m.OrphanedTenants.Set(float64(orphaned))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Paths are labelled by their mux route template to bound cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
