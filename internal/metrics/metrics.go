package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every metric name
const namespace = "shortlink"

// All metrics register with the default registry through promauto.

var (
	// ==================== HTTP METRICS ====================

	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestsTotal counts total HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestsInFlight tracks currently processing requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	// ==================== CACHE METRICS ====================

	// CacheHitsTotal counts link cache hits per tier (local, redis)
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of link cache hits",
		},
		[]string{"tier"},
	)

	// CacheMissesTotal counts link cache misses per tier
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of link cache misses",
		},
		[]string{"tier"},
	)

	// CacheOperationDuration tracks cache operation latency
	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_operation_duration_seconds",
			Help:      "Duration of cache operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05},
		},
		[]string{"operation"}, // get, set, delete
	)

	// ==================== RATE LIMITING METRICS ====================

	// RateLimitedRequestsTotal counts rejected requests per limiter scope
	RateLimitedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Total number of rate-limited requests",
		},
		[]string{"scope"}, // api, password
	)

	// RateLimitAllowedRequestsTotal counts allowed requests
	RateLimitAllowedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_allowed_requests_total",
			Help:      "Total number of requests allowed by rate limiter",
		},
	)

	// ==================== BUSINESS METRICS ====================

	// LinksCreatedTotal counts links created, split by code origin
	LinksCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_created_total",
			Help:      "Total number of links created",
		},
		[]string{"code"}, // custom, generated
	)

	// CodeCollisionsTotal counts generated codes that hit the unique index
	CodeCollisionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_collisions_total",
			Help:      "Total number of generated short codes rejected as duplicates",
		},
	)

	// RedirectsTotal counts visit outcomes
	RedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Total number of visits by outcome",
		},
		[]string{"result"},
	)

	// ClicksRecordedTotal counts committed click transactions
	ClicksRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_recorded_total",
			Help:      "Total number of click events recorded",
		},
	)

	// RecordingFailuresTotal counts click transactions that rolled back
	RecordingFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_failures_total",
			Help:      "Total number of visits whose click could not be recorded",
		},
	)

	// ==================== JOB METRICS ====================

	// ReconcileRunsTotal counts reconciliation runs by outcome
	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Total number of daily rollup reconciliation runs",
		},
		[]string{"status"},
	)

	// ReconciledRollupsTotal counts rollup rows rewritten by reconciliation
	ReconciledRollupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_rollups_total",
			Help:      "Total number of daily rollups rewritten from raw events",
		},
	)

	// SweptLinksTotal counts links removed by the expiry sweep
	SweptLinksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_links_total",
			Help:      "Total number of expired links deleted by the sweep job",
		},
	)

	// ==================== DATABASE METRICS ====================

	// DatabaseQueryDuration tracks database query latency
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// DatabaseErrorsTotal counts database errors
	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_errors_total",
			Help:      "Total number of database errors",
		},
		[]string{"operation"},
	)
)

// RecordCacheHit increments the hit counter for tier
func RecordCacheHit(tier string) {
	CacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss increments the miss counter for tier
func RecordCacheMiss(tier string) {
	CacheMissesTotal.WithLabelValues(tier).Inc()
}

// RecordLinkCreated increments link creation counter
func RecordLinkCreated(custom bool) {
	if custom {
		LinksCreatedTotal.WithLabelValues("custom").Inc()
		return
	}
	LinksCreatedTotal.WithLabelValues("generated").Inc()
}

// RecordCodeCollision increments the collision counter
func RecordCodeCollision() {
	CodeCollisionsTotal.Inc()
}

// RecordRedirect counts a visit outcome ("redirected", "not_found", ...)
func RecordRedirect(result string) {
	RedirectsTotal.WithLabelValues(result).Inc()
}

// RecordClickRecorded increments click recording counter
func RecordClickRecorded() {
	ClicksRecordedTotal.Inc()
}

// RecordRecordingFailure increments the recording failure counter
func RecordRecordingFailure() {
	RecordingFailuresTotal.Inc()
}

// RecordRateLimited increments rate-limited requests counter
func RecordRateLimited(scope string) {
	RateLimitedRequestsTotal.WithLabelValues(scope).Inc()
}

// RecordRateLimitAllowed increments allowed requests counter
func RecordRateLimitAllowed() {
	RateLimitAllowedRequestsTotal.Inc()
}

// RecordReconcile counts one reconciliation run and the rollups it wrote
func RecordReconcile(err error, rollups int) {
	if err != nil {
		ReconcileRunsTotal.WithLabelValues("error").Inc()
		return
	}
	ReconcileRunsTotal.WithLabelValues("ok").Inc()
	ReconciledRollupsTotal.Add(float64(rollups))
}

// RecordSwept adds n to the swept links counter
func RecordSwept(n int) {
	SweptLinksTotal.Add(float64(n))
}

// ObserveQuery records the duration of a database operation and counts it
// as an error when err is non-nil
func ObserveQuery(operation string, seconds float64, err error) {
	DatabaseQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DatabaseErrorsTotal.WithLabelValues(operation).Inc()
	}
}
