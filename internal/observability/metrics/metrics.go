package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saasforge_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saasforge_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saasforge_response_cache_lookups_total",
		Help: "Response cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	cacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saasforge_response_cache_invalidations_total",
		Help: "Response cache scope invalidations by result",
	}, []string{"result"})

	policyDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saasforge_policy_decisions_total",
		Help: "Policy engine decisions by outcome and deciding rule",
	}, []string{"outcome", "rule"})

	auditWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saasforge_audit_writes_total",
		Help: "Audit entries written by action and result",
	}, []string{"action", "result"})

	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saasforge_jobs_enqueued_total",
		Help: "Background jobs enqueued by label and result",
	}, []string{"label", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saasforge_job_duration_seconds",
		Help:    "Duration of background job executions",
		Buckets: prometheus.DefBuckets,
	}, []string{"label", "result"})

	tenantSchemaInits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saasforge_tenant_schema_inits_total",
		Help: "Tenant schema initializations by result",
	}, []string{"result"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "saasforge_circuit_breaker_state",
		Help: "Circuit breaker state of outbound dependencies (0 closed, 1 open, 2 half open)",
	}, []string{"dependency"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveCacheLookup counts a response cache lookup.
func ObserveCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheInvalidation counts a scope invalidation.
func ObserveCacheInvalidation(result string) {
	cacheInvalidations.WithLabelValues(result).Inc()
}

// ObservePolicyDecision counts a policy decision.
func ObservePolicyDecision(outcome, rule string) {
	policyDecisions.WithLabelValues(outcome, rule).Inc()
}

// ObserveAuditWrite counts an audit append.
func ObserveAuditWrite(action, result string) {
	auditWrites.WithLabelValues(action, result).Inc()
}

// ObserveJobEnqueued counts an enqueue attempt.
func ObserveJobEnqueued(label, result string) {
	jobsEnqueued.WithLabelValues(label, result).Inc()
}

// ObserveJob records a job execution.
func ObserveJob(label, result string, duration time.Duration) {
	jobDuration.WithLabelValues(label, result).Observe(duration.Seconds())
}

// ObserveTenantSchemaInit counts a tenant schema initialization.
func ObserveTenantSchemaInit(result string) {
	tenantSchemaInits.WithLabelValues(result).Inc()
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SetBreakerState records the circuit state of an outbound dependency.
func SetBreakerState(dependency string, state int) {
	breakerState.WithLabelValues(dependency).Set(float64(state))
}
