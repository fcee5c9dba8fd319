// Package prometheus exposes gateway metrics through the Prometheus
// client. Collectors register on the default registry so the standard
// promhttp handler serves them.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/twinmcp/gateway/common/metrics"
)

// PrometheusRecorder implements the metrics.Recorder interface using
// Prometheus collectors.
type PrometheusRecorder struct{}

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status_code"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"path", "method", "status_code"})

	toolInvocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_tool_invocation_duration_seconds",
		Help:    "Duration of tool invocations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool_id", "success", "cache_hit"})

	toolInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_tool_invocations_total",
		Help: "Total number of tool invocations",
	}, []string{"tool_id", "success", "error_type"})

	toolEstimatedCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_tool_estimated_cost_total",
		Help: "Accumulated estimated cost of tool invocations",
	}, []string{"tool_id"})

	rateLimitHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rate_limit_hits_total",
		Help: "Total number of rejected admissions",
	}, []string{"tool_id"})

	authAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_auth_attempts_total",
		Help: "Total number of authentication attempts",
	}, []string{"method", "success"})

	backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_backend_requests_total",
		Help: "Total number of proxied backend requests",
	}, []string{"backend_id", "success"})

	backendHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_backend_healthy",
		Help: "Backend health state (1 healthy, 0 unhealthy)",
	}, []string{"backend_id"})

	jobTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_job_transitions_total",
		Help: "Total number of job state transitions",
	}, []string{"status"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_queue_depth",
		Help: "Number of jobs currently waiting for a worker",
	})
)

// RecordHTTPRequest implements metrics.Recorder.
func (r *PrometheusRecorder) RecordHTTPRequest(startTime time.Time, path, method, statusCode string) {
	duration := time.Since(startTime).Seconds()
	httpRequestDuration.WithLabelValues(path, method, statusCode).Observe(duration)
	httpRequestsTotal.WithLabelValues(path, method, statusCode).Inc()
}

// RecordToolInvocation implements metrics.Recorder.
func (r *PrometheusRecorder) RecordToolInvocation(event *metrics.InvocationEvent) {
	success := strconv.FormatBool(event.Success)
	toolInvocationDuration.
		WithLabelValues(event.ToolId, success, strconv.FormatBool(event.CacheHit)).
		Observe(event.ExecutionTime.Seconds())
	toolInvocationsTotal.WithLabelValues(event.ToolId, success, event.ErrorType).Inc()
	if event.EstimatedCost > 0 {
		toolEstimatedCost.WithLabelValues(event.ToolId).Add(event.EstimatedCost)
	}
}

// RecordRateLimitHit implements metrics.Recorder.
func (r *PrometheusRecorder) RecordRateLimitHit(identity, toolId string) {
	// Identity is deliberately not a label: per-user label values would
	// blow up cardinality.
	rateLimitHitsTotal.WithLabelValues(toolId).Inc()
}

// RecordAuth implements metrics.Recorder.
func (r *PrometheusRecorder) RecordAuth(method string, success bool) {
	authAttemptsTotal.WithLabelValues(method, strconv.FormatBool(success)).Inc()
}

// RecordBackendRequest implements metrics.Recorder.
func (r *PrometheusRecorder) RecordBackendRequest(backendId string, success bool) {
	backendRequestsTotal.WithLabelValues(backendId, strconv.FormatBool(success)).Inc()
}

// UpdateBackendHealth implements metrics.Recorder.
func (r *PrometheusRecorder) UpdateBackendHealth(backendId string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	backendHealthy.WithLabelValues(backendId).Set(value)
}

// RecordJobTransition implements metrics.Recorder.
func (r *PrometheusRecorder) RecordJobTransition(status string) {
	jobTransitionsTotal.WithLabelValues(status).Inc()
}

// UpdateQueueDepth implements metrics.Recorder.
func (r *PrometheusRecorder) UpdateQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}
