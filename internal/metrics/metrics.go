// Package metrics provides Prometheus metrics for the digest service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts digest cache lookups by result (hit, miss, expired, error, shared).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "cache_lookups_total",
			Help:      "Total number of digest cache lookups",
		},
		[]string{"result"},
	)

	// WorkflowRuns counts workflow runs by outcome.
	WorkflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "workflow_runs_total",
			Help:      "Total number of digest workflow runs",
		},
		[]string{"outcome"},
	)

	// WorkflowDuration measures end-to-end workflow duration.
	WorkflowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "newsdigest",
			Name:      "workflow_duration_seconds",
			Help:      "Duration of digest workflow runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// EnhanceAttempts observes how many query enhancements a run needed.
	EnhanceAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "newsdigest",
			Name:      "enhance_attempts",
			Help:      "Distribution of query enhancement attempts per run",
			Buckets:   []float64{0, 1, 2, 3, 5},
		},
	)

	// SummarizerCalls counts summarizer invocations by status.
	SummarizerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "summarizer_calls_total",
			Help:      "Total number of summarizer calls",
		},
		[]string{"status"},
	)

	// SummarizerGateWait measures time spent waiting for the summarization admission gate.
	SummarizerGateWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "newsdigest",
			Name:      "summarizer_gate_wait_seconds",
			Help:      "Time spent waiting for the summarization gate in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// UpstreamRequests counts requests to external services by service and status.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "upstream_requests_total",
			Help:      "Total number of requests to upstream services",
		},
		[]string{"service", "status"},
	)

	// HTTPRequests counts served HTTP requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration measures request handling latency by route.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsdigest",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordRun records a finished workflow run.
func RecordRun(outcome string, seconds float64, enhancements int) {
	WorkflowRuns.WithLabelValues(outcome).Inc()
	WorkflowDuration.Observe(seconds)
	EnhanceAttempts.Observe(float64(enhancements))
}

// RecordUpstream records a call to an external service.
func RecordUpstream(service, status string) {
	UpstreamRequests.WithLabelValues(service, status).Inc()
}
