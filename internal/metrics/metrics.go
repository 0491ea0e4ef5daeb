package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics
var (
	// UploadsInitiated counts upload URL requests by provider.
	UploadsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "uploads_initiated_total",
			Help:      "Total number of upload URLs issued",
		},
		[]string{"provider"},
	)

	// MultipartOps counts multipart protocol calls by operation and result.
	MultipartOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "multipart_operations_total",
			Help:      "Total number of multipart upload operations",
		},
		[]string{"operation", "result"},
	)

	// TranscodeCallbacks counts transcode worker callbacks by result.
	TranscodeCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "transcode_callbacks_total",
			Help:      "Total number of transcode completion and failure callbacks",
		},
		[]string{"result"},
	)

	// WebhookEvents counts managed-provider webhook deliveries by event type.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "webhook_events_total",
			Help:      "Total number of managed-provider webhook events received",
		},
		[]string{"type"},
	)

	// ReconciliationOutcomes counts how each webhook event was matched.
	ReconciliationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "reconciliation_outcomes_total",
			Help:      "Webhook reconciliation outcomes",
		},
		[]string{"outcome"},
	)

	// QueueDepth tracks the approximate number of pending transcode jobs.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vod",
			Name:      "transcode_queue_depth",
			Help:      "Approximate number of messages in the transcode queue",
		},
	)
)

// Playback metrics
var (
	// PlaybackTokensIssued counts issued playback tokens.
	PlaybackTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "playback_tokens_issued_total",
			Help:      "Total number of playback tokens issued",
		},
	)

	// StreamRequests counts streaming requests by kind and result.
	StreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "stream_requests_total",
			Help:      "Total number of manifest, segment, and thumbnail requests",
		},
		[]string{"kind", "result"},
	)
)

// API metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vod",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AuthFailures counts authentication failures by type.
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vod",
			Subsystem: "api",
			Name:      "auth_failures_total",
			Help:      "Total number of authentication failures",
		},
		[]string{"reason"},
	)
)

// RecordReconciliation records a single reconciliation outcome.
func RecordReconciliation(outcome string) {
	ReconciliationOutcomes.WithLabelValues(outcome).Inc()
}
