package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickcomm_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quickcomm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Chat turn metrics
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickcomm_chat_turns_total",
			Help: "Total number of chat turns by transport and outcome",
		},
		[]string{"transport", "outcome"},
	)

	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quickcomm_chat_turn_duration_seconds",
			Help:    "Chat turn duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"transport"},
	)

	generationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickcomm_generation_failures_total",
			Help: "Generation failures by category",
		},
		[]string{"category"},
	)

	// Storage metrics
	transcriptDecodeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quickcomm_transcript_decode_failures_total",
			Help: "Stored transcript entries skipped because they could not be decoded",
		},
	)

	queueRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quickcomm_turn_queue_rejections_total",
			Help: "Turns rejected because the dispatcher queue was full",
		},
	)

	// Realtime metrics
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quickcomm_realtime_connections",
			Help: "Number of open realtime connections",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers collectors with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			turnsTotal,
			turnDuration,
			generationFailures,
			transcriptDecodeFailures,
			queueRejections,
			activeConnections,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTurn records one completed turn.
func RecordTurn(transport, outcome string, duration time.Duration) {
	turnsTotal.WithLabelValues(transport, outcome).Inc()
	turnDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

func RecordGenerationFailure(category string) {
	generationFailures.WithLabelValues(category).Inc()
}

func RecordTranscriptDecodeFailure() {
	transcriptDecodeFailures.Inc()
}

func RecordQueueRejection() {
	queueRejections.Inc()
}

// ConnectionOpened increments the realtime connection gauge.
func ConnectionOpened() {
	activeConnections.Inc()
}

// ConnectionClosed decrements the realtime connection gauge.
func ConnectionClosed() {
	activeConnections.Dec()
}
