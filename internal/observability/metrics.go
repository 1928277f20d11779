// Package observability holds the Prometheus instrumentation for chat requests.
//
// Metrics are registered on the registry passed to NewStreamingMetrics so that
// the server and each test can own an isolated registry. All recording methods
// are safe for concurrent use and tolerate a nil receiver.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace   = "llmchat"
	streamingSubsystem = "streaming"
)

// Endpoint labels the API surface a metric was recorded for.
type Endpoint string

const (
	EndpointChat       Endpoint = "chat"
	EndpointChatStream Endpoint = "chat_stream"
)

// ErrorCode categorizes a failed request.
type ErrorCode string

const (
	ErrorCodeValidation       ErrorCode = "validation"
	ErrorCodeNotReady         ErrorCode = "not_ready"
	ErrorCodeLLMError         ErrorCode = "llm_error"
	ErrorCodeStreamPanic      ErrorCode = "stream_panic"
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
	ErrorCodeInternal         ErrorCode = "internal"
)

// StreamingMetrics groups the counters, histograms and gauges for chat traffic.
type StreamingMetrics struct {
	// RequestsTotal counts finished requests. Labels: endpoint, status.
	RequestsTotal *prometheus.CounterVec

	// TokensTotal counts fragments forwarded to clients. Labels: model.
	TokensTotal *prometheus.CounterVec

	// TimeToFirstTokenSeconds measures request start to first fragment.
	TimeToFirstTokenSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures the whole request. Labels: endpoint, status.
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks open event streams.
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts failures. Labels: endpoint, error_code.
	ErrorsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts streams abandoned by the client.
	ClientDisconnectsTotal *prometheus.CounterVec
}

// NewStreamingMetrics creates the metrics and registers them on reg.
// It panics if reg already holds metrics with the same names.
func NewStreamingMetrics(reg prometheus.Registerer) *StreamingMetrics {
	factory := promauto.With(reg)

	return &StreamingMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "requests_total",
				Help:      "Total number of chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "tokens_total",
				Help:      "Total reply fragments sent to clients by model",
			},
			[]string{"model"},
		),

		TimeToFirstTokenSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first fragment in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),

		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total request duration in seconds",
				Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open event streams",
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "errors_total",
				Help:      "Total chat errors by endpoint and error code",
			},
			[]string{"endpoint", "error_code"},
		),

		ClientDisconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"endpoint"},
		),
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordRequest records a finished request and its duration.
func (m *StreamingMetrics) RecordRequest(endpoint Endpoint, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := statusLabel(success)
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), status).Observe(elapsed.Seconds())
}

// RecordError records a failure category.
func (m *StreamingMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordTokens adds n forwarded fragments for model.
func (m *StreamingMetrics) RecordTokens(model string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensTotal.WithLabelValues(model).Add(float64(n))
}

// RecordTimeToFirstToken observes the latency of the first fragment.
func (m *StreamingMetrics) RecordTimeToFirstToken(endpoint Endpoint, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TimeToFirstTokenSeconds.WithLabelValues(string(endpoint)).Observe(elapsed.Seconds())
}

// StreamStarted increments the active streams gauge.
func (m *StreamingMetrics) StreamStarted(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *StreamingMetrics) StreamEnded(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordClientDisconnect counts a stream abandoned by its client.
func (m *StreamingMetrics) RecordClientDisconnect(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(ErrorCodeClientDisconnect)).Inc()
}
