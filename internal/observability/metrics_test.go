package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*StreamingMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewStreamingMetrics(reg), reg
}

func TestNewStreamingMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewStreamingMetrics(reg)

	assert.Panics(t, func() { NewStreamingMetrics(reg) })
}

func TestRecordRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRequest(EndpointChatStream, true, 2*time.Second)
	m.RecordRequest(EndpointChatStream, true, time.Second)
	m.RecordRequest(EndpointChatStream, false, time.Second)
	m.RecordRequest(EndpointChat, true, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_stream", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_stream", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat", "success")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.StreamDurationSeconds))
}

func TestActiveStreams(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.StreamStarted(EndpointChatStream)
	m.StreamStarted(EndpointChatStream)
	m.StreamEnded(EndpointChatStream)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("chat_stream")))
}

func TestRecordTokens(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordTokens("deepseek-chat", 3)
	m.RecordTokens("deepseek-chat", 0)
	m.RecordTokens("deepseek-chat", -1)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("deepseek-chat")))
}

func TestRecordClientDisconnect(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordClientDisconnect(EndpointChatStream)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientDisconnectsTotal.WithLabelValues("chat_stream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("chat_stream", "client_disconnect")))
}

func TestExposition(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.RecordError(EndpointChat, ErrorCodeValidation)
	m.RecordTimeToFirstToken(EndpointChatStream, 300*time.Millisecond)

	expected := `
# HELP llmchat_streaming_errors_total Total chat errors by endpoint and error code
# TYPE llmchat_streaming_errors_total counter
llmchat_streaming_errors_total{endpoint="chat",error_code="validation"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "llmchat_streaming_errors_total")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "llmchat_streaming_time_to_first_token_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *StreamingMetrics

	assert.NotPanics(t, func() {
		m.RecordRequest(EndpointChat, true, time.Second)
		m.RecordError(EndpointChat, ErrorCodeInternal)
		m.RecordTokens("model", 1)
		m.RecordTimeToFirstToken(EndpointChatStream, time.Second)
		m.StreamStarted(EndpointChatStream)
		m.StreamEnded(EndpointChatStream)
		m.RecordClientDisconnect(EndpointChatStream)
	})
}
