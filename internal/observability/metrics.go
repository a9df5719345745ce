package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the bot. A nil *Metrics
// is valid and disables instrumentation, so callers never guard.
type Metrics struct {
	ActiveStreams  prometheus.Gauge
	StreamsTotal   *prometheus.CounterVec
	MessagesSent   prometheus.Counter
	FunctionCalls  prometheus.Counter
	ProviderErrors *prometheus.CounterVec
	StopRequests   prometheus.Counter
	StreamDuration prometheus.Histogram

	stages *streamStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of in-flight response streams.",
		}),
		StreamsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Terminated streams by status.",
		}, []string{"status"}),
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Chat messages posted by streams.",
		}),
		FunctionCalls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_calls_total",
			Help:      "Model-requested function calls executed.",
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider.",
		}, []string{"provider"}),
		StopRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_requests_total",
			Help:      "User-issued stop requests.",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Wall time of a stream from trigger to terminal status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}),
		stages: newStreamStageWindow(0),
	}
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

func (m *Metrics) StreamEnded() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}

// RecordStream accounts one terminated stream.
func (m *Metrics) RecordStream(status string, d time.Duration, messages, functionCalls int) {
	if m == nil {
		return
	}
	m.StreamsTotal.WithLabelValues(status).Inc()
	m.MessagesSent.Add(float64(messages))
	m.FunctionCalls.Add(float64(functionCalls))
	m.StreamDuration.Observe(d.Seconds())
	m.stages.Observe("stream_total", float64(d.Milliseconds()))
}

func (m *Metrics) ProviderError(provider string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider).Inc()
}

func (m *Metrics) StopRequested() {
	if m == nil {
		return
	}
	m.StopRequests.Inc()
}

// ObserveStreamStage records one latency sample into the sliding window
// served by the ops API.
func (m *Metrics) ObserveStreamStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Milliseconds()))
}

// ObserveStreamIndicator bumps a named occurrence counter in the sliding
// window.
func (m *Metrics) ObserveStreamIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

// SnapshotStreamStages returns the recent-latency view for the ops API.
func (m *Metrics) SnapshotStreamStages() StreamStageSnapshot {
	if m == nil {
		return StreamStageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStreamStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
