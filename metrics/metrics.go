// Package metrics exposes Prometheus collectors for session, tool and model
// activity. Create one Metrics value at startup and pass it to the server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the daemon exports.
type Metrics struct {
	// SessionsTotal counts sessions by terminal status.
	// Labels: status (COMPLETED|FAILED|CANCELLED)
	SessionsTotal *prometheus.CounterVec

	// SessionDuration measures session wall-clock time in seconds.
	SessionDuration prometheus.Histogram

	// ActiveSessions tracks sessions that have not reached a terminal state.
	ActiveSessions prometheus.Gauge

	// ToolInvocations counts tool calls by tool name and status.
	// Labels: tool_name, status (success|error)
	ToolInvocations *prometheus.CounterVec

	// ToolDuration measures tool invocation latency in seconds, including
	// dispatch queue wait.
	// Labels: tool_name
	ToolDuration *prometheus.HistogramVec

	// ModelCalls counts completion calls by provider and status.
	// Labels: provider, status (success|error)
	ModelCalls *prometheus.CounterVec

	// QueueDepth tracks invocations waiting for a dispatch worker.
	QueueDepth prometheus.Gauge

	// StreamEvents counts published stream events by type.
	// Labels: event_type
	StreamEvents *prometheus.CounterVec
}

// New registers all collectors on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all collectors on the given registerer. Tests pass a
// fresh registry so repeated construction does not panic.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_sessions_total",
				Help: "Total number of finished sessions by terminal status",
			},
			[]string{"status"},
		),

		SessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentcore_session_duration_seconds",
				Help:    "Session wall-clock duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_active_sessions",
				Help: "Number of sessions not yet in a terminal state",
			},
		),

		ToolInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_invocations_total",
				Help: "Total number of tool invocations by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_duration_seconds",
				Help:    "Tool invocation latency in seconds including queue wait",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ModelCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_model_calls_total",
				Help: "Total number of completion model calls by provider and status",
			},
			[]string{"provider", "status"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_dispatch_queue_depth",
				Help: "Number of tool invocations waiting for a dispatch worker",
			},
		),

		StreamEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_stream_events_total",
				Help: "Total number of published stream events by type",
			},
			[]string{"event_type"},
		),
	}
}

// SessionFinished records a terminal session.
func (m *Metrics) SessionFinished(status string, dur time.Duration) {
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(dur.Seconds())
	m.ActiveSessions.Dec()
}

// SessionStarted records a new session.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// ToolInvoked records one tool call outcome.
func (m *Metrics) ToolInvoked(name string, success bool, dur time.Duration) {
	m.ToolInvocations.WithLabelValues(name, statusLabel(success)).Inc()
	m.ToolDuration.WithLabelValues(name).Observe(dur.Seconds())
}

// ModelCalled records one completion call outcome.
func (m *Metrics) ModelCalled(provider string, success bool) {
	m.ModelCalls.WithLabelValues(provider, statusLabel(success)).Inc()
}

// QueueChanged adjusts the dispatch queue gauge by delta.
func (m *Metrics) QueueChanged(delta int) {
	m.QueueDepth.Add(float64(delta))
}

// EventPublished records one stream event.
func (m *Metrics) EventPublished(eventType string) {
	m.StreamEvents.WithLabelValues(eventType).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
