package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service, plus an
// in-process window of recent stage latencies served by /v1/perf/latency.
type Metrics struct {
	ActiveConversations prometheus.Gauge
	KnowledgeDocuments  prometheus.Gauge
	SessionEvents       *prometheus.CounterVec
	ChatRequests        *prometheus.CounterVec
	WSMessages          *prometheus.CounterVec
	ProviderErrors      *prometheus.CounterVec
	StageLatency        *prometheus.HistogramVec

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Number of conversations held in memory.",
		}),
		KnowledgeDocuments: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "knowledge_documents",
			Help:      "Number of documents in the knowledge base at last check.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Conversation lifecycle events by type.",
		}, []string{"event"}),
		ChatRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Chat pipeline stage latency in milliseconds.",
			Buckets:   []float64{5, 25, 50, 100, 250, 500, 1000, 2000, 4000, 8000},
		}, []string{"stage"}),
		stages: newStageWindow(256),
	}
}

// ObserveStage records one stage duration in the histogram and the rolling
// window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.stages.Observe(stage, ms)
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

// ObserveIndicator counts a notable chat outcome in the rolling window.
func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

// ObserveOutcome attributes a chat outcome to the stage that produced it.
func (m *Metrics) ObserveOutcome(stage, outcome string) {
	if m == nil {
		return
	}
	m.stages.ObserveOutcome(stage, outcome)
}

// SetActiveConversations updates the conversation gauge.
func (m *Metrics) SetActiveConversations(n int) {
	if m == nil {
		return
	}
	m.ActiveConversations.Set(float64(n))
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStages() {
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
