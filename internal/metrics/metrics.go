// Package metrics defines the Prometheus collectors exported by seline.
//
// Every recording method is safe to call on a nil *Metrics, so components
// can be constructed without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seline"

// Flush outcomes recorded by the debounce scheduler.
const (
	FlushDispatched = "dispatched"
	FlushStale      = "stale"
	FlushEmpty      = "empty"
	FlushRequeued   = "requeued"
	FlushSwept      = "swept"
	FlushDrained    = "drained"
	FlushLost       = "lost"
)

// Metrics groups the collectors of the service.
type Metrics struct {
	fragments        prometheus.Counter
	flushes          *prometheus.CounterVec
	pendingBuffers   prometheus.Gauge
	routes           *prometheus.CounterVec
	degraded         *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	persistFailures  prometheus.Counter
	compactions      prometheus.Counter
	pipelineDuration prometheus.Histogram
	webhookRequests  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "Inbound message fragments appended to debounce buffers.",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Debounce flush attempts by outcome.",
		}, []string{"outcome"}),
		pendingBuffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_buffers",
			Help:      "Users with fragments waiting for their debounce window.",
		}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Pipeline runs by classified and resolved route.",
		}, []string{"classified", "resolved"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_total",
			Help:      "Collaborator failures absorbed by the pipeline, by stage.",
		}, []string{"stage"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Reply delivery failures by attempt.",
		}, []string{"attempt"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Conversation turns that could not be stored.",
		}),
		compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_compactions_total",
			Help:      "Histories destructively replaced by a summary.",
		}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of one pipeline run.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 16, 32},
		}),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook requests by source and status.",
		}, []string{"source", "status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.fragments,
			m.flushes,
			m.pendingBuffers,
			m.routes,
			m.degraded,
			m.deliveryFailures,
			m.persistFailures,
			m.compactions,
			m.pipelineDuration,
			m.webhookRequests,
		)
	}
	return m
}

// Fragment counts one appended fragment.
func (m *Metrics) Fragment() {
	if m == nil {
		return
	}
	m.fragments.Inc()
}

// Flush counts one flush attempt with the given outcome.
func (m *Metrics) Flush(outcome string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(outcome).Inc()
}

// SetPending records the number of users with pending fragments.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingBuffers.Set(float64(n))
}

// Route counts one pipeline run.
func (m *Metrics) Route(classified, resolved string) {
	if m == nil {
		return
	}
	m.routes.WithLabelValues(classified, resolved).Inc()
}

// Degraded counts one absorbed collaborator failure.
func (m *Metrics) Degraded(stage string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(stage).Inc()
}

// DeliveryFailed counts one failed reply attempt ("primary" or "fallback").
func (m *Metrics) DeliveryFailed(attempt string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(attempt).Inc()
}

// PersistFailed counts one turn that could not be stored.
func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// Compacted counts one destructive history compaction.
func (m *Metrics) Compacted() {
	if m == nil {
		return
	}
	m.compactions.Inc()
}

// ObservePipeline records the duration of one pipeline run.
func (m *Metrics) ObservePipeline(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.Observe(d.Seconds())
}

// Webhook counts one webhook request.
func (m *Metrics) Webhook(source, status string) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(source, status).Inc()
}
