package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus primitives for the outbox dispatcher and the
// webhook critical path, scraped from /metrics.
type Metrics struct {
	outboxDispatch     *prometheus.CounterVec
	outboxDispatchTime *prometheus.HistogramVec
	outboxBacklog      prometheus.Gauge
	webhookDuration    *prometheus.HistogramVec
	webhookOutcomes    *prometheus.CounterVec
	webhookLookupRetry prometheus.Counter
}

// NewMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		outboxDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitecraft_outbox_dispatch_total",
			Help: "Outbox messages handled by the dispatcher, by status.",
		}, []string{"status"}),
		outboxDispatchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitecraft_outbox_dispatch_duration_seconds",
			Help:    "Dispatcher batch durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitecraft_outbox_backlog",
			Help: "Rows locked by the last dispatcher batch.",
		}),
		webhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitecraft_webhook_handle_duration_seconds",
			Help:    "Time spent handling a verified webhook delivery.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"provider"}),
		webhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitecraft_webhook_outcomes_total",
			Help: "Webhook outcomes (applied, noop, duplicate, ignored, rejected, failed).",
		}, []string{"provider", "outcome"}),
		webhookLookupRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitecraft_webhook_lookup_retries_total",
			Help: "Order lookups retried because the row was not visible yet.",
		}),
	}

	collectors := []prometheus.Collector{
		m.outboxDispatch,
		m.outboxDispatchTime,
		m.outboxBacklog,
		m.webhookDuration,
		m.webhookOutcomes,
		m.webhookLookupRetry,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordOutboxBatch registers dispatch batch metrics.
func (m *Metrics) RecordOutboxBatch(status string, count int, duration time.Duration) {
	if m == nil {
		return
	}
	label := sanitizeLabel(status)
	m.outboxDispatch.WithLabelValues(label).Add(float64(count))
	m.outboxDispatchTime.WithLabelValues(label).Observe(duration.Seconds())
}

// SetOutboxBacklog updates the backlog gauge.
func (m *Metrics) SetOutboxBacklog(value float64) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(value)
}

// RecordWebhook records the outcome and latency of one delivery.
func (m *Metrics) RecordWebhook(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	providerLabel := sanitizeLabel(provider)
	m.webhookOutcomes.WithLabelValues(providerLabel, sanitizeLabel(outcome)).Inc()
	m.webhookDuration.WithLabelValues(providerLabel).Observe(duration.Seconds())
}

// RecordLookupRetry counts one extra order lookup attempt.
func (m *Metrics) RecordLookupRetry() {
	if m == nil {
		return
	}
	m.webhookLookupRetry.Inc()
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
