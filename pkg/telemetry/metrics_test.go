package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordWebhookOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	m.RecordWebhook("razorpay", "applied", 20*time.Millisecond)
	m.RecordWebhook("razorpay", "applied", 30*time.Millisecond)
	m.RecordWebhook("", "rejected", time.Millisecond)

	if got := testutil.ToFloat64(m.webhookOutcomes.WithLabelValues("razorpay", "applied")); got != 2 {
		t.Fatalf("expected 2 applied, got %v", got)
	}
	if got := testutil.ToFloat64(m.webhookOutcomes.WithLabelValues("unknown", "rejected")); got != 1 {
		t.Fatalf("expected 1 rejected under unknown provider, got %v", got)
	}
}

func TestNewMetricsRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordOutboxBatch("published", 3, time.Second)
	m.SetOutboxBacklog(1)
	m.RecordWebhook("razorpay", "noop", time.Second)
	m.RecordLookupRetry()
}
