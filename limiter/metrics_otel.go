package limiter

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics limiter instruments
type OTelMetrics struct {
	registered bool
	mu         sync.RWMutex

	decisionsTotal metric.Int64Counter     // by algorithm, action, reason
	corruptTotal   metric.Int64Counter     // KeyStateCorrupt
	casRetries     metric.Int64Counter     // conflicts that triggered a retry
	duration       metric.Float64Histogram // CheckAndConsume latency
}

// NewOTelMetrics creates an unregistered metrics provider
func NewOTelMetrics() *OTelMetrics {
	return &OTelMetrics{}
}

// MetricsName returns the metrics group name
func (m *OTelMetrics) MetricsName() string {
	return "limiter"
}

// RegisterMetrics registers all limiter instruments with meter
func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	m.decisionsTotal, err = meter.Int64Counter(
		"ratelimiter_decisions_total",
		metric.WithDescription("Admission decisions"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.corruptTotal, err = meter.Int64Counter(
		"ratelimiter_corrupt_state_total",
		metric.WithDescription("Stored entries that failed to decode and were reinitialized"),
	)
	if err != nil {
		return err
	}

	m.casRetries, err = meter.Int64Counter(
		"ratelimiter_cas_retries_total",
		metric.WithDescription("State writes retried after a compare-and-set conflict"),
	)
	if err != nil {
		return err
	}

	m.duration, err = meter.Float64Histogram(
		"ratelimiter_check_duration_seconds",
		metric.WithDescription("CheckAndConsume latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

func (m *OTelMetrics) ready() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

// RecordDecision records one check
func (m *OTelMetrics) RecordDecision(ctx context.Context, d *Decision, elapsed time.Duration) {
	if !m.ready() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("algorithm", string(d.AlgorithmType)),
		attribute.String("action", d.ActionType),
		attribute.String("reason", string(d.ReasonCode)),
	)
	m.decisionsTotal.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("algorithm", string(d.AlgorithmType)),
	))
}

// RecordCorrupt records a corrupt entry
func (m *OTelMetrics) RecordCorrupt(ctx context.Context, kind string) {
	if !m.ready() {
		return
	}
	m.corruptTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRetry records one CAS conflict retry
func (m *OTelMetrics) RecordRetry(ctx context.Context, algo AlgorithmType) {
	if !m.ready() {
		return
	}
	m.casRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("algorithm", string(algo))))
}
