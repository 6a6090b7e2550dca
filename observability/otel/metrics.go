package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/KamdynS/bedrock-agents/observability"
)

// Metrics implements observability.Metrics with OpenTelemetry instruments.
type Metrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	tokens   metric.Int64Counter
	errors   metric.Int64Counter
	active   metric.Int64Gauge
}

// NewMetrics creates the instruments on the global meter provider, or mp when non-nil.
func NewMetrics(name string, mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(name)
	m := &Metrics{}
	var err error

	if m.requests, err = meter.Int64Counter("agents.requests",
		metric.WithDescription("Number of agent requests")); err != nil {
		return nil, err
	}
	if m.latency, err = meter.Float64Histogram("agents.latency_seconds",
		metric.WithDescription("Latency of requests, model calls and tool calls"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.tokens, err = meter.Int64Counter("agents.tokens",
		metric.WithDescription("Model tokens consumed")); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter("agents.errors",
		metric.WithDescription("Errors by type")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64Gauge("agents.active",
		metric.WithDescription("In-flight agent runs")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) IncrementRequests(labels map[string]string) {
	m.requests.Add(context.Background(), 1, metric.WithAttributes(attrs(labels)...))
}

func (m *Metrics) RecordLatency(d time.Duration, labels map[string]string) {
	m.latency.Record(context.Background(), d.Seconds(), metric.WithAttributes(attrs(labels)...))
}

func (m *Metrics) IncrementTokensUsed(tokens int, labels map[string]string) {
	m.tokens.Add(context.Background(), int64(tokens), metric.WithAttributes(attrs(labels)...))
}

func (m *Metrics) RecordError(errorType string, labels map[string]string) {
	kv := append(attrs(labels), attribute.String("error_type", errorType))
	m.errors.Add(context.Background(), 1, metric.WithAttributes(kv...))
}

func (m *Metrics) SetActiveAgents(count int) {
	m.active.Record(context.Background(), int64(count))
}

func attrs(labels map[string]string) []attribute.KeyValue {
	kv := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		kv = append(kv, attribute.String(k, v))
	}
	return kv
}

var _ observability.Metrics = (*Metrics)(nil)
