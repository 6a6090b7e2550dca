// Package prom implements observability.Metrics on prometheus/client_golang.
package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KamdynS/bedrock-agents/observability"
)

// Label names. Labels outside this set are dropped so series cardinality stays fixed.
var labelNames = []string{"route", "method", "status_code", "model", "direction", "tool_name"}

// Exporter implements observability.Metrics with Prometheus collectors.
type Exporter struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	active   prometheus.Gauge
}

// New creates an exporter registered on a fresh registry that also carries
// the Go runtime and process collectors.
func New(namespace string) (*Exporter, error) {
	if namespace == "" {
		namespace = "agents"
	}
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_total", Help: "Total number of agent requests processed.",
		}, labelNames),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "request_latency_seconds", Help: "Latency of requests, model calls and tool calls.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, labelNames),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tokens_total", Help: "Model tokens consumed.",
		}, labelNames),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total", Help: "Errors by type.",
		}, append([]string{"error_type"}, labelNames...)),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_agents", Help: "In-flight agent runs.",
		}),
	}
	for _, c := range []prometheus.Collector{
		e.requests, e.latency, e.tokens, e.errors, e.active,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := e.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Registry exposes the underlying registry so callers can add their own collectors.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// Handler serves the exporter's registry in the Prometheus exposition format.
func Handler(e *Exporter) http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

func (e *Exporter) IncrementRequests(labels map[string]string) {
	e.requests.With(values(labels)).Inc()
}

func (e *Exporter) RecordLatency(d time.Duration, labels map[string]string) {
	e.latency.With(values(labels)).Observe(d.Seconds())
}

func (e *Exporter) IncrementTokensUsed(tokens int, labels map[string]string) {
	e.tokens.With(values(labels)).Add(float64(tokens))
}

func (e *Exporter) RecordError(errorType string, labels map[string]string) {
	l := values(labels)
	l["error_type"] = errorType
	e.errors.With(l).Inc()
}

func (e *Exporter) SetActiveAgents(count int) { e.active.Set(float64(count)) }

func values(labels map[string]string) prometheus.Labels {
	l := make(prometheus.Labels, len(labelNames))
	for _, n := range labelNames {
		l[n] = labels[n]
	}
	return l
}

var _ observability.Metrics = (*Exporter)(nil)
