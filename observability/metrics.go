package observability

import (
	"sync"
	"time"
)

// Metrics defines the interface for collecting agent metrics
type Metrics interface {
	// IncrementRequests increments the request counter
	IncrementRequests(labels map[string]string)

	// RecordLatency records request latency
	RecordLatency(duration time.Duration, labels map[string]string)

	// IncrementTokensUsed increments token usage counter
	IncrementTokensUsed(tokens int, labels map[string]string)

	// RecordError increments error counter
	RecordError(errorType string, labels map[string]string)

	// SetActiveAgents sets the gauge for in-flight agent runs
	SetActiveAgents(count int)
}

// NoOpMetrics is a no-operation implementation of Metrics
type NoOpMetrics struct{}

func (n *NoOpMetrics) IncrementRequests(labels map[string]string)                     {}
func (n *NoOpMetrics) RecordLatency(duration time.Duration, labels map[string]string) {}
func (n *NoOpMetrics) IncrementTokensUsed(tokens int, labels map[string]string)       {}
func (n *NoOpMetrics) RecordError(errorType string, labels map[string]string)         {}
func (n *NoOpMetrics) SetActiveAgents(count int)                                      {}

// DefaultMetrics is an in-memory collector, used by tests and agentctl.
type DefaultMetrics struct {
	mu           sync.Mutex
	requests     int64
	totalLatency time.Duration
	tokensUsed   int64
	errors       map[string]int64
	activeAgents int
}

// NewDefaultMetrics creates a new DefaultMetrics instance
func NewDefaultMetrics() *DefaultMetrics {
	return &DefaultMetrics{errors: make(map[string]int64)}
}

func (m *DefaultMetrics) IncrementRequests(labels map[string]string) {
	m.mu.Lock()
	m.requests++
	m.mu.Unlock()
}

func (m *DefaultMetrics) RecordLatency(duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	m.totalLatency += duration
	m.mu.Unlock()
}

func (m *DefaultMetrics) IncrementTokensUsed(tokens int, labels map[string]string) {
	m.mu.Lock()
	m.tokensUsed += int64(tokens)
	m.mu.Unlock()
}

func (m *DefaultMetrics) RecordError(errorType string, labels map[string]string) {
	m.mu.Lock()
	m.errors[errorType]++
	m.mu.Unlock()
}

func (m *DefaultMetrics) SetActiveAgents(count int) {
	m.mu.Lock()
	m.activeAgents = count
	m.mu.Unlock()
}

// Stats is a point-in-time copy of DefaultMetrics.
type Stats struct {
	Requests     int64            `json:"requests"`
	TotalLatency time.Duration    `json:"total_latency"`
	TokensUsed   int64            `json:"tokens_used"`
	Errors       map[string]int64 `json:"errors"`
	ActiveAgents int              `json:"active_agents"`
}

// Snapshot returns current statistics
func (m *DefaultMetrics) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := make(map[string]int64, len(m.errors))
	for k, v := range m.errors {
		errs[k] = v
	}
	return Stats{
		Requests:     m.requests,
		TotalLatency: m.totalLatency,
		TokensUsed:   m.tokensUsed,
		Errors:       errs,
		ActiveAgents: m.activeAgents,
	}
}

var _ Metrics = (*NoOpMetrics)(nil)
var _ Metrics = (*DefaultMetrics)(nil)
