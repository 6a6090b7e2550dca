package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

// Tracer defines the interface for distributed tracing
type Tracer interface {
	// StartSpan creates a new span with the given name
	StartSpan(ctx context.Context, name string) (Span, context.Context)

	// SpanFromContext extracts the span from context
	SpanFromContext(ctx context.Context) Span
}

// Span represents a tracing span
type Span interface {
	SetAttribute(key string, value interface{})
	SetStatus(code StatusCode, message string)
	AddEvent(name string, attributes map[string]interface{})
	End()
	// Context returns a context carrying this span
	Context() context.Context
}

// StatusCode represents span status codes
type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOk
	StatusCodeError
)

// Common attribute keys (align loosely with OTel HTTP and GenAI conventions)
const (
	AttrHTTPMethod   = "http.method"
	AttrHTTPRoute    = "http.route"
	AttrHTTPStatus   = "http.status_code"
	AttrRequestID    = "request.id"
	AttrProvider     = "gen_ai.system"
	AttrModel        = "gen_ai.request.model"
	AttrFinishReason = "gen_ai.response.finish_reason"
	AttrToolName     = "gen_ai.tool.name"
	AttrTokensInput  = "gen_ai.usage.input_tokens"
	AttrTokensOutput = "gen_ai.usage.output_tokens"
	AttrSessionID    = "session.id"
	AttrA2ATaskID    = "a2a.task.id"
	AttrMCPServer    = "mcp.server"
)

// Global, swappable implementations (no-ops by default)
var (
	TracerImpl  Tracer  = &NoOpTracer{}
	MetricsImpl Metrics = &NoOpMetrics{}
)

// SetTracer swaps the global tracer implementation
func SetTracer(t Tracer) { TracerImpl = t }

// SetMetrics swaps the global metrics implementation
func SetMetrics(m Metrics) { MetricsImpl = m }

// NoOpTracer is a no-operation implementation of Tracer
type NoOpTracer struct{}

func (t *NoOpTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	return &NoOpSpan{ctx: ctx}, ctx
}

func (t *NoOpTracer) SpanFromContext(ctx context.Context) Span { return &NoOpSpan{ctx: ctx} }

// NoOpSpan is a no-operation implementation of Span
type NoOpSpan struct{ ctx context.Context }

func (s *NoOpSpan) SetAttribute(key string, value interface{})              {}
func (s *NoOpSpan) SetStatus(code StatusCode, message string)               {}
func (s *NoOpSpan) AddEvent(name string, attributes map[string]interface{}) {}
func (s *NoOpSpan) End()                                                    {}

func (s *NoOpSpan) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// DefaultTracer records finished spans in memory. Used by tests and `agentctl --trace`.
type DefaultTracer struct {
	mu    sync.Mutex
	spans []SpanData
}

// SpanData holds information about a completed span
type SpanData struct {
	Name       string                 `json:"name"`
	Parent     string                 `json:"parent,omitempty"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Duration   time.Duration          `json:"duration"`
	Status     StatusCode             `json:"status"`
	Message    string                 `json:"message"`
	Attributes map[string]interface{} `json:"attributes"`
	Events     []Event                `json:"events"`
}

// Event represents a span event
type Event struct {
	Name       string                 `json:"name"`
	Time       time.Time              `json:"time"`
	Attributes map[string]interface{} `json:"attributes"`
}

type spanKey struct{}

// NewDefaultTracer creates a new DefaultTracer instance
func NewDefaultTracer() *DefaultTracer { return &DefaultTracer{} }

func (t *DefaultTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	span := &DefaultSpan{
		tracer:     t,
		name:       name,
		startTime:  time.Now(),
		attributes: make(map[string]interface{}),
	}
	if parent, ok := ctx.Value(spanKey{}).(*DefaultSpan); ok {
		span.parent = parent.name
	}
	span.ctx = context.WithValue(ctx, spanKey{}, span)
	return span, span.ctx
}

func (t *DefaultTracer) SpanFromContext(ctx context.Context) Span {
	if span, ok := ctx.Value(spanKey{}).(*DefaultSpan); ok {
		return span
	}
	return &NoOpSpan{ctx: ctx}
}

// GetSpans returns a copy of all finished spans
func (t *DefaultTracer) GetSpans() []SpanData {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanData(nil), t.spans...)
}

// Find returns finished spans with the given name.
func (t *DefaultTracer) Find(name string) []SpanData {
	var out []SpanData
	for _, s := range t.GetSpans() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

func (t *DefaultTracer) record(d SpanData) {
	t.mu.Lock()
	t.spans = append(t.spans, d)
	t.mu.Unlock()
}

// DefaultSpan is a simple in-memory span implementation
type DefaultSpan struct {
	mu         sync.Mutex
	tracer     *DefaultTracer
	ctx        context.Context
	name       string
	parent     string
	startTime  time.Time
	status     StatusCode
	message    string
	attributes map[string]interface{}
	events     []Event
	ended      bool
}

func (s *DefaultSpan) SetAttribute(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.attributes[key] = value
	}
}

func (s *DefaultSpan) SetStatus(code StatusCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.status = code
		s.message = message
	}
}

func (s *DefaultSpan) AddEvent(name string, attributes map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.events = append(s.events, Event{Name: name, Time: time.Now(), Attributes: attributes})
	}
}

func (s *DefaultSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	end := time.Now()
	d := SpanData{
		Name:       s.name,
		Parent:     s.parent,
		StartTime:  s.startTime,
		EndTime:    end,
		Duration:   end.Sub(s.startTime),
		Status:     s.status,
		Message:    s.message,
		Attributes: s.attributes,
		Events:     s.events,
	}
	s.mu.Unlock()
	s.tracer.record(d)
}

func (s *DefaultSpan) Context() context.Context { return s.ctx }

var _ Tracer = (*NoOpTracer)(nil)
var _ Tracer = (*DefaultTracer)(nil)
var _ Span = (*NoOpSpan)(nil)
var _ Span = (*DefaultSpan)(nil)

// ----- request id propagation -----

const (
	// HeaderRequestID carries the request id on HTTP requests and responses.
	HeaderRequestID = "X-Request-ID"
	// API Gateway sets this on proxied requests.
	headerAmznTraceID = "X-Amzn-Trace-Id"
)

type requestIDKey struct{}

// GenerateRequestID returns a random 16-byte hex string
func GenerateRequestID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// WithRequestID stores a request id in the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext retrieves a request id from context
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// ExtractHTTPContext stores the caller's request id (or the API Gateway trace id, or a new id) in ctx.
func ExtractHTTPContext(ctx context.Context, r *http.Request) context.Context {
	id := r.Header.Get(HeaderRequestID)
	if id == "" {
		id = r.Header.Get(headerAmznTraceID)
	}
	if id == "" {
		id = GenerateRequestID()
	}
	return WithRequestID(ctx, id)
}

// InjectHTTPHeaders writes propagation headers to the response
func InjectHTTPHeaders(w http.ResponseWriter, ctx context.Context) {
	if id, ok := RequestIDFromContext(ctx); ok {
		w.Header().Set(HeaderRequestID, id)
	}
}

// InjectRequestHeaders copies the request id onto an outbound request.
func InjectRequestHeaders(ctx context.Context, req *http.Request) {
	if id, ok := RequestIDFromContext(ctx); ok {
		req.Header.Set(HeaderRequestID, id)
	}
}

// RequestIDMiddleware puts the request id in the request context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ExtractHTTPContext(r.Context(), r)
		InjectHTTPHeaders(w, ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
