package observability

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestDefaultTracerAndHTTPHelpers(t *testing.T) {
	oldT := TracerImpl
	tr := NewDefaultTracer()
	TracerImpl = tr
	t.Cleanup(func() { TracerImpl = oldT })

	span, ctx := TracerImpl.StartSpan(context.Background(), "agent.run")
	child, _ := TracerImpl.StartSpan(ctx, "tool.execute")
	child.SetAttribute(AttrToolName, "get_alerts")
	child.End()
	span.SetAttribute(AttrHTTPMethod, "GET")
	span.SetStatus(StatusCodeOk, "")
	span.AddEvent("evt", map[string]interface{}{"k": "v"})
	span.End()
	span.End()

	if got := tr.GetSpans(); len(got) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(got))
	}
	tool := tr.Find("tool.execute")
	if len(tool) != 1 || tool[0].Parent != "agent.run" || tool[0].Attributes[AttrToolName] != "get_alerts" {
		t.Fatalf("child span wrong: %#v", tool)
	}
	if TracerImpl.SpanFromContext(ctx) != span {
		t.Fatalf("span not found in context")
	}

	id := GenerateRequestID()
	ctx = WithRequestID(ctx, id)
	if have, ok := RequestIDFromContext(ctx); !ok || have != id {
		t.Fatalf("request id missing")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Amzn-Trace-Id", "Root=1-abc")
	ctx2 := ExtractHTTPContext(context.Background(), req)
	rw := httptest.NewRecorder()
	InjectHTTPHeaders(rw, ctx2)
	if rw.Header().Get("X-Request-ID") != "Root=1-abc" {
		t.Fatalf("expected API Gateway trace id, got %q", rw.Header().Get("X-Request-ID"))
	}
	if _, ok := RequestIDFromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}
