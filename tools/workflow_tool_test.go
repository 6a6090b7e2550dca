package tools

import (
	"context"
	"testing"

	wf "github.com/KamdynS/bedrock-agents/workflow"
)

func TestWorkflowTool(t *testing.T) {
	w := wf.New().Step("echo", func(ctx context.Context, in any) (any, error) {
		return map[string]any{"got": in}, nil
	}).Build()
	wt := NewWorkflowTool("wf", "d", w)
	if wt.Name() != "wf" || wt.Description() != "d" {
		t.Fatalf("bad meta")
	}
	out, err := wt.Execute(context.Background(), `{"input":"top blocked IPs"}`)
	if err != nil || out != `{"got":"top blocked IPs"}` {
		t.Fatalf("exec: %v %q", err, out)
	}
	out, err = wt.Execute(context.Background(), `{"input":{"a":1}}`)
	if err != nil || out != `{"got":{"a":1}}` {
		t.Fatalf("object input: %v %q", err, out)
	}
	if _, err := wt.Execute(context.Background(), ``); err != nil {
		t.Fatalf("empty input should still work: %v", err)
	}
	wt.WF = nil
	if _, err := wt.Execute(context.Background(), `{"input":"x"}`); err == nil {
		t.Fatalf("expected nil workflow error")
	}
}

func TestWorkflowToolStringOutput(t *testing.T) {
	w := wf.New().Step("s", func(ctx context.Context, in any) (any, error) { return "plain", nil }).Build()
	out, err := NewWorkflowTool("s", "", w).Execute(context.Background(), `{"input":"x"}`)
	if err != nil || out != "plain" {
		t.Fatalf("got %q %v", out, err)
	}
}
