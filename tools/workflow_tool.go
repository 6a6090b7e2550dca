package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	wf "github.com/KamdynS/bedrock-agents/workflow"
)

// WorkflowTool exposes a workflow as a tool. The "input" argument is the workflow payload.
type WorkflowTool struct {
	NameStr string
	Desc    string
	WF      *wf.Workflow
	// InputDescription documents the "input" argument for the model.
	InputDescription string
}

// NewWorkflowTool wraps w as a tool named name.
func NewWorkflowTool(name, desc string, w *wf.Workflow) *WorkflowTool {
	return &WorkflowTool{NameStr: name, Desc: desc, WF: w}
}

func (w *WorkflowTool) Name() string        { return w.NameStr }
func (w *WorkflowTool) Description() string { return w.Desc }
func (w *WorkflowTool) Schema() map[string]interface{} {
	desc := w.InputDescription
	if desc == "" {
		desc = "Input for the workflow"
	}
	return ObjectSchema(map[string]interface{}{
		"input": map[string]interface{}{"type": "string", "description": desc},
	}, "input")
}

func (w *WorkflowTool) Execute(ctx context.Context, input string) (string, error) {
	if w.WF == nil {
		return "", errors.New("nil workflow")
	}
	args, err := DecodeArgs[struct {
		Input json.RawMessage `json:"input"`
	}](input)
	if err != nil {
		return "", err
	}
	var payload any
	if len(args.Input) > 0 {
		var s string
		if json.Unmarshal(args.Input, &s) == nil {
			payload = s
		} else if err := json.Unmarshal(args.Input, &payload); err != nil {
			return "", fmt.Errorf("invalid workflow input: %w", err)
		}
	}
	out, err := w.WF.Run(ctx, payload)
	if err != nil {
		return "", err
	}
	if s, ok := out.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode workflow output: %w", err)
	}
	return string(b), nil
}

var _ Tool = (*WorkflowTool)(nil)
