package core

import (
	"context"

	"github.com/KamdynS/bedrock-agents/llm"
)

// Middleware observes and may veto steps of a run. A non-nil error from BeforeLLMCall,
// AfterLLMResponse or AfterRun aborts the run. An error from BeforeToolExecute skips the tool
// and is reported to the model as the tool's result.
type Middleware interface {
	BeforeLLMCall(ctx context.Context, req *llm.ChatRequest) error
	AfterLLMResponse(ctx context.Context, resp *llm.Response) error
	BeforeToolExecute(ctx context.Context, toolName string, input string) error
	AfterToolExecute(ctx context.Context, toolName string, result string, execErr error) error
	AfterRun(ctx context.Context, final Message) error
}

// NopMiddleware implements every hook as a no-op. Embed it to override a subset.
type NopMiddleware struct{}

func (NopMiddleware) BeforeLLMCall(context.Context, *llm.ChatRequest) error         { return nil }
func (NopMiddleware) AfterLLMResponse(context.Context, *llm.Response) error         { return nil }
func (NopMiddleware) BeforeToolExecute(context.Context, string, string) error       { return nil }
func (NopMiddleware) AfterToolExecute(context.Context, string, string, error) error { return nil }
func (NopMiddleware) AfterRun(context.Context, Message) error                       { return nil }

var _ Middleware = NopMiddleware{}
