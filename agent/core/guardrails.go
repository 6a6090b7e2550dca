package core

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/KamdynS/bedrock-agents/llm"
)

// ErrGuardrailBlocked is returned when SimpleGuardrails rejects a request or response.
var ErrGuardrailBlocked = errors.New("blocked by guardrails")

// SimpleGuardrails provides minimal input/output filtering and allow/deny checks.
type SimpleGuardrails struct {
	NopMiddleware

	// Deny if any of these substrings appear in the user input
	DenySubstrings []string
	// Allow only if at least one of these substrings appears; if empty, allow all
	AllowSubstrings []string
	// Max input length in characters; longer input is truncated
	MaxInputChars int
	// BlockFiltered fails the run when the provider reports a content filter stop
	// (a Bedrock guardrail intervention).
	BlockFiltered bool
}

func (g *SimpleGuardrails) BeforeLLMCall(ctx context.Context, req *llm.ChatRequest) error {
	if req == nil || len(req.Messages) == 0 {
		return nil
	}
	// only the newest user turn is checked; tool rounds end with a tool message
	last := &req.Messages[len(req.Messages)-1]
	if last.Role != "user" {
		return nil
	}
	if g.MaxInputChars > 0 && utf8.RuneCountInString(last.Content) > g.MaxInputChars {
		last.Content = string([]rune(last.Content)[:g.MaxInputChars])
	}
	lower := strings.ToLower(last.Content)
	for _, s := range g.DenySubstrings {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return ErrGuardrailBlocked
		}
	}
	if len(g.AllowSubstrings) == 0 {
		return nil
	}
	for _, s := range g.AllowSubstrings {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return nil
		}
	}
	return ErrGuardrailBlocked
}

func (g *SimpleGuardrails) AfterLLMResponse(ctx context.Context, resp *llm.Response) error {
	if g.BlockFiltered && resp != nil && resp.FinishReason == llm.FinishFiltered {
		return ErrGuardrailBlocked
	}
	return nil
}

var _ Middleware = (*SimpleGuardrails)(nil)
