package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KamdynS/bedrock-agents/llm"
)

func TestChatToolUseRoundTrip(t *testing.T) {
	var sent map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sent)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",
			"content":[{"type":"text","text":"Checking alerts."},{"type":"tool_use","id":"tu_1","name":"get_alerts","input":{"state":"WA"}}],
			"stop_reason":"tool_use","usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		SystemPrompt: "weather bot",
		Messages: []llm.Message{
			llm.UserMessage("alerts?"),
			{Role: "assistant", ToolCalls: []llm.ToolCall{{ID: "tu_0", Function: llm.Function{Name: "get_alerts", Arguments: `{"state":"OR"}`}}}},
			{Role: "tool", ToolCallID: "tu_0", Content: "no alerts"},
		},
		Tools: []llm.Tool{{Type: "function", Function: llm.ToolFunction{Name: "get_alerts"}}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.FinishReason != llm.FinishToolCalls || len(resp.ToolCalls) != 1 {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.ToolCalls[0].Function.Arguments != `{"state":"WA"}` {
		t.Fatalf("arguments = %s", resp.ToolCalls[0].Function.Arguments)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Fatalf("usage = %#v", resp.Usage)
	}
	if sent["system"] != "weather bot" {
		t.Fatalf("system = %v", sent["system"])
	}
	msgs := sent["messages"].([]interface{})
	if len(msgs) != 3 {
		t.Fatalf("expected 3 alternating messages, got %d", len(msgs))
	}
}

func TestRateLimitIsRetryable(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"m","type":"message","role":"assistant","content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Timeout: time.Second, RetryConfig: llm.FixedRetryConfig(2, time.Millisecond)})
	resp, err := c.Completion(context.Background(), "hi")
	if err != nil || resp.Content != "ok" {
		t.Fatalf("expected retry to succeed: %v %#v", err, resp)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestValidateConfig(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := NewClient(Config{APIKey: "k", Model: llm.ModelBedrockClaude35Haiku}); err == nil {
		t.Fatalf("bedrock id must be rejected by the direct client")
	}
}
