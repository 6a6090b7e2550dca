package llm

import (
	"context"
	"strings"
	"testing"
)

type routeDecision struct {
	Agent  string   `json:"agent" enum:"market|trade" description:"Agent to call"`
	Ticker string   `json:"ticker,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

func (r routeDecision) Validate() error {
	if r.Agent != "market" && r.Agent != "trade" {
		return &LLMError{Type: ErrorTypeValidationError, Message: "bad agent " + r.Agent}
	}
	return nil
}

func (r routeDecision) JSONSchema() map[string]interface{} { return SchemaOf(r) }

func TestSchemaOf(t *testing.T) {
	s := SchemaOf(routeDecision{})
	props := s["properties"].(map[string]interface{})
	agent := props["agent"].(map[string]interface{})
	if agent["type"] != "string" || len(agent["enum"].([]string)) != 2 {
		t.Fatalf("bad agent schema: %#v", agent)
	}
	if props["tags"].(map[string]interface{})["type"] != "array" {
		t.Fatalf("bad tags schema")
	}
	req := s["required"].([]string)
	if len(req) != 1 || req[0] != "agent" {
		t.Fatalf("required = %v", req)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                          `{"a":1}`,
		"```json\n{\"a\":1}\n```":          `{"a":1}`,
		`Sure! Here it is: {"a":{"b":2}}.`: `{"a":{"b":2}}`,
		`[1,2]`:                            `[1,2]`,
	}
	for in, want := range tests {
		if got := ExtractJSON(in); got != want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseStructured(t *testing.T) {
	resp, err := ParseStructured(`{"label":"billing","confidence":0.9}`, &TextClassification{})
	if err != nil || !resp.Validation.Valid || resp.Data.Label != "billing" {
		t.Fatalf("parse: %v %#v", err, resp)
	}
	if _, err := ParseStructured(`{"label":"","confidence":0}`, TextClassification{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := ParseStructured(`not json`, TextClassification{}); err == nil {
		t.Fatalf("expected parse error")
	}
}

type scriptedClient struct {
	dummyClient
	replies []string
	seen    []*ChatRequest
}

func (s *scriptedClient) Chat(ctx context.Context, req *ChatRequest) (*Response, error) {
	s.seen = append(s.seen, req)
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return &Response{Content: reply}, nil
}

func TestStructuredChatRetriesWithFeedback(t *testing.T) {
	c := &scriptedClient{replies: []string{`{"agent":"bogus"}`, "```json\n{\"agent\":\"trade\",\"ticker\":\"AMZN\"}\n```"}}
	out, err := StructuredChat(context.Background(), c, &ChatRequest{Messages: []Message{UserMessage("buy amzn")}}, routeDecision{}, 1)
	if err != nil {
		t.Fatalf("structured chat: %v", err)
	}
	if out.Data.Ticker != "AMZN" || out.Validation.Retries != 1 {
		t.Fatalf("unexpected output %#v", out)
	}
	if !strings.Contains(c.seen[0].SystemPrompt, "JSON schema") {
		t.Fatalf("schema instruction missing: %q", c.seen[0].SystemPrompt)
	}
	if n := len(c.seen[1].Messages); n != 3 {
		t.Fatalf("expected feedback turns, got %d messages", n)
	}
}
