package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KamdynS/bedrock-agents/a2a"
	"github.com/KamdynS/bedrock-agents/agent/core"
	"github.com/KamdynS/bedrock-agents/llm"
	"github.com/KamdynS/bedrock-agents/mcp"
	httpserver "github.com/KamdynS/bedrock-agents/server/http"
	"github.com/KamdynS/bedrock-agents/tools"
	"github.com/KamdynS/bedrock-agents/workflow"
)

func TestGraphBuiltin(t *testing.T) {
	var out bytes.Buffer
	if err := handleGraph([]string{"--name", "waf_query", "--dir", "LR"}, &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.HasPrefix(got, "graph LR\n") {
		t.Fatalf("header: %q", got)
	}
	for _, step := range []string{"generate_sql", "validate_sql", "approve", "execute", "format_response"} {
		if !strings.Contains(got, `"`+step+`"`) {
			t.Fatalf("missing %s in %q", step, got)
		}
	}

	out.Reset()
	if err := handleGraph(nil, &out); err != nil || !strings.Contains(out.String(), "waf_query\n") {
		t.Fatalf("list: %v %q", err, out.String())
	}
	if err := handleGraph([]string{"--name", "nope"}, &out); err == nil {
		t.Fatal("expected unknown workflow error")
	}
}

func TestGraphRemote(t *testing.T) {
	noop := func(ctx context.Context, in any) (any, error) { return in, nil }
	if err := workflow.Register("agentctl_remote", workflow.Named("agentctl_remote").Step("only", noop).Build()); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(workflow.DiagramHandler())
	defer srv.Close()

	var out bytes.Buffer
	host := strings.TrimPrefix(srv.URL, "http://")
	if err := handleGraph([]string{"--host", host, "--name", "agentctl_remote"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "graph TD\nn1[\"only\"]\n" {
		t.Fatalf("got %q", out.String())
	}
	if err := handleGraph([]string{"--host", host, "--name", "missing"}, &out); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestModels(t *testing.T) {
	var out bytes.Buffer
	if err := handleModels([]string{"--provider", "bedrock"}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), llm.ModelBedrockClaude35Haiku) {
		t.Fatalf("haiku missing: %s", out.String())
	}
	if strings.Contains(out.String(), "openai") {
		t.Fatalf("provider filter ignored: %s", out.String())
	}
	if err := handleModels([]string{"--provider", "nobody"}, &out); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestPrintTools(t *testing.T) {
	noop := func(context.Context, string) (string, error) { return "", nil }
	reg := tools.NewRegistry(
		tools.NewFunc("get_alerts", "Active alerts for a state.\nMore detail.", nil, noop),
		tools.NewFunc("docs__search", "Search docs", nil, noop),
	)
	loaded := &mcp.Loaded{Tools: map[string][]string{
		"weather": {"get_alerts"},
		"docs":    {"docs__search"},
	}}
	var out bytes.Buffer
	printTools(&out, reg, loaded)
	got := out.String()
	if strings.Index(got, "docs:") > strings.Index(got, "weather:") {
		t.Fatalf("servers not sorted: %q", got)
	}
	if !strings.Contains(got, "Active alerts for a state.\n") || strings.Contains(got, "More detail") {
		t.Fatalf("description: %q", got)
	}
}

func TestConfirm(t *testing.T) {
	cases := map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false}
	for in, want := range cases {
		var out bytes.Buffer
		got, err := confirm(strings.NewReader(in), &out, "Run?")
		if err != nil || got != want {
			t.Fatalf("%q: got %v %v", in, got, err)
		}
		if out.String() != "Run? [y/N] " {
			t.Fatalf("prompt %q", out.String())
		}
	}
}

type echoAgent struct{}

func (echoAgent) Run(ctx context.Context, in core.Message) (core.Message, error) {
	return core.Message{Role: "assistant", Content: "echo: " + in.Content}, nil
}

func (echoAgent) RunStream(ctx context.Context, in core.Message, out chan<- core.Message) error {
	defer close(out)
	out <- core.Message{Role: "assistant", Content: "echo: " + in.Content}
	return nil
}

func TestChatLoop(t *testing.T) {
	srv := httptest.NewServer(httpserver.NewServer(echoAgent{}, httpserver.Config{}).Handler())
	defer srv.Close()

	c := &chatClient{base: srv.URL, session: "s1", http: srv.Client()}
	var out bytes.Buffer
	if err := chatLoop(context.Background(), c, strings.NewReader("hello\n\nweather?\n"), &out, false); err != nil {
		t.Fatal(err)
	}
	if out.String() != "echo: hello\necho: weather?\n" {
		t.Fatalf("got %q", out.String())
	}

	out.Reset()
	if err := chatLoop(context.Background(), c, strings.NewReader("hi\n\nignored\n"), &out, true); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "ignored") || !strings.Contains(out.String(), "> echo: hi\n") {
		t.Fatalf("interactive: %q", out.String())
	}
}

func TestChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(httpserver.ChatResponse{Error: "missing bearer token"})
	}))
	defer srv.Close()
	c := &chatClient{base: srv.URL, http: srv.Client()}
	if _, err := c.send(context.Background(), "hi"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestA2ACard(t *testing.T) {
	card := a2a.AgentCard{
		Name:    "Weather",
		Version: "1.0.0",
		URL:     "http://agent",
		Skills:  []a2a.AgentSkill{{ID: "forecast", Description: "Seven day forecast"}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/agent.json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(card)
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := handleA2A(context.Background(), []string{"card", srv.URL}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "Weather 1.0.0\n") || !strings.Contains(out.String(), "forecast") {
		t.Fatalf("got %q", out.String())
	}
	if err := handleA2A(context.Background(), []string{"card"}, &out); err == nil {
		t.Fatal("expected missing url error")
	}
}
