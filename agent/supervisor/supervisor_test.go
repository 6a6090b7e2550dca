package supervisor

import (
	"context"
	"errors"
	"testing"

	core "github.com/KamdynS/bedrock-agents/agent/core"
)

type fakeAgent struct {
	reply string
	err   error
}

func (f fakeAgent) Run(ctx context.Context, input core.Message) (core.Message, error) {
	if f.err != nil {
		return core.Message{}, f.err
	}
	return core.Message{Role: "assistant", Content: f.reply + ":" + input.Content}, nil
}
func (f fakeAgent) RunStream(ctx context.Context, input core.Message, output chan<- core.Message) error {
	defer close(output)
	if f.err != nil {
		return f.err
	}
	output <- core.Message{Role: "assistant", Content: f.reply}
	return nil
}

func TestAgentTool(t *testing.T) {
	// Name/Description/Schema basics
	at := &AgentTool{NameStr: "delegate", Desc: "wraps an agent", Agent: fakeAgent{reply: "ok"}}
	if at.Name() != "delegate" || at.Description() != "wraps an agent" {
		t.Fatalf("unexpected name/desc")
	}
	if _, ok := at.Schema()["type"]; !ok {
		t.Fatalf("schema should contain type")
	}
	// Execute success
	out, err := at.Execute(context.Background(), "hello")
	if err != nil || out == "" {
		t.Fatalf("execute failed: %v %q", err, out)
	}
	// Execute error when nil agent
	at.Agent = nil
	if _, err := at.Execute(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on nil agent")
	}
}

func TestSequentialPolicy(t *testing.T) {
	p := SequentialPolicy{}
	a1 := fakeAgent{reply: "A1"}
	a2 := fakeAgent{reply: "A2"}
	out, err := p.Execute(context.Background(), "seed", []core.Agent{a1, a2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A1 echoes with input, A2 receives previous output content
	if out == "" || out[:2] != "A2" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFanOutFirst(t *testing.T) {
	p := FanOutFirst{}
	// one failing, one succeeding fast
	slowErr := fakeAgent{err: errors.New("boom")}
	fastOk := fakeAgent{reply: "OK"}
	out, err := p.Execute(context.Background(), "q", []core.Agent{slowErr, fastOk})
	if err != nil || out == "" {
		t.Fatalf("expected first success, got %v %q", err, out)
	}

	// all failing -> last error returned
	_, err = p.Execute(context.Background(), "q", []core.Agent{fakeAgent{err: errors.New("e1")}, fakeAgent{err: errors.New("e2")}})
	if err == nil {
		t.Fatalf("expected error when all fail")
	}
}

func TestAgentToolDecodesInput(t *testing.T) {
	at := &AgentTool{NameStr: "delegate", Agent: fakeAgent{reply: "ok"}}
	out, err := at.Execute(context.Background(), `{"input":"AAPL outlook"}`)
	if err != nil || out != "ok:AAPL outlook" {
		t.Fatalf("unexpected %q %v", out, err)
	}
	out, _ = at.Execute(context.Background(), "plain text")
	if out != "ok:plain text" {
		t.Fatalf("bare input not passed through: %q", out)
	}
}

func TestFanOutAll(t *testing.T) {
	p := FanOutAll{Labels: []string{"market", "risk"}}
	out, err := p.Execute(context.Background(), "q", []core.Agent{fakeAgent{reply: "up"}, fakeAgent{err: errors.New("timeout")}, fakeAgent{reply: "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "[market]\nup:q\n\n[risk] unavailable: timeout\n\n[agent 3]\nx:q"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
	if _, err := p.Execute(context.Background(), "q", []core.Agent{fakeAgent{err: errors.New("e1")}}); err == nil {
		t.Fatal("expected error when all fail")
	}
}

type fakeSender struct {
	gotSession, gotText string
	err                 error
}

func (f *fakeSender) SendText(ctx context.Context, sessionID, text string) (string, error) {
	f.gotSession, f.gotText = sessionID, text
	if f.err != nil {
		return "", f.err
	}
	return "remote:" + text, nil
}

func TestRemoteAgentTool(t *testing.T) {
	s := &fakeSender{}
	tool := RemoteAgentTool("market_analysis", "Ask the market analysis agent", s)
	out, err := tool.Execute(context.Background(), `{"input":"TSLA"}`)
	if err != nil || out != "remote:TSLA" {
		t.Fatalf("unexpected %q %v", out, err)
	}

	ra := RemoteAgent{Sender: s}
	msg, err := ra.Run(context.Background(), core.Message{Content: "hi", Meta: map[string]string{core.MetaSessionID: "s1"}})
	if err != nil || s.gotSession != "s1" || msg.SessionID() != "s1" {
		t.Fatalf("session not forwarded: %+v %v", msg, err)
	}

	s.err = errors.New("circuit open")
	ch := make(chan core.Message, 1)
	if err := ra.RunStream(context.Background(), core.Message{Content: "x"}, ch); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
}
