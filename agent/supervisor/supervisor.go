package supervisor

import (
	"context"
	"errors"
	"fmt"

	core "github.com/KamdynS/bedrock-agents/agent/core"
	"github.com/KamdynS/bedrock-agents/tools"
)

type agentArgs struct {
	Input string `json:"input"`
}

var agentSchema = tools.ObjectSchema(map[string]interface{}{
	"input": map[string]interface{}{"type": "string", "description": "The request for the agent, in plain language."},
}, "input")

// AgentTool wraps an Agent as a tools.Tool so it can be delegated to.
type AgentTool struct {
	NameStr, Desc string
	Agent         core.Agent
}

func (a *AgentTool) Name() string                   { return a.NameStr }
func (a *AgentTool) Description() string            { return a.Desc }
func (a *AgentTool) Schema() map[string]interface{} { return agentSchema }

// Execute accepts {"input": "..."}; a bare string is passed through as the request.
func (a *AgentTool) Execute(ctx context.Context, input string) (string, error) {
	if a.Agent == nil {
		return "", fmt.Errorf("nil agent")
	}
	req := input
	if args, err := tools.DecodeArgs[agentArgs](input); err == nil && args.Input != "" {
		req = args.Input
	}
	out, err := a.Agent.Run(ctx, core.Message{Role: "user", Content: req})
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// TaskSender sends a text request to a remote agent and returns its text reply.
// a2a.Client implements it.
type TaskSender interface {
	SendText(ctx context.Context, sessionID, text string) (string, error)
}

// RemoteAgent adapts a TaskSender to core.Agent.
type RemoteAgent struct {
	Sender TaskSender
}

func (r RemoteAgent) Run(ctx context.Context, input core.Message) (core.Message, error) {
	if r.Sender == nil {
		return core.Message{}, errors.New("nil remote agent")
	}
	reply, err := r.Sender.SendText(ctx, input.SessionID(), input.Content)
	if err != nil {
		return core.Message{}, err
	}
	out := core.Message{Role: "assistant", Content: reply}
	if sid := input.SessionID(); sid != "" {
		out.Meta = map[string]string{core.MetaSessionID: sid}
	}
	return out, nil
}

func (r RemoteAgent) RunStream(ctx context.Context, input core.Message, output chan<- core.Message) error {
	defer close(output)
	out, err := r.Run(ctx, input)
	if err != nil {
		return err
	}
	select {
	case output <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoteAgentTool exposes a remote agent as a tool.
func RemoteAgentTool(name, description string, sender TaskSender) *AgentTool {
	return &AgentTool{NameStr: name, Desc: description, Agent: RemoteAgent{Sender: sender}}
}

var (
	_ tools.Tool = (*AgentTool)(nil)
	_ core.Agent = RemoteAgent{}
)
