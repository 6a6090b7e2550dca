package a2a

import (
	"context"

	core "github.com/KamdynS/bedrock-agents/agent/core"
)

// AgentExecutor serves an agent over A2A. The task's session id selects the agent's
// conversation history, so follow-up tasks in one session share context.
func AgentExecutor(a core.Agent) Executor {
	return ExecutorFunc(func(ctx context.Context, task *Task, input Message) (Message, error) {
		out, err := a.Run(ctx, core.Message{
			Role:    "user",
			Content: input.Text(),
			Meta:    map[string]string{core.MetaSessionID: task.SessionID},
		})
		if err != nil {
			return Message{}, err
		}
		return NewTextMessage(RoleAgent, out.Content), nil
	})
}
