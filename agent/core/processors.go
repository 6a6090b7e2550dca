package core

import "context"

// Processor rewrites session history before it is sent to the model.
type Processor interface {
	Process(ctx context.Context, msgs []Message) []Message
}

// TokenLimiter keeps the newest messages whose combined content fits in MaxChars.
// Characters stand in for tokens; MaxChars <= 0 disables the limit. The kept history
// starts at a user turn, since Bedrock Converse rejects a transcript that opens with
// the assistant.
type TokenLimiter struct {
	MaxChars int
}

func (p TokenLimiter) Process(ctx context.Context, msgs []Message) []Message {
	if p.MaxChars <= 0 {
		return msgs
	}
	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		n := len(msgs[i].Content)
		if total+n > p.MaxChars {
			break
		}
		total += n
		start = i
	}
	for start < len(msgs) && msgs[start].Role != "user" {
		start++
	}
	return msgs[start:]
}

// ToolCallFilter drops tool results from history.
type ToolCallFilter struct{}

func (ToolCallFilter) Process(ctx context.Context, msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "tool" {
			continue
		}
		out = append(out, m)
	}
	return out
}
