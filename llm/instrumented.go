package llm

import (
	"context"
	"time"

	"github.com/KamdynS/bedrock-agents/observability"
)

// InstrumentedClient wraps a Client with spans and metrics from the
// observability package globals.
type InstrumentedClient struct {
	Client
}

func NewInstrumentedClient(c Client) *InstrumentedClient { return &InstrumentedClient{Client: c} }

func (c *InstrumentedClient) Chat(ctx context.Context, req *ChatRequest) (*Response, error) {
	span, ctx := observability.TracerImpl.StartSpan(ctx, "llm.chat")
	defer span.End()
	labels := map[string]string{"provider": string(c.Provider()), "model": c.Model()}
	span.SetAttribute(observability.AttrProvider, string(c.Provider()))
	span.SetAttribute(observability.AttrModel, c.Model())

	start := time.Now()
	resp, err := c.Client.Chat(ctx, req)
	observability.MetricsImpl.RecordLatency(time.Since(start), labels)
	observability.MetricsImpl.IncrementRequests(labels)
	if err != nil {
		errType := string(ErrorTypeUnknown)
		if llmErr, ok := IsLLMError(err); ok {
			errType = string(llmErr.Type)
		}
		observability.MetricsImpl.RecordError(errType, labels)
		span.SetStatus(observability.StatusCodeError, err.Error())
		return nil, err
	}
	span.SetAttribute(observability.AttrFinishReason, resp.FinishReason)
	if resp.Usage != nil {
		span.SetAttribute(observability.AttrTokensInput, resp.Usage.InputTokens)
		span.SetAttribute(observability.AttrTokensOutput, resp.Usage.OutputTokens)
		observability.MetricsImpl.IncrementTokensUsed(resp.Usage.TotalTokens, labels)
	}
	span.SetStatus(observability.StatusCodeOk, "")
	return resp, nil
}

func (c *InstrumentedClient) Completion(ctx context.Context, prompt string) (*Response, error) {
	return c.Chat(ctx, &ChatRequest{Messages: []Message{UserMessage(prompt)}})
}
