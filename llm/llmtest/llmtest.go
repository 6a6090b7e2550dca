// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/KamdynS/bedrock-agents/llm"
)

// Client replays scripted responses in order. Once the script is exhausted it repeats
// Default, or the last response when Default is empty.
type Client struct {
	mu        sync.Mutex
	responses []llm.Response
	errs      []error
	calls     []llm.ChatRequest
	next      int
	Default   string
}

// New returns a client that answers with contents in order.
func New(contents ...string) *Client {
	c := &Client{}
	for _, s := range contents {
		c.Add(s)
	}
	return c
}

// Add appends a text response.
func (c *Client) Add(content string) *Client {
	return c.AddResponse(llm.Response{Content: content, FinishReason: llm.FinishStop})
}

// AddToolCalls appends a response requesting tool calls.
func (c *Client) AddToolCalls(calls ...llm.ToolCall) *Client {
	return c.AddResponse(llm.Response{ToolCalls: calls, FinishReason: llm.FinishToolCalls})
}

// AddError appends a failing call.
func (c *Client) AddError(err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, llm.Response{})
	c.errs = append(c.errs, err)
	return c
}

func (c *Client) AddResponse(r llm.Response) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, r)
	c.errs = append(c.errs, nil)
	return c
}

// Calls returns copies of every request seen so far.
func (c *Client) Calls() []llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.ChatRequest(nil), c.calls...)
}

func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, *req)

	var (
		r   llm.Response
		err error
	)
	switch {
	case c.next < len(c.responses):
		r, err = c.responses[c.next], c.errs[c.next]
		c.next++
	case c.Default != "":
		r = llm.Response{Content: c.Default, FinishReason: llm.FinishStop}
	case len(c.responses) > 0:
		r, err = c.responses[len(c.responses)-1], c.errs[len(c.errs)-1]
	default:
		r = llm.Response{Content: "ok", FinishReason: llm.FinishStop}
	}
	if err != nil {
		return nil, err
	}
	r.Role = "assistant"
	r.Model = c.Model()
	r.Provider = c.Provider()
	return &r, nil
}

func (c *Client) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	return c.Chat(ctx, &llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: prompt}}})
}

func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, output chan<- *llm.Response) error {
	defer close(output)
	r, err := c.Chat(ctx, req)
	if err != nil {
		return err
	}
	select {
	case output <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Model() string          { return "scripted" }
func (c *Client) Provider() llm.Provider { return llm.ProviderBedrock }
func (c *Client) Validate() error        { return nil }

var _ llm.Client = (*Client)(nil)
