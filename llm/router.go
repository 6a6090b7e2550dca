package llm

import (
	"context"
	"errors"
	"log/slog"
)

// RoutePolicy decides which client/model to use for a given request
type RoutePolicy interface {
	// Select returns the target client to use and (optionally) model override
	Select(req *ChatRequest) (Client, string, error)
}

// StaticPolicy routes by req.Model if present, otherwise uses default
type StaticPolicy struct {
	Default Client
	ByModel map[string]Client
}

func (p StaticPolicy) Select(req *ChatRequest) (Client, string, error) {
	if req != nil && req.Model != "" {
		if c, ok := p.ByModel[req.Model]; ok && c != nil {
			return c, req.Model, nil
		}
		if p.Default != nil {
			return p.Default, req.Model, nil
		}
		return nil, "", errors.New("no default client configured")
	}
	if p.Default == nil {
		return nil, "", errors.New("no default client configured")
	}
	return p.Default, "", nil
}

// RouterClient implements Client and delegates to inner clients via RoutePolicy
type RouterClient struct {
	policy RoutePolicy
}

func NewRouterClient(policy RoutePolicy) *RouterClient { return &RouterClient{policy: policy} }

func (r *RouterClient) Chat(ctx context.Context, req *ChatRequest) (*Response, error) {
	c, modelOverride, err := r.policy.Select(req)
	if err != nil {
		return nil, err
	}
	if modelOverride != "" {
		req = cloneChatRequest(req)
		req.Model = modelOverride
	}
	return c.Chat(ctx, req)
}

func (r *RouterClient) Completion(ctx context.Context, prompt string) (*Response, error) {
	c, _, err := r.policy.Select(&ChatRequest{})
	if err != nil {
		return nil, err
	}
	return c.Completion(ctx, prompt)
}

func (r *RouterClient) Stream(ctx context.Context, req *ChatRequest, output chan<- *Response) error {
	c, modelOverride, err := r.policy.Select(req)
	if err != nil {
		close(output)
		return err
	}
	if modelOverride != "" {
		req = cloneChatRequest(req)
		req.Model = modelOverride
	}
	return c.Stream(ctx, req, output)
}

func (r *RouterClient) Model() string      { return "router" }
func (r *RouterClient) Provider() Provider { return Provider("router") }
func (r *RouterClient) Validate() error {
	if r.policy == nil {
		return errors.New("nil route policy")
	}
	return nil
}

// FallbackClient tries each client in order and moves to the next one when a
// call fails with a retryable or throttling error. Any other error is returned
// as is. Used to fall back from Bedrock to the direct Anthropic API when a
// region is throttled.
type FallbackClient struct {
	clients []Client
}

// NewFallbackClient builds a FallbackClient; primary is tried first.
func NewFallbackClient(primary Client, fallbacks ...Client) *FallbackClient {
	return &FallbackClient{clients: append([]Client{primary}, fallbacks...)}
}

func (f *FallbackClient) Chat(ctx context.Context, req *ChatRequest) (*Response, error) {
	var lastErr error
	for i, c := range f.clients {
		// A model id is provider specific, so fallbacks use their own default.
		r := req
		if i > 0 && r.Model != "" {
			r = cloneChatRequest(req)
			r.Model = ""
		}
		resp, err := c.Chat(ctx, r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !shouldFallback(err) {
			return nil, err
		}
		slog.Warn("llm provider failed, falling back", "provider", c.Provider(), "model", c.Model(), "error", err)
	}
	return nil, lastErr
}

func (f *FallbackClient) Completion(ctx context.Context, prompt string) (*Response, error) {
	return f.Chat(ctx, &ChatRequest{Messages: []Message{UserMessage(prompt)}})
}

// Stream only falls back when the primary fails before producing output.
func (f *FallbackClient) Stream(ctx context.Context, req *ChatRequest, output chan<- *Response) error {
	var lastErr error
	for _, c := range f.clients {
		inner := make(chan *Response)
		errCh := make(chan error, 1)
		go func() { errCh <- c.Stream(ctx, req, inner) }()

		produced := false
		for chunk := range inner {
			produced = true
			output <- chunk
		}
		err := <-errCh
		if err == nil || produced || !shouldFallback(err) {
			close(output)
			return err
		}
		lastErr = err
	}
	close(output)
	return lastErr
}

func (f *FallbackClient) Model() string      { return f.clients[0].Model() }
func (f *FallbackClient) Provider() Provider { return f.clients[0].Provider() }

func (f *FallbackClient) Validate() error {
	if len(f.clients) == 0 || f.clients[0] == nil {
		return errors.New("fallback client requires a primary client")
	}
	for _, c := range f.clients {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func shouldFallback(err error) bool {
	if llmErr, ok := IsLLMError(err); ok {
		return isRetryableError(llmErr.Type) || llmErr.Type == ErrorTypeInsufficientQuota
	}
	return false
}

func cloneChatRequest(req *ChatRequest) *ChatRequest {
	if req == nil {
		return &ChatRequest{}
	}
	cp := *req
	return &cp
}
