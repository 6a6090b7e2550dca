package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KamdynS/bedrock-agents/cache"
	obs "github.com/KamdynS/bedrock-agents/observability"
	"github.com/KamdynS/bedrock-agents/resilience"
)

// TokenSource returns the bearer token for the next call.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Client calls a remote A2A agent.
type Client struct {
	baseURL  string
	http     *http.Client
	token    TokenSource
	breaker  *resilience.Breaker
	cards    *cache.Cache
	cardTTL  time.Duration
	idPrefix string
	seq      atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption { return func(c *Client) { c.http = hc } }

// WithToken sets the bearer token source.
func WithToken(ts TokenSource) ClientOption { return func(c *Client) { c.token = ts } }

// WithBreaker guards every call with b.
func WithBreaker(b *resilience.Breaker) ClientOption { return func(c *Client) { c.breaker = b } }

// WithCardCache caches fetched agent cards in cc for ttl.
func WithCardCache(cc *cache.Cache, ttl time.Duration) ClientOption {
	return func(c *Client) { c.cards, c.cardTTL = cc, ttl }
}

// NewClient creates a client for the agent served at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 5 * time.Minute, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		idPrefix: uuid.NewString()[:8],
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker != nil && c.breaker.IsFailure == nil {
		// protocol errors mean the agent is up
		c.breaker.IsFailure = func(err error) bool {
			var rpcErr *RPCError
			return !errors.As(err, &rpcErr)
		}
	}
	return c
}

// BaseURL is the agent's endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchCard loads the agent card, from cache when possible.
func (c *Client) FetchCard(ctx context.Context) (*AgentCard, error) {
	key := "a2a:card:" + c.baseURL
	if c.cards != nil {
		if card, ok := cache.GetJSON[AgentCard](c.cards, key); ok {
			return &card, nil
		}
	}
	card, err := c.guard(ctx, func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/.well-known/agent.json", nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch agent card: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("fetch agent card: %s: %s", resp.Status, strings.TrimSpace(string(b)))
		}
		var card AgentCard
		if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
			return nil, fmt.Errorf("decode agent card: %w", err)
		}
		return &card, nil
	})
	if err != nil {
		return nil, err
	}
	out := card.(*AgentCard)
	if c.cards != nil {
		cache.SetJSON(c.cards, key, out, c.cardTTL)
	}
	return out, nil
}

// SendTask calls tasks/send and returns the task in its final (or input-required) state.
func (c *Client) SendTask(ctx context.Context, p TaskSendParams) (*Task, error) {
	var t Task
	if err := c.call(ctx, MethodSend, p, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTask calls tasks/get.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := c.call(ctx, MethodGet, TaskQueryParams{ID: id}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CancelTask calls tasks/cancel.
func (c *Client) CancelTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := c.call(ctx, MethodCancel, TaskIDParams{ID: id}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SendText sends text as a new task and returns the agent's reply. A failed or canceled task
// is an error.
func (c *Client) SendText(ctx context.Context, sessionID, text string) (string, error) {
	task, err := c.SendTask(ctx, TaskSendParams{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Message:   NewTextMessage(RoleUser, text),
	})
	if err != nil {
		return "", err
	}
	return task.Reply()
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	span, ctx := obs.TracerImpl.StartSpan(ctx, "a2a.client."+method)
	defer span.End()

	raw, err := c.guard(ctx, func(ctx context.Context) (any, error) {
		return c.post(ctx, method, params)
	})
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return err
	}
	if err := json.Unmarshal(raw.(json.RawMessage), out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, params any) (json.RawMessage, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%s-%d", c.idPrefix, c.seq.Add(1))
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: id, Method: method, Params: p})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("a2a token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	obs.InjectRequestHeaders(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("a2a %s: %s: %s", method, resp.Status, strings.TrimSpace(string(b)))
	}
	var rpc Response
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return nil, fmt.Errorf("a2a %s: decode response: %w", method, err)
	}
	if rpc.Error != nil {
		return nil, rpc.Error
	}
	return rpc.Result, nil
}

func (c *Client) guard(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if c.breaker == nil {
		return fn(ctx)
	}
	return resilience.Do(ctx, c.breaker, fn)
}
