package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// ClientName and ClientVersion identify this module in the initialize handshake.
var (
	ClientName    = "bedrock-agents"
	ClientVersion = "0.1.0"
)

// ToolInfo is the metadata of a remote tool.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Schema      map[string]interface{} `json:"schema"`
}

// Session is an initialized connection to one MCP server.
type Session struct {
	name   string
	client *mcpclient.Client
	server mcplib.Implementation
}

// Connect opens the transport described by cfg and performs the initialize handshake.
func Connect(ctx context.Context, name string, cfg ServerConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mcp server %s: %w", name, err)
	}
	var (
		c     *mcpclient.Client
		err   error
		start bool
	)
	switch cfg.Kind() {
	case TransportStdio:
		// the stdio transport launches the process on construction
		c, err = mcpclient.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	case TransportSSE:
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(cfg.Headers))
		}
		c, err = mcpclient.NewSSEMCPClient(cfg.URL, opts...)
		start = true
	case TransportStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		c, err = mcpclient.NewStreamableHttpClient(cfg.URL, opts...)
		start = true
	}
	if err != nil {
		return nil, fmt.Errorf("mcp server %s: create client: %w", name, err)
	}
	return newSession(ctx, name, c, start)
}

// newSession starts c and runs the handshake. ctx bounds the handshake only: long-lived
// transports (the SSE event stream) are started detached and stopped by Session.Close.
func newSession(ctx context.Context, name string, c *mcpclient.Client, start bool) (*Session, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	if start {
		if err := c.Start(context.WithoutCancel(ctx)); err != nil {
			stop()
			_ = c.Close()
			return nil, fmt.Errorf("mcp server %s: start: %w", name, errors.Join(err, ctx.Err()))
		}
	}
	req := mcplib.InitializeRequest{}
	req.Params.ProtocolVersion = mcplib.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcplib.Implementation{Name: ClientName, Version: ClientVersion}
	res, err := c.Initialize(ctx, req)
	if !stop() {
		// ctx ended during the handshake and the client is already closed
		err = errors.Join(err, ctx.Err())
	}
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp server %s: initialize: %w", name, err)
	}
	return &Session{name: name, client: c, server: res.ServerInfo}, nil
}

// Name is the configured server name.
func (s *Session) Name() string { return s.name }

// ServerInfo is what the server reported during initialize.
func (s *Session) ServerInfo() mcplib.Implementation { return s.server }

// ListTools returns the server's tools with their input schemas as plain maps.
func (s *Session) ListTools(ctx context.Context) ([]ToolInfo, error) {
	res, err := s.client.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp server %s: list tools: %w", s.name, err)
	}
	out := make([]ToolInfo, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, ToolInfo{Name: t.Name, Description: t.Description, Schema: inputSchema(t)})
	}
	return out, nil
}

// ExecuteTool calls tools/call with input as the JSON argument object and joins
// the text content of the result. A result flagged as an error becomes a Go error.
func (s *Session) ExecuteTool(ctx context.Context, name string, input string) (string, error) {
	args := map[string]any{}
	if strings.TrimSpace(input) != "" {
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}
	req := mcplib.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp server %s: call %s: %w", s.name, name, err)
	}
	text := resultText(res)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", errors.New(text)
	}
	return text, nil
}

// Close shuts down the transport (and the subprocess for stdio servers).
func (s *Session) Close() error { return s.client.Close() }

func resultText(res *mcplib.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcplib.TextContent:
			parts = append(parts, v.Text)
		case *mcplib.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// inputSchema goes through the tool's JSON form so raw and structured schemas
// come out the same.
func inputSchema(t mcplib.Tool) map[string]interface{} {
	b, err := json.Marshal(t)
	if err != nil {
		return nil
	}
	var wire struct {
		InputSchema map[string]interface{} `json:"inputSchema"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil
	}
	return wire.InputSchema
}

var _ ClientLike = (*Session)(nil)
