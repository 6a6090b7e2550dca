package mcp

import (
	"context"
	"fmt"
	"time"

	obs "github.com/KamdynS/bedrock-agents/observability"
	"github.com/KamdynS/bedrock-agents/tools"
)

// CallTimeout bounds a single proxied tools/call.
var CallTimeout = 30 * time.Second

// RegisterAllTools fetches the server's tools and registers a proxy for each into reg.
// server labels the proxies' spans; it may be empty.
func RegisterAllTools(ctx context.Context, reg tools.Registry, client ClientLike, server string) ([]string, error) {
	if reg == nil || client == nil {
		return nil, fmt.Errorf("nil registry or client")
	}
	list, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, t := range list {
		schema := t.Schema
		if schema == nil {
			schema = tools.ObjectSchema(map[string]interface{}{})
		}
		proxy := &mcpToolProxy{client: client, server: server, name: t.Name, desc: t.Description, schema: schema}
		if err := reg.Register(proxy); err != nil {
			return names, err
		}
		names = append(names, t.Name)
	}
	return names, nil
}

type mcpToolProxy struct {
	client ClientLike
	server string
	name   string
	desc   string
	schema map[string]interface{}
}

func (m *mcpToolProxy) Name() string                   { return m.name }
func (m *mcpToolProxy) Description() string            { return m.desc }
func (m *mcpToolProxy) Schema() map[string]interface{} { return m.schema }

// Execute always calls the remote tool by its original name, even when the
// registry renamed the proxy to avoid a collision.
func (m *mcpToolProxy) Execute(ctx context.Context, input string) (string, error) {
	span, ctx := obs.TracerImpl.StartSpan(ctx, "mcp.call_tool")
	span.SetAttribute(obs.AttrMCPServer, m.server)
	span.SetAttribute(obs.AttrToolName, m.name)
	defer span.End()

	c, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	out, err := m.client.ExecuteTool(c, m.name, input)
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return "", err
	}
	return out, nil
}

var _ tools.Tool = (*mcpToolProxy)(nil)
