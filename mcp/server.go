package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/KamdynS/bedrock-agents/tools"
)

// NewServer exposes every tool in reg over MCP. Tool arguments are passed to
// Execute as their JSON object; tool errors become error results, not protocol errors.
func NewServer(name, version string, reg tools.Registry) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(name, version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	for _, toolName := range reg.List() {
		t, ok := reg.Get(toolName)
		if !ok {
			continue
		}
		schema := t.Schema()
		if schema == nil {
			schema = tools.ObjectSchema(map[string]interface{}{})
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			continue
		}
		s.AddTool(mcplib.NewToolWithRawSchema(toolName, t.Description(), raw), toolHandler(reg, toolName))
	}
	return s
}

func toolHandler(reg tools.Registry, name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		input, err := json.Marshal(args)
		if err != nil {
			return mcplib.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		out, err := reg.Execute(ctx, name, string(input))
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		return mcplib.NewToolResultText(out), nil
	}
}

// ServeStdio serves s on stdin/stdout until EOF.
func ServeStdio(s *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(s)
}

// NewHTTPHandler serves s over the streamable HTTP transport.
func NewHTTPHandler(s *mcpserver.MCPServer) http.Handler {
	return mcpserver.NewStreamableHTTPServer(s)
}
