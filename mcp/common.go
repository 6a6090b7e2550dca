package mcp

import "context"

// ClientLike is what a tool proxy needs from an MCP connection. Session implements it.
type ClientLike interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	ExecuteTool(ctx context.Context, name string, input string) (string, error)
}
