package wafquery

import (
	"context"
	"encoding/json"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/KamdynS/bedrock-agents/mcp"
	"github.com/KamdynS/bedrock-agents/tools"
)

// ServerOptions configures the ClickHouse MCP server.
type ServerOptions struct {
	// Tables limits run_select_query; empty allows only Table.
	Tables  []string
	Table   string
	MaxRows int
	Version string
	// Ask adds ask_waf_logs backed by this pipeline.
	Ask *Pipeline
}

type describeArgs struct {
	Table string `json:"table"`
}

type queryArgs struct {
	Query string `json:"query"`
}

// Tools returns list_tables, describe_table and run_select_query backed by exec, plus
// ask_waf_logs when opts.Ask is a pipeline without approval.
func Tools(exec Executor, opts ServerOptions) *tools.DefaultRegistry {
	allowed := opts.Tables
	if len(allowed) == 0 && opts.Table != "" {
		allowed = []string{opts.Table}
	}
	cat := Catalog{Exec: exec}

	listTables := tools.NewFunc("list_tables", "List the tables of the current ClickHouse database", nil,
		func(ctx context.Context, _ string) (string, error) {
			names, err := cat.ListTables(ctx)
			if err != nil {
				return "", err
			}
			return strings.Join(names, "\n"), nil
		})

	describeTable := tools.NewFunc("describe_table", "Show column names, types and comments of a table",
		tools.ObjectSchema(map[string]interface{}{
			"table": map[string]interface{}{"type": "string", "description": "Table name"},
		}, "table"),
		func(ctx context.Context, input string) (string, error) {
			args, err := tools.DecodeArgs[describeArgs](input)
			if err != nil {
				return "", err
			}
			cols, err := cat.DescribeTable(ctx, args.Table)
			if err != nil {
				return "", err
			}
			b, err := json.Marshal(cols)
			return string(b), err
		})

	runQuery := tools.NewFunc(DefaultQueryTool, "Run one read-only SELECT statement and return rows as JSON",
		tools.ObjectSchema(map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "ClickHouse SELECT statement"},
		}, "query"),
		func(ctx context.Context, input string) (string, error) {
			args, err := tools.DecodeArgs[queryArgs](input)
			if err != nil {
				return "", err
			}
			safe, err := ValidateSQL(args.Query, allowed, opts.MaxRows)
			if err != nil {
				return "", err
			}
			res, err := exec.Query(ctx, safe)
			if err != nil {
				return "", err
			}
			b, err := json.Marshal(res)
			return string(b), err
		})

	reg := tools.NewRegistry(listTables, describeTable, runQuery)
	if opts.Ask != nil {
		if ask, err := AskTool(opts.Ask); err == nil {
			_ = reg.Register(ask)
		}
	}
	return reg
}

// NewMCPServer serves Tools over MCP.
func NewMCPServer(exec Executor, opts ServerOptions) *mcpserver.MCPServer {
	version := opts.Version
	if version == "" {
		version = "0.1.0"
	}
	return mcp.NewServer("clickhouse-waf", version, Tools(exec, opts))
}
