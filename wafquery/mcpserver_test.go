package wafquery

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalogExec struct {
	fakeExec
}

func (c *catalogExec) Query(ctx context.Context, sql string) (*Result, error) {
	switch {
	case strings.Contains(sql, "system.tables"):
		return &Result{Columns: []string{"name"}, Rows: []map[string]any{{"name": "waf_logs"}, {"name": "waf_logs_daily"}}}, nil
	case strings.HasPrefix(sql, "DESCRIBE TABLE"):
		return &Result{
			Columns: []string{"name", "type", "comment"},
			Rows: []map[string]any{
				{"name": "action", "type": "LowCardinality(String)", "comment": "terminating action"},
				{"name": "client_ip", "type": "String", "comment": ""},
			},
		}, nil
	}
	return c.fakeExec.Query(ctx, sql)
}

func TestToolsRegistry(t *testing.T) {
	exec := &catalogExec{fakeExec: fakeExec{res: actionCounts()}}
	reg := Tools(exec, ServerOptions{Table: "waf_logs", MaxRows: 10})
	assert.Equal(t, []string{"describe_table", "list_tables", "run_select_query"}, reg.List())
	ctx := context.Background()

	out, err := reg.Execute(ctx, "list_tables", "")
	require.NoError(t, err)
	assert.Equal(t, "waf_logs\nwaf_logs_daily", out)

	out, err = reg.Execute(ctx, "describe_table", `{"table":"waf_logs"}`)
	require.NoError(t, err)
	var cols []Column
	require.NoError(t, json.Unmarshal([]byte(out), &cols))
	assert.Equal(t, Column{Name: "action", Type: "LowCardinality(String)", Comment: "terminating action"}, cols[0])

	_, err = reg.Execute(ctx, "describe_table", `{"table":"waf_logs; DROP TABLE x"}`)
	assert.ErrorIs(t, err, ErrUnsafeSQL)

	out, err = reg.Execute(ctx, "run_select_query", `{"query":"SELECT action, count() AS c FROM waf_logs GROUP BY action"}`)
	require.NoError(t, err)
	res, err := ParseResult(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"action", "c"}, res.Columns)
	assert.Equal(t, []string{"SELECT action, count() AS c FROM waf_logs GROUP BY action LIMIT 10"}, exec.seen())

	_, err = reg.Execute(ctx, "run_select_query", `{"query":"SELECT * FROM secrets"}`)
	assert.ErrorIs(t, err, ErrUnsafeSQL)
}

func TestMCPServerRoundTrip(t *testing.T) {
	exec := &catalogExec{fakeExec: fakeExec{res: actionCounts()}}
	c, err := mcpclient.NewInProcessClient(NewMCPServer(exec, ServerOptions{Table: "waf_logs", MaxRows: 10}))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	init := mcplib.InitializeRequest{}
	init.Params.ProtocolVersion = mcplib.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcplib.Implementation{Name: "test", Version: "0"}
	info, err := c.Initialize(ctx, init)
	require.NoError(t, err)
	assert.Equal(t, "clickhouse-waf", info.ServerInfo.Name)

	list, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	require.NoError(t, err)
	assert.Len(t, list.Tools, 3)

	call := mcplib.CallToolRequest{}
	call.Params.Name = DefaultQueryTool
	call.Params.Arguments = map[string]any{"query": "DELETE FROM waf_logs"}
	res, err := c.CallTool(ctx, call)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, exec.seen())
}
