package wafquery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/KamdynS/bedrock-agents/mcp"
)

// Result holds query rows with their column order.
type Result struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Table renders the result as a pipe-separated table, at most maxRows rows.
func (r *Result) Table(maxRows int) string {
	if r == nil || len(r.Columns) == 0 {
		return "(no columns)"
	}
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, " | "))
	for i, row := range r.Rows {
		if maxRows > 0 && i >= maxRows {
			fmt.Fprintf(&b, "\n... %d more rows", len(r.Rows)-maxRows)
			break
		}
		b.WriteByte('\n')
		for j, c := range r.Columns {
			if j > 0 {
				b.WriteString(" | ")
			}
			fmt.Fprint(&b, row[c])
		}
	}
	if len(r.Rows) == 0 {
		b.WriteString("\n(0 rows)")
	}
	return b.String()
}

// Executor runs a validated read-only statement.
type Executor interface {
	Query(ctx context.Context, sql string) (*Result, error)
}

// OpenClickHouse opens an instrumented database/sql handle on the clickhouse-go driver.
// dsn is a clickhouse:// URL.
func OpenClickHouse(ctx context.Context, dsn string) (*sql.DB, error) {
	driverName, err := otelsql.Register("clickhouse",
		otelsql.WithAttributes(semconv.DBSystemClickhouse),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return db, nil
}

// DBExecutor queries a *sql.DB directly.
type DBExecutor struct {
	DB      *sql.DB
	Timeout time.Duration
	// MaxRows stops reading after this many rows. Zero reads everything.
	MaxRows int
}

func (e *DBExecutor) Query(ctx context.Context, query string) (*Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	rows, err := e.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, e.MaxRows)
}

func scanRows(rows *sql.Rows, maxRows int) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	res := &Result{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return res, nil
}

// DefaultQueryTool is the MCP tool the ClickHouse MCP servers expose for SELECTs.
const DefaultQueryTool = "run_select_query"

// MCPExecutor runs statements through an MCP server's query tool.
type MCPExecutor struct {
	Client mcp.ClientLike
	// Tool defaults to DefaultQueryTool.
	Tool string
}

func (e *MCPExecutor) Query(ctx context.Context, query string) (*Result, error) {
	tool := e.Tool
	if tool == "" {
		tool = DefaultQueryTool
	}
	args, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	out, err := e.Client.ExecuteTool(ctx, tool, string(args))
	if err != nil {
		return nil, fmt.Errorf("mcp %s: %w", tool, err)
	}
	return ParseResult(out)
}

// ParseResult decodes a query tool's text output. Rows may be objects or arrays in column
// order; anything that is not JSON becomes a single "result" cell.
func ParseResult(text string) (*Result, error) {
	var raw struct {
		Columns []string          `json:"columns"`
		Rows    []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil || raw.Columns == nil {
		return &Result{Columns: []string{"result"}, Rows: []map[string]any{{"result": strings.TrimSpace(text)}}}, nil
	}
	res := &Result{Columns: raw.Columns, Rows: make([]map[string]any, 0, len(raw.Rows))}
	for i, r := range raw.Rows {
		var obj map[string]any
		if err := json.Unmarshal(r, &obj); err == nil {
			res.Rows = append(res.Rows, obj)
			continue
		}
		var arr []any
		if err := json.Unmarshal(r, &arr); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		row := make(map[string]any, len(raw.Columns))
		for j, c := range raw.Columns {
			if j < len(arr) {
				row[c] = arr[j]
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}
