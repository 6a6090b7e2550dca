// Package wafquery answers natural-language questions about AWS WAF logs stored in ClickHouse:
// a model writes SQL, the SQL is checked and run (directly or through an MCP server), and a
// model summarises the rows.
package wafquery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Column describes one table column for prompts and describe_table.
type Column struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Comment string `json:"comment,omitempty"`
}

// WAFLogColumns is the flattened WAF log layout the firehose transform writes.
var WAFLogColumns = []Column{
	{"timestamp", "DateTime64(3)", "request time, UTC"},
	{"webacl_id", "String", "web ACL ARN"},
	{"action", "LowCardinality(String)", "ALLOW, BLOCK, COUNT, CAPTCHA or CHALLENGE"},
	{"terminating_rule_id", "String", "rule that decided the action"},
	{"terminating_rule_type", "LowCardinality(String)", "REGULAR, RATE_BASED, MANAGED_RULE_GROUP or GROUP"},
	{"http_source_name", "LowCardinality(String)", "ALB, CF, APIGW or APPSYNC"},
	{"client_ip", "String", ""},
	{"country", "LowCardinality(String)", "ISO 3166 alpha-2"},
	{"http_method", "LowCardinality(String)", ""},
	{"host", "String", ""},
	{"uri", "String", ""},
	{"args", "String", "query string"},
	{"user_agent", "String", ""},
	{"response_code", "UInt16", "0 when not recorded"},
	{"labels", "Array(String)", "labels added by matching rules"},
	{"rate_based_rule_ids", "Array(String)", ""},
}

// SchemaPrompt describes table for the SQL generation prompt.
func SchemaPrompt(table string, cols []Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table %s (ClickHouse):\n", table)
	for _, c := range cols {
		fmt.Fprintf(&b, "  %s %s", c.Name, c.Type)
		if c.Comment != "" {
			fmt.Fprintf(&b, " -- %s", c.Comment)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Catalog reads table metadata from ClickHouse system tables.
type Catalog struct {
	Exec Executor
}

// ListTables returns the tables of the current database.
func (c Catalog) ListTables(ctx context.Context) ([]string, error) {
	res, err := c.Exec.Query(ctx, "SELECT name FROM system.tables WHERE database = currentDatabase() ORDER BY name")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		names = append(names, fmt.Sprint(r["name"]))
	}
	return names, nil
}

// DescribeTable returns the columns of table.
func (c Catalog) DescribeTable(ctx context.Context, table string) ([]Column, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrUnsafeSQL, table)
	}
	res, err := c.Exec.Query(ctx, "DESCRIBE TABLE "+table)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(res.Rows))
	for _, r := range res.Rows {
		col := Column{Name: fmt.Sprint(r["name"]), Type: fmt.Sprint(r["type"])}
		if cm, ok := r["comment"].(string); ok {
			col.Comment = cm
		}
		cols = append(cols, col)
	}
	return cols, nil
}
