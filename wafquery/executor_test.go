package wafquery

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/bedrock-agents/mcp"
)

func TestDBExecutorQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := "SELECT action, count() AS c FROM waf_logs GROUP BY action LIMIT 2"
	mock.ExpectQuery(regexp.QuoteMeta(q)).WillReturnRows(
		sqlmock.NewRows([]string{"action", "c"}).
			AddRow([]byte("BLOCK"), int64(12)).
			AddRow("ALLOW", int64(40)).
			AddRow("COUNT", int64(3)),
	)

	exec := &DBExecutor{DB: db, MaxRows: 2}
	res, err := exec.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"action", "c"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "BLOCK", res.Rows[0]["action"])
	assert.EqualValues(t, 40, res.Rows[1]["c"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBExecutorError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("code: 60, table does not exist"))

	_, err = (&DBExecutor{DB: db}).Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table does not exist")
}

func TestResultTable(t *testing.T) {
	res := &Result{
		Columns: []string{"action", "c"},
		Rows:    []map[string]any{{"action": "BLOCK", "c": 12}, {"action": "ALLOW", "c": 40}},
	}
	assert.Equal(t, "action | c\nBLOCK | 12\nALLOW | 40", res.Table(0))
	assert.Equal(t, "action | c\nBLOCK | 12\n... 1 more rows", res.Table(1))

	empty := &Result{Columns: []string{"action"}}
	assert.Equal(t, "action\n(0 rows)", empty.Table(10))
	assert.Equal(t, "(no columns)", (*Result)(nil).Table(10))
}

func TestParseResult(t *testing.T) {
	res, err := ParseResult(`{"columns":["ip","n"],"rows":[["10.0.0.1",3],{"ip":"10.0.0.2","n":1}]}`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "10.0.0.1", res.Rows[0]["ip"])
	assert.EqualValues(t, 3, res.Rows[0]["n"])
	assert.Equal(t, "10.0.0.2", res.Rows[1]["ip"])

	res, err = ParseResult("Query returned no rows\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"result"}, res.Columns)
	assert.Equal(t, "Query returned no rows", res.Rows[0]["result"])

	_, err = ParseResult(`{"columns":["a"],"rows":["x"]}`)
	assert.Error(t, err)
}

type toolClient struct {
	name, input string
	out         string
}

func (c *toolClient) ListTools(context.Context) ([]mcp.ToolInfo, error) { return nil, nil }

func (c *toolClient) ExecuteTool(_ context.Context, name, input string) (string, error) {
	c.name, c.input = name, input
	return c.out, nil
}

func TestMCPExecutor(t *testing.T) {
	c := &toolClient{out: `{"columns":["n"],"rows":[[7]]}`}
	res, err := (&MCPExecutor{Client: c}).Query(context.Background(), "SELECT count() AS n FROM waf_logs")
	require.NoError(t, err)
	assert.Equal(t, DefaultQueryTool, c.name)
	assert.JSONEq(t, `{"query":"SELECT count() AS n FROM waf_logs"}`, c.input)
	assert.EqualValues(t, 7, res.Rows[0]["n"])
}
