package advisory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/KamdynS/bedrock-agents/agent/core"
	"github.com/KamdynS/bedrock-agents/llm"
	"github.com/KamdynS/bedrock-agents/llm/llmtest"
)

func TestQuoteTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "demo", r.URL.Query().Get("region"))
		_ = json.NewEncoder(w).Encode(map[string]any{"symbol": r.URL.Query().Get("symbol"), "price": 187.2})
	}))
	defer srv.Close()

	tool, err := NewQuoteTool(srv.URL+"/quote?region=demo", "secret")
	require.NoError(t, err)
	assert.Equal(t, "get_quote", tool.Name())

	out, err := tool.Execute(context.Background(), `{"symbol":"amzn"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "200 OK")
	assert.Contains(t, out, `"symbol":"AMZN"`)

	_, err = tool.Execute(context.Background(), `{"symbol":"not a ticker"}`)
	assert.Error(t, err)

	_, err = NewQuoteTool("::bad", "")
	assert.Error(t, err)
}

func TestMarketAnalysisAgentUsesQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"NVDA","price":950}`))
	}))
	defer srv.Close()
	quotes, err := NewQuoteTool(srv.URL, "")
	require.NoError(t, err)

	model := llmtest.New().
		AddToolCalls(llm.ToolCall{ID: "c1", Type: "function", Function: llm.Function{Name: "get_quote", Arguments: `{"symbol":"NVDA"}`}}).
		Add("NVDA trades at 950; momentum is strong.")
	agent, err := NewMarketAnalysisAgent(MarketAnalysisConfig{Model: model, Quotes: quotes})
	require.NoError(t, err)

	out, err := agent.Run(context.Background(), core.Message{Role: "user", Content: "How is NVDA doing?"})
	require.NoError(t, err)
	assert.Equal(t, "NVDA trades at 950; momentum is strong.", out.Content)

	calls := model.Calls()
	require.Len(t, calls, 2)
	var offered []string
	for _, tool := range calls[0].Tools {
		offered = append(offered, tool.Function.Name)
	}
	assert.ElementsMatch(t, []string{"calculator", "get_quote"}, offered)
	last := calls[1].Messages[len(calls[1].Messages)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Contains(t, last.Content, `"price":950`)
}

func TestNATSPublisher(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := ConnectNATS(ctx, url, "trades.test.executed")
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.PublishTrade(ctx, TradeRecord{TradeID: "nats-test", Symbol: "AAPL", Side: "buy", Quantity: 1}))
}
