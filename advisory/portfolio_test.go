package advisory

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/bedrock-agents/a2a"
	"github.com/KamdynS/bedrock-agents/auth"
	"github.com/KamdynS/bedrock-agents/llm/llmtest"
)

type fakeSender struct {
	mu       sync.Mutex
	name     string
	texts    []string
	accounts []string
	err      error
}

func (f *fakeSender) SendText(_ context.Context, _ string, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return "", f.err
	}
	return f.name + " reply", nil
}

func (f *fakeSender) SendTask(ctx context.Context, p a2a.TaskSendParams) (*a2a.Task, error) {
	reply, err := f.SendText(ctx, p.SessionID, p.Message.Text())
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, _ := p.Metadata[MetaAccount].(string)
	f.accounts = append(f.accounts, acct)
	msg := a2a.NewTextMessage(a2a.RoleAgent, reply)
	return &a2a.Task{ID: p.ID, Status: a2a.TaskStatus{State: a2a.TaskStateCompleted, Message: &msg}}, nil
}

type fakeHistory struct {
	recs    []TradeRecord
	queried []string
}

func (f *fakeHistory) Recent(_ context.Context, account string, _ int) ([]TradeRecord, error) {
	f.queried = append(f.queried, account)
	return f.recs, nil
}

func TestPortfolioManagerAnalysis(t *testing.T) {
	analysis, trading := &fakeSender{name: "analysis"}, &fakeSender{name: "trading"}
	pm := &PortfolioManager{Analysis: analysis, Trading: trading}

	out, err := pm.Handle(context.Background(), "What's the outlook for AMZN?")
	require.NoError(t, err)
	assert.Equal(t, "analysis reply", out)
	assert.Equal(t, []string{"What's the outlook for AMZN?"}, analysis.texts)
	assert.Empty(t, trading.texts)
}

func TestPortfolioManagerParallelAnalysis(t *testing.T) {
	analysis := &fakeSender{name: "analysis"}
	model := llmtest.New(`{"intent":"market_analysis","symbols":["AMZN","MSFT"],"confidence":0.8}`)
	pm := &PortfolioManager{Classifier: &Classifier{Model: model}, Analysis: analysis}

	out, err := pm.Handle(context.Background(), "compare amazon and microsoft")
	require.NoError(t, err)
	assert.Equal(t, "## AMZN\nanalysis reply\n\n## MSFT\nanalysis reply", out)
	assert.Len(t, analysis.texts, 2)
}

func TestPortfolioManagerTradeFetchesAnalysisFirst(t *testing.T) {
	analysis, trading := &fakeSender{name: "analysis"}, &fakeSender{name: "trading"}
	pm := &PortfolioManager{Analysis: analysis, Trading: trading}

	out, err := pm.Handle(context.Background(), "Buy 10 shares of AAPL")
	require.NoError(t, err)
	require.Len(t, analysis.texts, 1)
	require.Len(t, trading.texts, 1)
	assert.True(t, strings.HasPrefix(trading.texts[0], "Buy 10 shares of AAPL\n\nMarket analysis:\nanalysis reply"))
	assert.Equal(t, "Market analysis:\nanalysis reply\n\nTrade execution:\ntrading reply", out)
	assert.Equal(t, []string{DefaultAccount}, trading.accounts)
}

func TestPortfolioManagerTradeWithoutAnalysis(t *testing.T) {
	analysis, trading := &fakeSender{name: "analysis", err: errors.New("down")}, &fakeSender{name: "trading"}
	pm := &PortfolioManager{Analysis: analysis, Trading: trading}

	out, err := pm.Handle(context.Background(), "sell 5 MSFT")
	require.NoError(t, err)
	assert.Equal(t, "trading reply", out)
	assert.Equal(t, []string{"sell 5 MSFT"}, trading.texts)
}

func TestPortfolioManagerTradeFailure(t *testing.T) {
	pm := &PortfolioManager{Trading: &fakeSender{err: errors.New("rejected")}}
	_, err := pm.Handle(context.Background(), "sell 5 MSFT")
	assert.ErrorContains(t, err, "trade execution: rejected")
}

func TestPortfolioManagerSummaryAndHelp(t *testing.T) {
	pm := &PortfolioManager{History: &fakeHistory{recs: []TradeRecord{{Side: "buy", Quantity: 1, Symbol: "AAPL", OrderType: "market", Status: "executed", CreatedAt: fixedNow()}}}}
	out, err := pm.Handle(context.Background(), "show my portfolio")
	require.NoError(t, err)
	assert.Contains(t, out, "Recent trades for default:")
	assert.Contains(t, out, "buy 1 AAPL")

	out, err = pm.Handle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, helpText, out)

	_, err = pm.Handle(context.Background(), "   ")
	assert.Error(t, err)
}

func TestPortfolioManagerEndToEnd(t *testing.T) {
	analysisModel := llmtest.New("AAPL looks fairly valued.")
	agent, err := NewMarketAnalysisAgent(MarketAnalysisConfig{Model: analysisModel})
	require.NoError(t, err)
	analysisSrv := httptest.NewServer(a2a.NewServer(a2a.AgentCard{Name: "market-analysis"}, a2a.AgentExecutor(agent), nil).Handler())
	defer analysisSrv.Close()

	log := &memRecorder{}
	tradeSrv := httptest.NewServer(a2a.NewServer(a2a.AgentCard{Name: "trade-execution"},
		&TradeExecutor{Model: llmtest.New(`{"side":"buy","symbol":"AAPL","quantity":10}`), Log: log}, nil).Handler())
	defer tradeSrv.Close()

	pm := &PortfolioManager{Analysis: a2a.NewClient(analysisSrv.URL), Trading: a2a.NewClient(tradeSrv.URL)}
	out, err := pm.Handle(context.Background(), "Buy 10 shares of AAPL")
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL looks fairly valued.")
	assert.Contains(t, out, "Executed BUY 10 AAPL at market")
	assert.Len(t, log.recs, 1)
}

func signed(t *testing.T, secret []byte, claims auth.Claims) string {
	t.Helper()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return tok
}

func TestPortfolioManagerTradesForTheCallingUser(t *testing.T) {
	secret := []byte("test-secret")
	verify := auth.Middleware(auth.HS256Verifier{Secret: secret})
	log := &memRecorder{}
	tradeSrv := httptest.NewServer(a2a.NewServer(a2a.AgentCard{Name: "trade-execution"},
		&TradeExecutor{Model: llmtest.New(`{"side":"buy","symbol":"AAPL","quantity":10}`), Log: log}, nil).Handler(verify))
	defer tradeSrv.Close()

	service := signed(t, secret, auth.Claims{TokenUse: "access", ClientID: "pm-client", Scope: ServiceScope,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "pm-client"}})
	history := &fakeHistory{}
	pm := &PortfolioManager{
		Trading: a2a.NewClient(tradeSrv.URL, a2a.WithToken(a2a.StaticToken(service))),
		History: history,
	}
	alice := auth.WithClaims(context.Background(), &auth.Claims{TokenUse: "access", ClientID: "web", Username: "alice"})
	task := &a2a.Task{ID: "t1", SessionID: "s1"}

	out, err := pm.Execute(alice, task, a2a.NewTextMessage(a2a.RoleUser, "Buy 10 shares of AAPL"))
	require.NoError(t, err)
	assert.Contains(t, out.Text(), "for account alice")
	require.Len(t, log.recs, 1)
	assert.Equal(t, "alice", log.recs[0].Account)

	_, err = pm.Execute(alice, task, a2a.NewTextMessage(a2a.RoleUser, "show my portfolio"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, history.queried)
}

func TestPortfolioManagerIgnoresAccountFromUserMetadata(t *testing.T) {
	trading := &fakeSender{name: "trading"}
	pm := &PortfolioManager{Trading: trading}
	alice := auth.WithClaims(context.Background(), &auth.Claims{TokenUse: "access", ClientID: "web", Username: "alice"})
	task := &a2a.Task{ID: "t1", SessionID: "s1", Metadata: map[string]any{MetaAccount: "victim"}}

	_, err := pm.Execute(alice, task, a2a.NewTextMessage(a2a.RoleUser, "sell 5 MSFT"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, trading.accounts)
}
