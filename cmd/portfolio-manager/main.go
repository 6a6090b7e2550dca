// Command portfolio-manager serves the entry agent of the advisory desk. It classifies each
// request and forwards it to the market-analysis or trade-execution agent over A2A.
package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/KamdynS/bedrock-agents/a2a"
	"github.com/KamdynS/bedrock-agents/advisory"
	"github.com/KamdynS/bedrock-agents/app"
	"github.com/KamdynS/bedrock-agents/cache"
	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/memory/sessions"
)

func main() {
	ctx, stop := app.SignalContext()
	defer stop()
	app.Fatal("portfolio-manager failed", run(ctx))
}

func run(ctx context.Context) error {
	a, err := app.Init(ctx, "portfolio-manager")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()
	c := a.Config.A2A
	if err := config.Require(
		"a2a.market_analysis_url", c.MarketAnalysisURL,
		"a2a.trade_execution_url", c.TradeExecutionURL,
	); err != nil {
		return err
	}

	model, err := a.Model()
	if err != nil {
		return err
	}
	stores, err := sessions.Open(ctx, a.Config.Sessions, "portfolio-manager")
	if err != nil {
		return err
	}
	defer stores.Close()
	cards, err := cache.New(8 << 20)
	if err != nil {
		return err
	}

	pm := &advisory.PortfolioManager{
		Classifier: &advisory.Classifier{Model: model, MaxRetries: 1, Logger: a.Logger},
		Analysis:   a.A2AClient("market-analysis", c.MarketAnalysisURL, cards),
		Trading:    a.A2AClient("trade-execution", c.TradeExecutionURL, cards),
		Logger:     a.Logger,
	}
	if a.Config.Trades.Table != "" {
		pm.History = advisory.NewTradeLog(dynamodb.NewFromConfig(a.AWS), a.Config.Trades.Table)
	}

	srv := a2a.NewServer(advisory.PortfolioManagerCard(c.PublicURL), pm,
		a2a.KVTaskStore{Store: stores.State}, a2a.WithLogger(a.Logger))
	h, err := a.A2AHandler(srv)
	if err != nil {
		return err
	}
	return a.Serve(ctx, h)
}
