// Command market-analysis serves the market-analysis agent over A2A, as an HTTP
// service or as a Lambda behind API Gateway.
package main

import (
	"context"

	"github.com/KamdynS/bedrock-agents/a2a"
	"github.com/KamdynS/bedrock-agents/advisory"
	"github.com/KamdynS/bedrock-agents/app"
	"github.com/KamdynS/bedrock-agents/memory/sessions"
	"github.com/KamdynS/bedrock-agents/tools"
)

func main() {
	ctx, stop := app.SignalContext()
	defer stop()
	app.Fatal("market-analysis failed", run(ctx))
}

func run(ctx context.Context) error {
	a, err := app.Init(ctx, "market-analysis")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	model, err := a.Model()
	if err != nil {
		return err
	}
	stores, err := sessions.Open(ctx, a.Config.Sessions, "market-analysis")
	if err != nil {
		return err
	}
	defer stores.Close()

	var quotes tools.Tool
	if a.Config.Trades.QuoteAPIURL != "" {
		if quotes, err = advisory.NewQuoteTool(a.Config.Trades.QuoteAPIURL, a.Config.Trades.QuoteAPIKey); err != nil {
			return err
		}
	}
	agent, err := advisory.NewMarketAnalysisAgent(advisory.MarketAnalysisConfig{
		Model:  model,
		Quotes: quotes,
		Mem:    stores.Conversations,
		Logger: a.Logger,
	})
	if err != nil {
		return err
	}

	srv := a2a.NewServer(advisory.MarketAnalysisCard(a.Config.A2A.PublicURL), a2a.AgentExecutor(agent),
		a2a.KVTaskStore{Store: stores.State}, a2a.WithLogger(a.Logger))
	h, err := a.A2AHandler(srv)
	if err != nil {
		return err
	}
	return a.Serve(ctx, h)
}
