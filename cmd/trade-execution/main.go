// Command trade-execution serves the trade-execution agent over A2A. Executed trades go
// to the DynamoDB trade log and, when NATS_URL is set, to a JetStream subject.
package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/KamdynS/bedrock-agents/a2a"
	"github.com/KamdynS/bedrock-agents/advisory"
	"github.com/KamdynS/bedrock-agents/app"
	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/memory/sessions"
)

func main() {
	ctx, stop := app.SignalContext()
	defer stop()
	app.Fatal("trade-execution failed", run(ctx))
}

func run(ctx context.Context) error {
	a, err := app.Init(ctx, "trade-execution")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()
	if err := config.Require("trades.table", a.Config.Trades.Table); err != nil {
		return err
	}

	model, err := a.Model()
	if err != nil {
		return err
	}
	stores, err := sessions.Open(ctx, a.Config.Sessions, "trade-execution")
	if err != nil {
		return err
	}
	defer stores.Close()

	exec := &advisory.TradeExecutor{
		Model:      model,
		Log:        advisory.NewTradeLog(dynamodb.NewFromConfig(a.AWS), a.Config.Trades.Table),
		MaxRetries: 2,
		Logger:     a.Logger,
	}
	if a.Config.Trades.NATSURL != "" {
		pub, err := advisory.ConnectNATS(ctx, a.Config.Trades.NATSURL, a.Config.Trades.Subject)
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		exec.Events = pub
	}

	srv := a2a.NewServer(advisory.TradeExecutionCard(a.Config.A2A.PublicURL), exec,
		a2a.KVTaskStore{Store: stores.State}, a2a.WithLogger(a.Logger))
	h, err := a.A2AHandler(srv)
	if err != nil {
		return err
	}
	return a.Serve(ctx, h)
}
