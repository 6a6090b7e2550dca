// Command weather-agent serves the weather chat agent over HTTP. With -mcp it takes its
// tools from the servers in the MCP config instead of calling the NWS API directly, and
// it always exposes its own tools on /mcp.
package main

import (
	"context"
	"flag"

	"github.com/KamdynS/bedrock-agents/app"
	"github.com/KamdynS/bedrock-agents/cache"
	"github.com/KamdynS/bedrock-agents/mcp"
	"github.com/KamdynS/bedrock-agents/memory/sessions"
	httpserver "github.com/KamdynS/bedrock-agents/server/http"
	"github.com/KamdynS/bedrock-agents/tools"
	"github.com/KamdynS/bedrock-agents/weather"
)

func main() {
	useMCP := flag.Bool("mcp", false, "load tools from the MCP config instead of the built-in NWS client")
	flag.Parse()

	ctx, stop := app.SignalContext()
	defer stop()
	app.Fatal("weather-agent failed", run(ctx, *useMCP))
}

func run(ctx context.Context, useMCP bool) error {
	a, err := app.Init(ctx, "weather-agent")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	model, err := a.Model()
	if err != nil {
		return err
	}
	stores, err := sessions.Open(ctx, a.Config.Sessions, "weather-agent")
	if err != nil {
		return err
	}
	defer stores.Close()

	forecasts, err := cache.New(16 << 20)
	if err != nil {
		return err
	}
	w := a.Config.Weather
	client := weather.NewClient(w.BaseURL, w.UserAgent, forecasts, w.CacheTTL)

	var reg tools.Registry = weather.Tools(client)
	if useMCP {
		cfg, err := mcp.LoadConfig(a.Config.MCP.ConfigPath)
		if err != nil {
			return err
		}
		remote := tools.NewRegistry()
		loader := &mcp.Loader{Strict: a.Config.MCP.Strict, Logger: a.Logger}
		loaded, err := loader.Load(ctx, cfg, remote)
		if err != nil {
			return err
		}
		defer func() { _ = loaded.Close() }()
		a.Logger.Info("mcp tools loaded", "servers", len(loaded.Sessions), "failed", len(loaded.Failed))
		reg = remote
	}

	agent := weather.NewAgent(weather.AgentConfig{
		Model:  model,
		Tools:  reg,
		Mem:    stores.Conversations,
		Logger: a.Logger,
	})
	hc, err := a.HTTPConfig()
	if err != nil {
		return err
	}
	srv := httpserver.NewServer(agent, hc)
	srv.Mount("/mcp", mcp.NewHTTPHandler(weather.NewMCPServer(client)))
	return a.Serve(ctx, srv.Handler())
}
