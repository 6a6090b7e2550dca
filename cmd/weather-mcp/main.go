// Command weather-mcp exposes get_alerts and get_forecast as an MCP server on stdio, or
// on streamable HTTP with -http.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"

	"github.com/KamdynS/bedrock-agents/app"
	"github.com/KamdynS/bedrock-agents/cache"
	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/mcp"
	"github.com/KamdynS/bedrock-agents/weather"
)

func main() {
	addr := flag.String("http", "", "serve streamable HTTP on this address instead of stdio")
	flag.Parse()

	ctx, stop := app.SignalContext()
	defer stop()
	app.Fatal("weather-mcp failed", run(ctx, *addr))
}

func run(ctx context.Context, addr string) error {
	cfg, awsCfg, err := config.LoadWithAWS(ctx)
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	cfg.Logging.Output = "stderr"
	a, err := app.Start(ctx, "weather-mcp", cfg, awsCfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	forecasts, err := cache.New(16 << 20)
	if err != nil {
		return err
	}
	w := cfg.Weather
	s := weather.NewMCPServer(weather.NewClient(w.BaseURL, w.UserAgent, forecasts, w.CacheTTL))
	if addr == "" {
		return mcp.ServeStdio(s)
	}

	hs := &http.Server{Addr: addr, Handler: mcp.NewHTTPHandler(s), ReadHeaderTimeout: cfg.Server.ReadTimeout}
	go func() {
		<-ctx.Done()
		_ = hs.Shutdown(context.Background())
	}()
	a.Logger.Info("mcp http server starting", "addr", addr)
	if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
