// Command waf-mcp exposes the WAF log table in ClickHouse as an MCP server with
// list_tables, describe_table and run_select_query. It serves stdio by default. With
// -http it serves streamable HTTP on /mcp, plus the query workflow diagram. With -ask it
// also serves ask_waf_logs, which answers questions end to end with the configured model.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KamdynS/bedrock-agents/app"
	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/mcp"
	"github.com/KamdynS/bedrock-agents/wafquery"
	"github.com/KamdynS/bedrock-agents/workflow"
)

const version = "1.0.0"

func main() {
	addr := flag.String("http", "", "serve streamable HTTP on this address instead of stdio")
	ask := flag.Bool("ask", false, "add ask_waf_logs backed by the configured model")
	flag.Parse()

	ctx, stop := app.SignalContext()
	defer stop()
	app.Fatal("waf-mcp failed", run(ctx, *addr, *ask))
}

func run(ctx context.Context, addr string, ask bool) error {
	cfg, awsCfg, err := config.LoadWithAWS(ctx)
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	cfg.Logging.Output = "stderr"
	a, err := app.Start(ctx, "waf-mcp", cfg, awsCfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	w := cfg.WAF
	if err := config.Require("waf.clickhouse_dsn", w.ClickHouseDSN); err != nil {
		return err
	}
	db, err := wafquery.OpenClickHouse(ctx, w.ClickHouseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	exec := &wafquery.DBExecutor{DB: db, Timeout: w.QueryTimeout, MaxRows: w.MaxRows}
	p := &wafquery.Pipeline{Exec: exec, Table: w.Table, MaxRows: w.MaxRows, MaxRetries: cfg.Retry.Attempts, Logger: a.Logger}
	opts := wafquery.ServerOptions{Table: w.Table, MaxRows: w.MaxRows, Version: version}
	if ask {
		if p.Model, err = a.Model(); err != nil {
			return err
		}
		opts.Ask = p
	}
	s := wafquery.NewMCPServer(exec, opts)
	if addr == "" {
		return mcp.ServeStdio(s)
	}

	if err := workflow.Register("waf_query", p.Build()); err != nil {
		return err
	}
	r := chi.NewRouter()
	r.Mount("/mcp", mcp.NewHTTPHandler(s))
	r.Method(http.MethodGet, workflow.DiagramPath, workflow.DiagramHandler())

	hs := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: cfg.Server.ReadTimeout}
	go func() {
		<-ctx.Done()
		_ = hs.Shutdown(context.Background())
	}()
	a.Logger.Info("mcp http server starting", "addr", addr, "table", w.Table, "ask", ask)
	if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
