package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/KamdynS/bedrock-agents/app"
	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/mcp"
	"github.com/KamdynS/bedrock-agents/memory/sessions"
	"github.com/KamdynS/bedrock-agents/tools"
	"github.com/KamdynS/bedrock-agents/wafquery"
	"github.com/KamdynS/bedrock-agents/workflow"
)

func handleTools(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tools", flag.ContinueOnError)
	path := fs.String("config", "mcp.json", "MCP server list")
	strict := fs.Bool("strict", false, "Fail when any server fails")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := mcp.LoadConfig(*path)
	if err != nil {
		return err
	}
	reg := tools.NewRegistry()
	loaded, err := (&mcp.Loader{Strict: *strict}).Load(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer func() { _ = loaded.Close() }()
	printTools(out, reg, loaded)
	return nil
}

func printTools(out io.Writer, reg tools.Registry, loaded *mcp.Loaded) {
	for _, server := range sortedServers(loaded.Tools) {
		fmt.Fprintf(out, "%s:\n", server)
		for _, name := range loaded.Tools[server] {
			desc := ""
			if t, ok := reg.Get(name); ok {
				desc = firstLine(t.Description())
			}
			fmt.Fprintf(out, "  %-32s %s\n", name, desc)
		}
	}
	for server, err := range loaded.Failed {
		fmt.Fprintf(out, "%s: failed: %v\n", server, err)
	}
}

func handleWAF(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: agentctl waf ask|approve|reject ...")
	}
	sub := args[0]
	fs := flag.NewFlagSet("waf "+sub, flag.ContinueOnError)
	needReview := fs.Bool("review", false, "Show the SQL and ask before running it")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	rest := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if rest == "" {
		return fmt.Errorf("waf %s needs an argument", sub)
	}

	cfg, awsCfg, err := config.LoadWithAWS(ctx)
	if err != nil {
		return err
	}
	cfg.Logging.Output = "stderr"
	a, err := app.Start(ctx, "agentctl", cfg, awsCfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()
	p, closeFn, err := wafPipeline(ctx, a, *needReview)
	if err != nil {
		return err
	}
	defer closeFn()

	var ans *wafquery.Answer
	switch sub {
	case "ask":
		ans, err = p.Ask(ctx, rest)
		if err == nil && ans.Pending {
			ans, err = review(ctx, p, ans, os.Stdin, os.Stdout)
		}
	case "approve":
		ans, err = p.Approve(ctx, rest)
	case "reject":
		if err = p.Reject(ctx, rest); err == nil {
			fmt.Println("rejected", rest)
		}
		return err
	default:
		return fmt.Errorf("unknown waf command %q", sub)
	}
	if err != nil || ans == nil {
		return err
	}
	printAnswer(os.Stdout, ans)
	return nil
}

// wafPipeline queries ClickHouse directly when a DSN is configured and through the
// configured MCP server otherwise. Suspended runs live in the session state store so a
// shared backend lets approve run in another process.
func wafPipeline(ctx context.Context, a *app.App, requireApproval bool) (*wafquery.Pipeline, func(), error) {
	w := a.Config.WAF
	model, err := a.Model()
	if err != nil {
		return nil, nil, err
	}
	stores, err := sessions.Open(ctx, a.Config.Sessions, "agentctl")
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{stores.Close}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var exec wafquery.Executor
	if w.ClickHouseDSN != "" {
		db, err := wafquery.OpenClickHouse(ctx, w.ClickHouseDSN)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, db.Close)
		exec = &wafquery.DBExecutor{DB: db, Timeout: w.QueryTimeout, MaxRows: w.MaxRows}
	} else {
		cfg, err := mcp.LoadConfig(a.Config.MCP.ConfigPath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sc, ok := cfg.Servers[w.MCPServer]
		if !ok {
			closeAll()
			return nil, nil, fmt.Errorf("mcp server %q not in %s and CLICKHOUSE_DSN is unset", w.MCPServer, a.Config.MCP.ConfigPath)
		}
		sess, err := mcp.Connect(ctx, w.MCPServer, sc)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, sess.Close)
		exec = &wafquery.MCPExecutor{Client: sess}
	}

	return &wafquery.Pipeline{
		Model:           model,
		Exec:            exec,
		Table:           w.Table,
		MaxRows:         w.MaxRows,
		RequireApproval: requireApproval,
		Suspender:       workflow.StoreSuspender{Store: stores.State},
		MaxRetries:      a.Config.Retry.Attempts,
		Logger:          a.Logger,
	}, closeAll, nil
}

// review shows the pending SQL and approves or rejects it. Without a terminal it leaves the
// run pending and prints its id.
func review(ctx context.Context, p *wafquery.Pipeline, ans *wafquery.Answer, in *os.File, out io.Writer) (*wafquery.Answer, error) {
	fmt.Fprintf(out, "SQL:\n%s\n\n", ans.SQL)
	if !term.IsTerminal(int(in.Fd())) {
		fmt.Fprintf(out, "pending run %s; resolve with: agentctl waf approve|reject %s\n", ans.RunID, ans.RunID)
		return nil, nil
	}
	ok, err := confirm(in, out, "Run this query?")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.Reject(ctx, ans.RunID)
	}
	return p.Approve(ctx, ans.RunID)
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func printAnswer(out io.Writer, ans *wafquery.Answer) {
	if ans.SQL != "" {
		fmt.Fprintf(out, "SQL: %s\n\n", ans.SQL)
	}
	fmt.Fprintln(out, ans.Text)
}

func sortedServers(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	return s
}
