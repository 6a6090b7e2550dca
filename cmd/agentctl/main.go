package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/KamdynS/bedrock-agents/app"
	"github.com/KamdynS/bedrock-agents/llm"
	"github.com/KamdynS/bedrock-agents/wafquery"
	"github.com/KamdynS/bedrock-agents/workflow"
)

const version = "v0.2.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := app.SignalContext()
	defer stop()

	var err error
	switch command := os.Args[1]; command {
	case "tools":
		err = handleTools(ctx, os.Args[2:], os.Stdout)
	case "waf":
		err = handleWAF(ctx, os.Args[2:])
	case "a2a":
		err = handleA2A(ctx, os.Args[2:], os.Stdout)
	case "chat":
		err = handleChat(ctx, os.Args[2:])
	case "graph":
		err = handleGraph(os.Args[2:], os.Stdout)
	case "models":
		err = handleModels(os.Args[2:], os.Stdout)
	case "version":
		handleVersion()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("agentctl - CLI for the Bedrock agent samples %s\n\n", version)
	fmt.Println("Usage:")
	fmt.Println("  agentctl tools [--config mcp.json] [--strict]       List tools loaded from MCP servers")
	fmt.Println("  agentctl waf ask [--review] <question>               Answer a question from the WAF logs")
	fmt.Println("  agentctl waf approve|reject <run-id>                 Resolve a query awaiting review")
	fmt.Println("  agentctl a2a card <url>                              Show an agent card")
	fmt.Println("  agentctl a2a send [--session id] <url> <text>        Send a task to an A2A agent")
	fmt.Println("  agentctl chat [--url http://localhost:8080] [-m msg] Chat with an agent server")
	fmt.Println("  agentctl graph --name <workflow> [--host localhost:8080] [--dir TD|LR] [--conds]")
	fmt.Println("  agentctl models [--provider bedrock|openai|anthropic] List known models and prices")
	fmt.Println("  agentctl version                                     Show version information")
	fmt.Println("  agentctl help                                        Show this help message")
}

func handleVersion() {
	fmt.Printf("agentctl version %s\n", version)
	fmt.Printf("Bedrock agent samples CLI\n")
}

// builtinWorkflows registers the workflows shipped with this repo so graph works without
// a running server.
func builtinWorkflows() {
	if _, ok := workflow.Get("waf_query"); !ok {
		p := &wafquery.Pipeline{RequireApproval: true}
		_ = workflow.Register("waf_query", p.Build())
	}
}

func handleGraph(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	name := fs.String("name", "", "Workflow name")
	host := fs.String("host", "", "Host of a running server; empty renders the built-in workflows")
	dir := fs.String("dir", "", "Mermaid direction (TD, LR, BT, RL)")
	conds := fs.Bool("conds", false, "Show generic condition indicators on edges")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *host == "" {
		builtinWorkflows()
		if *name == "" {
			for _, n := range workflow.List() {
				fmt.Fprintln(out, n)
			}
			return nil
		}
		wf, ok := workflow.Get(*name)
		if !ok {
			return fmt.Errorf("unknown workflow: %s", *name)
		}
		var opts []workflow.MermaidOption
		if *dir != "" {
			opts = append(opts, workflow.WithDirection(*dir))
		}
		if *conds {
			opts = append(opts, workflow.WithConditionIndicators(true))
		}
		fmt.Fprint(out, wf.MermaidFlowchart(opts...))
		return nil
	}

	q := url.Values{}
	if *name != "" {
		q.Set("name", *name)
	}
	if *dir != "" {
		q.Set("dir", *dir)
	}
	if *conds {
		q.Set("conds", "1")
	}
	u := fmt.Sprintf("http://%s%s?%s", *host, workflow.DiagramPath, q.Encode())
	body, err := httpGet(context.Background(), u)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	fmt.Fprint(out, body)
	return nil
}

func handleModels(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	provider := fs.String("provider", "", "Only this provider")
	if err := fs.Parse(args); err != nil {
		return err
	}
	providers := []llm.Provider{llm.ProviderBedrock, llm.ProviderOpenAI, llm.ProviderAnthropic}
	if *provider != "" {
		providers = []llm.Provider{llm.Provider(*provider)}
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tMODEL\tCONTEXT\tINPUT $/1M\tOUTPUT $/1M\tTOOLS")
	n := 0
	for _, p := range providers {
		models := llm.GetModelsByProvider(p)
		sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
		for _, m := range models {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\t%t\n", m.Provider, m.Name, m.ContextSize, m.InputCost, m.OutputCost, m.Capabilities.ToolUse)
			n++
		}
	}
	if n == 0 {
		return fmt.Errorf("no models for provider %q", *provider)
	}
	return tw.Flush()
}

func httpGet(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return string(b), nil
}
