package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	core "github.com/KamdynS/bedrock-agents/agent/core"
	"github.com/KamdynS/bedrock-agents/llm"
	"github.com/KamdynS/bedrock-agents/memory"
	"github.com/KamdynS/bedrock-agents/tools"
	httptool "github.com/KamdynS/bedrock-agents/tools/http"
)

const marketPrompt = `You are a market analysis agent on an investment advisory desk.
Use get_quote for current prices before commenting on a symbol and calculator for
percentage moves and position sizes. Give a concise outlook with the key drivers and
risks. Do not place orders.`

type quoteArgs struct {
	Symbol string `json:"symbol"`
}

// NewQuoteTool returns get_quote, which calls the quote service at baseURL?symbol=XYZ.
// apiKey, when set, is sent as x-api-key.
func NewQuoteTool(baseURL, apiKey string) (tools.Tool, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid quote api url %q", baseURL)
	}
	opts := httptool.Options{AllowedHosts: []string{u.Hostname()}}
	if apiKey != "" {
		opts.Headers = map[string]string{"x-api-key": apiKey}
	}
	req := httptool.NewRequestTool(opts)
	schema := tools.ObjectSchema(map[string]interface{}{
		"symbol": map[string]interface{}{"type": "string", "description": "Ticker symbol, e.g. AMZN"},
	}, "symbol")
	return tools.NewFunc("get_quote", "Returns the latest quote for a ticker symbol.", schema,
		func(ctx context.Context, input string) (string, error) {
			args, err := tools.DecodeArgs[quoteArgs](input)
			if err != nil {
				return "", err
			}
			sym := strings.ToUpper(strings.TrimSpace(args.Symbol))
			if !symbolRe.MatchString(sym) {
				return "", fmt.Errorf("invalid symbol %q", args.Symbol)
			}
			q := u.Query()
			q.Set("symbol", sym)
			target := *u
			target.RawQuery = q.Encode()
			call, _ := json.Marshal(map[string]string{"method": "GET", "url": target.String()})
			return req.Execute(ctx, string(call))
		}), nil
}

// MarketAnalysisConfig wires the market-analysis agent.
type MarketAnalysisConfig struct {
	Model llm.Client
	// Quotes is normally NewQuoteTool; nil leaves the agent without live prices.
	Quotes tools.Tool
	Mem    memory.ConversationStore
	Logger *slog.Logger
}

// NewMarketAnalysisAgent builds the market-analysis agent loop.
func NewMarketAnalysisAgent(cfg MarketAnalysisConfig) (*core.ChatAgent, error) {
	reg := tools.NewRegistry(&tools.CalculatorTool{})
	if cfg.Quotes != nil {
		if err := reg.Register(cfg.Quotes); err != nil {
			return nil, err
		}
	}
	return core.NewChatAgent(core.ChatConfig{
		Model:      cfg.Model,
		Tools:      reg,
		Mem:        cfg.Mem,
		Config:     core.AgentConfig{MaxIterations: 6, SystemPrompt: marketPrompt},
		Processors: []core.Processor{core.TokenLimiter{MaxChars: 24000}},
		Logger:     cfg.Logger,
	}), nil
}
