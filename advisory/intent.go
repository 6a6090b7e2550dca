// Package advisory implements the advisory-trading sample: a portfolio manager that classifies
// requests and delegates them over A2A to a market-analysis agent and a trade-execution agent.
package advisory

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/KamdynS/bedrock-agents/llm"
)

// Intent is what a portfolio request asks for.
type Intent string

const (
	IntentMarketAnalysis   Intent = "market_analysis"
	IntentTradeExecution   Intent = "trade_execution"
	IntentPortfolioSummary Intent = "portfolio_summary"
	IntentUnknown          Intent = "unknown"
)

// IntentClassification is the structured answer of the classifier model.
type IntentClassification struct {
	Intent     string   `json:"intent" enum:"market_analysis|trade_execution|portfolio_summary|unknown" description:"What the user wants"`
	Symbols    []string `json:"symbols,omitempty" description:"Ticker symbols mentioned, upper case"`
	Confidence float64  `json:"confidence" description:"Confidence between 0 and 1"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

func (c IntentClassification) Validate() error {
	switch Intent(c.Intent) {
	case IntentMarketAnalysis, IntentTradeExecution, IntentPortfolioSummary, IntentUnknown:
	default:
		return fmt.Errorf("unknown intent %q", c.Intent)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1, got %f", c.Confidence)
	}
	return nil
}

func (c IntentClassification) JSONSchema() map[string]interface{} { return llm.SchemaOf(c) }

const classifyPrompt = `You route requests for an investment advisory desk.
Classify the request as market_analysis (research, outlook, price questions),
trade_execution (buy or sell orders), portfolio_summary (holdings, past trades)
or unknown.`

// Classifier labels requests with the model and falls back to keywords when the model
// fails or answers with something unusable.
type Classifier struct {
	Model      llm.Client
	MaxRetries int
	Logger     *slog.Logger
}

// Classify never fails; errors degrade to keyword matching.
func (c *Classifier) Classify(ctx context.Context, query string) IntentClassification {
	if c.Model != nil {
		req := &llm.ChatRequest{
			SystemPrompt: classifyPrompt,
			Messages:     []llm.Message{{Role: "user", Content: query}},
		}
		out, err := llm.StructuredChat(ctx, c.Model, req, IntentClassification{}, c.MaxRetries)
		if err == nil {
			out.Data.Symbols = normalizeSymbols(out.Data.Symbols)
			return out.Data
		}
		c.logger().WarnContext(ctx, "intent classification failed, using keywords", "error", err)
	}
	return IntentClassification{
		Intent:     string(KeywordIntent(query)),
		Symbols:    ExtractSymbols(query),
		Confidence: 0.5,
		Reasoning:  "keyword match",
	}
}

func (c *Classifier) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

var (
	tradeWords     = []string{"buy", "sell", "purchase", "order", "execute", "short"}
	portfolioWords = []string{"portfolio", "holdings", "positions", "my trades", "trade history"}
	analysisWords  = []string{"analy", "outlook", "price", "research", "trend", "news", "should i", "recommend"}
)

// KeywordIntent classifies query without a model.
func KeywordIntent(query string) Intent {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, portfolioWords):
		return IntentPortfolioSummary
	case containsWord(q, tradeWords):
		return IntentTradeExecution
	case containsAny(q, analysisWords):
		return IntentMarketAnalysis
	}
	return IntentUnknown
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func containsWord(s string, words []string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return !('a' <= r && r <= 'z') }) {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}

var tickerRe = regexp.MustCompile(`\b[A-Z]{1,5}\b`)

var notTickers = map[string]bool{"I": true, "A": true, "AND": true, "OR": true, "THE": true, "BUY": true, "SELL": true, "OF": true, "MY": true, "ME": true, "TO": true}

// ExtractSymbols returns upper-case words that look like tickers, in order of appearance.
func ExtractSymbols(query string) []string {
	return normalizeSymbols(tickerRe.FindAllString(query, -1))
}

func normalizeSymbols(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || notTickers[s] || seen[s] || !symbolRe.MatchString(s) {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
