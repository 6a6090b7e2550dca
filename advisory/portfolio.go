package advisory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/KamdynS/bedrock-agents/a2a"
	"github.com/KamdynS/bedrock-agents/agent/supervisor"
	obs "github.com/KamdynS/bedrock-agents/observability"
)

// TradeHistory reads past trades. *TradeLog implements it.
type TradeHistory interface {
	Recent(ctx context.Context, account string, limit int) ([]TradeRecord, error)
}

// TradeSender submits tasks to the trade-execution agent. *a2a.Client implements it.
type TradeSender interface {
	SendTask(ctx context.Context, p a2a.TaskSendParams) (*a2a.Task, error)
}

// PortfolioManager is the entry agent of the advisory desk.
type PortfolioManager struct {
	Classifier *Classifier
	// Analysis and Trading are the sibling agents, normally *a2a.Client.
	Analysis supervisor.TaskSender
	Trading  TradeSender
	// History answers portfolio summaries. Nil sends them to Analysis.
	History TradeHistory
	Logger  *slog.Logger
}

const helpText = "I can analyse markets (\"What is the outlook for AMZN?\"), execute trades " +
	"(\"Buy 10 shares of AAPL\") and summarise your recent trades (\"Show my portfolio\")."

// Handle answers query in a fresh session, for the user in ctx if there is one.
func (p *PortfolioManager) Handle(ctx context.Context, query string) (string, error) {
	return p.handle(ctx, uuid.NewString(), accountFor(ctx, nil), query)
}

// Execute implements a2a.Executor so the portfolio manager can itself be served over A2A.
func (p *PortfolioManager) Execute(ctx context.Context, task *a2a.Task, input a2a.Message) (a2a.Message, error) {
	out, err := p.handle(ctx, task.SessionID, accountFor(ctx, task), input.Text())
	if err != nil {
		return a2a.Message{}, err
	}
	return a2a.NewTextMessage(a2a.RoleAgent, out), nil
}

func (p *PortfolioManager) handle(ctx context.Context, sessionID, account, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("empty query")
	}
	span, ctx := obs.TracerImpl.StartSpan(ctx, "advisory.handle")
	defer span.End()
	span.SetAttribute(obs.AttrSessionID, sessionID)

	cls := p.classifier().Classify(ctx, query)
	span.SetAttribute("advisory.intent", cls.Intent)
	p.logger().InfoContext(ctx, "request classified", "intent", cls.Intent, "symbols", cls.Symbols, "confidence", cls.Confidence)

	var (
		out string
		err error
	)
	switch Intent(cls.Intent) {
	case IntentMarketAnalysis:
		out, err = p.analyse(ctx, sessionID, query, cls.Symbols)
	case IntentTradeExecution:
		out, err = p.trade(ctx, sessionID, account, query, cls.Symbols)
	case IntentPortfolioSummary:
		out, err = p.summary(ctx, sessionID, account, query)
	default:
		out = helpText
	}
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return "", err
	}
	return out, nil
}

// analyse asks for one analysis per symbol in parallel, or one for the whole query.
func (p *PortfolioManager) analyse(ctx context.Context, sessionID, query string, symbols []string) (string, error) {
	if p.Analysis == nil {
		return "", errors.New("market analysis agent not configured")
	}
	if len(symbols) <= 1 {
		out, err := p.Analysis.SendText(ctx, sessionID, query)
		if err != nil {
			return "", fmt.Errorf("market analysis: %w", err)
		}
		return out, nil
	}

	results := make([]string, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range symbols {
		g.Go(func() error {
			out, err := p.Analysis.SendText(gctx, sessionID, fmt.Sprintf("Focus on %s. %s", sym, query))
			if err != nil {
				return fmt.Errorf("market analysis for %s: %w", sym, err)
			}
			results[i] = "## " + sym + "\n" + out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return strings.Join(results, "\n\n"), nil
}

// trade fetches an analysis first and hands it to the trade-execution agent with the order,
// naming the account the trade is for.
func (p *PortfolioManager) trade(ctx context.Context, sessionID, account, query string, symbols []string) (string, error) {
	if p.Trading == nil {
		return "", errors.New("trade execution agent not configured")
	}
	var analysis string
	if p.Analysis != nil {
		prompt := "Briefly assess the following trade request before it is executed: " + query
		out, err := p.Analysis.SendText(ctx, sessionID, prompt)
		if err != nil {
			// the trade can still go ahead without commentary
			p.logger().WarnContext(ctx, "pre-trade analysis failed", "symbols", symbols, "error", err)
		} else {
			analysis = out
		}
	}

	order := query
	if analysis != "" {
		order = query + "\n\nMarket analysis:\n" + analysis
	}
	task, err := p.Trading.SendTask(ctx, a2a.TaskSendParams{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Message:   a2a.NewTextMessage(a2a.RoleUser, order),
		Metadata:  map[string]any{MetaAccount: account},
	})
	if err != nil {
		return "", fmt.Errorf("trade execution: %w", err)
	}
	confirmation, err := task.Reply()
	if err != nil {
		return "", fmt.Errorf("trade execution: %w", err)
	}
	if analysis == "" {
		return confirmation, nil
	}
	return "Market analysis:\n" + analysis + "\n\nTrade execution:\n" + confirmation, nil
}

func (p *PortfolioManager) summary(ctx context.Context, sessionID, account, query string) (string, error) {
	if p.History == nil {
		return p.analyse(ctx, sessionID, query, nil)
	}
	recs, err := p.History.Recent(ctx, account, 20)
	if err != nil {
		return "", fmt.Errorf("portfolio summary: %w", err)
	}
	return fmt.Sprintf("Recent trades for %s:\n%s", account, FormatTrades(recs)), nil
}

func (p *PortfolioManager) classifier() *Classifier {
	if p.Classifier != nil {
		return p.Classifier
	}
	return &Classifier{Logger: p.Logger}
}

func (p *PortfolioManager) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

var _ a2a.Executor = (*PortfolioManager)(nil)
