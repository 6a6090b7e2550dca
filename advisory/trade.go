package advisory

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KamdynS/bedrock-agents/a2a"
	"github.com/KamdynS/bedrock-agents/auth"
	"github.com/KamdynS/bedrock-agents/llm"
)

var symbolRe = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z]{1,2})?$`)

// Order is a trade instruction extracted from free text.
type Order struct {
	Side       string  `json:"side,omitempty" enum:"buy|sell" description:"buy or sell"`
	Symbol     string  `json:"symbol,omitempty" description:"Ticker symbol, upper case"`
	Quantity   float64 `json:"quantity,omitempty" description:"Number of shares, positive"`
	OrderType  string  `json:"order_type,omitempty" enum:"market|limit" description:"Defaults to market"`
	LimitPrice float64 `json:"limit_price,omitempty" description:"Required for limit orders"`
	// Clarification is set instead of the order fields when the request is incomplete.
	Clarification string `json:"clarification,omitempty" description:"Question to ask when side, symbol or quantity is missing"`
}

func (o Order) Validate() error {
	if o.Clarification != "" {
		return nil
	}
	switch o.Side {
	case "buy", "sell":
	default:
		return fmt.Errorf("side must be buy or sell, got %q", o.Side)
	}
	if !symbolRe.MatchString(strings.ToUpper(o.Symbol)) {
		return fmt.Errorf("invalid symbol %q", o.Symbol)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", o.Quantity)
	}
	switch o.OrderType {
	case "", "market":
	case "limit":
		if o.LimitPrice <= 0 {
			return fmt.Errorf("limit order needs a positive limit_price")
		}
	default:
		return fmt.Errorf("order_type must be market or limit, got %q", o.OrderType)
	}
	return nil
}

func (o Order) JSONSchema() map[string]interface{} { return llm.SchemaOf(o) }

const orderPrompt = `Extract the trade order from the request. Symbols are upper case tickers.
If the side, symbol or quantity is missing or ambiguous, leave the order fields empty and
set clarification to a short question for the user.`

// TradeRecorder persists executed trades. *TradeLog implements it.
type TradeRecorder interface {
	Put(ctx context.Context, rec TradeRecord) error
}

// TradeExecutor is the trade-execution agent. It does not route orders to a broker: a
// validated order is recorded as executed and announced on the event stream.
type TradeExecutor struct {
	Model      llm.Client
	Log        TradeRecorder
	Events     EventPublisher
	MaxRetries int
	Logger     *slog.Logger
	now        func() time.Time
}

// Execute implements a2a.Executor.
func (e *TradeExecutor) Execute(ctx context.Context, task *a2a.Task, input a2a.Message) (a2a.Message, error) {
	order, err := e.ParseOrder(ctx, orderText(task, input))
	if err != nil {
		return a2a.Message{}, err
	}
	if order.Clarification != "" {
		return a2a.Message{}, a2a.InputRequired(order.Clarification)
	}

	rec := e.record(ctx, task, order)
	if err := e.Log.Put(ctx, rec); err != nil {
		return a2a.Message{}, fmt.Errorf("record trade: %w", err)
	}
	if e.Events != nil {
		if err := e.Events.PublishTrade(ctx, rec); err != nil {
			e.logger().WarnContext(ctx, "trade event not published", "trade_id", rec.TradeID, "error", err)
		}
	}
	e.logger().InfoContext(ctx, "trade executed", "trade_id", rec.TradeID, "account", rec.Account,
		"symbol", rec.Symbol, "side", rec.Side, "quantity", rec.Quantity)
	return a2a.NewTextMessage(a2a.RoleAgent, Confirmation(rec)), nil
}

// ParseOrder asks the model for a structured order.
func (e *TradeExecutor) ParseOrder(ctx context.Context, text string) (Order, error) {
	req := &llm.ChatRequest{
		SystemPrompt: orderPrompt,
		Messages:     []llm.Message{{Role: "user", Content: text}},
	}
	out, err := llm.StructuredChat(ctx, e.Model, req, Order{}, e.MaxRetries)
	if err != nil {
		return Order{}, fmt.Errorf("parse order: %w", err)
	}
	o := out.Data
	o.Symbol = strings.ToUpper(o.Symbol)
	if o.OrderType == "" && o.Clarification == "" {
		o.OrderType = "market"
	}
	return o, nil
}

// orderText folds earlier turns of the task in, so an answer to a clarifying question is
// parsed together with the original request.
func orderText(task *a2a.Task, input a2a.Message) string {
	if task == nil || len(task.History) <= 1 {
		return input.Text()
	}
	var b strings.Builder
	for _, m := range task.History {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Text())
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *TradeExecutor) record(ctx context.Context, task *a2a.Task, o Order) TradeRecord {
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	return TradeRecord{
		Account:    accountFor(ctx, task),
		TradeID:    uuid.NewString(),
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity,
		OrderType:  o.OrderType,
		LimitPrice: o.LimitPrice,
		Status:     "executed",
		SessionID:  task.SessionID,
		CreatedAt:  now().UTC(),
	}
}

func (e *TradeExecutor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// MetaAccount is the task metadata key naming the trading account.
const MetaAccount = "account"

// DefaultAccount is used when neither the task nor the caller's token names an account.
const DefaultAccount = "default"

// ServiceScope is the OAuth scope the advisory agents request for sibling calls. Only
// callers holding it may act on another account.
const ServiceScope = "advisory/invoke"

// accountFor picks the account a task acts on. A verified user always acts on their own
// account. A service caller with ServiceScope names the account of the user it serves in
// the task metadata. Without claims (auth disabled) the metadata is taken as given.
func accountFor(ctx context.Context, task *a2a.Task) string {
	var named string
	if task != nil {
		named, _ = task.Metadata[MetaAccount].(string)
	}
	c, ok := auth.ClaimsFromContext(ctx)
	switch {
	case !ok:
	case c.IsService() && c.HasScope(ServiceScope):
		if named == "" {
			named = c.User()
		}
	default:
		named = c.User()
	}
	if named == "" {
		return DefaultAccount
	}
	return named
}

// Confirmation is the text returned to the caller for an executed trade.
func Confirmation(rec TradeRecord) string {
	price := "at market"
	if rec.OrderType == "limit" {
		price = "limit " + strconv.FormatFloat(rec.LimitPrice, 'f', 2, 64)
	}
	return fmt.Sprintf("Executed %s %s %s %s for account %s. Trade id %s.",
		strings.ToUpper(rec.Side), strconv.FormatFloat(rec.Quantity, 'f', -1, 64), rec.Symbol, price, rec.Account, rec.TradeID)
}

var _ a2a.Executor = (*TradeExecutor)(nil)
