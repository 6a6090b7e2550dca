package support

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	core "github.com/KamdynS/bedrock-agents/agent/core"
	"github.com/KamdynS/bedrock-agents/llm"
	"github.com/KamdynS/bedrock-agents/logging"
	"github.com/KamdynS/bedrock-agents/memory"
	"github.com/KamdynS/bedrock-agents/rag"
	"github.com/KamdynS/bedrock-agents/tools"
)

//go:embed kb/*.md
var defaultKB embed.FS

// DefaultDocuments returns the bundled help-center articles.
func DefaultDocuments() (map[string]string, error) {
	return rag.LoadDir(defaultKB, "kb")
}

// Knowledge is the retrieval side of the agent.
type Knowledge struct {
	Store    memory.VectorStore
	Embedder rag.Embedder
	TopK     int
	MinScore float64
}

// Index chunks and embeds docs into the store.
func (k *Knowledge) Index(ctx context.Context, docs map[string]string) (int, error) {
	return rag.IndexDocuments(ctx, k.Store, k.Embedder, docs)
}

// Search returns numbered passages for question, or a note that nothing matched.
func (k *Knowledge) Search(ctx context.Context, question string) (string, error) {
	topK := k.TopK
	if topK <= 0 {
		topK = 3
	}
	docs, err := rag.Query(ctx, k.Store, k.Embedder, question, topK, k.MinScore)
	if err != nil {
		return "", fmt.Errorf("search knowledge base: %w", err)
	}
	if len(docs) == 0 {
		return "No relevant articles found.", nil
	}
	return strings.TrimSpace(rag.BuildContext(docs)), nil
}

type searchArgs struct {
	Query string `json:"query"`
}

type orderArgs struct {
	OrderID string `json:"order_id"`
}

type escalateArgs struct {
	Reason   string `json:"reason"`
	Priority string `json:"priority"`
	OrderID  string `json:"order_id"`
}

// Tools returns search_knowledge_base, lookup_order and escalate_to_human.
func Tools(k *Knowledge, orders OrderBook, esc Escalator) *tools.DefaultRegistry {
	search := tools.NewFunc("search_knowledge_base", "Search help-center articles about returns, shipping and warranty.",
		tools.ObjectSchema(map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "What the customer wants to know"},
		}, "query"),
		func(ctx context.Context, input string) (string, error) {
			args, err := tools.DecodeArgs[searchArgs](input)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(args.Query) == "" {
				return "", fmt.Errorf("query is required")
			}
			return k.Search(ctx, args.Query)
		})

	lookup := tools.NewFunc("lookup_order", "Look up the status, items and shipping of an order.",
		tools.ObjectSchema(map[string]interface{}{
			"order_id": map[string]interface{}{"type": "string", "description": "Order id such as ORD-1001"},
		}, "order_id"),
		func(ctx context.Context, input string) (string, error) {
			args, err := tools.DecodeArgs[orderArgs](input)
			if err != nil {
				return "", err
			}
			o, err := orders.Lookup(ctx, args.OrderID)
			if err != nil {
				return "", err
			}
			return FormatOrder(o), nil
		})

	escalate := tools.NewFunc("escalate_to_human", "Hand the conversation to a human agent.",
		tools.ObjectSchema(map[string]interface{}{
			"reason":   map[string]interface{}{"type": "string", "description": "Why a human is needed"},
			"priority": map[string]interface{}{"type": "string", "enum": []string{"low", "normal", "high"}},
			"order_id": map[string]interface{}{"type": "string"},
		}, "reason"),
		func(ctx context.Context, input string) (string, error) {
			args, err := tools.DecodeArgs[escalateArgs](input)
			if err != nil {
				return "", err
			}
			sid, _ := logging.SessionIDFromContext(ctx)
			e, err := esc.Escalate(ctx, Escalation{
				SessionID: sid,
				Reason:    args.Reason,
				Priority:  args.Priority,
				OrderID:   args.OrderID,
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Escalated as %s with %s priority. A support specialist will reply by email.", e.ID, e.Priority), nil
		})

	return tools.NewRegistry(search, lookup, escalate)
}

const agentPrompt = `You are a friendly customer-support agent for an online electronics store.
Answer policy questions only from search_knowledge_base results and cite the article.
Use lookup_order when the customer mentions an order. Never reveal another customer's data.
Call escalate_to_human when the customer asks for a person, is upset, or needs something the
articles do not cover, such as a refund exception.`

// AgentConfig wires the support agent.
type AgentConfig struct {
	Model     llm.Client
	Knowledge *Knowledge
	Orders    OrderBook
	Escalator Escalator
	Mem       memory.ConversationStore
	Logger    *slog.Logger
}

// NewAgent builds the support chat agent.
func NewAgent(cfg AgentConfig) *core.ChatAgent {
	return core.NewChatAgent(core.ChatConfig{
		Model:  cfg.Model,
		Tools:  Tools(cfg.Knowledge, cfg.Orders, cfg.Escalator),
		Mem:    cfg.Mem,
		Config: core.AgentConfig{MaxIterations: 6, SystemPrompt: agentPrompt},
		Middleware: []core.Middleware{&core.SimpleGuardrails{
			MaxInputChars: 4000,
			BlockFiltered: true,
		}},
		Processors: []core.Processor{core.TokenLimiter{MaxChars: 24000}},
		Logger:     cfg.Logger,
	})
}
