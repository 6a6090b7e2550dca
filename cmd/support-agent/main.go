// Command support-agent serves the customer-support RAG agent over HTTP. The knowledge base
// lives in pgvector when DATABASE_URL is set and in process memory otherwise.
package main

import (
	"context"
	"os"
	"time"

	"github.com/KamdynS/bedrock-agents/app"
	"github.com/KamdynS/bedrock-agents/memory"
	"github.com/KamdynS/bedrock-agents/memory/inmemory"
	"github.com/KamdynS/bedrock-agents/memory/sessions"
	"github.com/KamdynS/bedrock-agents/memory/vector/pgvector"
	"github.com/KamdynS/bedrock-agents/rag"
	httpserver "github.com/KamdynS/bedrock-agents/server/http"
	"github.com/KamdynS/bedrock-agents/support"
)

func main() {
	ctx, stop := app.SignalContext()
	defer stop()
	app.Fatal("support-agent failed", run(ctx))
}

func run(ctx context.Context) error {
	a, err := app.Init(ctx, "support-agent")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	model, err := a.Model()
	if err != nil {
		return err
	}
	emb, err := a.Embedder()
	if err != nil {
		return err
	}
	stores, err := sessions.Open(ctx, a.Config.Sessions, "support-agent")
	if err != nil {
		return err
	}
	defer stores.Close()

	kc := a.Config.Knowledge
	var vs memory.VectorStore = inmemory.NewVectorStore()
	if kc.PostgresDSN != "" {
		if err := pgvector.RunMigrations(ctx, kc.PostgresDSN); err != nil {
			return err
		}
		pool, err := pgvector.NewPool(ctx, kc.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		vs = pgvector.New(pool, kc.Table)
	}

	docs, err := support.DefaultDocuments()
	if err != nil {
		return err
	}
	if kc.SeedDir != "" {
		if docs, err = rag.LoadDir(os.DirFS(kc.SeedDir), "."); err != nil {
			return err
		}
	}
	kb := &support.Knowledge{Store: vs, Embedder: emb, TopK: 3, MinScore: 0.3}
	n, err := kb.Index(ctx, docs)
	if err != nil {
		return err
	}
	a.Logger.Info("knowledge base indexed", "documents", len(docs), "chunks", n)

	orders := support.StoreOrderBook{Store: stores.State}
	for _, o := range support.SampleOrders(time.Now()) {
		if err := orders.Put(ctx, o); err != nil {
			return err
		}
	}

	agent := support.NewAgent(support.AgentConfig{
		Model:     model,
		Knowledge: kb,
		Orders:    orders,
		Escalator: &support.StoreEscalator{Store: stores.State, Logger: a.Logger},
		Mem:       stores.Conversations,
		Logger:    a.Logger,
	})
	hc, err := a.HTTPConfig()
	if err != nil {
		return err
	}
	return a.Serve(ctx, httpserver.NewServer(agent, hc).Handler())
}
