package pgvector

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/KamdynS/bedrock-agents/memory"
)

func TestVectorLiteral(t *testing.T) {
	if got := vectorLiteral([]float64{0.1, -2, 3.5}); got != "[0.1,-2,3.5]" {
		t.Fatalf("vectorLiteral = %q", got)
	}
	if got := vectorLiteral(nil); got != "[]" {
		t.Fatalf("empty = %q", got)
	}
}

func TestNewSanitizesTable(t *testing.T) {
	if s := New(nil, ""); s.table != `"kb_documents"` {
		t.Fatalf("default table = %s", s.table)
	}
	if s := New(nil, `docs"; drop`); s.table != `"docs""; drop"` {
		t.Fatalf("table not quoted: %s", s.table)
	}
}

func TestVectorContract_PgVector(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	if err := RunMigrations(ctx, dsn); err != nil {
		t.Skipf("migrate: %v", err)
	}
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Skipf("connect: %v", err)
	}
	defer pool.Close()

	s := New(pool, "")
	emb := make([]float64, 1024)
	emb[0] = 1
	if err := s.AddDocument(ctx, memory.Document{ID: "d1", Content: "hello", Embedding: emb, Meta: map[string]string{"source": "faq.md"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	doc, err := s.GetDocument(ctx, "d1")
	if err != nil || doc.Meta["source"] != "faq.md" {
		t.Fatalf("get: %v %+v", err, doc)
	}
	docs, err := s.QuerySimilar(ctx, emb, 3)
	if err != nil || len(docs) == 0 || docs[0].ID != "d1" {
		t.Fatalf("query: %v %+v", err, docs)
	}
	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetDocument(ctx, "d1"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
