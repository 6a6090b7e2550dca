// Package pgvector stores knowledge-base chunks in PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/KamdynS/bedrock-agents/memory"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"
)

// DefaultTable is the table created by the embedded migrations.
const DefaultTable = "kb_documents"

//go:embed migrations/*.sql
var migrations embed.FS

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db    querier
	table string
}

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// RunMigrations applies the embedded goose migrations (extension, table, HNSW index).
func RunMigrations(ctx context.Context, dsn string) error {
	goose.SetBaseFS(migrations)

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func New(db querier, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: db, table: pgx.Identifier{table}.Sanitize()}
}

func (s *Store) AddDocument(ctx context.Context, doc memory.Document) error {
	if len(doc.Embedding) == 0 {
		return errors.New("empty embedding")
	}
	meta, err := json.Marshal(orEmpty(doc.Meta))
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, content, embedding, meta) VALUES ($1, $2, $3::vector, $4)
		 ON CONFLICT (id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding,
		 meta = excluded.meta, updated_at = now()`, s.table),
		doc.ID, doc.Content, vectorLiteral(doc.Embedding), meta)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", doc.ID, err)
	}
	return nil
}

// QuerySimilar ranks by cosine distance; Score is 1 - distance.
func (s *Store) QuerySimilar(ctx context.Context, queryEmbedding []float64, limit int) ([]memory.Document, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT id, content, meta, 1 - (embedding <=> $1::vector) AS score
		 FROM %s ORDER BY embedding <=> $1::vector ASC LIMIT $2`, s.table),
		vectorLiteral(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar: %w", err)
	}
	defer rows.Close()

	out := make([]memory.Document, 0, limit)
	for rows.Next() {
		var doc memory.Document
		var meta []byte
		if err := rows.Scan(&doc.ID, &doc.Content, &meta, &doc.Score); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &doc.Meta)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table), id)
	return err
}

func (s *Store) GetDocument(ctx context.Context, id string) (*memory.Document, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf("SELECT id, content, meta FROM %s WHERE id = $1", s.table), id)
	var doc memory.Document
	var meta []byte
	if err := row.Scan(&doc.ID, &doc.Content, &meta); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, memory.ErrNotFound)
		}
		return nil, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &doc.Meta)
	}
	return &doc, nil
}

// vectorLiteral renders v in pgvector's text input format, e.g. [0.1,0.2].
func vectorLiteral(v []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

var _ memory.VectorStore = (*Store)(nil)
