package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key, session or document does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for agent state: suspended workflows, cached results, approvals.
type Store interface {
	// Store saves value under key, replacing any previous value
	Store(ctx context.Context, key string, value []byte) error

	// Retrieve gets data by key. Missing keys return ErrNotFound.
	Retrieve(ctx context.Context, key string) ([]byte, error)

	// Delete removes data by key
	Delete(ctx context.Context, key string) error

	// List returns all keys
	List(ctx context.Context) ([]string, error)

	// Clear removes all stored data
	Clear(ctx context.Context) error
}

// StoreJSON marshals v and saves it under key.
func StoreJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Store(ctx, key, b)
}

// RetrieveJSON loads key and unmarshals it into T.
func RetrieveJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	b, err := s.Retrieve(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// ConversationStore keeps the message history of agent sessions.
type ConversationStore interface {
	// AppendMessages adds messages to the end of a session
	AppendMessages(ctx context.Context, sessionID string, msgs ...Message) error

	// GetMessages returns a session's history, oldest first. Unknown sessions are empty, not an error.
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)

	// ClearSession removes all messages for a session
	ClearSession(ctx context.Context, sessionID string) error
}

// Message represents a conversation message
type Message struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp int64             `json:"timestamp"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// TrimHistory keeps the newest max messages. max <= 0 keeps everything.
func TrimHistory(msgs []Message, max int) []Message {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	return msgs[len(msgs)-max:]
}

// VectorStore defines the interface for vector-based retrieval (RAG)
type VectorStore interface {
	// AddDocument adds or replaces a document with its vector embedding
	AddDocument(ctx context.Context, doc Document) error

	// QuerySimilar finds the documents closest to the query embedding, best first
	QuerySimilar(ctx context.Context, queryEmbedding []float64, limit int) ([]Document, error)

	// DeleteDocument removes a document by ID
	DeleteDocument(ctx context.Context, id string) error

	// GetDocument retrieves a document by ID
	GetDocument(ctx context.Context, id string) (*Document, error)
}

// Document represents a stored document with its metadata
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Embedding []float64         `json:"embedding,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Score     float64           `json:"score,omitempty"` // similarity for query results, higher is closer
}
