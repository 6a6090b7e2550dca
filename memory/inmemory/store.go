package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KamdynS/bedrock-agents/memory"
)

// Store implements an in-memory key/value store
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Store implements memory.Store interface
func (s *Store) Store(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Retrieve implements memory.Store interface
func (s *Store) Retrieve(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, exists := s.data[key]
	if !exists {
		return nil, fmt.Errorf("key %s: %w", key, memory.ErrNotFound)
	}
	return append([]byte(nil), value...), nil
}

// Delete implements memory.Store interface
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List implements memory.Store interface
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear implements memory.Store interface
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}

// ConversationStore implements memory.ConversationStore interface
type ConversationStore struct {
	mu       sync.RWMutex
	sessions map[string][]memory.Message
	max      int
}

// NewConversationStore creates a new in-memory conversation store. maxMessages > 0 caps each
// session to its newest messages.
func NewConversationStore(maxMessages ...int) *ConversationStore {
	cs := &ConversationStore{sessions: make(map[string][]memory.Message)}
	if len(maxMessages) > 0 {
		cs.max = maxMessages[0]
	}
	return cs
}

// AppendMessages implements memory.ConversationStore interface
func (cs *ConversationStore) AppendMessages(ctx context.Context, sessionID string, msgs ...memory.Message) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	now := time.Now().Unix()
	for _, m := range msgs {
		if m.Timestamp == 0 {
			m.Timestamp = now
		}
		cs.sessions[sessionID] = append(cs.sessions[sessionID], m)
	}
	cs.sessions[sessionID] = memory.TrimHistory(cs.sessions[sessionID], cs.max)
	return nil
}

// GetMessages implements memory.ConversationStore interface
func (cs *ConversationStore) GetMessages(ctx context.Context, sessionID string) ([]memory.Message, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	msgs := cs.sessions[sessionID]
	out := make([]memory.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// ClearSession implements memory.ConversationStore interface
func (cs *ConversationStore) ClearSession(ctx context.Context, sessionID string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.sessions, sessionID)
	return nil
}

var _ memory.Store = (*Store)(nil)
var _ memory.ConversationStore = (*ConversationStore)(nil)
