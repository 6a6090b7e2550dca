// Package redis backs memory stores with Redis: plain keys for Store, one list per session for
// ConversationStore.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KamdynS/bedrock-agents/memory"
	rds "github.com/redis/go-redis/v9"
)

// Open parses a redis:// URL and pings the server.
func Open(ctx context.Context, url string) (*rds.Client, error) {
	opts, err := rds.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := rds.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type Store struct {
	client rds.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewStore(client rds.UniversalClient, ttl time.Duration, prefix string) *Store {
	return &Store{client: client, ttl: ttl, prefix: prefix}
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *Store) Store(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

func (s *Store) Retrieve(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, rds.Nil) {
			return nil, fmt.Errorf("key %s: %w", key, memory.ErrNotFound)
		}
		return nil, err
	}
	return val, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// List returns keys without the store prefix.
func (s *Store) List(ctx context.Context) ([]string, error) {
	raw, err := scan(ctx, s.client, s.key("*"))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s.prefix != "" {
			k = strings.TrimPrefix(k, s.prefix+":")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Clear(ctx context.Context) error {
	keys, err := scan(ctx, s.client, s.key("*"))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

var _ memory.Store = (*Store)(nil)

// ConversationStore keeps each session as a Redis list of JSON messages.
type ConversationStore struct {
	client rds.UniversalClient
	prefix string
	ttl    time.Duration
	max    int
}

// NewConversationStore creates a store whose sessions expire ttl after their last append and
// keep at most maxMessages entries (0 = unbounded).
func NewConversationStore(client rds.UniversalClient, prefix string, ttl time.Duration, maxMessages int) *ConversationStore {
	return &ConversationStore{client: client, prefix: prefix, ttl: ttl, max: maxMessages}
}

func (cs *ConversationStore) convKey(sessionID string) string {
	p := cs.prefix
	if p != "" {
		p += ":"
	}
	return fmt.Sprintf("%sconversation:%s", p, sessionID)
}

func (cs *ConversationStore) AppendMessages(ctx context.Context, sessionID string, msgs ...memory.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	key := cs.convKey(sessionID)
	now := time.Now().Unix()
	vals := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp == 0 {
			m.Timestamp = now
		}
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		vals = append(vals, b)
	}
	pipe := cs.client.TxPipeline()
	pipe.RPush(ctx, key, vals...)
	if cs.max > 0 {
		pipe.LTrim(ctx, key, int64(-cs.max), -1)
	}
	if cs.ttl > 0 {
		pipe.Expire(ctx, key, cs.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (cs *ConversationStore) GetMessages(ctx context.Context, sessionID string) ([]memory.Message, error) {
	vals, err := cs.client.LRange(ctx, cs.convKey(sessionID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, rds.Nil) {
			return []memory.Message{}, nil
		}
		return nil, err
	}
	msgs := make([]memory.Message, 0, len(vals))
	for _, v := range vals {
		var m memory.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (cs *ConversationStore) ClearSession(ctx context.Context, sessionID string) error {
	return cs.client.Del(ctx, cs.convKey(sessionID)).Err()
}

var _ memory.ConversationStore = (*ConversationStore)(nil)

func scan(ctx context.Context, client rds.UniversalClient, pattern string) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		ks, cur, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, ks...)
		if cur == 0 {
			return keys, nil
		}
		cursor = cur
	}
}
