// Package s3 keeps agent sessions and state as objects in an S3-compatible bucket: one JSON
// document per session under "<prefix>sessions/", one object per key under "<prefix>kv/".
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KamdynS/bedrock-agents/memory"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config locates the bucket. Empty keys fall back to the AWS environment and instance role.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// objects is the slice of the bucket API the stores use.
type objects interface {
	put(ctx context.Context, key string, body []byte) error
	get(ctx context.Context, key string) ([]byte, error)
	remove(ctx context.Context, key string) error
	list(ctx context.Context, prefix string) ([]string, error)
}

// Open connects to the bucket, creating it when missing.
func Open(ctx context.Context, cfg Config) (*Bucket, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	creds := credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	if cfg.AccessKey == "" {
		creds = credentials.NewChainCredentials([]credentials.Provider{&credentials.EnvAWS{}, &credentials.IAM{}})
	}
	cli, err := minio.New(endpoint, &minio.Options{Creds: creds, Secure: cfg.UseSSL, Region: cfg.Region})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Bucket{objects: &minioObjects{client: cli, bucket: cfg.Bucket}, prefix: cfg.Prefix}, nil
}

// Bucket hands out stores sharing one client.
type Bucket struct {
	objects objects
	prefix  string
}

// Sessions returns a ConversationStore keeping at most maxMessages per session (0 = unbounded).
func (b *Bucket) Sessions(maxMessages int) *ConversationStore {
	return &ConversationStore{objects: b.objects, prefix: b.prefix + "sessions/", max: maxMessages}
}

// KV returns a Store.
func (b *Bucket) KV() *Store {
	return &Store{objects: b.objects, prefix: b.prefix + "kv/"}
}

// ConversationStore rewrites the whole session document on every append. Appends within one
// process are serialized; concurrent writers in different processes last-write-win.
type ConversationStore struct {
	objects objects
	prefix  string
	max     int
	mu      sync.Mutex
}

type sessionDoc struct {
	SessionID string           `json:"session_id"`
	UpdatedAt time.Time        `json:"updated_at"`
	Messages  []memory.Message `json:"messages"`
}

func (cs *ConversationStore) key(sessionID string) string { return cs.prefix + sessionID + ".json" }

func (cs *ConversationStore) load(ctx context.Context, sessionID string) (*sessionDoc, error) {
	body, err := cs.objects.get(ctx, cs.key(sessionID))
	if errors.Is(err, memory.ErrNotFound) {
		return &sessionDoc{SessionID: sessionID}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc sessionDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return &doc, nil
}

func (cs *ConversationStore) AppendMessages(ctx context.Context, sessionID string, msgs ...memory.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	doc, err := cs.load(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, m := range msgs {
		if m.Timestamp == 0 {
			m.Timestamp = now.Unix()
		}
		doc.Messages = append(doc.Messages, m)
	}
	doc.Messages = memory.TrimHistory(doc.Messages, cs.max)
	doc.UpdatedAt = now.UTC()
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return cs.objects.put(ctx, cs.key(sessionID), body)
}

func (cs *ConversationStore) GetMessages(ctx context.Context, sessionID string) ([]memory.Message, error) {
	doc, err := cs.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if doc.Messages == nil {
		return []memory.Message{}, nil
	}
	return doc.Messages, nil
}

func (cs *ConversationStore) ClearSession(ctx context.Context, sessionID string) error {
	return cs.objects.remove(ctx, cs.key(sessionID))
}

// Store keeps each key as its own object.
type Store struct {
	objects objects
	prefix  string
}

func (s *Store) Store(ctx context.Context, key string, value []byte) error {
	return s.objects.put(ctx, s.prefix+key, value)
}

func (s *Store) Retrieve(ctx context.Context, key string) ([]byte, error) {
	b, err := s.objects.get(ctx, s.prefix+key)
	if errors.Is(err, memory.ErrNotFound) {
		return nil, fmt.Errorf("key %s: %w", key, memory.ErrNotFound)
	}
	return b, err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.objects.remove(ctx, s.prefix+key)
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.objects.list(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, s.prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.objects.list(ctx, s.prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.objects.remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

type minioObjects struct {
	client *minio.Client
	bucket string
}

func (m *minioObjects) put(ctx context.Context, key string, body []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

func (m *minioObjects) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (m *minioObjects) remove(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *minioObjects) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func notFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return memory.ErrNotFound
	}
	return err
}

var (
	_ memory.ConversationStore = (*ConversationStore)(nil)
	_ memory.Store             = (*Store)(nil)
)
