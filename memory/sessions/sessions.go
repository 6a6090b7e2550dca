// Package sessions opens the conversation and state stores selected by config.Sessions.
package sessions

import (
	"context"
	"fmt"
	"io"

	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/memory"
	"github.com/KamdynS/bedrock-agents/memory/inmemory"
	"github.com/KamdynS/bedrock-agents/memory/redis"
	"github.com/KamdynS/bedrock-agents/memory/s3"
)

// Stores is a conversation store and a key/value store on the same backend.
type Stores struct {
	Conversations memory.ConversationStore
	State         memory.Store
	closer        io.Closer
}

// Close releases the backend connection, if any.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Open connects to the configured backend. prefix namespaces keys per service.
func Open(ctx context.Context, cfg config.Sessions, prefix string) (*Stores, error) {
	switch cfg.Backend {
	case "", "memory":
		return &Stores{
			Conversations: inmemory.NewConversationStore(cfg.MaxMessages),
			State:         inmemory.NewStore(),
		}, nil
	case "redis":
		if err := config.Require("sessions.redis_url", cfg.RedisURL); err != nil {
			return nil, err
		}
		client, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Conversations: redis.NewConversationStore(client, prefix, cfg.TTL, cfg.MaxMessages),
			State:         redis.NewStore(client, cfg.TTL, prefix+":state"),
			closer:        client,
		}, nil
	case "s3":
		if err := config.Require("sessions.s3_bucket", cfg.S3Bucket); err != nil {
			return nil, err
		}
		objPrefix := ""
		if prefix != "" {
			objPrefix = prefix + "/"
		}
		bucket, err := s3.Open(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Prefix:    objPrefix,
		})
		if err != nil {
			return nil, err
		}
		return &Stores{Conversations: bucket.Sessions(cfg.MaxMessages), State: bucket.KV()}, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
