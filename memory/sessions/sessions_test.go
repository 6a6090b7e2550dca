package sessions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/memory"
)

func TestOpenMemory(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, config.Sessions{Backend: "memory", MaxMessages: 2}, "svc")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Conversations.AppendMessages(ctx, "s1",
		memory.Message{Role: "user", Content: "a"},
		memory.Message{Role: "assistant", Content: "b"},
		memory.Message{Role: "user", Content: "c"},
	))
	msgs, err := st.Conversations.GetMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].Content)

	require.NoError(t, memory.StoreJSON(ctx, st.State, "k", map[string]int{"n": 1}))
	got, err := memory.RetrieveJSON[map[string]int](ctx, st.State, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, got["n"])
}

func TestOpenValidation(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, config.Sessions{Backend: "redis"}, "svc")
	assert.ErrorContains(t, err, "redis_url")

	_, err = Open(ctx, config.Sessions{Backend: "s3"}, "svc")
	assert.ErrorContains(t, err, "s3_bucket")

	_, err = Open(ctx, config.Sessions{Backend: "dynamo"}, "svc")
	assert.ErrorContains(t, err, "unknown session backend")
}
