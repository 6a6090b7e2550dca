package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/KamdynS/bedrock-agents/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFake() *fakeObjects { return &fakeObjects{data: map[string][]byte{}} }

func (f *fakeObjects) put(ctx context.Context, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = append([]byte(nil), body...)
	return nil
}

func (f *fakeObjects) get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[key]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return b, nil
}

func (f *fakeObjects) remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeObjects) list(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func TestSessionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	b := &Bucket{objects: fake, prefix: "support/"}
	cs := b.Sessions(3)

	msgs, err := cs.GetMessages(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for i := 0; i < 4; i++ {
		require.NoError(t, cs.AppendMessages(ctx, "abc", memory.Message{Role: "user", Content: fmt.Sprint(i)}))
	}
	msgs, err = cs.GetMessages(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "1", msgs[0].Content)
	assert.NotZero(t, msgs[0].Timestamp)

	raw, ok := fake.data["support/sessions/abc.json"]
	require.True(t, ok, "session object key")
	var doc sessionDoc
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "abc", doc.SessionID)

	require.NoError(t, cs.ClearSession(ctx, "abc"))
	msgs, err = cs.GetMessages(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSessionsCorruptDocument(t *testing.T) {
	fake := newFake()
	fake.data["sessions/bad.json"] = []byte("{")
	cs := (&Bucket{objects: fake}).Sessions(0)
	_, err := cs.GetMessages(context.Background(), "bad")
	assert.Error(t, err)
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	s := (&Bucket{objects: fake}).KV()

	require.NoError(t, memory.StoreJSON(ctx, s, "approval/1", map[string]bool{"ok": true}))
	got, err := memory.RetrieveJSON[map[string]bool](ctx, s, "approval/1")
	require.NoError(t, err)
	assert.True(t, got["ok"])

	_ = fake.put(ctx, "sessions/x.json", []byte("{}"))
	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"approval/1"}, keys)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Retrieve(ctx, "approval/1")
	assert.ErrorIs(t, err, memory.ErrNotFound)
	_, stillThere := fake.data["sessions/x.json"]
	assert.True(t, stillThere, "clear must not touch sessions")
}
