package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/KamdynS/bedrock-agents/memory"
)

// ErrTaskNotFound is returned by TaskStore.Get for unknown ids.
var ErrTaskNotFound = errors.New("task not found")

// TaskStore persists tasks between requests.
type TaskStore interface {
	Get(ctx context.Context, id string) (*Task, error)
	Save(ctx context.Context, task *Task) error
}

// MemoryTaskStore keeps tasks in process memory. Tasks are deep-copied on the way in and out.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string][]byte
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: map[string][]byte{}}
}

func (s *MemoryTaskStore) Get(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	b, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *MemoryTaskStore) Save(ctx context.Context, task *Task) error {
	b, err := json.Marshal(task)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.tasks[task.ID] = b
	s.mu.Unlock()
	return nil
}

// KVTaskStore keeps tasks in a memory.Store (Redis or S3) under "a2a:task:<id>", so that
// tasks/get works across Lambda invocations.
type KVTaskStore struct {
	Store memory.Store
}

func (s KVTaskStore) Get(ctx context.Context, id string) (*Task, error) {
	t, err := memory.RetrieveJSON[Task](ctx, s.Store, "a2a:task:"+id)
	if errors.Is(err, memory.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s KVTaskStore) Save(ctx context.Context, task *Task) error {
	return memory.StoreJSON(ctx, s.Store, "a2a:task:"+task.ID, task)
}

var (
	_ TaskStore = (*MemoryTaskStore)(nil)
	_ TaskStore = KVTaskStore{}
)
