package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/KamdynS/bedrock-agents/memory"
)

// ErrStateNotFound is returned by Suspender.Load for unknown ids.
var ErrStateNotFound = errors.New("suspended workflow state not found")

// SuspendState stores progress of a suspended run so it can be resumed later.
type SuspendState struct {
	WorkflowID string `json:"workflow_id"`
	// Cursor is the name of the step that suspended. Resume continues after it.
	Cursor string `json:"cursor"`
	Data   any    `json:"data"`
}

// Suspender persists and loads suspended workflow states.
type Suspender interface {
	Save(ctx context.Context, state *SuspendState) error
	Load(ctx context.Context, id string) (*SuspendState, error)
	Delete(ctx context.Context, id string) error
}

// MemorySuspender keeps states in process memory.
type MemorySuspender struct {
	mu    sync.Mutex
	store map[string]*SuspendState
}

func NewMemorySuspender() *MemorySuspender {
	return &MemorySuspender{store: map[string]*SuspendState{}}
}

func (m *MemorySuspender) Save(ctx context.Context, state *SuspendState) error {
	if state == nil || state.WorkflowID == "" {
		return errors.New("invalid state")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.store[state.WorkflowID] = &cp
	return nil
}

func (m *MemorySuspender) Load(ctx context.Context, id string) (*SuspendState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.store[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, ErrStateNotFound
}

func (m *MemorySuspender) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

type suspendError struct{ state SuspendState }

func (e *suspendError) Error() string { return "workflow suspended at " + e.state.Cursor }

// RequestSuspend is returned by a step to stop the run. Data is what Resume feeds to the next step.
// An empty cursor defaults to the name of the returning step.
func RequestSuspend(id string, cursor string, data any) error {
	return &suspendError{state: SuspendState{WorkflowID: id, Cursor: cursor, Data: data}}
}

// Suspended reports whether err came from RequestSuspend and returns the recorded state.
func Suspended(err error) (*SuspendState, bool) {
	var se *suspendError
	if errors.As(err, &se) {
		st := se.state
		return &st, true
	}
	return nil, false
}

// StoreSuspender persists states as JSON in a memory.Store under "workflow:<id>".
// Data comes back in its JSON form (maps, slices, float64) after a round trip.
type StoreSuspender struct {
	Store memory.Store
}

func (s StoreSuspender) key(id string) string { return "workflow:" + id }

func (s StoreSuspender) Save(ctx context.Context, state *SuspendState) error {
	if state == nil || state.WorkflowID == "" {
		return errors.New("invalid state")
	}
	return memory.StoreJSON(ctx, s.Store, s.key(state.WorkflowID), state)
}

func (s StoreSuspender) Load(ctx context.Context, id string) (*SuspendState, error) {
	st, err := memory.RetrieveJSON[SuspendState](ctx, s.Store, s.key(id))
	if errors.Is(err, memory.ErrNotFound) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s StoreSuspender) Delete(ctx context.Context, id string) error {
	err := s.Store.Delete(ctx, s.key(id))
	if errors.Is(err, memory.ErrNotFound) {
		return nil
	}
	return err
}
