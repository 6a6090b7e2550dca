package support

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/KamdynS/bedrock-agents/memory"
)

// Escalation hands a conversation to a human agent.
type Escalation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Reason    string    `json:"reason"`
	Priority  string    `json:"priority"`
	OrderID   string    `json:"order_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Escalator files escalations.
type Escalator interface {
	Escalate(ctx context.Context, e Escalation) (*Escalation, error)
}

// StoreEscalator records escalations as JSON under "escalation:<id>" for the human queue.
type StoreEscalator struct {
	Store  memory.Store
	Logger *slog.Logger
	now    func() time.Time
}

func (s *StoreEscalator) Escalate(ctx context.Context, e Escalation) (*Escalation, error) {
	if e.Reason == "" {
		return nil, fmt.Errorf("escalation needs a reason")
	}
	switch e.Priority {
	case "low", "normal", "high":
	case "":
		e.Priority = "normal"
	default:
		return nil, fmt.Errorf("invalid priority %q", e.Priority)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	e.ID = "ESC-" + uuid.NewString()[:8]
	e.CreatedAt = now().UTC()
	if err := memory.StoreJSON(ctx, s.Store, "escalation:"+e.ID, e); err != nil {
		return nil, fmt.Errorf("record escalation: %w", err)
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "conversation escalated", "escalation_id", e.ID, "priority", e.Priority, "reason", e.Reason)
	return &e, nil
}
