package core

import (
	"context"
)

// Meta keys understood by ChatAgent.
const (
	// MetaSessionID selects the conversation history loaded before and saved after a run.
	MetaSessionID = "session_id"
	// MetaIterations is set on results to the number of model calls made.
	MetaIterations = "iterations"
	// MetaModel is set on results to the model that produced the answer.
	MetaModel = "model"
	// MetaEvent marks streamed progress messages ("tool_call", "tool_result").
	MetaEvent = "event"
	// MetaTool names the tool of a streamed progress message.
	MetaTool = "tool"
)

// Message represents a conversation message with role and content
type Message struct {
	Role    string            `json:"role"`
	Content string            `json:"content"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// SessionID returns Meta["session_id"] or "".
func (m Message) SessionID() string { return m.Meta[MetaSessionID] }

// Agent defines the core interface for AI agents
type Agent interface {
	// Run executes one reasoning-action loop with the given input and returns output
	Run(ctx context.Context, input Message) (Message, error)

	// RunStream executes the agent loop and streams responses via the provided channel.
	// Implementations close output before returning.
	RunStream(ctx context.Context, input Message, output chan<- Message) error
}

// AgentConfig holds configuration for creating agents
type AgentConfig struct {
	// MaxIterations caps model calls per run. Zero means DefaultMaxIterations.
	MaxIterations int
	// Timeout bounds a whole run, as a time.ParseDuration string. Empty means no limit.
	Timeout      string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    *int
}

// DefaultMaxIterations is used when AgentConfig.MaxIterations is unset.
const DefaultMaxIterations = 5
