package llm

import (
	"context"
	"time"
)

// Message represents a message in a conversation with an LLM
type Message struct {
	Role       string     `json:"role"`    // "system", "user", "assistant", "tool"
	Content    string     `json:"content"` // Message content
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool response messages
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // Assistant turns that requested tools
}

// Response represents the response from an LLM
type Response struct {
	Content      string            `json:"content"`
	Role         string            `json:"role,omitempty"`
	Model        string            `json:"model"`
	Provider     Provider          `json:"provider"`
	Usage        *Usage            `json:"usage,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", etc.
	ToolCalls    []ToolCall        `json:"tool_calls,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	Latency      time.Duration     `json:"latency,omitempty"`
	Timestamp    time.Time         `json:"timestamp,omitempty"`
}

// ToolCall represents a tool/function call from the LLM
type ToolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"` // "function"
	Function Function `json:"function"`
}

// Function represents a function call
type Function struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object
}

// Finish reasons shared across providers.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
	FinishFiltered  = "content_filter"
)

// Client defines the interface for interacting with Large Language Models
type Client interface {
	// Chat sends a conversation to the LLM and returns a response
	Chat(ctx context.Context, req *ChatRequest) (*Response, error)

	// Completion sends a single prompt to the LLM and returns a response
	Completion(ctx context.Context, prompt string) (*Response, error)

	// Stream sends text deltas to output and closes it when done
	Stream(ctx context.Context, req *ChatRequest, output chan<- *Response) error

	Model() string
	Provider() Provider

	// Validate checks if the client configuration is valid
	Validate() error
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Messages       []Message              `json:"messages"`
	Model          string                 `json:"model,omitempty"`
	SystemPrompt   string                 `json:"system_prompt,omitempty"`
	Temperature    *float64               `json:"temperature,omitempty"`
	MaxTokens      *int                   `json:"max_tokens,omitempty"`
	TopP           *float64               `json:"top_p,omitempty"`
	Stop           []string               `json:"stop,omitempty"`
	Tools          []Tool                 `json:"tools,omitempty"`
	ToolChoice     string                 `json:"tool_choice,omitempty"` // "auto", "any", "none" or a tool name
	ResponseFormat *ResponseFormat        `json:"response_format,omitempty"`
	User           string                 `json:"user,omitempty"`
	Meta           map[string]interface{} `json:"meta,omitempty"` // Provider-specific options
}

// Tool represents a tool/function that the LLM can call
type Tool struct {
	Type     string       `json:"type"` // "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction represents a function definition
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ResponseFormat specifies the format of the response
type ResponseFormat struct {
	Type       string                 `json:"type"` // "text" or "json_object"
	JSONSchema map[string]interface{} `json:"json_schema,omitempty"`
}

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries      int           `json:"max_retries" yaml:"max_retries"`
	InitialDelay    time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay        time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor   float64       `json:"backoff_factor" yaml:"backoff_factor"`
	Jitter          bool          `json:"jitter" yaml:"jitter"`
	RetryableErrors []string      `json:"retryable_errors" yaml:"retryable_errors"`
}

// DefaultRetryConfig returns sensible defaults for retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		RetryableErrors: []string{
			"rate_limit_exceeded",
			"server_error",
			"timeout",
			"connection_error",
		},
	}
}

// FixedRetryConfig retries up to attempts times with a constant delay and no jitter.
// The research agents use FixedRetryConfig(3, time.Minute) when Bedrock throttles.
func FixedRetryConfig(attempts int, delay time.Duration) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = attempts
	cfg.InitialDelay = delay
	cfg.MaxDelay = delay
	cfg.BackoffFactor = 1
	cfg.Jitter = false
	return cfg
}

// Config holds common configuration options for LLM clients
type Config struct {
	APIKey       string            `json:"api_key" yaml:"api_key"`
	Model        string            `json:"model" yaml:"model"`
	Region       string            `json:"region,omitempty" yaml:"region"`
	BaseURL      string            `json:"base_url,omitempty" yaml:"base_url"`
	Temperature  float64           `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens    int               `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Timeout      time.Duration     `json:"timeout,omitempty" yaml:"timeout"`
	RetryConfig  RetryConfig       `json:"retry_config,omitempty" yaml:"retry"`
	UserAgent    string            `json:"user_agent,omitempty" yaml:"user_agent"`
	ExtraHeaders map[string]string `json:"extra_headers,omitempty" yaml:"extra_headers"`
}

// UserMessage is shorthand for a user turn.
func UserMessage(content string) Message { return Message{Role: "user", Content: content} }

// Float returns a pointer to v, for optional request fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional request fields.
func Int(v int) *int { return &v }
