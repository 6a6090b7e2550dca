// Package a2a implements the Agent-to-Agent protocol over JSON-RPC 2.0: agent cards, a task
// server that runs an Executor synchronously per request, and a client used by orchestrating
// agents to delegate work.
package a2a

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ProtocolVersion is the A2A revision implemented here.
const ProtocolVersion = "0.1.0"

// AgentCard describes an agent. It is served at /.well-known/agent.json.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	URL                string            `json:"url"`
	Version            string            `json:"version"`
	Provider           *AgentProvider    `json:"provider,omitempty"`
	DocumentationURL   string            `json:"documentationUrl,omitempty"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	Authentication     *Authentication   `json:"authentication,omitempty"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Skills             []AgentSkill      `json:"skills"`
}

type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitempty"`
}

type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// Authentication lists the schemes a caller may use, e.g. "Bearer".
type Authentication struct {
	Schemes []string `json:"schemes"`
}

type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed || s == TaskStateCanceled
}

type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is the unit of work exchanged between agents.
type Task struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	History   []Message      `json:"history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	// Transitions records every status the task passed through, oldest first.
	Transitions []TaskStatus `json:"transitions,omitempty"`
}

// Text returns the task's answer: the text of its artifacts, or of its status message.
// Reply is the agent's text reply from a task returned by tasks/send. A failed or canceled
// task is an error.
func (t *Task) Reply() (string, error) {
	switch t.Status.State {
	case TaskStateFailed, TaskStateCanceled:
		reason := t.Text()
		if reason == "" {
			reason = string(t.Status.State)
		}
		return "", fmt.Errorf("task %s %s: %s", t.ID, t.Status.State, reason)
	}
	return t.Text(), nil
}

func (t *Task) Text() string {
	var parts []string
	for _, a := range t.Artifacts {
		if s := textOf(a.Parts); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	if t.Status.Message != nil {
		return t.Status.Message.Text()
	}
	return ""
}

// Roles of a Message.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

type Message struct {
	Role     string         `json:"role"`
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart(text)}}
}

// Text joins the message's text parts.
func (m Message) Text() string { return textOf(m.Parts) }

// Part types.
const (
	PartText = "text"
	PartData = "data"
)

// Part is a text or structured-data segment of a message or artifact.
type Part struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

func DataPart(data map[string]any) Part { return Part{Type: PartData, Data: data} }

func textOf(parts []Part) string {
	var out []string
	for _, p := range parts {
		if p.Type == PartText && p.Text != "" {
			out = append(out, p.Text)
		}
	}
	return strings.Join(out, "\n")
}

type Artifact struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Index       int            `json:"index"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskSendParams are the params of tasks/send.
type TaskSendParams struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"sessionId,omitempty"`
	Message       Message        `json:"message"`
	HistoryLength *int           `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TaskQueryParams are the params of tasks/get.
type TaskQueryParams struct {
	ID            string `json:"id"`
	HistoryLength *int   `json:"historyLength,omitempty"`
}

// TaskIDParams are the params of tasks/cancel.
type TaskIDParams struct {
	ID string `json:"id"`
}

// JSON-RPC methods.
const (
	MethodSend   = "tasks/send"
	MethodGet    = "tasks/get"
	MethodCancel = "tasks/cancel"
)

// JSON-RPC and A2A error codes.
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternalError     = -32603
	CodeTaskNotFound      = -32001
	CodeTaskNotCancelable = -32002
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object. It is also the error type returned by Client.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return "a2a error " + strconv.Itoa(e.Code) + ": " + e.Message }
