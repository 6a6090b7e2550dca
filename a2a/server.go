package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	obs "github.com/KamdynS/bedrock-agents/observability"
)

// Executor does the work of a task. It receives the task as stored so far (history included)
// and the new user message, and returns the agent's reply.
type Executor interface {
	Execute(ctx context.Context, task *Task, input Message) (Message, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task *Task, input Message) (Message, error)

func (f ExecutorFunc) Execute(ctx context.Context, task *Task, input Message) (Message, error) {
	return f(ctx, task, input)
}

type inputRequiredError struct{ prompt string }

func (e *inputRequiredError) Error() string { return "input required: " + e.prompt }

// InputRequired is returned by an Executor that needs more from the caller. The task moves
// to input-required with prompt as its status message; the next tasks/send on the same id
// continues it.
func InputRequired(prompt string) error { return &inputRequiredError{prompt: prompt} }

// Server serves one agent over A2A.
type Server struct {
	card     AgentCard
	executor Executor
	store    TaskStore
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	now     func() time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) ServerOption { return func(s *Server) { s.logger = l } }

// NewServer creates a server. A nil store keeps tasks in memory.
func NewServer(card AgentCard, executor Executor, store TaskStore, opts ...ServerOption) *Server {
	if store == nil {
		store = NewMemoryTaskStore()
	}
	if card.DefaultInputModes == nil {
		card.DefaultInputModes = []string{"text"}
	}
	if card.DefaultOutputModes == nil {
		card.DefaultOutputModes = []string{"text"}
	}
	card.Capabilities.StateTransitionHistory = true
	s := &Server{
		card:     card,
		executor: executor,
		store:    store,
		logger:   slog.Default(),
		running:  map[string]context.CancelFunc{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Card returns the served agent card.
func (s *Server) Card() AgentCard { return s.card }

// Mount registers the A2A routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/.well-known/agent.json", s.handleCard)
	r.Get("/health", s.handleHealth)
	r.Post("/", s.handleRPC)
}

// Handler returns a router with the A2A routes and the given middleware (auth, for example)
// applied to the JSON-RPC endpoint only.
func (s *Server) Handler(rpcMiddleware ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(obs.RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Get("/.well-known/agent.json", s.handleCard)
	r.Get("/health", s.handleHealth)
	r.With(rpcMiddleware...).Post("/", s.handleRPC)
	return r
}

func (s *Server) handleCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.card)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "agent": s.card.Name})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeRPC(w, nil, nil, &RPCError{Code: CodeParseError, Message: "invalid JSON: " + err.Error()})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPC(w, req.ID, nil, &RPCError{Code: CodeInvalidRequest, Message: "jsonrpc must be 2.0 and method is required"})
		return
	}

	start := time.Now()
	labels := map[string]string{"a2a_method": req.Method, "agent": s.card.Name}
	obs.MetricsImpl.IncrementRequests(labels)
	defer func() { obs.MetricsImpl.RecordLatency(time.Since(start), labels) }()

	var (
		result any
		rpcErr *RPCError
	)
	switch req.Method {
	case MethodSend:
		var p TaskSendParams
		if rpcErr = decodeParams(req.Params, &p); rpcErr == nil {
			result, rpcErr = s.send(r.Context(), p)
		}
	case MethodGet:
		var p TaskQueryParams
		if rpcErr = decodeParams(req.Params, &p); rpcErr == nil {
			result, rpcErr = s.get(r.Context(), p)
		}
	case MethodCancel:
		var p TaskIDParams
		if rpcErr = decodeParams(req.Params, &p); rpcErr == nil {
			result, rpcErr = s.cancel(r.Context(), p)
		}
	default:
		rpcErr = &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
	if rpcErr != nil {
		obs.MetricsImpl.RecordError(fmt.Sprintf("a2a_%d", -rpcErr.Code), labels)
	}
	writeRPC(w, req.ID, result, rpcErr)
}

func decodeParams(raw json.RawMessage, v any) *RPCError {
	if len(raw) == 0 {
		return &RPCError{Code: CodeInvalidParams, Message: "params are required"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &RPCError{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

// send creates or continues a task and runs the executor to completion before replying.
func (s *Server) send(ctx context.Context, p TaskSendParams) (*Task, *RPCError) {
	if len(p.Message.Parts) == 0 {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "message must have at least one part"}
	}
	if p.Message.Role == "" {
		p.Message.Role = RoleUser
	}

	task, err := s.store.Get(ctx, p.ID)
	switch {
	case p.ID == "" || errors.Is(err, ErrTaskNotFound):
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		sessionID := p.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		task = &Task{ID: id, SessionID: sessionID, Metadata: p.Metadata}
		s.transition(task, TaskStateSubmitted, nil)
	case err != nil:
		return nil, internalError(err)
	case task.Status.State.Terminal():
		return nil, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("task %s is already %s", task.ID, task.Status.State)}
	}

	span, ctx := obs.TracerImpl.StartSpan(ctx, "a2a.task")
	span.SetAttribute(obs.AttrA2ATaskID, task.ID)
	span.SetAttribute(obs.AttrSessionID, task.SessionID)
	defer span.End()

	task.History = append(task.History, p.Message)
	s.transition(task, TaskStateWorking, nil)
	if err := s.store.Save(ctx, task); err != nil {
		return nil, internalError(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.running[task.ID] = cancel
	s.mu.Unlock()
	reply, execErr := s.executor.Execute(runCtx, task, p.Message)
	s.mu.Lock()
	delete(s.running, task.ID)
	s.mu.Unlock()
	canceled := runCtx.Err() != nil && ctx.Err() == nil
	cancel()

	var ir *inputRequiredError
	switch {
	case canceled:
		msg := NewTextMessage(RoleAgent, "task canceled")
		s.transition(task, TaskStateCanceled, &msg)
	case errors.As(execErr, &ir):
		msg := NewTextMessage(RoleAgent, ir.prompt)
		task.History = append(task.History, msg)
		s.transition(task, TaskStateInputRequired, &msg)
	case execErr != nil:
		s.logger.ErrorContext(ctx, "a2a task failed", "task_id", task.ID, "error", execErr)
		span.SetStatus(obs.StatusCodeError, execErr.Error())
		msg := NewTextMessage(RoleAgent, execErr.Error())
		s.transition(task, TaskStateFailed, &msg)
	default:
		if reply.Role == "" {
			reply.Role = RoleAgent
		}
		task.History = append(task.History, reply)
		task.Artifacts = append(task.Artifacts, Artifact{Name: "response", Parts: reply.Parts, Index: len(task.Artifacts)})
		s.transition(task, TaskStateCompleted, &reply)
	}
	if err := s.store.Save(ctx, task); err != nil {
		return nil, internalError(err)
	}
	s.logger.InfoContext(ctx, "a2a task finished", "task_id", task.ID, "state", task.Status.State)
	return trimHistory(task, p.HistoryLength), nil
}

func (s *Server) get(ctx context.Context, p TaskQueryParams) (*Task, *RPCError) {
	task, err := s.store.Get(ctx, p.ID)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, &RPCError{Code: CodeTaskNotFound, Message: "task not found: " + p.ID}
	}
	if err != nil {
		return nil, internalError(err)
	}
	return trimHistory(task, p.HistoryLength), nil
}

func (s *Server) cancel(ctx context.Context, p TaskIDParams) (*Task, *RPCError) {
	task, err := s.store.Get(ctx, p.ID)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, &RPCError{Code: CodeTaskNotFound, Message: "task not found: " + p.ID}
	}
	if err != nil {
		return nil, internalError(err)
	}
	if task.Status.State.Terminal() {
		return nil, &RPCError{Code: CodeTaskNotCancelable, Message: fmt.Sprintf("task %s is %s and cannot be canceled", task.ID, task.Status.State)}
	}

	s.mu.Lock()
	stop, running := s.running[task.ID]
	s.mu.Unlock()
	if running {
		// the send handler records the canceled state once the executor returns
		stop()
		return task, nil
	}
	s.transition(task, TaskStateCanceled, nil)
	if err := s.store.Save(ctx, task); err != nil {
		return nil, internalError(err)
	}
	return task, nil
}

func (s *Server) transition(task *Task, state TaskState, msg *Message) {
	st := TaskStatus{State: state, Message: msg, Timestamp: s.now().UTC()}
	task.Status = st
	task.Transitions = append(task.Transitions, TaskStatus{State: state, Timestamp: st.Timestamp})
}

func trimHistory(task *Task, n *int) *Task {
	if n == nil || *n < 0 || len(task.History) <= *n {
		return task
	}
	cp := *task
	cp.History = task.History[len(task.History)-*n:]
	return &cp
}

func internalError(err error) *RPCError {
	return &RPCError{Code: CodeInternalError, Message: err.Error()}
}

func writeRPC(w http.ResponseWriter, id any, result any, rpcErr *RPCError) {
	resp := Response{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil {
		b, err := json.Marshal(result)
		if err != nil {
			resp.Error = internalError(err)
		} else {
			resp.Result = b
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
