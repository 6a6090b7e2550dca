package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/KamdynS/bedrock-agents/llm"
	"github.com/KamdynS/bedrock-agents/logging"
	"github.com/KamdynS/bedrock-agents/memory"
	obs "github.com/KamdynS/bedrock-agents/observability"
	"github.com/KamdynS/bedrock-agents/tools"
)

// ErrNoResponse is returned when the iteration cap is reached without any answer text.
var ErrNoResponse = errors.New("no response from model")

var activeRuns atomic.Int64

// ChatAgent is the default implementation of the Agent interface: a model-driven tool loop.
type ChatAgent struct {
	Model      llm.Client
	Tools      tools.Registry
	Mem        memory.ConversationStore
	Config     AgentConfig
	Middleware []Middleware
	Processors []Processor
	Logger     *slog.Logger
}

// NewChatAgent creates a new ChatAgent with the given configuration
func NewChatAgent(config ChatConfig) *ChatAgent {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatAgent{
		Model:      config.Model,
		Tools:      config.Tools,
		Mem:        config.Mem,
		Config:     config.Config,
		Middleware: config.Middleware,
		Processors: config.Processors,
		Logger:     logger,
	}
}

// ChatConfig holds configuration for ChatAgent
type ChatConfig struct {
	Model  llm.Client
	Tools  tools.Registry
	Mem    memory.ConversationStore
	Config AgentConfig
	// Middleware hooks run in order
	Middleware []Middleware
	// Processors rewrite loaded session history, in order
	Processors []Processor
	Logger     *slog.Logger
}

// Run implements the Agent interface
func (a *ChatAgent) Run(ctx context.Context, input Message) (Message, error) {
	return a.run(ctx, input, nil)
}

// RunStream implements the Agent interface. Without tools the model's text deltas are forwarded
// as they arrive, followed by the complete answer. With tools each tool call and result is sent
// as a message carrying Meta["event"], followed by the answer.
func (a *ChatAgent) RunStream(ctx context.Context, input Message, output chan<- Message) error {
	defer close(output)
	send := func(m Message) error {
		select {
		case output <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if a.Tools == nil || len(a.Tools.List()) == 0 {
		return a.streamText(ctx, input, send)
	}
	result, err := a.run(ctx, input, send)
	if err != nil {
		return err
	}
	return send(result)
}

func (a *ChatAgent) run(ctx context.Context, input Message, emit func(Message) error) (Message, error) {
	span, ctx := obs.TracerImpl.StartSpan(ctx, "agent.run")
	defer span.End()
	start := time.Now()
	defer a.track()()

	ctx, cancel, err := a.withTimeout(ctx)
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return Message{}, err
	}
	defer cancel()

	sessionID := input.SessionID()
	if sessionID != "" {
		span.SetAttribute(obs.AttrSessionID, sessionID)
		ctx = logging.WithSessionID(ctx, sessionID)
	}

	messages, err := a.prepare(ctx, input)
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return Message{}, err
	}

	resp, iterations, err := a.loop(ctx, messages, emit)
	labels := map[string]string{"model": a.Model.Model()}
	obs.MetricsImpl.RecordLatency(time.Since(start), labels)
	if err != nil {
		obs.MetricsImpl.RecordError("agent_error", labels)
		span.SetStatus(obs.StatusCodeError, err.Error())
		a.Logger.ErrorContext(ctx, "agent run failed", "error", err, "iterations", iterations)
		return Message{}, err
	}

	result := Message{
		Role:    "assistant",
		Content: resp.Content,
		Meta: map[string]string{
			MetaIterations: strconv.Itoa(iterations),
			MetaModel:      resp.Model,
		},
	}
	if sessionID != "" {
		result.Meta[MetaSessionID] = sessionID
	}

	if err := a.persist(ctx, sessionID, input, result); err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return Message{}, err
	}
	for _, mw := range a.Middleware {
		if err := mw.AfterRun(ctx, result); err != nil {
			span.SetStatus(obs.StatusCodeError, err.Error())
			return Message{}, fmt.Errorf("middleware after run: %w", err)
		}
	}

	span.SetAttribute("agent.iterations", iterations)
	span.SetStatus(obs.StatusCodeOk, "")
	a.Logger.DebugContext(ctx, "agent run complete", "iterations", iterations, "duration", time.Since(start))
	return result, nil
}

// loop calls the model until it answers without tool calls or MaxIterations is reached.
func (a *ChatAgent) loop(ctx context.Context, messages []llm.Message, emit func(Message) error) (*llm.Response, int, error) {
	maxIterations := a.Config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	toolDefs := a.toolDefinitions()

	var last *llm.Response
	for iter := 1; iter <= maxIterations; iter++ {
		resp, err := a.callModel(ctx, messages, toolDefs)
		if err != nil {
			return nil, iter, err
		}
		last = resp
		if len(resp.ToolCalls) == 0 || a.Tools == nil {
			return resp, iter, nil
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			if emit != nil {
				if err := emit(toolEvent("tool_call", tc.Function.Name, tc.Function.Arguments)); err != nil {
					return nil, iter, err
				}
			}
			result := a.executeTool(ctx, tc)
			if emit != nil {
				if err := emit(toolEvent("tool_result", tc.Function.Name, result)); err != nil {
					return nil, iter, err
				}
			}
			messages = append(messages, llm.Message{Role: "tool", Content: result, ToolCallID: tc.ID, Name: tc.Function.Name})
		}
	}

	a.Logger.WarnContext(ctx, "agent reached iteration limit", "max_iterations", maxIterations)
	if last == nil || strings.TrimSpace(last.Content) == "" {
		return nil, maxIterations, fmt.Errorf("after %d iterations: %w", maxIterations, ErrNoResponse)
	}
	return last, maxIterations, nil
}

func (a *ChatAgent) callModel(ctx context.Context, messages []llm.Message, toolDefs []llm.Tool) (*llm.Response, error) {
	req := &llm.ChatRequest{
		Messages:     messages,
		SystemPrompt: a.Config.SystemPrompt,
		Temperature:  a.Config.Temperature,
		MaxTokens:    a.Config.MaxTokens,
		Tools:        toolDefs,
	}
	for _, mw := range a.Middleware {
		if err := mw.BeforeLLMCall(ctx, req); err != nil {
			return nil, fmt.Errorf("middleware before llm call: %w", err)
		}
	}
	resp, err := a.Model.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}
	if resp.Usage != nil {
		obs.MetricsImpl.IncrementTokensUsed(resp.Usage.TotalTokens, map[string]string{"model": resp.Model})
	}
	for _, mw := range a.Middleware {
		if err := mw.AfterLLMResponse(ctx, resp); err != nil {
			return nil, fmt.Errorf("middleware after llm response: %w", err)
		}
	}
	return resp, nil
}

// executeTool runs one tool call. Failures become "error: ..." text for the model to read.
func (a *ChatAgent) executeTool(ctx context.Context, tc llm.ToolCall) string {
	name, args := tc.Function.Name, tc.Function.Arguments
	for _, mw := range a.Middleware {
		if err := mw.BeforeToolExecute(ctx, name, args); err != nil {
			return fmt.Sprintf("error: %v", err)
		}
	}
	result, err := a.Tools.Execute(ctx, name, args)
	if err != nil {
		a.Logger.WarnContext(ctx, "tool failed", "tool", name, "error", err)
		result = fmt.Sprintf("error: %v", err)
	}
	for _, mw := range a.Middleware {
		if mwErr := mw.AfterToolExecute(ctx, name, result, err); mwErr != nil {
			return fmt.Sprintf("error: %v", mwErr)
		}
	}
	return result
}

// streamText forwards the model's deltas for tool-less agents.
func (a *ChatAgent) streamText(ctx context.Context, input Message, send func(Message) error) error {
	span, ctx := obs.TracerImpl.StartSpan(ctx, "agent.stream")
	defer span.End()
	defer a.track()()

	ctx, cancel, err := a.withTimeout(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	sessionID := input.SessionID()
	messages, err := a.prepare(ctx, input)
	if err != nil {
		return err
	}
	req := &llm.ChatRequest{
		Messages:     messages,
		SystemPrompt: a.Config.SystemPrompt,
		Temperature:  a.Config.Temperature,
		MaxTokens:    a.Config.MaxTokens,
	}
	for _, mw := range a.Middleware {
		if err := mw.BeforeLLMCall(ctx, req); err != nil {
			return fmt.Errorf("middleware before llm call: %w", err)
		}
	}

	chunks := make(chan *llm.Response, 16)
	errc := make(chan error, 1)
	go func() { errc <- a.Model.Stream(ctx, req, chunks) }()

	var full strings.Builder
	var streamErr error
	model := a.Model.Model()
	// a client that fails may return without closing chunks
	for done := false; !done; {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				done = true
				continue
			}
			if chunk.Model != "" {
				model = chunk.Model
			}
			if chunk.Content == "" {
				continue
			}
			full.WriteString(chunk.Content)
			if err := send(Message{Role: "assistant", Content: chunk.Content}); err != nil {
				return err
			}
		case streamErr = <-errc:
			errc = nil
			done = streamErr != nil
		}
	}
	if errc != nil {
		streamErr = <-errc
	}
	if streamErr != nil {
		span.SetStatus(obs.StatusCodeError, streamErr.Error())
		return fmt.Errorf("LLM stream failed: %w", streamErr)
	}

	result := Message{Role: "assistant", Content: full.String(), Meta: map[string]string{MetaIterations: "1", MetaModel: model}}
	if sessionID != "" {
		result.Meta[MetaSessionID] = sessionID
	}
	if err := a.persist(ctx, sessionID, input, result); err != nil {
		return err
	}
	for _, mw := range a.Middleware {
		if err := mw.AfterRun(ctx, result); err != nil {
			return fmt.Errorf("middleware after run: %w", err)
		}
	}
	span.SetStatus(obs.StatusCodeOk, "")
	return send(result)
}

// prepare builds the model transcript: processed session history followed by input.
func (a *ChatAgent) prepare(ctx context.Context, input Message) ([]llm.Message, error) {
	var history []Message
	if sid := input.SessionID(); sid != "" && a.Mem != nil {
		stored, err := a.Mem.GetMessages(ctx, sid)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", sid, err)
		}
		for _, m := range stored {
			history = append(history, Message{Role: m.Role, Content: m.Content, Meta: m.Meta})
		}
		for _, p := range a.Processors {
			history = p.Process(ctx, history)
		}
	}

	role := input.Role
	if role == "" {
		role = "user"
	}
	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(messages, llm.Message{Role: role, Content: input.Content}), nil
}

// persist saves the user turn and the final answer. Tool rounds are not stored.
func (a *ChatAgent) persist(ctx context.Context, sessionID string, input, result Message) error {
	if sessionID == "" || a.Mem == nil {
		return nil
	}
	role := input.Role
	if role == "" {
		role = "user"
	}
	err := a.Mem.AppendMessages(ctx, sessionID,
		memory.Message{Role: role, Content: input.Content},
		memory.Message{Role: result.Role, Content: result.Content, Meta: map[string]string{MetaModel: result.Meta[MetaModel]}},
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

func (a *ChatAgent) toolDefinitions() []llm.Tool {
	if a.Tools == nil {
		return nil
	}
	return tools.Definitions(a.Tools)
}

func (a *ChatAgent) withTimeout(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if a.Config.Timeout == "" {
		return ctx, func() {}, nil
	}
	timeout, err := time.ParseDuration(a.Config.Timeout)
	if err != nil {
		return ctx, func() {}, fmt.Errorf("invalid timeout duration: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// track counts an in-flight run; call the returned func when it ends.
func (a *ChatAgent) track() func() {
	obs.MetricsImpl.SetActiveAgents(int(activeRuns.Add(1)))
	return func() { obs.MetricsImpl.SetActiveAgents(int(activeRuns.Add(-1))) }
}

func toolEvent(event, tool, content string) Message {
	return Message{Role: "tool", Content: content, Meta: map[string]string{MetaEvent: event, MetaTool: tool}}
}

var _ Agent = (*ChatAgent)(nil)
