package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KamdynS/bedrock-agents/llm"
	"github.com/KamdynS/bedrock-agents/memory"
	"github.com/KamdynS/bedrock-agents/memory/inmemory"
	"github.com/KamdynS/bedrock-agents/tools"
)

func TestMessage(t *testing.T) {
	msg := Message{
		Role:    "user",
		Content: "Hello, world!",
		Meta: map[string]string{
			"source": "test",
		},
	}

	if msg.Role != "user" {
		t.Errorf("Expected role 'user', got %s", msg.Role)
	}

	if msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got %s", msg.Content)
	}

	if msg.Meta["source"] != "test" {
		t.Errorf("Expected meta source 'test', got %s", msg.Meta["source"])
	}
}

func TestAgentConfig(t *testing.T) {
	config := AgentConfig{
		MaxIterations: 5,
		Timeout:       "30s",
		SystemPrompt:  "You are a helpful assistant",
	}

	if config.MaxIterations != 5 {
		t.Errorf("Expected MaxIterations 5, got %d", config.MaxIterations)
	}

	if config.Timeout != "30s" {
		t.Errorf("Expected Timeout '30s', got %s", config.Timeout)
	}

	if config.SystemPrompt != "You are a helpful assistant" {
		t.Errorf("Expected SystemPrompt 'You are a helpful assistant', got %s", config.SystemPrompt)
	}
}

// Mock LLM Client for testing
type MockLLMClient struct {
	responses []llm.Response
	calls     []llm.ChatRequest
	nextIndex int
	shouldErr bool
	err       error

	// tool-call scripting per call index
	scriptedToolCalls [][]llm.ToolCall
}

func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		responses: []llm.Response{},
		calls:     []llm.ChatRequest{},
	}
}

func (m *MockLLMClient) AddResponse(content string) {
	m.responses = append(m.responses, llm.Response{
		Content:  content,
		Role:     "assistant",
		Model:    "mock-model",
		Provider: llm.ProviderOpenAI,
	})
}

func (m *MockLLMClient) AddResponseWithToolCalls(content string, calls []llm.ToolCall) {
	m.responses = append(m.responses, llm.Response{
		Content:   content,
		Role:      "assistant",
		Model:     "mock-model",
		Provider:  llm.ProviderOpenAI,
		ToolCalls: calls,
	})
}

func (m *MockLLMClient) SetError(err error) {
	m.shouldErr = true
	m.err = err
}

func (m *MockLLMClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	// Store the call for inspection
	m.calls = append(m.calls, *req)

	if m.shouldErr {
		return nil, m.err
	}

	if m.nextIndex >= len(m.responses) {
		return &llm.Response{
			Content:  "Default mock response",
			Role:     "assistant",
			Model:    "mock-model",
			Provider: llm.ProviderOpenAI,
		}, nil
	}

	response := m.responses[m.nextIndex]
	m.nextIndex++
	return &response, nil
}

func (m *MockLLMClient) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	req := &llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	}
	return m.Chat(ctx, req)
}

func (m *MockLLMClient) Stream(ctx context.Context, req *llm.ChatRequest, output chan<- *llm.Response) error {
	defer close(output)
	resp, err := m.Chat(ctx, req)
	if err != nil {
		return err
	}

	select {
	case output <- resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockLLMClient) Model() string {
	return "mock-model"
}

func (m *MockLLMClient) Provider() llm.Provider {
	return llm.ProviderOpenAI
}

func (m *MockLLMClient) Validate() error {
	return nil
}

func (m *MockLLMClient) GetCalls() []llm.ChatRequest {
	return m.calls
}

// Dummy tool for tests
type EchoTool struct{}

func (e *EchoTool) Name() string        { return "echo" }
func (e *EchoTool) Description() string { return "Echoes the input string" }
func (e *EchoTool) Execute(ctx context.Context, input string) (string, error) {
	return "ECHO:" + input, nil
}
func (e *EchoTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"input": map[string]interface{}{"type": "string"}},
		"required":   []string{"input"},
	}
}

func TestNewChatAgent(t *testing.T) {
	mockLLM := NewMockLLMClient()
	memStore := inmemory.NewConversationStore()
	toolRegistry := tools.NewRegistry()

	agent := NewChatAgent(ChatConfig{
		Model: mockLLM,
		Tools: toolRegistry,
		Mem:   memStore,
		Config: AgentConfig{
			MaxIterations: 5,
			Timeout:       "30s",
			SystemPrompt:  "You are a helpful assistant",
		},
	})

	if agent == nil {
		t.Fatal("NewChatAgent returned nil")
	}
	if agent.Model != mockLLM {
		t.Error("Agent Model not set correctly")
	}
	if agent.Tools != toolRegistry {
		t.Error("Agent Tools not set correctly")
	}
	if agent.Mem != memStore {
		t.Error("Agent Mem not set correctly")
	}
	if agent.Logger == nil {
		t.Error("Agent Logger should default to slog.Default")
	}
}

func TestChatAgent_Run_Basic(t *testing.T) {
	mockLLM := NewMockLLMClient()
	mockLLM.AddResponse("Hello! How can I help you today?")

	agent := NewChatAgent(ChatConfig{
		Model:  mockLLM,
		Config: AgentConfig{SystemPrompt: "You are a helpful assistant"},
	})

	result, err := agent.Run(context.Background(), Message{Role: "user", Content: "Hello"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Role != "assistant" {
		t.Errorf("Expected response role 'assistant', got %s", result.Role)
	}
	if result.Content != "Hello! How can I help you today?" {
		t.Errorf("unexpected content %q", result.Content)
	}
	if result.Meta[MetaIterations] != "1" || result.Meta[MetaModel] != "mock-model" {
		t.Errorf("unexpected meta %v", result.Meta)
	}

	calls := mockLLM.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 LLM call, got %d", len(calls))
	}
	call := calls[0]
	if call.SystemPrompt != "You are a helpful assistant" {
		t.Errorf("system prompt not passed: %q", call.SystemPrompt)
	}
	if len(call.Messages) != 1 || call.Messages[0].Role != "user" || call.Messages[0].Content != "Hello" {
		t.Errorf("unexpected transcript %+v", call.Messages)
	}
	if len(call.Tools) != 0 {
		t.Errorf("no tools expected, got %d", len(call.Tools))
	}
}

func TestChatAgent_Run_WithToolInvocation(t *testing.T) {
	mockLLM := NewMockLLMClient()
	mockLLM.AddResponseWithToolCalls("Calling tool", []llm.ToolCall{{
		ID:       "call-1",
		Type:     "function",
		Function: llm.Function{Name: "echo", Arguments: `{"input":"hello"}`},
	}})
	mockLLM.AddResponse("Final answer after tool")

	reg := tools.NewRegistry()
	_ = reg.Register(&EchoTool{})

	agent := NewChatAgent(ChatConfig{
		Model:  mockLLM,
		Tools:  reg,
		Config: AgentConfig{SystemPrompt: "You are a helpful assistant", MaxIterations: 2},
	})

	result, err := agent.Run(context.Background(), Message{Role: "user", Content: "use echo"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Content != "Final answer after tool" {
		t.Fatalf("unexpected final content: %s", result.Content)
	}

	calls := mockLLM.GetCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 LLM calls, got %d", len(calls))
	}
	if len(calls[0].Tools) != 1 || calls[0].Tools[0].Function.Name != "echo" {
		t.Fatalf("tool definitions not sent: %+v", calls[0].Tools)
	}
	msgs := calls[1].Messages
	if len(msgs) != 3 {
		t.Fatalf("expected user, assistant, tool messages, got %+v", msgs)
	}
	if len(msgs[1].ToolCalls) != 1 || msgs[1].ToolCalls[0].ID != "call-1" {
		t.Fatalf("assistant tool call not carried: %+v", msgs[1])
	}
	// arguments are passed verbatim
	if msgs[2].Role != "tool" || msgs[2].Content != `ECHO:{"input":"hello"}` || msgs[2].ToolCallID != "call-1" {
		t.Fatalf("unexpected tool message %+v", msgs[2])
	}
}

func TestChatAgent_Run_UnknownToolReportedToModel(t *testing.T) {
	mockLLM := NewMockLLMClient()
	mockLLM.AddResponseWithToolCalls("", []llm.ToolCall{{ID: "c1", Function: llm.Function{Name: "missing", Arguments: "{}"}}})
	mockLLM.AddResponse("sorry, I cannot do that")

	reg := tools.NewRegistry(&EchoTool{})
	agent := NewChatAgent(ChatConfig{Model: mockLLM, Tools: reg})

	result, err := agent.Run(context.Background(), Message{Role: "user", Content: "x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Content != "sorry, I cannot do that" {
		t.Fatalf("unexpected content %q", result.Content)
	}
	toolMsg := mockLLM.GetCalls()[1].Messages[2]
	if !strings.HasPrefix(toolMsg.Content, "error: tool not found") {
		t.Fatalf("expected error text for unknown tool, got %q", toolMsg.Content)
	}
}

func TestChatAgent_Run_IterationCap(t *testing.T) {
	call := []llm.ToolCall{{ID: "c", Function: llm.Function{Name: "echo", Arguments: "{}"}}}

	mockLLM := NewMockLLMClient()
	mockLLM.AddResponseWithToolCalls("still working", call)
	mockLLM.AddResponseWithToolCalls("partial answer", call)
	agent := NewChatAgent(ChatConfig{Model: mockLLM, Tools: tools.NewRegistry(&EchoTool{}), Config: AgentConfig{MaxIterations: 2}})
	result, err := agent.Run(context.Background(), Message{Role: "user", Content: "x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Content != "partial answer" || result.Meta[MetaIterations] != "2" {
		t.Fatalf("expected last content at cap, got %q %v", result.Content, result.Meta)
	}

	empty := NewMockLLMClient()
	empty.AddResponseWithToolCalls("", call)
	agent = NewChatAgent(ChatConfig{Model: empty, Tools: tools.NewRegistry(&EchoTool{}), Config: AgentConfig{MaxIterations: 1}})
	if _, err := agent.Run(context.Background(), Message{Role: "user", Content: "x"}); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
}

func TestChatAgent_Run_WithSessionMemory(t *testing.T) {
	mockLLM := NewMockLLMClient()
	mockLLM.AddResponse("Nice to meet you, Ana")
	mockLLM.AddResponse("Your name is Ana")
	mem := inmemory.NewConversationStore()

	agent := NewChatAgent(ChatConfig{
		Model:  mockLLM,
		Mem:    mem,
		Config: AgentConfig{SystemPrompt: "You are a helpful assistant with memory"},
	})
	ctx := context.Background()
	session := map[string]string{MetaSessionID: "s-1"}

	if _, err := agent.Run(ctx, Message{Role: "user", Content: "I am Ana", Meta: session}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := agent.Run(ctx, Message{Role: "user", Content: "What is my name?", Meta: session})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Meta[MetaSessionID] != "s-1" {
		t.Errorf("session id not echoed: %v", result.Meta)
	}

	second := mockLLM.GetCalls()[1].Messages
	if len(second) != 3 || second[0].Content != "I am Ana" || second[1].Content != "Nice to meet you, Ana" {
		t.Fatalf("history not loaded: %+v", second)
	}

	stored, _ := mem.GetMessages(ctx, "s-1")
	if len(stored) != 4 || stored[3].Content != "Your name is Ana" {
		t.Fatalf("unexpected stored history %+v", stored)
	}

	// no session id: nothing loaded or saved
	mockLLM.AddResponse("stateless")
	if _, err := agent.Run(ctx, Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if n := len(mockLLM.GetCalls()[2].Messages); n != 1 {
		t.Fatalf("stateless run should send one message, got %d", n)
	}
}

func TestChatAgent_Run_ProcessorsApplyToHistory(t *testing.T) {
	mem := inmemory.NewConversationStore()
	ctx := context.Background()
	_ = mem.AppendMessages(ctx, "s", memoryMsg("user", "old question"), memoryMsg("tool", "raw"), memoryMsg("assistant", "ok"))

	mockLLM := NewMockLLMClient()
	agent := NewChatAgent(ChatConfig{Model: mockLLM, Mem: mem, Processors: []Processor{ToolCallFilter{}, TokenLimiter{MaxChars: 14}}})
	if _, err := agent.Run(ctx, Message{Content: "new", Meta: map[string]string{MetaSessionID: "s"}}); err != nil {
		t.Fatal(err)
	}
	msgs := mockLLM.GetCalls()[0].Messages
	if len(msgs) != 3 || msgs[0].Content != "old question" || msgs[1].Content != "ok" || msgs[2].Content != "new" || msgs[2].Role != "user" {
		t.Fatalf("unexpected processed transcript %+v", msgs)
	}
}

func TestChatAgent_Run_WithTimeout(t *testing.T) {
	mockLLM := NewMockLLMClient()
	mockLLM.AddResponse("Response within timeout")

	agent := NewChatAgent(ChatConfig{
		Model:  mockLLM,
		Config: AgentConfig{Timeout: "100ms"},
	})
	result, err := agent.Run(context.Background(), Message{Role: "user", Content: "Quick response please"})
	if err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if result.Content != "Response within timeout" {
		t.Errorf("Unexpected response: %s", result.Content)
	}
}

func TestChatAgent_Run_InvalidTimeout(t *testing.T) {
	agent := NewChatAgent(ChatConfig{
		Model:  NewMockLLMClient(),
		Config: AgentConfig{Timeout: "invalid-timeout"},
	})
	_, err := agent.Run(context.Background(), Message{Role: "user", Content: "Test message"})
	if err == nil || !strings.Contains(err.Error(), "invalid timeout duration") {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestChatAgent_Run_LLMError(t *testing.T) {
	mockLLM := NewMockLLMClient()
	mockLLM.SetError(llm.NewLLMError(llm.ProviderBedrock, llm.ErrorTypeRateLimit, "Rate limit exceeded"))

	agent := NewChatAgent(ChatConfig{Model: mockLLM})
	_, err := agent.Run(context.Background(), Message{Role: "user", Content: "This should fail"})
	if err == nil || !strings.Contains(err.Error(), "LLM call failed") {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !llm.IsRetryableError(err) {
		t.Errorf("rate limit should stay retryable through the wrap: %v", err)
	}
}

func TestChatAgent_RunStream(t *testing.T) {
	mockLLM := NewMockLLMClient()
	mockLLM.AddResponse("Streaming response")

	agent := NewChatAgent(ChatConfig{Model: mockLLM})
	output := make(chan Message, 4)
	if err := agent.RunStream(context.Background(), Message{Role: "user", Content: "Stream this response"}, output); err != nil {
		t.Fatalf("RunStream() error = %v", err)
	}

	var got []Message
	for m := range output {
		got = append(got, m)
	}
	if len(got) != 2 {
		t.Fatalf("expected one chunk and the final message, got %+v", got)
	}
	final := got[1]
	if final.Role != "assistant" || final.Content != "Streaming response" || final.Meta[MetaModel] != "mock-model" {
		t.Fatalf("unexpected final message %+v", final)
	}
}

func TestChatAgent_RunStream_WithToolsEmitsEvents(t *testing.T) {
	mockLLM := NewMockLLMClient()
	mockLLM.AddResponseWithToolCalls("", []llm.ToolCall{{ID: "c1", Function: llm.Function{Name: "echo", Arguments: `{"input":"a"}`}}})
	mockLLM.AddResponse("done")

	agent := NewChatAgent(ChatConfig{Model: mockLLM, Tools: tools.NewRegistry(&EchoTool{})})
	output := make(chan Message, 8)
	if err := agent.RunStream(context.Background(), Message{Role: "user", Content: "go"}, output); err != nil {
		t.Fatalf("RunStream() error = %v", err)
	}
	var events []string
	var last Message
	for m := range output {
		if ev := m.Meta[MetaEvent]; ev != "" {
			events = append(events, ev+":"+m.Meta[MetaTool])
		}
		last = m
	}
	if strings.Join(events, ",") != "tool_call:echo,tool_result:echo" {
		t.Fatalf("unexpected events %v", events)
	}
	if last.Content != "done" {
		t.Fatalf("final message should be last, got %+v", last)
	}
}

func TestChatAgent_RunStream_ContextCancellation(t *testing.T) {
	mockLLM := NewMockLLMClient()
	mockLLM.AddResponse("Response")
	agent := NewChatAgent(ChatConfig{Model: mockLLM})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	output := make(chan Message)
	done := make(chan error, 1)
	go func() { done <- agent.RunStream(ctx, Message{Role: "user", Content: "cancelled"}, output) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatal("RunStream did not return after cancellation")
	}
	if _, ok := <-output; ok {
		t.Fatal("output should be closed")
	}
}

func TestChatAgent_RunStream_Error(t *testing.T) {
	mockLLM := NewMockLLMClient()
	mockLLM.SetError(llm.NewLLMError(llm.ProviderBedrock, llm.ErrorTypeServerError, "Server error"))

	agent := NewChatAgent(ChatConfig{Model: mockLLM})
	output := make(chan Message, 1)
	if err := agent.RunStream(context.Background(), Message{Role: "user", Content: "This should error"}, output); err == nil {
		t.Error("Expected error from RunStream")
	}
	if _, ok := <-output; ok {
		t.Error("Output channel should be closed on error")
	}
}

func TestChatAgent_ImplementsInterface(t *testing.T) {
	var _ Agent = (*ChatAgent)(nil)
}

func memoryMsg(role, content string) memory.Message {
	return memory.Message{Role: role, Content: content}
}
