// Package openai implements llm.Client for OpenAI-compatible chat endpoints,
// including the Bedrock Access Gateway which serves Bedrock models behind the
// OpenAI wire format.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KamdynS/bedrock-agents/llm"
)

// Client implements the llm.Client interface for OpenAI-compatible APIs
type Client struct {
	client  *openai.Client
	config  Config
	retrier *llm.Retrier
}

// Config holds OpenAI-specific configuration
type Config struct {
	APIKey      string          `json:"api_key" yaml:"api_key"`
	Model       string          `json:"model" yaml:"model"` // e.g. "gpt-4o-mini" or a Bedrock model id behind a gateway
	BaseURL     string          `json:"base_url,omitempty" yaml:"base_url"`
	Temperature float64         `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Timeout     time.Duration   `json:"timeout,omitempty" yaml:"timeout"`
	RetryConfig llm.RetryConfig `json:"retry_config,omitempty" yaml:"retry"`
}

// NewClient creates a new OpenAI-compatible client
func NewClient(config Config) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Model == "" {
		config.Model = llm.ModelGPT4oMini
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryConfig.MaxRetries == 0 {
		config.RetryConfig = llm.DefaultRetryConfig()
	}

	oaiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oaiConfig.BaseURL = config.BaseURL
	}
	oaiConfig.HTTPClient = &http.Client{
		Timeout:   config.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &Client{
		client:  openai.NewClientWithConfig(oaiConfig),
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig),
	}, nil
}

func validateConfig(config Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	// Gateways accept arbitrary model ids, so only reject known non-OpenAI models
	// when talking to api.openai.com.
	if config.BaseURL == "" && config.Model != "" {
		if model, err := llm.GetModel(config.Model); err == nil && model.Provider != llm.ProviderOpenAI {
			return fmt.Errorf("model %s is not an OpenAI model", config.Model)
		}
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// Chat implements llm.Client interface
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	start := time.Now()
	result, err := llm.Execute(c.retrier, ctx, func(ctx context.Context, attempt int) (*llm.Response, error) {
		return c.chat(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	result.Latency = time.Since(start)
	result.Timestamp = start
	return result, nil
}

func (c *Client) buildRequest(req *llm.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, msg := range req.Messages {
		m := openai.ChatCompletionMessage{Content: msg.Content, Name: msg.Name}
		switch msg.Role {
		case "system":
			m.Role = openai.ChatMessageRoleSystem
		case "assistant":
			m.Role = openai.ChatMessageRoleAssistant
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
				})
			}
		case "tool":
			m.Role = openai.ChatMessageRoleTool
			m.ToolCallID = msg.ToolCallID
		default:
			m.Role = openai.ChatMessageRoleUser
		}
		messages = append(messages, m)
	}

	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}
	out := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: c.config.MaxTokens,
		Stop:      req.Stop,
		User:      req.User,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	} else {
		out.Temperature = float32(c.config.Temperature)
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}
	if len(req.Tools) > 0 {
		for _, tool := range req.Tools {
			out.Tools = append(out.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			})
		}
		switch req.ToolChoice {
		case "":
		case "auto", "none":
			out.ToolChoice = req.ToolChoice
		case "any", "required":
			out.ToolChoice = "required"
		default:
			out.ToolChoice = openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: req.ToolChoice}}
		}
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return out
}

func (c *Client) chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	oaiReq := c.buildRequest(req)
	resp, err := c.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewLLMError(llm.ProviderOpenAI, llm.ErrorTypeUnknown, "no choices returned")
	}
	choice := resp.Choices[0]

	var toolCalls []llm.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, llm.ToolCall{
			ID:       tc.ID,
			Type:     string(tc.Type),
			Function: llm.Function{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}

	var usage *llm.Usage
	if resp.Usage.TotalTokens > 0 {
		usage = &llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
		if modelInfo, err := llm.GetModel(oaiReq.Model); err == nil {
			usage.Cost = modelInfo.EstimateCost(usage.InputTokens, usage.OutputTokens)
		}
	}

	finish := string(choice.FinishReason)
	if len(toolCalls) > 0 {
		finish = llm.FinishToolCalls
	}
	return &llm.Response{
		Content:      choice.Message.Content,
		Role:         "assistant",
		Model:        oaiReq.Model,
		Provider:     llm.ProviderOpenAI,
		Usage:        usage,
		FinishReason: finish,
		ToolCalls:    toolCalls,
		Meta:         map[string]string{"id": resp.ID},
	}, nil
}

// Completion implements llm.Client interface
func (c *Client) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	return c.Chat(ctx, &llm.ChatRequest{Messages: []llm.Message{llm.UserMessage(prompt)}})
}

// Stream implements llm.Client interface
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, output chan<- *llm.Response) error {
	defer close(output)

	oaiReq := c.buildRequest(req)
	oaiReq.Stream = true
	stream, err := c.client.CreateChatCompletionStream(ctx, oaiReq)
	if err != nil {
		return convertError(err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return convertError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		r := &llm.Response{
			Content:      choice.Delta.Content,
			Role:         "assistant",
			Model:        oaiReq.Model,
			Provider:     llm.ProviderOpenAI,
			FinishReason: string(choice.FinishReason),
		}
		select {
		case output <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
		if code, ok := apiErr.Code.(string); ok {
			llmErr.Code = code
		}
		llmErr.Cause = err
		return llmErr
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderOpenAI, reqErr.HTTPStatusCode, reqErr.Error())
		llmErr.Cause = err
		return llmErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewLLMErrorWithCause(llm.ProviderOpenAI, llm.ErrorTypeTimeout, "request timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection") || strings.Contains(lower, "network") {
		return llm.NewLLMErrorWithCause(llm.ProviderOpenAI, llm.ErrorTypeConnectionError, "connection error", err)
	}
	return llm.NewLLMErrorWithCause(llm.ProviderOpenAI, llm.ErrorTypeUnknown, err.Error(), err)
}

func (c *Client) Model() string          { return c.config.Model }
func (c *Client) Provider() llm.Provider { return llm.ProviderOpenAI }
func (c *Client) Validate() error        { return validateConfig(c.config) }
