// Package anthropic implements llm.Client on the direct Anthropic Messages API.
// Deployments use it as the fallback behind Bedrock (see llm.FallbackClient).
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KamdynS/bedrock-agents/llm"
)

// Client implements the llm.Client interface for Anthropic Claude
type Client struct {
	client  *anthropic.Client
	config  Config
	retrier *llm.Retrier
}

// Config holds Anthropic-specific configuration
type Config struct {
	APIKey      string          `json:"api_key" yaml:"api_key"`
	Model       string          `json:"model" yaml:"model"`
	BaseURL     string          `json:"base_url,omitempty" yaml:"base_url"`
	Temperature float64         `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Timeout     time.Duration   `json:"timeout,omitempty" yaml:"timeout"`
	RetryConfig llm.RetryConfig `json:"retry_config,omitempty" yaml:"retry"`
}

// NewClient creates a new Anthropic client
func NewClient(config Config) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Model == "" {
		config.Model = llm.ModelClaude35Haiku
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RetryConfig.MaxRetries == 0 {
		config.RetryConfig = llm.DefaultRetryConfig()
	}

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
	}

	return &Client{
		client:  anthropic.NewClient(config.APIKey, opts...),
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig),
	}, nil
}

func validateConfig(config Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if config.Model != "" {
		model, err := llm.GetModel(config.Model)
		if err != nil {
			return fmt.Errorf("invalid model: %w", err)
		}
		if model.Provider != llm.ProviderAnthropic {
			return fmt.Errorf("model %s is not an Anthropic model", config.Model)
		}
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
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

func (c *Client) buildRequest(req *llm.ChatRequest) (anthropic.MessagesRequest, error) {
	systemPrompt := req.SystemPrompt
	var messages []anthropic.Message

	// Anthropic requires alternating roles, so consecutive blocks of the same
	// role are merged into one message.
	push := func(role anthropic.ChatRole, content anthropic.MessageContent) {
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, content)
			return
		}
		messages = append(messages, anthropic.Message{Role: role, Content: []anthropic.MessageContent{content}})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		case "assistant":
			if msg.Content != "" {
				push(anthropic.RoleAssistant, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				if !json.Valid(input) {
					return anthropic.MessagesRequest{}, llm.NewLLMError(llm.ProviderAnthropic, llm.ErrorTypeInvalidRequest, "tool call arguments must be JSON")
				}
				push(anthropic.RoleAssistant, anthropic.MessageContent{
					Type:                  anthropic.MessagesContentTypeToolUse,
					MessageContentToolUse: &anthropic.MessageContentToolUse{ID: tc.ID, Name: tc.Function.Name, Input: input},
				})
			}
		case "tool":
			isErr := strings.HasPrefix(msg.Content, "error:")
			push(anthropic.RoleUser, anthropic.NewToolResultMessageContent(msg.ToolCallID, msg.Content, isErr))
		default:
			push(anthropic.RoleUser, anthropic.NewTextMessageContent(msg.Content))
		}
	}

	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}
	out := anthropic.MessagesRequest{
		Model:         anthropic.Model(model),
		Messages:      messages,
		System:        systemPrompt,
		MaxTokens:     c.config.MaxTokens,
		StopSequences: req.Stop,
	}
	temp := float32(c.config.Temperature)
	if req.Temperature != nil {
		temp = float32(*req.Temperature)
	}
	out.Temperature = &temp
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		p := float32(*req.TopP)
		out.TopP = &p
	}
	if len(req.Tools) > 0 && req.ToolChoice != "none" {
		for _, t := range req.Tools {
			schema := t.Function.Parameters
			if schema == nil {
				schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
			}
			out.Tools = append(out.Tools, anthropic.ToolDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				InputSchema: schema,
			})
		}
		switch req.ToolChoice {
		case "", "auto":
		case "any", "required":
			out.ToolChoice = &anthropic.ToolChoice{Type: "any"}
		default:
			out.ToolChoice = &anthropic.ToolChoice{Type: "tool", Name: req.ToolChoice}
		}
	}
	return out, nil
}

func (c *Client) chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	anthReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.CreateMessages(ctx, anthReq)
	if err != nil {
		return nil, convertError(err)
	}

	var content strings.Builder
	var toolCalls []llm.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				content.WriteString(*block.Text)
			}
		case anthropic.MessagesContentTypeToolUse:
			if tu := block.MessageContentToolUse; tu != nil {
				toolCalls = append(toolCalls, llm.ToolCall{
					ID:       tu.ID,
					Type:     "function",
					Function: llm.Function{Name: tu.Name, Arguments: string(tu.Input)},
				})
			}
		}
	}

	model := string(anthReq.Model)
	usage := &llm.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	if modelInfo, err := llm.GetModel(model); err == nil {
		usage.Cost = modelInfo.EstimateCost(usage.InputTokens, usage.OutputTokens)
	}

	return &llm.Response{
		Content:      content.String(),
		Role:         "assistant",
		Model:        model,
		Provider:     llm.ProviderAnthropic,
		Usage:        usage,
		FinishReason: finishReason(resp.StopReason),
		ToolCalls:    toolCalls,
		Meta:         map[string]string{"id": resp.ID},
	}, nil
}

func finishReason(r anthropic.MessagesStopReason) string {
	switch r {
	case anthropic.MessagesStopReasonEndTurn, anthropic.MessagesStopReasonStopSequence:
		return llm.FinishStop
	case anthropic.MessagesStopReasonToolUse:
		return llm.FinishToolCalls
	case anthropic.MessagesStopReasonMaxTokens:
		return llm.FinishLength
	default:
		return string(r)
	}
}

// Completion implements llm.Client interface
func (c *Client) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	return c.Chat(ctx, &llm.ChatRequest{Messages: []llm.Message{llm.UserMessage(prompt)}})
}

// Stream implements llm.Client interface
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, output chan<- *llm.Response) error {
	defer close(output)

	base, err := c.buildRequest(req)
	if err != nil {
		return err
	}
	model := string(base.Model)
	anthReq := anthropic.MessagesStreamRequest{
		MessagesRequest: base,
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			if data.Delta.Text == nil || *data.Delta.Text == "" {
				return
			}
			select {
			case output <- &llm.Response{Content: *data.Delta.Text, Role: "assistant", Model: model, Provider: llm.ProviderAnthropic}:
			case <-ctx.Done():
			}
		},
	}
	if _, err := c.client.CreateMessagesStream(ctx, anthReq); err != nil {
		return convertError(err)
	}
	return nil
}

func convertError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		errorType := llm.ErrorTypeUnknown
		switch string(apiErr.Type) {
		case "rate_limit_error":
			errorType = llm.ErrorTypeRateLimit
		case "overloaded_error", "api_error":
			errorType = llm.ErrorTypeServerError
		case "invalid_request_error":
			errorType = llm.ErrorTypeInvalidRequest
		case "authentication_error":
			errorType = llm.ErrorTypeAuthentication
		case "permission_error":
			errorType = llm.ErrorTypePermission
		case "not_found_error":
			errorType = llm.ErrorTypeNotFound
		}
		llmErr := llm.NewLLMErrorWithCause(llm.ProviderAnthropic, errorType, apiErr.Message, err)
		llmErr.Code = string(apiErr.Type)
		return llmErr
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderAnthropic, reqErr.StatusCode, reqErr.Error())
		llmErr.Cause = err
		return llmErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeTimeout, "request timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeConnectionError, err.Error(), err)
}

func (c *Client) Model() string          { return c.config.Model }
func (c *Client) Provider() llm.Provider { return llm.ProviderAnthropic }
func (c *Client) Validate() error        { return validateConfig(c.config) }
