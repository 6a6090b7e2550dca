// Package bedrock implements llm.Client on the Amazon Bedrock Converse API.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/KamdynS/bedrock-agents/llm"
)

// ConverseAPI is the subset of *bedrockruntime.Client used for chat.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// eventReader matches *bedrockruntime.ConverseStreamEventStream.
type eventReader interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// Config holds Bedrock-specific configuration
type Config struct {
	Model       string          `json:"model" yaml:"model"` // model id or inference profile id
	Region      string          `json:"region,omitempty" yaml:"region"`
	Temperature float64         `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Timeout     time.Duration   `json:"timeout,omitempty" yaml:"timeout"`
	GuardrailID string          `json:"guardrail_id,omitempty" yaml:"guardrail_id"`
	GuardrailV  string          `json:"guardrail_version,omitempty" yaml:"guardrail_version"`
	RetryConfig llm.RetryConfig `json:"retry_config,omitempty" yaml:"retry"`
}

// Client implements llm.Client for Bedrock models.
type Client struct {
	api     ConverseAPI
	config  Config
	retrier *llm.Retrier

	openStream func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (eventReader, error)
}

// NewClient creates a Bedrock chat client around api (usually bedrockruntime.NewFromConfig(awsCfg)).
func NewClient(config Config, api ConverseAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("invalid config: bedrock runtime client is required")
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Model == "" {
		config.Model = llm.ModelBedrockClaude35Haiku
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

	c := &Client{
		api:     api,
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig),
	}
	c.openStream = func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (eventReader, error) {
		out, err := c.api.ConverseStream(ctx, in)
		if err != nil {
			return nil, err
		}
		return out.GetStream(), nil
	}
	return c, nil
}

func validateConfig(config Config) error {
	if config.Model != "" {
		if model, err := llm.GetModel(config.Model); err == nil && model.Provider != llm.ProviderBedrock {
			return fmt.Errorf("model %s is not a Bedrock model", config.Model)
		}
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	if (config.GuardrailID == "") != (config.GuardrailV == "") {
		return fmt.Errorf("guardrail id and version must be set together")
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

func (c *Client) chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	in, err := c.buildInput(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	out, err := c.api.Converse(ctx, in)
	if err != nil {
		return nil, translateError(c.config.Model, err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, llm.NewLLMError(llm.ProviderBedrock, llm.ErrorTypeUnknown, "converse returned no message")
	}

	resp := &llm.Response{
		Role:         "assistant",
		Model:        aws.ToString(in.ModelId),
		Provider:     llm.ProviderBedrock,
		FinishReason: finishReason(out.StopReason),
	}
	var text []string
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text = append(text, b.Value)
		case *types.ContentBlockMemberToolUse:
			args, err := documentJSON(b.Value.Input)
			if err != nil {
				return nil, llm.NewLLMErrorWithCause(llm.ProviderBedrock, llm.ErrorTypeJSONParsingError, "decode tool input", err)
			}
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:       aws.ToString(b.Value.ToolUseId),
				Type:     "function",
				Function: llm.Function{Name: aws.ToString(b.Value.Name), Arguments: args},
			})
		}
	}
	resp.Content = strings.Join(text, "")
	if out.Usage != nil {
		resp.Usage = &llm.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
		if model, err := llm.GetModel(resp.Model); err == nil {
			resp.Usage.Cost = model.EstimateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		}
	}
	return resp, nil
}

// Completion implements llm.Client interface
func (c *Client) Completion(ctx context.Context, prompt string) (*llm.Response, error) {
	return c.Chat(ctx, &llm.ChatRequest{Messages: []llm.Message{llm.UserMessage(prompt)}})
}

// Stream implements llm.Client interface. Only text deltas are forwarded; the
// final chunk carries the finish reason and usage.
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, output chan<- *llm.Response) error {
	defer close(output)

	in, err := c.buildInput(req)
	if err != nil {
		return err
	}
	streamIn := &bedrockruntime.ConverseStreamInput{
		ModelId:                      in.ModelId,
		Messages:                     in.Messages,
		System:                       in.System,
		InferenceConfig:              in.InferenceConfig,
		ToolConfig:                   in.ToolConfig,
		AdditionalModelRequestFields: in.AdditionalModelRequestFields,
	}
	if g := in.GuardrailConfig; g != nil {
		streamIn.GuardrailConfig = &types.GuardrailStreamConfiguration{
			GuardrailIdentifier: g.GuardrailIdentifier,
			GuardrailVersion:    g.GuardrailVersion,
			Trace:               g.Trace,
			// nothing reaches the caller before the guardrail has seen it
			StreamProcessingMode: types.GuardrailStreamProcessingModeSync,
		}
	}
	stream, err := c.openStream(ctx, streamIn)
	if err != nil {
		return translateError(c.config.Model, err)
	}
	defer stream.Close()

	final := &llm.Response{Role: "assistant", Model: aws.ToString(in.ModelId), Provider: llm.ProviderBedrock}
	for event := range stream.Events() {
		switch e := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			if d, ok := e.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && d.Value != "" {
				select {
				case output <- &llm.Response{Content: d.Value, Role: "assistant", Model: final.Model, Provider: llm.ProviderBedrock}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case *types.ConverseStreamOutputMemberMessageStop:
			final.FinishReason = finishReason(e.Value.StopReason)
		case *types.ConverseStreamOutputMemberMetadata:
			if u := e.Value.Usage; u != nil {
				final.Usage = &llm.Usage{
					InputTokens:  int(aws.ToInt32(u.InputTokens)),
					OutputTokens: int(aws.ToInt32(u.OutputTokens)),
					TotalTokens:  int(aws.ToInt32(u.TotalTokens)),
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return translateError(c.config.Model, err)
	}
	select {
	case output <- final:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *Client) Model() string          { return c.config.Model }
func (c *Client) Provider() llm.Provider { return llm.ProviderBedrock }
func (c *Client) Validate() error        { return validateConfig(c.config) }

func (c *Client) buildInput(req *llm.ChatRequest) (*bedrockruntime.ConverseInput, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, llm.NewLLMError(llm.ProviderBedrock, llm.ErrorTypeInvalidRequest, "at least one message is required")
	}
	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	system, messages, err := convertMessages(req)
	if err != nil {
		return nil, err
	}

	inf := &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(c.config.MaxTokens))}
	if req.MaxTokens != nil {
		inf.MaxTokens = aws.Int32(int32(*req.MaxTokens))
	}
	if req.Temperature != nil {
		inf.Temperature = aws.Float32(float32(*req.Temperature))
	} else if c.config.Temperature > 0 {
		inf.Temperature = aws.Float32(float32(c.config.Temperature))
	}
	if req.TopP != nil {
		inf.TopP = aws.Float32(float32(*req.TopP))
	}
	if len(req.Stop) > 0 {
		inf.StopSequences = req.Stop
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(model),
		Messages:        messages,
		System:          system,
		InferenceConfig: inf,
	}
	if len(req.Tools) > 0 && req.ToolChoice != "none" {
		in.ToolConfig = convertTools(req.Tools, req.ToolChoice)
	}
	if c.config.GuardrailID != "" {
		in.GuardrailConfig = &types.GuardrailConfiguration{
			GuardrailIdentifier: aws.String(c.config.GuardrailID),
			GuardrailVersion:    aws.String(c.config.GuardrailV),
		}
	}
	return in, nil
}

// convertMessages maps llm messages onto Converse turns. Consecutive tool
// results are folded into one user turn, as Converse requires alternating roles.
func convertMessages(req *llm.ChatRequest) ([]types.SystemContentBlock, []types.Message, error) {
	var system []types.SystemContentBlock
	if req.SystemPrompt != "" {
		system = append(system, &types.SystemContentBlockMemberText{Value: req.SystemPrompt})
	}

	var out []types.Message
	appendBlock := func(role types.ConversationRole, block types.ContentBlock) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			return
		}
		out = append(out, types.Message{Role: role, Content: []types.ContentBlock{block}})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			system = append(system, &types.SystemContentBlockMemberText{Value: msg.Content})
		case "user":
			appendBlock(types.ConversationRoleUser, &types.ContentBlockMemberText{Value: msg.Content})
		case "assistant":
			if msg.Content != "" {
				appendBlock(types.ConversationRoleAssistant, &types.ContentBlockMemberText{Value: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
						return nil, nil, llm.NewLLMErrorWithCause(llm.ProviderBedrock, llm.ErrorTypeInvalidRequest, "tool call arguments must be a JSON object", err)
					}
				}
				if input == nil {
					input = map[string]interface{}{}
				}
				appendBlock(types.ConversationRoleAssistant, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Function.Name),
					Input:     document.NewLazyDocument(input),
				}})
			}
		case "tool":
			status := types.ToolResultStatusSuccess
			if strings.HasPrefix(msg.Content, "error:") {
				status = types.ToolResultStatusError
			}
			appendBlock(types.ConversationRoleUser, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
				ToolUseId: aws.String(msg.ToolCallID),
				Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: msg.Content}},
				Status:    status,
			}})
		default:
			return nil, nil, llm.NewLLMError(llm.ProviderBedrock, llm.ErrorTypeInvalidRequest, "unsupported role "+msg.Role)
		}
	}
	if len(out) == 0 || out[0].Role != types.ConversationRoleUser {
		return nil, nil, llm.NewLLMError(llm.ProviderBedrock, llm.ErrorTypeInvalidRequest, "conversation must start with a user message")
	}
	return system, out, nil
}

func convertTools(tools []llm.Tool, choice string) *types.ToolConfiguration {
	cfg := &types.ToolConfiguration{}
	for _, t := range tools {
		schema := t.Function.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Function.Name),
			Description: aws.String(t.Function.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	switch choice {
	case "", "auto":
		cfg.ToolChoice = &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
	case "any", "required":
		cfg.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
	default:
		cfg.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(choice)}}
	}
	return cfg
}

func documentJSON(doc document.Interface) (string, error) {
	if doc == nil {
		return "{}", nil
	}
	b, err := doc.MarshalSmithyDocument()
	if err != nil {
		return "", err
	}
	if len(b) == 0 || string(b) == "null" {
		return "{}", nil
	}
	return string(b), nil
}

func finishReason(r types.StopReason) string {
	switch r {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return llm.FinishStop
	case types.StopReasonToolUse:
		return llm.FinishToolCalls
	case types.StopReasonMaxTokens:
		return llm.FinishLength
	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		return llm.FinishFiltered
	default:
		return string(r)
	}
}

// translateError maps SDK errors onto llm.LLMError.
func translateError(model string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewLLMErrorWithCause(llm.ProviderBedrock, llm.ErrorTypeTimeout, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		e := llm.ParseAWSErrorCode(llm.ProviderBedrock, apiErr.ErrorCode(), apiErr.ErrorMessage())
		e.Model = model
		e.Cause = err
		return e
	}
	return llm.NewLLMErrorWithCause(llm.ProviderBedrock, llm.ErrorTypeConnectionError, err.Error(), err)
}
