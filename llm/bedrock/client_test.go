package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/bedrock-agents/llm"
)

type fakeConverse struct {
	inputs  []*bedrockruntime.ConverseInput
	outputs []*bedrockruntime.ConverseOutput
	errs    []error
}

func (f *fakeConverse) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.inputs = append(f.inputs, in)
	i := len(f.inputs) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.outputs[i], nil
}

func (f *fakeConverse) ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, errors.New("not used")
}

func textOutput(text string, stop types.StopReason) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
		}},
		StopReason: stop,
		Usage:      &types.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5), TotalTokens: aws.Int32(15)},
	}
}

func newTestClient(t *testing.T, api ConverseAPI) *Client {
	t.Helper()
	c, err := NewClient(Config{Model: llm.ModelBedrockClaude35Haiku, RetryConfig: llm.FixedRetryConfig(1, time.Millisecond)}, api)
	require.NoError(t, err)
	return c
}

func TestChatText(t *testing.T) {
	api := &fakeConverse{outputs: []*bedrockruntime.ConverseOutput{textOutput("hello there", types.StopReasonEndTurn)}}
	c := newTestClient(t, api)

	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		SystemPrompt: "be brief",
		Messages:     []llm.Message{llm.UserMessage("hi")},
		Temperature:  llm.Float(0.2),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, llm.FinishStop, resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Greater(t, resp.Usage.Cost, 0.0)

	in := api.inputs[0]
	assert.Equal(t, llm.ModelBedrockClaude35Haiku, aws.ToString(in.ModelId))
	require.Len(t, in.System, 1)
	assert.Equal(t, "be brief", in.System[0].(*types.SystemContentBlockMemberText).Value)
	assert.InDelta(t, 0.2, float64(aws.ToFloat32(in.InferenceConfig.Temperature)), 1e-6)
	assert.Nil(t, in.ToolConfig)
}

func TestChatToolUse(t *testing.T) {
	out := &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "Let me check."},
				&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String("tu-1"),
					Name:      aws.String("get_forecast"),
					Input:     document.NewLazyDocument(map[string]interface{}{"latitude": 47.6, "longitude": -122.3}),
				}},
			},
		}},
		StopReason: types.StopReasonToolUse,
	}
	api := &fakeConverse{outputs: []*bedrockruntime.ConverseOutput{out}}
	c := newTestClient(t, api)

	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("weather in seattle?")},
		Tools: []llm.Tool{{Type: "function", Function: llm.ToolFunction{
			Name:        "get_forecast",
			Description: "Get a forecast",
			Parameters:  map[string]interface{}{"type": "object"},
		}}},
	})
	require.NoError(t, err)
	assert.Equal(t, llm.FinishToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu-1", resp.ToolCalls[0].ID)

	var args map[string]float64
	require.NoError(t, json.Unmarshal([]byte(resp.ToolCalls[0].Function.Arguments), &args))
	assert.InDelta(t, 47.6, args["latitude"], 1e-9)

	cfg := api.inputs[0].ToolConfig
	require.NotNil(t, cfg)
	require.Len(t, cfg.Tools, 1)
	_, auto := cfg.ToolChoice.(*types.ToolChoiceMemberAuto)
	assert.True(t, auto)
}

func TestConvertMessagesFoldsToolResults(t *testing.T) {
	req := &llm.ChatRequest{Messages: []llm.Message{
		llm.UserMessage("compare"),
		{Role: "assistant", ToolCalls: []llm.ToolCall{
			{ID: "a", Function: llm.Function{Name: "quote", Arguments: `{"symbol":"AMZN"}`}},
			{ID: "b", Function: llm.Function{Name: "quote", Arguments: `{"symbol":"MSFT"}`}},
		}},
		{Role: "tool", ToolCallID: "a", Content: "190.1"},
		{Role: "tool", ToolCallID: "b", Content: "error: upstream timeout"},
	}}
	system, msgs, err := convertMessages(req)
	require.NoError(t, err)
	assert.Empty(t, system)
	require.Len(t, msgs, 3)
	assert.Equal(t, types.ConversationRoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Content, 2)
	require.Len(t, msgs[2].Content, 2)
	second := msgs[2].Content[1].(*types.ContentBlockMemberToolResult)
	assert.Equal(t, types.ToolResultStatusError, second.Value.Status)
}

func TestConvertMessagesRejectsAssistantFirst(t *testing.T) {
	_, _, err := convertMessages(&llm.ChatRequest{Messages: []llm.Message{{Role: "assistant", Content: "hi"}}})
	require.Error(t, err)
}

func TestChatRetriesThrottling(t *testing.T) {
	api := &fakeConverse{
		errs:    []error{&smithy.GenericAPIError{Code: "ThrottlingException", Message: "Too many requests"}},
		outputs: []*bedrockruntime.ConverseOutput{nil, textOutput("ok", types.StopReasonEndTurn)},
	}
	c := newTestClient(t, api)
	resp, err := c.Completion(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Len(t, api.inputs, 2)
}

func TestChatAccessDeniedNotRetried(t *testing.T) {
	api := &fakeConverse{errs: []error{&smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no access"}}}
	c := newTestClient(t, api)
	_, err := c.Completion(context.Background(), "ping")
	require.Error(t, err)
	assert.True(t, llm.IsAuthenticationError(err))
	assert.Len(t, api.inputs, 1)
}

type fakeStream struct {
	events chan types.ConverseStreamOutput
	err    error
}

func (f *fakeStream) Events() <-chan types.ConverseStreamOutput { return f.events }
func (f *fakeStream) Close() error                              { return nil }
func (f *fakeStream) Err() error                                { return f.err }

func TestStream(t *testing.T) {
	c := newTestClient(t, &fakeConverse{})
	fs := &fakeStream{events: make(chan types.ConverseStreamOutput, 4)}
	fs.events <- &types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{Delta: &types.ContentBlockDeltaMemberText{Value: "Hel"}}}
	fs.events <- &types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{Delta: &types.ContentBlockDeltaMemberText{Value: "lo"}}}
	fs.events <- &types.ConverseStreamOutputMemberMessageStop{Value: types.MessageStopEvent{StopReason: types.StopReasonEndTurn}}
	close(fs.events)
	c.openStream = func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (eventReader, error) { return fs, nil }

	out := make(chan *llm.Response, 8)
	require.NoError(t, c.Stream(context.Background(), &llm.ChatRequest{Messages: []llm.Message{llm.UserMessage("hi")}}, out))

	var text string
	var last *llm.Response
	for r := range out {
		text += r.Content
		last = r
	}
	assert.Equal(t, "Hello", text)
	assert.Equal(t, llm.FinishStop, last.FinishReason)
}

func TestStreamAppliesGuardrail(t *testing.T) {
	c, err := NewClient(Config{
		Model:       llm.ModelBedrockClaude35Haiku,
		GuardrailID: "gr-1",
		GuardrailV:  "3",
		RetryConfig: llm.FixedRetryConfig(1, time.Millisecond),
	}, &fakeConverse{})
	require.NoError(t, err)
	fs := &fakeStream{events: make(chan types.ConverseStreamOutput, 1)}
	fs.events <- &types.ConverseStreamOutputMemberMessageStop{Value: types.MessageStopEvent{StopReason: types.StopReasonGuardrailIntervened}}
	close(fs.events)
	var got *bedrockruntime.ConverseStreamInput
	c.openStream = func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (eventReader, error) {
		got = in
		return fs, nil
	}

	out := make(chan *llm.Response, 4)
	require.NoError(t, c.Stream(context.Background(), &llm.ChatRequest{Messages: []llm.Message{llm.UserMessage("hi")}}, out))
	var last *llm.Response
	for r := range out {
		last = r
	}
	require.NotNil(t, got)
	require.NotNil(t, got.GuardrailConfig)
	assert.Equal(t, "gr-1", aws.ToString(got.GuardrailConfig.GuardrailIdentifier))
	assert.Equal(t, "3", aws.ToString(got.GuardrailConfig.GuardrailVersion))
	assert.Equal(t, types.GuardrailStreamProcessingModeSync, got.GuardrailConfig.StreamProcessingMode)
	assert.Equal(t, llm.FinishFiltered, last.FinishReason)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	_, err = NewClient(Config{Model: llm.ModelGPT4o}, &fakeConverse{})
	require.Error(t, err)
	_, err = NewClient(Config{GuardrailID: "gr-1"}, &fakeConverse{})
	require.Error(t, err)
}
