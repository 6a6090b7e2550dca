package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/KamdynS/bedrock-agents/llm"
)

// InvokeModelAPI is the subset of *bedrockruntime.Client used for embeddings.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Embedder produces Titan text embeddings.
type Embedder struct {
	api        InvokeModelAPI
	model      string
	dimensions int
}

// NewEmbedder returns a Titan v2 embedder. dimensions must be 256, 512 or 1024;
// zero selects 1024.
func NewEmbedder(api InvokeModelAPI, model string, dimensions int) (*Embedder, error) {
	if api == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if model == "" {
		model = llm.ModelBedrockTitanEmbedV2
	}
	switch dimensions {
	case 0:
		dimensions = 1024
	case 256, 512, 1024:
	default:
		return nil, fmt.Errorf("unsupported embedding dimensions %d", dimensions)
	}
	return &Embedder{api: api, model: model, dimensions: dimensions}, nil
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding           []float64 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// Dimensions is the vector length produced by EmbedText.
func (e *Embedder) Dimensions() int { return e.dimensions }

// EmbedText returns a normalized embedding for input.
func (e *Embedder) EmbedText(ctx context.Context, input string) ([]float64, error) {
	if input == "" {
		return nil, errors.New("embed: empty input")
	}
	body, err := json.Marshal(titanRequest{InputText: input, Dimensions: e.dimensions, Normalize: true})
	if err != nil {
		return nil, err
	}
	out, err := e.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, translateError(e.model, err)
	}
	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, llm.NewLLMErrorWithCause(llm.ProviderBedrock, llm.ErrorTypeJSONParsingError, "decode embedding", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, llm.NewLLMError(llm.ProviderBedrock, llm.ErrorTypeUnknown, "empty embedding returned")
	}
	return resp.Embedding, nil
}
