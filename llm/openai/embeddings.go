package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// DefaultEmbeddingModel is used when Embed is called without a model.
const DefaultEmbeddingModel = "text-embedding-3-small"

// Embed generates an embedding vector for input. Gateways map the model name
// onto a Bedrock embedding model (for example "amazon.titan-embed-text-v2:0").
func (c *Client) Embed(ctx context.Context, input string, model string) ([]float64, error) {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{input},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	out := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float64(v)
	}
	return out, nil
}

// Embedder adapts Client to rag.Embedder with a fixed model.
type Embedder struct {
	Client *Client
	Model  string
}

func (e Embedder) EmbedText(ctx context.Context, input string) ([]float64, error) {
	return e.Client.Embed(ctx, input, e.Model)
}
