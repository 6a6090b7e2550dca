package llm

import (
	"fmt"
	"sort"
	"strings"
)

// Model represents an LLM model with its properties
type Model struct {
	Provider     Provider     `json:"provider"`
	Name         string       `json:"name"`
	DisplayName  string       `json:"display_name"`
	Family       ModelFamily  `json:"family"`
	ContextSize  int          `json:"context_size"`
	InputCost    float64      `json:"input_cost"`  // USD per 1M input tokens
	OutputCost   float64      `json:"output_cost"` // USD per 1M output tokens
	Capabilities Capabilities `json:"capabilities"`
}

// Provider represents LLM providers
type Provider string

const (
	ProviderBedrock   Provider = "bedrock"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ModelFamily represents model families/series
type ModelFamily string

const (
	FamilyClaude3   ModelFamily = "claude-3"
	FamilyClaude35  ModelFamily = "claude-3.5"
	FamilyClaude37  ModelFamily = "claude-3.7"
	FamilyNova      ModelFamily = "nova"
	FamilyLlama3    ModelFamily = "llama-3"
	FamilyTitan     ModelFamily = "titan"
	FamilyGPT4o     ModelFamily = "gpt-4o"
	FamilyAnthropic ModelFamily = "claude-api"
)

// Capabilities represents what a model can do
type Capabilities struct {
	Chat      bool `json:"chat"`
	ToolUse   bool `json:"tool_use"`
	Vision    bool `json:"vision"`
	JSON      bool `json:"json"`
	Streaming bool `json:"streaming"`
	Embedding bool `json:"embedding"`
}

// Bedrock model ids. Cross-region inference profiles use the "us." prefix.
const (
	ModelBedrockClaude35Sonnet = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	ModelBedrockClaude35Haiku  = "anthropic.claude-3-5-haiku-20241022-v1:0"
	ModelBedrockClaude37Sonnet = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"
	ModelBedrockClaude3Haiku   = "anthropic.claude-3-haiku-20240307-v1:0"
	ModelBedrockNovaPro        = "amazon.nova-pro-v1:0"
	ModelBedrockNovaLite       = "amazon.nova-lite-v1:0"
	ModelBedrockNovaMicro      = "amazon.nova-micro-v1:0"
	ModelBedrockLlama31_70B    = "meta.llama3-1-70b-instruct-v1:0"
	ModelBedrockTitanEmbedV2   = "amazon.titan-embed-text-v2:0"
)

// Models reachable outside Bedrock.
const (
	ModelGPT4o          = "gpt-4o"
	ModelGPT4oMini      = "gpt-4o-mini"
	ModelClaude35Sonnet = "claude-3-5-sonnet-20241022"
	ModelClaude35Haiku  = "claude-3-5-haiku-20241022"
)

var chatTools = Capabilities{Chat: true, ToolUse: true, JSON: true, Streaming: true}

// AvailableModels contains all known models with their metadata
var AvailableModels = map[string]Model{
	ModelBedrockClaude35Sonnet: {ProviderBedrock, ModelBedrockClaude35Sonnet, "Claude 3.5 Sonnet v2 (Bedrock)", FamilyClaude35, 200000, 3.0, 15.0, withVision(chatTools)},
	ModelBedrockClaude35Haiku:  {ProviderBedrock, ModelBedrockClaude35Haiku, "Claude 3.5 Haiku (Bedrock)", FamilyClaude35, 200000, 0.8, 4.0, chatTools},
	ModelBedrockClaude37Sonnet: {ProviderBedrock, ModelBedrockClaude37Sonnet, "Claude 3.7 Sonnet (Bedrock)", FamilyClaude37, 200000, 3.0, 15.0, withVision(chatTools)},
	ModelBedrockClaude3Haiku:   {ProviderBedrock, ModelBedrockClaude3Haiku, "Claude 3 Haiku (Bedrock)", FamilyClaude3, 200000, 0.25, 1.25, withVision(chatTools)},
	ModelBedrockNovaPro:        {ProviderBedrock, ModelBedrockNovaPro, "Amazon Nova Pro", FamilyNova, 300000, 0.8, 3.2, withVision(chatTools)},
	ModelBedrockNovaLite:       {ProviderBedrock, ModelBedrockNovaLite, "Amazon Nova Lite", FamilyNova, 300000, 0.06, 0.24, withVision(chatTools)},
	ModelBedrockNovaMicro:      {ProviderBedrock, ModelBedrockNovaMicro, "Amazon Nova Micro", FamilyNova, 128000, 0.035, 0.14, chatTools},
	ModelBedrockLlama31_70B:    {ProviderBedrock, ModelBedrockLlama31_70B, "Llama 3.1 70B Instruct", FamilyLlama3, 128000, 0.72, 0.72, chatTools},
	ModelBedrockTitanEmbedV2:   {ProviderBedrock, ModelBedrockTitanEmbedV2, "Titan Text Embeddings V2", FamilyTitan, 8192, 0.02, 0, Capabilities{Embedding: true}},

	ModelGPT4o:          {ProviderOpenAI, ModelGPT4o, "GPT-4o", FamilyGPT4o, 128000, 2.5, 10.0, withVision(chatTools)},
	ModelGPT4oMini:      {ProviderOpenAI, ModelGPT4oMini, "GPT-4o Mini", FamilyGPT4o, 128000, 0.15, 0.6, withVision(chatTools)},
	ModelClaude35Sonnet: {ProviderAnthropic, ModelClaude35Sonnet, "Claude 3.5 Sonnet", FamilyAnthropic, 200000, 3.0, 15.0, withVision(chatTools)},
	ModelClaude35Haiku:  {ProviderAnthropic, ModelClaude35Haiku, "Claude 3.5 Haiku", FamilyAnthropic, 200000, 0.8, 4.0, chatTools},
}

func withVision(c Capabilities) Capabilities {
	c.Vision = true
	return c
}

// GetModel returns model metadata for a given model name. Bedrock inference
// profile prefixes ("us.", "eu.", "apac.") are stripped before lookup.
func GetModel(name string) (Model, error) {
	if model, ok := AvailableModels[name]; ok {
		return model, nil
	}
	for _, prefix := range []string{"us.", "eu.", "apac."} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			if model, ok := AvailableModels[rest]; ok {
				model.Name = name
				return model, nil
			}
		}
	}
	return Model{}, fmt.Errorf("unknown model: %s", name)
}

// GetModelsByProvider returns all models for a given provider, sorted by name
func GetModelsByProvider(provider Provider) []Model {
	var models []Model
	for _, model := range AvailableModels {
		if model.Provider == provider {
			models = append(models, model)
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models
}

// GetCheapestChatModel returns the cheapest chat model for a provider
func GetCheapestChatModel(provider Provider) (Model, error) {
	var cheapest Model
	found := false
	for _, model := range GetModelsByProvider(provider) {
		if !model.Capabilities.Chat {
			continue
		}
		if !found || model.InputCost+model.OutputCost < cheapest.InputCost+cheapest.OutputCost {
			cheapest = model
			found = true
		}
	}
	if !found {
		return Model{}, fmt.Errorf("no chat models found for provider: %s", provider)
	}
	return cheapest, nil
}

// ValidateModel checks if a model name is valid
func ValidateModel(name string) error {
	_, err := GetModel(name)
	return err
}

func (m Model) String() string {
	return fmt.Sprintf("%s (%s) - %s", m.DisplayName, m.Name, m.Provider)
}

// EstimateCost estimates the cost for given token counts
func (m Model) EstimateCost(inputTokens, outputTokens int) float64 {
	inputCost := (float64(inputTokens) / 1000000) * m.InputCost
	outputCost := (float64(outputTokens) / 1000000) * m.OutputCost
	return inputCost + outputCost
}
