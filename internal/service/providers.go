package service

import (
	"context"
	"fmt"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

// EmbeddingProvider turns text into vectors in one embedding space.
// Implementations fail with one of the PROVIDER_* error kinds.
type EmbeddingProvider interface {
	ProviderID() string
	EmbeddingSpaceTag() string
	Dimensions() int
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationProvider produces a completion from a composed message list. The
// first message may carry the system instruction. Implementations fail with
// one of the PROVIDER_* error kinds.
type GenerationProvider interface {
	ProviderID() string
	Generate(ctx context.Context, messages []model.PromptMessage) (*model.GenerationResult, error)
}

// BuildEmbeddingProvider constructs the configured embedding provider and
// verifies its declared dimension against the space registry. A mismatch is
// startup-fatal.
func BuildEmbeddingProvider(cfg *config.ProvidersConfig, spaces *EmbeddingSpaceRegistry) (EmbeddingProvider, error) {
	var provider EmbeddingProvider
	switch cfg.EmbeddingProvider {
	case "ollama":
		provider = NewOllamaProvider(&cfg.Ollama)
	case "gemini":
		provider = NewGeminiProvider(&cfg.Gemini, cfg.Temperature, cfg.MaxTokens)
	default:
		return nil, model.NewAppError(model.KindConfigSchema,
			fmt.Sprintf("unknown embedding provider %q", cfg.EmbeddingProvider))
	}

	if err := spaces.VerifyDimensions(provider.ProviderID(), provider.Dimensions()); err != nil {
		return nil, err
	}
	return provider, nil
}

// BuildGenerationProvider constructs the configured generation provider.
func BuildGenerationProvider(cfg *config.ProvidersConfig) (GenerationProvider, error) {
	switch cfg.GenerationProvider {
	case "ollama":
		return NewOllamaProvider(&cfg.Ollama), nil
	case "gemini":
		return NewGeminiProvider(&cfg.Gemini, cfg.Temperature, cfg.MaxTokens), nil
	}
	return nil, model.NewAppError(model.KindConfigSchema,
		fmt.Sprintf("unknown generation provider %q", cfg.GenerationProvider))
}
