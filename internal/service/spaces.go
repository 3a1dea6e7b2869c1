package service

import (
	"fmt"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

// EmbeddingSpace describes where one provider's vectors live and how they are
// tagged. Population and query flows must both derive their collection choice
// from the registry; nothing else names collections.
type EmbeddingSpace struct {
	ProviderID      string
	CollectionName  string
	PersistencePath string
	Tag             string
	Dimensions      int
}

// SpaceTag formats the canonical embedding-space tag.
func SpaceTag(provider, embeddingModel string, dimensions int) string {
	return fmt.Sprintf("%s:%s:dim=%d", provider, embeddingModel, dimensions)
}

// EmbeddingSpaceRegistry is the single source of truth mapping provider
// identity to collection identity. Read-only after construction.
type EmbeddingSpaceRegistry struct {
	spaces map[string]EmbeddingSpace
}

// NewEmbeddingSpaceRegistry builds the registry from the provider settings.
func NewEmbeddingSpaceRegistry(cfg *config.ProvidersConfig) *EmbeddingSpaceRegistry {
	spaces := map[string]EmbeddingSpace{
		"ollama": {
			ProviderID:      "ollama",
			CollectionName:  "lending_docs_ollama",
			PersistencePath: cfg.Ollama.PersistencePath,
			Tag:             SpaceTag("ollama", cfg.Ollama.EmbeddingModel, cfg.Ollama.Dimensions),
			Dimensions:      cfg.Ollama.Dimensions,
		},
		"gemini": {
			ProviderID:      "gemini",
			CollectionName:  "lending_docs_gemini",
			PersistencePath: cfg.Gemini.PersistencePath,
			Tag:             SpaceTag("gemini", cfg.Gemini.EmbeddingModel, cfg.Gemini.Dimensions),
			Dimensions:      cfg.Gemini.Dimensions,
		},
	}
	return &EmbeddingSpaceRegistry{spaces: spaces}
}

// Resolve returns the space for a provider id.
func (r *EmbeddingSpaceRegistry) Resolve(providerID string) (EmbeddingSpace, error) {
	space, ok := r.spaces[providerID]
	if !ok {
		return EmbeddingSpace{}, model.NewAppError(model.KindConfigSchema,
			fmt.Sprintf("unknown embedding provider %q", providerID))
	}
	return space, nil
}

// VerifyDimensions checks a provider's declared vector dimension against the
// registry. Mismatch is startup-fatal.
func (r *EmbeddingSpaceRegistry) VerifyDimensions(providerID string, declared int) error {
	space, err := r.Resolve(providerID)
	if err != nil {
		return err
	}
	if declared != space.Dimensions {
		return model.NewAppError(model.KindProviderDimensionMismatch,
			fmt.Sprintf("provider %s declares dimension %d, registry expects %d", providerID, declared, space.Dimensions))
	}
	return nil
}
