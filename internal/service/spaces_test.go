package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

func testProvidersConfig() *config.ProvidersConfig {
	return &config.ProvidersConfig{
		EmbeddingProvider:  "ollama",
		GenerationProvider: "ollama",
		Ollama: config.ProviderConfig{
			EmbeddingModel:  "nomic-embed-text",
			Dimensions:      768,
			PersistencePath: "data/vectors_ollama.db",
		},
		Gemini: config.ProviderConfig{
			EmbeddingModel:  "text-embedding-004",
			Dimensions:      768,
			PersistencePath: "data/vectors_gemini.db",
		},
	}
}

func TestResolveSpaces(t *testing.T) {
	registry := NewEmbeddingSpaceRegistry(testProvidersConfig())

	ollama, err := registry.Resolve("ollama")
	require.NoError(t, err)
	assert.Equal(t, "lending_docs_ollama", ollama.CollectionName)
	assert.Equal(t, "ollama:nomic-embed-text:dim=768", ollama.Tag)
	assert.Equal(t, "data/vectors_ollama.db", ollama.PersistencePath)

	gemini, err := registry.Resolve("gemini")
	require.NoError(t, err)
	assert.Equal(t, "gemini:text-embedding-004:dim=768", gemini.Tag)
	assert.NotEqual(t, ollama.PersistencePath, gemini.PersistencePath)

	_, err = registry.Resolve("unknown")
	assert.Error(t, err)
}

func TestVerifyDimensions(t *testing.T) {
	registry := NewEmbeddingSpaceRegistry(testProvidersConfig())

	assert.NoError(t, registry.VerifyDimensions("ollama", 768))

	err := registry.VerifyDimensions("ollama", 1024)
	require.Error(t, err)
	assert.Equal(t, model.KindProviderDimensionMismatch, model.KindOf(err))
}
