package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/liliang-cn/sqvect/v2/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

const testDim = 4

func newRetrieval(t *testing.T, embedder EmbeddingProvider) *RetrievalService {
	t.Helper()

	spaces := &EmbeddingSpaceRegistry{spaces: map[string]EmbeddingSpace{
		"ollama": {
			ProviderID:      "ollama",
			CollectionName:  "lending_docs_ollama",
			PersistencePath: filepath.Join(t.TempDir(), "vectors.db"),
			Tag:             SpaceTag("ollama", "nomic-embed-text", testDim),
			Dimensions:      testDim,
		},
	}}

	cfg := &config.RetrievalConfig{TopK: 5, MaxContextChars: 12000, PromptVersion: "v1"}
	cache := NewEmbeddingCache(nil, 0)

	retrieval, err := NewRetrievalService(cfg, spaces, embedder, cache, NewEventLog())
	require.NoError(t, err)
	t.Cleanup(func() { retrieval.Close() })
	return retrieval
}

func seedChunk(t *testing.T, r *RetrievalService, id, content, tag string) {
	t.Helper()
	require.NoError(t, r.store.Upsert(context.Background(), &core.Embedding{
		ID:         id,
		Collection: r.space.CollectionName,
		Vector:     []float32{0.1, 0.2, 0.3, 0.4},
		Content:    content,
		Metadata: map[string]string{
			chunkMetaSourceDoc: "lending-policy.pdf",
			chunkMetaPage:      "3",
			chunkMetaSpaceTag:  tag,
		},
	}))
}

func TestSearchReturnsTaggedChunks(t *testing.T) {
	embedder := &fakeEmbedder{dim: testDim, tag: SpaceTag("ollama", "nomic-embed-text", testDim)}
	r := newRetrieval(t, embedder)

	seedChunk(t, r, "chunk-1", "KYC documents required for digital lending", r.space.Tag)
	seedChunk(t, r, "chunk-2", "Limit assignment runs monthly", r.space.Tag)

	chunks, err := r.Search(context.Background(), "req-1", "what documents are required?")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, sc := range chunks {
		assert.Equal(t, r.space.Tag, sc.Chunk.EmbeddingSpaceTag)
		assert.Equal(t, "lending-policy.pdf", sc.Chunk.SourceDoc)
		assert.Equal(t, 3, sc.Chunk.Page)
	}
}

func TestSearchEmbeddingSpaceMismatch(t *testing.T) {
	embedder := &fakeEmbedder{dim: testDim, tag: SpaceTag("ollama", "nomic-embed-text", testDim)}
	r := newRetrieval(t, embedder)

	// A chunk indexed under a different provider's space; the collection was
	// switched without re-indexing.
	seedChunk(t, r, "stale-1", "stale content", SpaceTag("gemini", "text-embedding-004", testDim))

	_, err := r.Search(context.Background(), "req-2", "anything")
	require.Error(t, err)
	assert.Equal(t, model.KindEmbeddingSpaceMismatch, model.KindOf(err))
}

func TestSearchEmptyCollection(t *testing.T) {
	embedder := &fakeEmbedder{dim: testDim, tag: SpaceTag("ollama", "nomic-embed-text", testDim)}
	r := newRetrieval(t, embedder)

	chunks, err := r.Search(context.Background(), "req-3", "anything")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestAdaptiveK(t *testing.T) {
	r := &RetrievalService{cfg: &config.RetrievalConfig{AdaptiveK: true, TopK: 5}}

	assert.Equal(t, 3, r.topK("short query"))
	assert.Equal(t, 5, r.topK("one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen"))
	assert.Equal(t, 7, r.topK("w w w w w w w w w w w w w w w w w w w w w w w w w"))

	fixed := &RetrievalService{cfg: &config.RetrievalConfig{AdaptiveK: false, TopK: 5}}
	assert.Equal(t, 5, fixed.topK("short query"))
}
