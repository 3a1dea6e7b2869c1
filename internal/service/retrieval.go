package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/liliang-cn/sqvect/v2/pkg/core"
	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

// Chunk metadata keys inside the vector store.
const (
	chunkMetaSourceDoc = "source_doc"
	chunkMetaPage      = "page"
	chunkMetaSpaceTag  = "embedding_space_tag"
)

// RetrievalService embeds queries and runs top-k similarity search in the
// collection the space registry assigns to the active embedding provider.
// Every returned chunk is safety-checked against the provider's space tag.
type RetrievalService struct {
	embedder EmbeddingProvider
	space    EmbeddingSpace
	store    *core.SQLiteStore
	cache    *EmbeddingCache
	cfg      *config.RetrievalConfig
	events   *EventLog
}

// NewRetrievalService resolves the active provider's collection from the
// space registry and opens the vector store at its persisted path.
func NewRetrievalService(cfg *config.RetrievalConfig, spaces *EmbeddingSpaceRegistry, embedder EmbeddingProvider, cache *EmbeddingCache, events *EventLog) (*RetrievalService, error) {
	space, err := spaces.Resolve(embedder.ProviderID())
	if err != nil {
		return nil, err
	}

	store, err := core.New(space.PersistencePath, space.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store at %s: %w", space.PersistencePath, err)
	}
	if err := store.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	if _, err := store.GetCollection(context.Background(), space.CollectionName); err != nil {
		if _, err := store.CreateCollection(context.Background(), space.CollectionName, space.Dimensions); err != nil {
			return nil, fmt.Errorf("failed to create collection %s: %w", space.CollectionName, err)
		}
	}

	log.Info().
		Str("provider", embedder.ProviderID()).
		Str("collection", space.CollectionName).
		Str("path", space.PersistencePath).
		Int("dimensions", space.Dimensions).
		Msg("Vector store opened")

	return &RetrievalService{
		embedder: embedder,
		space:    space,
		store:    store,
		cache:    cache,
		cfg:      cfg,
		events:   events,
	}, nil
}

// Close releases the vector store.
func (r *RetrievalService) Close() error {
	return r.store.Close()
}

// Search embeds the query and returns the top-k chunks sorted by distance,
// lower meaning more similar.
func (r *RetrievalService) Search(ctx context.Context, requestID, query string) ([]model.ScoredChunk, error) {
	ev := r.events.Begin(requestID, "retrieval", "search").
		WithTextHash("query_hash", query)

	k := r.topK(query)

	vector, cached := r.cache.Get(ctx, query, r.embedder.ProviderID())
	if !cached {
		var err error
		vector, err = r.embedder.EmbedQuery(ctx, query)
		if err != nil {
			ev.WithError(err).Emit()
			return nil, err
		}
		r.cache.Put(ctx, query, r.embedder.ProviderID(), vector)
	}

	if len(vector) != r.space.Dimensions {
		err := model.NewAppError(model.KindProviderInvalidResponse,
			fmt.Sprintf("query vector has dimension %d, collection expects %d", len(vector), r.space.Dimensions))
		ev.WithError(err).Emit()
		return nil, err
	}

	scored, err := r.store.Search(ctx, vector, core.SearchOptions{
		Collection: r.space.CollectionName,
		TopK:       k,
	})
	if err != nil {
		ev.WithError(err).Emit()
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	chunks := make([]model.ScoredChunk, 0, len(scored))
	for _, hit := range scored {
		chunk, err := r.toChunk(hit)
		if err != nil {
			ev.WithError(err).Emit()
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	ev.WithField("k", k).
		WithField("cache_hit", cached).
		WithField("retrieved", len(chunks)).
		Emit()
	return chunks, nil
}

// toChunk converts a store hit and enforces the embedding-space invariant:
// the chunk's tag must equal the active provider's tag, unconditionally.
func (r *RetrievalService) toChunk(hit core.ScoredEmbedding) (model.ScoredChunk, error) {
	tag := hit.Metadata[chunkMetaSpaceTag]
	if tag != r.space.Tag {
		return model.ScoredChunk{}, model.NewAppError(model.KindEmbeddingSpaceMismatch,
			fmt.Sprintf("chunk %s carries tag %q, collection expects %q", hit.ID, tag, r.space.Tag))
	}

	page := 0
	if p := hit.Metadata[chunkMetaPage]; p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			page = n
		}
	}

	return model.ScoredChunk{
		Chunk: model.VectorChunk{
			ChunkID:           hit.ID,
			SourceDoc:         hit.Metadata[chunkMetaSourceDoc],
			Page:              page,
			Content:           hit.Content,
			EmbeddingSpaceTag: tag,
		},
		// The store reports cosine similarity; expose distance so lower is
		// always more similar at this boundary.
		Distance: 1.0 - hit.Score,
	}, nil
}

// topK picks k: fixed by default, clamp(word_count/3, 3, 7) when adaptive.
func (r *RetrievalService) topK(query string) int {
	if !r.cfg.AdaptiveK {
		if r.cfg.TopK > 0 {
			return r.cfg.TopK
		}
		return 5
	}
	words := len(strings.Fields(query))
	k := words / 3
	if k < 3 {
		k = 3
	}
	if k > 7 {
		k = 7
	}
	return k
}
