package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/utils"
)

// EmbeddingCache memoizes query embeddings keyed by (query text, provider).
// Redis when reachable, in-memory otherwise. Entries expire after the
// configured TTL. A cache hit never bypasses the embedding-space safety
// check; it only skips the provider call.
type EmbeddingCache struct {
	redisClient    *redis.Client
	redisAvailable bool
	entries        map[string]cacheEntry
	mu             sync.RWMutex
	ttl            time.Duration
}

type cacheEntry struct {
	vector    []float32
	expiresAt time.Time
}

// NewEmbeddingCache creates a cache with the given TTL in seconds. A TTL of
// zero disables caching entirely.
func NewEmbeddingCache(redisClient *redis.Client, ttlSeconds int) *EmbeddingCache {
	c := &EmbeddingCache{
		redisClient: redisClient,
		entries:     make(map[string]cacheEntry),
		ttl:         time.Duration(ttlSeconds) * time.Second,
	}

	if redisClient != nil {
		if err := redisClient.Ping(context.Background()).Err(); err == nil {
			c.redisAvailable = true
		} else {
			log.Warn().Msg("Redis unavailable for embedding cache, using in-memory storage only")
		}
	}

	return c
}

func cacheKey(queryText, providerID string) string {
	return fmt.Sprintf("embed:%s:%s", providerID, utils.HashText(queryText))
}

// Get returns a cached vector for (queryText, providerID), if present and
// unexpired.
func (c *EmbeddingCache) Get(ctx context.Context, queryText, providerID string) ([]float32, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	key := cacheKey(queryText, providerID)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.vector, true
	}

	if c.redisAvailable && c.redisClient != nil {
		data, err := c.redisClient.Get(ctx, key).Result()
		if err == nil {
			var vector []float32
			if err := json.Unmarshal([]byte(data), &vector); err == nil {
				c.put(key, vector)
				return vector, true
			}
		} else if err != redis.Nil {
			c.redisAvailable = false
		}
	}

	return nil, false
}

// Put stores a vector for (queryText, providerID).
func (c *EmbeddingCache) Put(ctx context.Context, queryText, providerID string, vector []float32) {
	if c.ttl <= 0 {
		return
	}
	key := cacheKey(queryText, providerID)
	c.put(key, vector)

	if c.redisAvailable && c.redisClient != nil {
		data, err := json.Marshal(vector)
		if err != nil {
			return
		}
		if err := c.redisClient.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to store embedding in Redis")
			c.redisAvailable = false
		}
	}
}

func (c *EmbeddingCache) put(key string, vector []float32) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{vector: vector, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
