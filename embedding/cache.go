package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"
)

// DefaultCacheSize bounds the content-hash cache. Query-side hits matter more
// than perfect recency, so FIFO eviction is sufficient.
const DefaultCacheSize = 1000

// CachedProvider wraps a Provider with a bounded content-hash-keyed cache.
// The oldest key is evicted once the cache is full. Nil embeddings (backend
// unavailable) are never cached so the next call can retry.
type CachedProvider struct {
	inner   Provider
	maxSize int

	mu      sync.Mutex
	entries map[string][]float32
	order   []string // insertion order for FIFO eviction

	logger *zap.Logger
}

// NewCachedProvider wraps inner with a cache of maxSize entries (DefaultCacheSize
// when maxSize <= 0).
func NewCachedProvider(inner Provider, maxSize int, logger *zap.Logger) *CachedProvider {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		inner:   inner,
		maxSize: maxSize,
		entries: make(map[string][]float32),
		logger:  logger.With(zap.String("component", "embedding_cache")),
	}
}

// ContentHash returns the cache key for text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed implements Provider with cache lookup in front of the inner call.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := ContentHash(text)

	c.mu.Lock()
	if vec, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return vec, nil
	}
	c.mu.Unlock()

	vec, err := c.inner.Embed(ctx, text)
	if err != nil || vec == nil {
		return vec, err
	}

	c.put(key, vec)
	return vec, nil
}

// EmbedBatch implements Provider. Cached texts are served locally; only the
// misses reach the backend.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	c.mu.Lock()
	for i, text := range texts {
		if vec, ok := c.entries[ContentHash(text)]; ok {
			result[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}
	c.mu.Unlock()

	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		if j >= len(vectors) || vectors[j] == nil {
			continue
		}
		result[idx] = vectors[j]
		c.put(ContentHash(texts[idx]), vectors[j])
	}
	return result, nil
}

// Dimensions implements Provider.
func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }

// CheckConnection implements Provider.
func (c *CachedProvider) CheckConnection(ctx context.Context) bool {
	return c.inner.CheckConnection(ctx)
}

// Len returns the current number of cached entries.
func (c *CachedProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CachedProvider) put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		return
	}
	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = vec
	c.order = append(c.order, key)
}
