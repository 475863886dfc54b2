/*
Package vectorstore provides the nearest-neighbor index contract consumed by
the memory engine, an exact-scan in-memory implementation for tests and small
deployments, and an embedded chromem-go backend.

The index holds a derived, rebuildable view: it is never the source of truth,
and losing it must be recoverable by a full rebuild from the metadata store.
*/
package vectorstore

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kaivyy/kabot-sub001/retrieval"
)

// Hit is one nearest-neighbor result. Distance follows the cosine-distance
// convention; similarity = 1 - distance.
type Hit struct {
	ID        string            `json:"id"`
	Document  string            `json:"document"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"-"`
	Distance  float64           `json:"distance"`
}

// Similarity converts the hit's distance to a similarity score.
func (h Hit) Similarity() float64 { return 1.0 - h.Distance }

// VectorIndex is a nearest-neighbor search index filterable by metadata
// equality (session scoping uses the "session_id" key; a nil filter means
// global). The internal algorithm is a black box.
type VectorIndex interface {
	// Add upserts one embedded document.
	Add(ctx context.Context, id string, embedding []float32, document string, metadata map[string]string) error

	// Query returns up to k hits ranked by ascending distance.
	Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]Hit, error)

	// Delete removes documents by id, best-effort.
	Delete(ctx context.Context, ids ...string) error

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)
}

type memoryEntry struct {
	id        string
	embedding []float32
	document  string
	metadata  map[string]string
}

// InMemoryVectorIndex is an exact cosine scan over an in-memory slice.
// Suitable for tests and single-conversation corpora.
type InMemoryVectorIndex struct {
	mu      sync.RWMutex
	entries []memoryEntry
	logger  *zap.Logger
}

// NewInMemoryVectorIndex creates an empty index.
func NewInMemoryVectorIndex(logger *zap.Logger) *InMemoryVectorIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorIndex{
		logger: logger.With(zap.String("component", "vector_index_inmemory")),
	}
}

// Add implements VectorIndex.
func (x *InMemoryVectorIndex) Add(ctx context.Context, id string, embedding []float32, document string, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	entry := memoryEntry{id: id, embedding: embedding, document: document, metadata: metadata}
	for i := range x.entries {
		if x.entries[i].id == id {
			x.entries[i] = entry
			return nil
		}
	}
	x.entries = append(x.entries, entry)
	return nil
}

// Query implements VectorIndex.
func (x *InMemoryVectorIndex) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	hits := make([]Hit, 0, k)
	for _, e := range x.entries {
		if !matchesFilter(e.metadata, filter) {
			continue
		}
		sim := retrieval.CosineSimilarity(embedding, e.embedding)
		hits = append(hits, Hit{
			ID:        e.id,
			Document:  e.document,
			Metadata:  e.metadata,
			Embedding: e.embedding,
			Distance:  1.0 - sim,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete implements VectorIndex.
func (x *InMemoryVectorIndex) Delete(ctx context.Context, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	kept := x.entries[:0]
	for _, e := range x.entries {
		if !remove[e.id] {
			kept = append(kept, e)
		}
	}
	x.entries = kept
	return nil
}

// Count implements VectorIndex.
func (x *InMemoryVectorIndex) Count(ctx context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries), nil
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
