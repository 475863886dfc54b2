package vectorstore

import (
	"context"
	"fmt"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemIndex backs the VectorIndex contract with chromem-go, a pure-Go
// embedded vector database. With a persistence path the collection survives
// restarts; it is still only a derived view over the metadata store.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
}

// NewChromemIndex creates (or reopens) a chromem collection. An empty path
// keeps everything in memory.
func NewChromemIndex(path, collection string, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collection == "" {
		collection = "memory"
	}

	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	// Embeddings are always supplied explicitly, so no embedding func is
	// needed; chromem only calls it for text-based operations we never use.
	col, err := db.GetOrCreateCollection(collection, nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("text embedding not supported; supply embeddings explicitly")
	})
	if err != nil {
		return nil, fmt.Errorf("create chromem collection: %w", err)
	}

	return &ChromemIndex{
		db:         db,
		collection: col,
		logger:     logger.With(zap.String("component", "vector_index_chromem")),
	}, nil
}

// Add implements VectorIndex.
func (x *ChromemIndex) Add(ctx context.Context, id string, embedding []float32, document string, metadata map[string]string) error {
	err := x.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   document,
		Embedding: embedding,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("chromem add document: %w", err)
	}
	return nil
}

// Query implements VectorIndex. chromem requires k <= collection size, so k
// is clamped; an empty collection yields no hits.
func (x *ChromemIndex) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]Hit, error) {
	count := x.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := x.collection.QueryEmbedding(ctx, embedding, k, filter, nil)
	if err != nil {
		if isInsufficientResults(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:        r.ID,
			Document:  r.Content,
			Metadata:  r.Metadata,
			Embedding: r.Embedding,
			Distance:  1.0 - float64(r.Similarity),
		})
	}
	return hits, nil
}

// Delete implements VectorIndex.
func (x *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

// Count implements VectorIndex.
func (x *ChromemIndex) Count(ctx context.Context) (int, error) {
	return x.collection.Count(), nil
}

// chromem errors when asked for more results than it holds, including the
// filtered case we cannot pre-count. Treat that as "fewer hits", not failure.
func isInsufficientResults(err error) bool {
	return err != nil && strings.Contains(err.Error(), "nResults")
}
