/*
Package embedding defines the embedding provider contract consumed by the
memory engine and a bounded content-hash cache wrapped around it.

A provider returning a nil vector (with a nil error) signals that embeddings
are unavailable right now; callers degrade to lexical-only retrieval instead
of failing.
*/
package embedding

import "context"

// Provider turns text into a fixed-length float vector.
type Provider interface {
	// Embed returns the vector for text, or (nil, nil) when the backend is
	// unavailable and the caller should degrade gracefully.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds several texts; individual entries may be nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length this provider produces.
	Dimensions() int

	// CheckConnection reports whether the backend is reachable.
	CheckConnection(ctx context.Context) bool
}
