package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryAddAndQuery(t *testing.T) {
	x := NewInMemoryVectorIndex(nil)
	ctx := context.Background()

	require.NoError(t, x.Add(ctx, "a", []float32{1, 0}, "doc a", map[string]string{"session_id": "s1"}))
	require.NoError(t, x.Add(ctx, "b", []float32{0, 1}, "doc b", map[string]string{"session_id": "s2"}))

	hits, err := x.Query(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
	assert.InDelta(t, 1.0, hits[0].Similarity(), 1e-9)
	assert.Equal(t, "doc a", hits[0].Document)
	assert.NotNil(t, hits[0].Embedding)
}

func TestInMemoryQuerySessionFilter(t *testing.T) {
	x := NewInMemoryVectorIndex(nil)
	ctx := context.Background()

	require.NoError(t, x.Add(ctx, "a", []float32{1, 0}, "doc a", map[string]string{"session_id": "s1"}))
	require.NoError(t, x.Add(ctx, "b", []float32{1, 0}, "doc b", map[string]string{"session_id": "s2"}))

	hits, err := x.Query(ctx, []float32{1, 0}, 10, map[string]string{"session_id": "s1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestInMemoryQueryK(t *testing.T) {
	x := NewInMemoryVectorIndex(nil)
	ctx := context.Background()

	for i, v := range [][]float32{{1, 0}, {0.9, 0.1}, {0, 1}} {
		require.NoError(t, x.Add(ctx, string(rune('a'+i)), v, "", nil))
	}

	hits, err := x.Query(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
}

func TestInMemoryUpsertReplaces(t *testing.T) {
	x := NewInMemoryVectorIndex(nil)
	ctx := context.Background()

	require.NoError(t, x.Add(ctx, "a", []float32{1, 0}, "old", nil))
	require.NoError(t, x.Add(ctx, "a", []float32{0, 1}, "new", nil))

	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := x.Query(ctx, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Document)
}

func TestInMemoryDelete(t *testing.T) {
	x := NewInMemoryVectorIndex(nil)
	ctx := context.Background()

	require.NoError(t, x.Add(ctx, "a", []float32{1, 0}, "", nil))
	require.NoError(t, x.Add(ctx, "b", []float32{0, 1}, "", nil))
	require.NoError(t, x.Delete(ctx, "a", "missing"))

	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := x.Query(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestInMemoryQueryEdgeCases(t *testing.T) {
	x := NewInMemoryVectorIndex(nil)
	ctx := context.Background()

	hits, err := x.Query(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = x.Query(ctx, nil, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = x.Query(ctx, []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemIndexRoundTrip(t *testing.T) {
	x, err := NewChromemIndex("", "test", nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, x.Add(ctx, "a", []float32{1, 0, 0}, "doc a", map[string]string{"session_id": "s1"}))
	require.NoError(t, x.Add(ctx, "b", []float32{0, 1, 0}, "doc b", map[string]string{"session_id": "s2"}))

	// k larger than the collection is clamped, not an error.
	hits, err := x.Query(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "doc a", hits[0].Document)

	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestChromemIndexEmptyQuery(t *testing.T) {
	x, err := NewChromemIndex("", "empty", nil)
	require.NoError(t, err)

	hits, err := x.Query(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemIndexDelete(t *testing.T) {
	x, err := NewChromemIndex("", "del", nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, x.Add(ctx, "a", []float32{1, 0}, "doc a", nil))
	require.NoError(t, x.Delete(ctx, "a"))

	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
