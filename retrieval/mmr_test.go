package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectMMRSuppressesNearDuplicate(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Score: 1.0, Embedding: []float32{1, 0}},
		{ID: "b", Score: 0.97, Embedding: []float32{0.99, 0.01}},
		{ID: "c", Score: 0.86, Embedding: []float32{0, 1}},
	}

	selected := SelectMMR(candidates, 0.3, 2)

	require.Len(t, selected, 2)
	// b is a near-duplicate of a; diverse c wins the second slot.
	assert.Equal(t, "a", selected[0].ID)
	assert.Equal(t, "c", selected[1].ID)
}

func TestSelectMMRFirstPickIsMostRelevant(t *testing.T) {
	candidates := []Candidate{
		{ID: "low", Score: 0.2, Embedding: []float32{0, 1}},
		{ID: "high", Score: 0.9, Embedding: []float32{1, 0}},
	}

	selected := SelectMMR(candidates, 0.3, 1)

	require.Len(t, selected, 1)
	assert.Equal(t, "high", selected[0].ID)
}

func TestSelectMMRTieKeepsFusedOrder(t *testing.T) {
	// Orthogonal embeddings and equal scores: the incoming order decides.
	candidates := []Candidate{
		{ID: "first", Score: 0.5, Embedding: []float32{1, 0, 0}},
		{ID: "second", Score: 0.5, Embedding: []float32{0, 1, 0}},
		{ID: "third", Score: 0.5, Embedding: []float32{0, 0, 1}},
	}

	selected := SelectMMR(candidates, 0.3, 3)

	require.Len(t, selected, 3)
	assert.Equal(t, "first", selected[0].ID)
	assert.Equal(t, "second", selected[1].ID)
	assert.Equal(t, "third", selected[2].ID)
}

func TestSelectMMRMissingEmbeddings(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Score: 0.9, Embedding: []float32{1, 0}},
		{ID: "b", Score: 0.8}, // never embedded; no diversity penalty
	}

	selected := SelectMMR(candidates, 0.3, 2)

	require.Len(t, selected, 2)
	assert.Equal(t, "a", selected[0].ID)
	assert.Equal(t, "b", selected[1].ID)
}

func TestSelectMMREdgeCases(t *testing.T) {
	assert.Nil(t, SelectMMR(nil, 0.3, 5))
	assert.Nil(t, SelectMMR([]Candidate{{ID: "a"}}, 0.3, 0))

	selected := SelectMMR([]Candidate{{ID: "a", Score: 1}}, 0.3, 10)
	assert.Len(t, selected, 1)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Mismatched lengths and zero vectors score 0.
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}
