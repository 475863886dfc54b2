package retrieval

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world"}, Tokenize("Hello, World!"))
	assert.Equal(t, []string{"a", "b", "c"}, Tokenize("a-b-c"))
	assert.Empty(t, Tokenize("!!! ..."))
	assert.Empty(t, Tokenize(""))
}

func TestBM25SearchRanksRelevantFirst(t *testing.T) {
	x := NewBM25Index(nil)
	x.Rebuild([]Doc{
		{ID: "pizza", Content: "I love spicy pizza with extra cheese"},
		{ID: "weather", Content: "the weather is nice today"},
		{ID: "pasta", Content: "pasta with cheese is fine too"},
	})

	results := x.Search("spicy pizza", 10)

	require.NotEmpty(t, results)
	assert.Equal(t, "pizza", results[0].ID)
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
		assert.NotEqual(t, "weather", r.ID)
	}
}

func TestBM25SearchLimit(t *testing.T) {
	x := NewBM25Index(nil)
	docs := make([]Doc, 10)
	for i := range docs {
		docs[i] = Doc{ID: fmt.Sprintf("d%d", i), Content: fmt.Sprintf("common term plus token%d", i)}
	}
	x.Rebuild(docs)

	results := x.Search("common term", 3)
	assert.Len(t, results, 3)
}

func TestBM25SearchEmptyCases(t *testing.T) {
	x := NewBM25Index(nil)

	// Empty index.
	assert.Empty(t, x.Search("anything", 5))

	x.Rebuild([]Doc{{ID: "a", Content: "some content"}})

	// Empty and non-matching queries.
	assert.Empty(t, x.Search("", 5))
	assert.Empty(t, x.Search("zzz qqq", 5))
}

func TestBM25RebuildReplacesCorpus(t *testing.T) {
	x := NewBM25Index(nil)
	x.Rebuild([]Doc{{ID: "old", Content: "obsolete entry"}})
	x.Rebuild([]Doc{{ID: "new", Content: "replacement entry"}})

	assert.Equal(t, 1, x.Count())
	assert.Empty(t, x.Search("obsolete", 5))
	require.Len(t, x.Search("replacement", 5), 1)
}

func TestBM25ConcurrentSearchDuringRebuild(t *testing.T) {
	x := NewBM25Index(nil)
	x.Rebuild([]Doc{{ID: "a", Content: "alpha beta gamma"}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if n%2 == 0 {
					x.Rebuild([]Doc{
						{ID: "a", Content: "alpha beta gamma"},
						{ID: "b", Content: "delta epsilon"},
					})
				} else {
					// Readers must always see a consistent corpus.
					for _, r := range x.Search("alpha", 5) {
						if r.ID != "a" {
							t.Errorf("unexpected hit %q", r.ID)
						}
					}
				}
			}
		}(i)
	}
	wg.Wait()
}
