package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// BM25 parameters; standard values from the literature.
const (
	defaultBM25K1 = 1.5
	defaultBM25B  = 0.75
)

var tokenPattern = regexp.MustCompile(`\w+`)

// Doc is one entry of the lexical corpus.
type Doc struct {
	ID      string
	Content string
}

// Scored is a lexical search hit.
type Scored struct {
	ID    string
	Score float64
}

// bm25Corpus holds the immutable statistics of one build. A rebuild creates a
// fresh corpus and swaps the pointer, so concurrent readers see either the
// pre- or post-rebuild index, never a partial one.
type bm25Corpus struct {
	docs      []Doc
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// BM25Index is an in-memory lexical index rebuilt in full from the metadata
// store's message+fact corpus on every mutating operation. O(corpus) per
// write is a deliberate simplicity trade-off; see the package docs.
type BM25Index struct {
	mu     sync.RWMutex
	corpus *bm25Corpus

	k1     float64
	b      float64
	logger *zap.Logger
}

// NewBM25Index creates an empty index with standard k1/b parameters.
func NewBM25Index(logger *zap.Logger) *BM25Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BM25Index{
		corpus: &bm25Corpus{idf: map[string]float64{}},
		k1:     defaultBM25K1,
		b:      defaultBM25B,
		logger: logger.With(zap.String("component", "bm25_index")),
	}
}

// Tokenize lower-cases text and splits it on word boundaries.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Rebuild replaces the index contents with a fresh build over docs.
func (x *BM25Index) Rebuild(docs []Doc) {
	corpus := buildCorpus(docs)

	x.mu.Lock()
	x.corpus = corpus
	x.mu.Unlock()

	x.logger.Debug("lexical index rebuilt", zap.Int("docs", len(docs)))
}

func buildCorpus(docs []Doc) *bm25Corpus {
	c := &bm25Corpus{
		docs:      docs,
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	totalLen := 0
	docFreq := make(map[string]int)
	for i, doc := range docs {
		terms := Tokenize(doc.Content)
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		c.termFreqs[i] = tf
		c.docLens[i] = len(terms)
		totalLen += len(terms)
		for t := range tf {
			docFreq[t]++
		}
	}

	if len(docs) > 0 {
		c.avgDocLen = float64(totalLen) / float64(len(docs))
	}

	n := float64(len(docs))
	for term, df := range docFreq {
		c.idf[term] = idf(n, float64(df))
	}
	return c
}

func idf(n, df float64) float64 {
	return math.Log((n-df+0.5)/(df+0.5) + 1.0)
}

// Count returns the number of indexed documents.
func (x *BM25Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.corpus.docs)
}

// Search scores the query against the corpus and returns up to limit hits
// with positive scores, best first.
func (x *BM25Index) Search(query string, limit int) []Scored {
	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	x.mu.RLock()
	c := x.corpus
	x.mu.RUnlock()

	if len(c.docs) == 0 {
		return nil
	}

	results := make([]Scored, 0, limit)
	for i := range c.docs {
		score := x.scoreDoc(c, i, queryTerms)
		if score > 0 {
			results = append(results, Scored{ID: c.docs[i].ID, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (x *BM25Index) scoreDoc(c *bm25Corpus, i int, queryTerms []string) float64 {
	tf := c.termFreqs[i]
	docLen := float64(c.docLens[i])

	score := 0.0
	for _, term := range queryTerms {
		freq, ok := tf[term]
		if !ok {
			continue
		}
		numerator := float64(freq) * (x.k1 + 1.0)
		denominator := float64(freq) + x.k1*(1.0-x.b+x.b*(docLen/c.avgDocLen))
		score += c.idf[term] * (numerator / denominator)
	}
	return score
}
