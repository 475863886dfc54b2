package retrieval

import (
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter estimates how many LLM tokens a piece of text costs.
type TokenCounter interface {
	CountTokens(text string) float64
}

// EstimatorCounter approximates tokens as word_count * 1.3, the engine's
// default when no encoder is available.
type EstimatorCounter struct{}

// CountTokens implements TokenCounter.
func (EstimatorCounter) CountTokens(text string) float64 {
	return float64(len(strings.Fields(text))) * 1.3
}

// TiktokenCounter counts tokens with a real tiktoken encoding and falls back
// to the word estimator when the encoding cannot be loaded.
type TiktokenCounter struct {
	enc      *tiktoken.Tiktoken
	fallback EstimatorCounter
	logger   *zap.Logger
}

// NewTiktokenCounter loads the named encoding (for example "cl100k_base").
func NewTiktokenCounter(encoding string, logger *zap.Logger) (*TiktokenCounter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc, logger: logger}, nil
}

// CountTokens implements TokenCounter.
func (c *TiktokenCounter) CountTokens(text string) float64 {
	if c.enc == nil {
		return c.fallback.CountTokens(text)
	}
	return float64(len(c.enc.Encode(text, nil, nil)))
}

// RerankerConfig configures the final ranking pass.
type RerankerConfig struct {
	Threshold float64 `yaml:"threshold" json:"threshold"`
	TopK      int     `yaml:"top_k" json:"top_k"`
	MaxTokens float64 `yaml:"max_tokens" json:"max_tokens"`
}

// DefaultRerankerConfig returns threshold 0.6, top-K 3 and a 500 token budget.
func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{Threshold: 0.6, TopK: 3, MaxTokens: 500}
}

// Reranker applies the final pass independent of the fusion weights: score
// threshold, top-K cut, then a greedy token budget over the candidate
// contents.
type Reranker struct {
	config  RerankerConfig
	counter TokenCounter
	logger  *zap.Logger
}

// NewReranker creates a reranker. A nil counter uses the word estimator.
func NewReranker(config RerankerConfig, counter TokenCounter, logger *zap.Logger) *Reranker {
	if counter == nil {
		counter = EstimatorCounter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{
		config:  config,
		counter: counter,
		logger:  logger.With(zap.String("component", "reranker")),
	}
}

// Rank filters candidates below the threshold, keeps the top-K by score, then
// accepts items greedily while the running token total stays within budget,
// stopping at the first item that would exceed it. Empty input yields empty
// output.
func (r *Reranker) Rank(candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= r.config.Threshold {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if r.config.TopK > 0 && len(kept) > r.config.TopK {
		kept = kept[:r.config.TopK]
	}

	final := make([]Candidate, 0, len(kept))
	budget := 0.0
	for _, c := range kept {
		cost := r.counter.CountTokens(c.Content)
		if budget+cost > r.config.MaxTokens {
			// Token guard stops at the first overflow; no skipping ahead.
			break
		}
		budget += cost
		final = append(final, c)
	}

	r.logger.Debug("reranked",
		zap.Int("in", len(candidates)),
		zap.Int("out", len(final)),
		zap.Float64("tokens_used", budget))
	return final
}
