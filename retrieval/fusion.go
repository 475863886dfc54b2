package retrieval

import (
	"math"
	"sort"
	"time"
)

// RRFK is the Reciprocal Rank Fusion constant. 60 is the value from the
// original RRF paper and dampens the dominance of top ranks.
const RRFK = 60

// Candidate is one ranked item flowing through the fusion pipeline. Embedding
// may be nil when the item never reached the vector index; such items simply
// contribute no diversity penalty during MMR.
type Candidate struct {
	ID        string
	Content   string
	Source    string // "message" or "fact"
	Embedding []float32
	CreatedAt time.Time
	Score     float64
	Metadata  map[string]any
}

// FuseRRF merges ranked id lists with Reciprocal Rank Fusion: each list
// contributes 1/(K+rank+1) per item, ranks 0-based. An item present in
// several lists accumulates every contribution.
func FuseRRF(lists ...[]string) map[string]float64 {
	fused := make(map[string]float64)
	for _, list := range lists {
		for rank, id := range list {
			fused[id] += 1.0 / float64(RRFK+rank+1)
		}
	}
	return fused
}

// DecayConfig tunes the temporal decay curve. The defaults are validated
// against the engine's ranking properties and are safe to leave alone.
type DecayConfig struct {
	Floor   float64 `yaml:"floor" json:"floor"`
	TauDays float64 `yaml:"tau_days" json:"tau_days"`
}

// DefaultDecayConfig returns floor 0.6 with a 30-day time constant.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{Floor: 0.6, TauDays: 30}
}

// DecayFactor returns floor + (1-floor)*e^(-ageDays/tau). It is 1.0 at age
// zero, strictly non-increasing in age, and never drops below the floor.
func (c DecayConfig) DecayFactor(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	ageDays := age.Hours() / 24.0
	return c.Floor + (1.0-c.Floor)*math.Exp(-ageDays/c.TauDays)
}

// ApplyDecay multiplies each candidate's score by its temporal decay factor
// and re-sorts best first.
func ApplyDecay(candidates []Candidate, now time.Time, cfg DecayConfig) {
	for i := range candidates {
		candidates[i].Score *= cfg.DecayFactor(now.Sub(candidates[i].CreatedAt))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}

// NormalizeScores rescales candidate scores so the best one is 1.0. Fused
// reciprocal-rank scores live on a ~1/K scale; normalizing puts them on the
// [0,1] scale the MMR relevance term and the reranker threshold expect.
func NormalizeScores(candidates []Candidate) {
	max := 0.0
	for i := range candidates {
		if candidates[i].Score > max {
			max = candidates[i].Score
		}
	}
	if max <= 0 {
		return
	}
	for i := range candidates {
		candidates[i].Score /= max
	}
}
