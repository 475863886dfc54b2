package retrieval

import "math"

// DefaultMMRLambda weights relevance against diversity. The low value leans
// hard toward diverse results, suppressing near-duplicate top hits.
const DefaultMMRLambda = 0.3

// SelectMMR greedily picks up to limit candidates maximizing
//
//	lambda*relevance(i) - (1-lambda)*max_j cos(emb(i), emb(j))
//
// over the already selected set j. The first pick is always the most relevant
// candidate. Ties keep the incoming (fused score) order. Candidates without
// an embedding take a zero similarity penalty.
func SelectMMR(candidates []Candidate, lambda float64, limit int) []Candidate {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	selected := make([]Candidate, 0, limit)
	remaining := make([]Candidate, len(candidates))
	copy(remaining, candidates)

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			penalty := 0.0
			if cand.Embedding != nil {
				for _, sel := range selected {
					if sel.Embedding == nil {
						continue
					}
					if sim := CosineSimilarity(cand.Embedding, sel.Embedding); sim > penalty {
						penalty = sim
					}
				}
			}
			score := lambda*cand.Score - (1.0-lambda)*penalty
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
