/*
Package retrieval implements the ranking half of the memory engine: a BM25
lexical index rebuilt from the durable corpus, Reciprocal Rank Fusion of the
vector and lexical result lists, temporal decay, Maximal Marginal Relevance
diversity selection, a final reranker (score threshold, top-K cut, token
budget), and a heuristic query-intent router.

# Core types

  - [BM25Index]: in-memory inverted index, swap-on-build so readers never see
    a partially rebuilt corpus.
  - [Candidate]: one ranked item flowing through the pipeline stages.
  - [Reranker]: threshold / top-K / token-budget final pass.
  - [SmartRouter]: episodic vs knowledge vs hybrid intent classification.

# Pipeline

	fused := retrieval.FuseRRF(vectorIDs, lexicalIDs)
	retrieval.ApplyDecay(candidates, now, decayCfg)
	picked := retrieval.SelectMMR(candidates, lambda, limit)
	final := reranker.Rank(picked)

Every stage treats an empty input as an empty output, never as an error.
*/
package retrieval
