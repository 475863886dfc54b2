/*
Package memory is the hybrid memory retrieval engine for conversational
agents: a durable conversation/fact store with parent-child message chaining,
dual-index search, and a fusion/ranking pipeline that defeats context-window
amnesia without re-sending unbounded history to the model.

# Overview

Every exchanged message and extracted fact is persisted through the
[MetadataStore], which exclusively owns the durable rows. Two derived,
rebuildable views sit on top: a vector index for semantic similarity and a
BM25 lexical index for keyword matching. Losing either view is recoverable by
a full rebuild from the store.

# Core types

  - [MetadataStore]: gorm-backed relational storage for sessions, messages
    (with parent links), facts, index cross-references and system logs.
  - [Manager]: the facade hosts embed: AddMessage, RememberFact,
    SearchMemory, GetConversationContext, CompactSession, RebuildIndexes.
  - [EpisodicExtractor]: background job deriving long-term facts from recent
    dialogue via an LLM.
  - [MemoryPruner]: background job deleting facts, messages and logs beyond
    the retention window.

# Retrieval pipeline

SearchMemory queries both indexes (concurrently), merges the ranked lists
with Reciprocal Rank Fusion, applies temporal decay, selects a diverse subset
with Maximal Marginal Relevance, and finishes with a threshold / top-K /
token-budget rerank. Index unavailability degrades to the remaining signal;
search always returns a (possibly empty) ranked list, never a partial-failure
error.

# Wiring

The host application constructs the embedding provider and vector index and
injects them:

	db, _ := database.Open(cfg.Database.Path, database.DefaultPoolConfig(), logger)
	store := memory.NewMetadataStore(db, logger)
	embedder := embedding.NewCachedProvider(embedding.NewOpenAIProvider(embCfg, logger), 1000, logger)
	vectors, _ := vectorstore.NewChromemIndex(cfg.Vector.Path, cfg.Vector.Collection, logger)
	mgr := memory.NewManager(store, embedder, vectors, memory.DefaultManagerConfig(), logger)
*/
package memory
