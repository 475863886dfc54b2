package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kaivyy/kabot-sub001/embedding"
	"github.com/kaivyy/kabot-sub001/retrieval"
	"github.com/kaivyy/kabot-sub001/vectorstore"
)

// Index id prefixes keep message and fact ids unambiguous across the vector
// and lexical indexes, so fusion can key both lists by the same durable id.
const (
	msgIDPrefix  = "msg:"
	factIDPrefix = "fact:"
)

// ManagerConfig tunes the facade.
type ManagerConfig struct {
	// SearchLimit is the per-index candidate count before fusion.
	SearchLimit int

	Decay     retrieval.DecayConfig
	MMRLambda float64
	Reranker  retrieval.RerankerConfig

	// CompactThreshold is the session size at or below which CompactSession
	// is a no-op; CompactKeep is how many recent messages survive intact.
	CompactThreshold int
	CompactKeep      int
}

// DefaultManagerConfig returns the engine defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SearchLimit:      10,
		Decay:            retrieval.DefaultDecayConfig(),
		MMRLambda:        retrieval.DefaultMMRLambda,
		Reranker:         retrieval.DefaultRerankerConfig(),
		CompactThreshold: 50,
		CompactKeep:      30,
	}
}

// Manager is the memory engine facade. It orchestrates the metadata store,
// the embedding provider, both indexes and the ranking pipeline. The host
// application constructs the provider and vector index and injects them here.
type Manager struct {
	store    *MetadataStore
	embedder embedding.Provider
	vectors  vectorstore.VectorIndex
	lexical  *retrieval.BM25Index
	router   *retrieval.SmartRouter
	reranker *retrieval.Reranker
	config   ManagerConfig
	logger   *zap.Logger
}

// NewManager wires a manager from injected collaborators. The lexical index
// is owned by the manager and rebuilt on every mutating operation.
func NewManager(
	store *MetadataStore,
	embedder embedding.Provider,
	vectors vectorstore.VectorIndex,
	config ManagerConfig,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		lexical:  retrieval.NewBM25Index(logger),
		router:   retrieval.NewSmartRouter(logger),
		reranker: retrieval.NewReranker(config.Reranker, nil, logger),
		config:   config,
		logger:   logger.With(zap.String("component", "memory_manager")),
	}
}

// SetTokenCounter replaces the reranker's token counter (for example with a
// tiktoken-backed one).
func (m *Manager) SetTokenCounter(counter retrieval.TokenCounter) {
	m.reranker = retrieval.NewReranker(m.config.Reranker, counter, m.logger)
}

// Store exposes the underlying metadata store for host-level operations.
func (m *Manager) Store() *MetadataStore { return m.store }

// AddMessageParams carries everything AddMessage needs.
type AddMessageParams struct {
	SessionID   string
	Role        Role
	Content     string
	ParentID    *string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
	Metadata    map[string]any
}

// AddMessage persists one turn, then best-effort embeds and indexes it, then
// rebuilds the lexical index. Indexing failures never roll back the persisted
// message; the item degrades to lexical-only recall.
func (m *Manager) AddMessage(ctx context.Context, params AddMessageParams) (*Message, error) {
	msg := &Message{
		SessionID:   params.SessionID,
		ParentID:    params.ParentID,
		Role:        params.Role,
		Content:     params.Content,
		ToolCalls:   params.ToolCalls,
		ToolResults: params.ToolResults,
		Metadata:    params.Metadata,
	}
	if err := m.store.AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	m.indexRecord(ctx, msgIDPrefix+msg.MessageID, msg.SessionID, msg.MessageID, msg.Content)
	m.rebuildLexical(ctx)
	return msg, nil
}

// RememberFactParams carries everything RememberFact needs.
type RememberFactParams struct {
	FactID          string
	SessionID       string // empty means global
	Category        FactCategory
	Key             string
	Value           string
	Confidence      float64
	SourceMessageID string
}

// RememberFact persists a long-term fact and indexes it like a message.
func (m *Manager) RememberFact(ctx context.Context, params RememberFactParams) (*Fact, error) {
	fact := &Fact{
		FactID:          params.FactID,
		Category:        params.Category,
		Key:             params.Key,
		Value:           params.Value,
		Confidence:      params.Confidence,
		SourceMessageID: params.SourceMessageID,
	}
	if params.SessionID != "" {
		sid := params.SessionID
		fact.SessionID = &sid
	}
	if err := m.store.AddFact(ctx, fact); err != nil {
		return nil, err
	}

	m.indexRecord(ctx, factIDPrefix+fact.FactID, params.SessionID, fact.FactID, factText(fact))
	m.rebuildLexical(ctx)
	return fact, nil
}

// SearchResult is one ranked retrieval item.
type SearchResult struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"` // "message" or "fact"
	Content   string           `json:"content"`
	Score     float64          `json:"score"`
	CreatedAt time.Time        `json:"created_at"`
	Intent    retrieval.Intent `json:"intent"`
}

// SearchMemory runs the full fusion pipeline: both indexes queried
// concurrently, Reciprocal Rank Fusion, temporal decay, MMR diversity
// selection and the final rerank. It always returns a (possibly empty) list;
// index unavailability degrades instead of failing.
func (m *Manager) SearchMemory(ctx context.Context, query, sessionID string, limit int) []SearchResult {
	if limit <= 0 {
		limit = m.config.SearchLimit
	}
	intent := m.router.Route(query)

	queryEmb, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.logger.Warn("query embedding failed, vector leg skipped", zap.Error(err))
		queryEmb = nil
	}

	var (
		vectorHits  []vectorstore.Hit
		lexicalHits []retrieval.Scored
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if queryEmb == nil {
			return nil
		}
		var filter map[string]string
		if sessionID != "" {
			filter = map[string]string{"session_id": sessionID}
		}
		hits, err := m.vectors.Query(gctx, queryEmb, limit, filter)
		if err != nil {
			m.logger.Warn("vector query failed, degrading to lexical", zap.Error(err))
			return nil
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		lexicalHits = m.lexical.Search(query, limit)
		return nil
	})
	_ = g.Wait() // legs degrade internally, they never return errors

	vectorIDs := make([]string, 0, len(vectorHits))
	hitByID := make(map[string]vectorstore.Hit, len(vectorHits))
	for _, h := range vectorHits {
		vectorIDs = append(vectorIDs, h.ID)
		hitByID[h.ID] = h
	}
	lexicalIDs := make([]string, 0, len(lexicalHits))
	for _, s := range lexicalHits {
		lexicalIDs = append(lexicalIDs, s.ID)
	}

	fused := retrieval.FuseRRF(vectorIDs, lexicalIDs)
	if len(fused) == 0 {
		return []SearchResult{}
	}

	candidates := m.buildCandidates(ctx, fused, hitByID)
	retrieval.ApplyDecay(candidates, time.Now(), m.config.Decay)
	retrieval.NormalizeScores(candidates)
	selected := retrieval.SelectMMR(candidates, m.config.MMRLambda, limit)
	final := m.reranker.Rank(selected)

	results := make([]SearchResult, 0, len(final))
	for _, c := range final {
		results = append(results, SearchResult{
			ID:        strings.TrimPrefix(strings.TrimPrefix(c.ID, msgIDPrefix), factIDPrefix),
			Source:    c.Source,
			Content:   c.Content,
			Score:     c.Score,
			CreatedAt: c.CreatedAt,
			Intent:    intent,
		})
	}

	m.logger.Debug("memory searched",
		zap.String("intent", string(intent)),
		zap.Int("vector_hits", len(vectorHits)),
		zap.Int("lexical_hits", len(lexicalHits)),
		zap.Int("results", len(results)))
	return results
}

// buildCandidates joins fused index ids back to their durable rows, ordered
// by fused score descending. A vector hit whose join fails falls back to the
// document text carried by the index.
func (m *Manager) buildCandidates(ctx context.Context, fused map[string]float64, hitByID map[string]vectorstore.Hit) []retrieval.Candidate {
	ids := make([]string, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}
	// Deterministic fused order: score desc, id asc as tie-break.
	sortByScoreDesc(ids, fused)

	candidates := make([]retrieval.Candidate, 0, len(ids))
	for _, id := range ids {
		cand := retrieval.Candidate{ID: id, Score: fused[id]}
		if hit, ok := hitByID[id]; ok {
			cand.Embedding = hit.Embedding
		}

		switch {
		case strings.HasPrefix(id, msgIDPrefix):
			cand.Source = "message"
			msg, err := m.store.GetMessage(ctx, strings.TrimPrefix(id, msgIDPrefix))
			if err == nil {
				cand.Content = msg.Content
				cand.CreatedAt = msg.CreatedAt
			}
		case strings.HasPrefix(id, factIDPrefix):
			cand.Source = "fact"
			fact, err := m.store.GetFact(ctx, strings.TrimPrefix(id, factIDPrefix))
			if err == nil {
				cand.Content = factText(fact)
				cand.CreatedAt = fact.CreatedAt
			}
		}

		if cand.Content == "" {
			hit, ok := hitByID[id]
			if !ok {
				// Neither a durable row nor a carried document; drop it.
				m.logger.Debug("dropping unjoinable hit", zap.String("id", id))
				continue
			}
			cand.Content = hit.Document
			cand.CreatedAt = time.Now()
		}
		candidates = append(candidates, cand)
	}
	return candidates
}

// ContextMessage is one formatted turn for prompt assembly. Tool payloads are
// passed through untruncated; that is the anti-amnesia guarantee.
type ContextMessage struct {
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// GetConversationContext returns the most recent maxMessages turns of a
// session in chronological order, with full tool payloads.
func (m *Manager) GetConversationContext(ctx context.Context, sessionID string, maxMessages int) ([]ContextMessage, error) {
	msgs, err := m.store.GetMessageChain(ctx, sessionID, maxMessages)
	if err != nil {
		return nil, err
	}
	out := make([]ContextMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, ContextMessage{
			Role:        msg.Role,
			Content:     msg.Content,
			ToolCalls:   msg.ToolCalls,
			ToolResults: msg.ToolResults,
			Metadata:    msg.Metadata,
		})
	}
	return out, nil
}

// CompactSession folds an oversized session into a summary fact. Sessions at
// or below the threshold are left untouched and false is returned. Otherwise
// the most recent CompactKeep messages survive and the rest are summarized
// into one conversation_summary fact, then deleted.
func (m *Manager) CompactSession(ctx context.Context, sessionID string) (bool, error) {
	count, err := m.store.CountMessages(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if count <= int64(m.config.CompactThreshold) {
		return false, nil
	}

	msgs, err := m.store.GetMessageChain(ctx, sessionID, 0)
	if err != nil {
		return false, err
	}
	keepFrom := len(msgs) - m.config.CompactKeep
	if keepFrom < 0 {
		keepFrom = 0
	}
	folded := msgs[:keepFrom]
	if len(folded) == 0 {
		return false, nil
	}

	summary := summarizeMessages(folded, 5)
	if summary != "" {
		_, err = m.RememberFact(ctx, RememberFactParams{
			SessionID:  sessionID,
			Category:   CategoryConversationSummary,
			Key:        "conversation_summary",
			Value:      summary,
			Confidence: 0.9,
		})
		if err != nil {
			return false, fmt.Errorf("store session summary: %w", err)
		}
	}

	foldedIDs := make([]string, 0, len(folded))
	vectorIDs := make([]string, 0, len(folded))
	for _, msg := range folded {
		foldedIDs = append(foldedIDs, msg.MessageID)
		vectorIDs = append(vectorIDs, msgIDPrefix+msg.MessageID)
	}
	if _, err := m.store.DeleteMessages(ctx, foldedIDs); err != nil {
		return false, err
	}
	if err := m.vectors.Delete(ctx, vectorIDs...); err != nil {
		m.logger.Warn("vector delete during compaction failed", zap.Error(err))
	}
	m.rebuildLexical(ctx)

	m.logger.Info("session compacted",
		zap.String("session_id", sessionID),
		zap.Int("folded", len(folded)),
		zap.Int("kept", len(msgs)-len(folded)))
	return true, nil
}

// RebuildIndexes reconstructs both derived views from the metadata store:
// the lexical index synchronously and the vector index best-effort. This is
// the recovery path after losing either index.
func (m *Manager) RebuildIndexes(ctx context.Context) error {
	msgs, err := m.store.AllMessages(ctx)
	if err != nil {
		return err
	}
	facts, err := m.store.AllFacts(ctx)
	if err != nil {
		return err
	}

	docs := corpusDocs(msgs, facts)
	m.lexical.Rebuild(docs)

	for _, msg := range msgs {
		m.indexRecord(ctx, msgIDPrefix+msg.MessageID, msg.SessionID, msg.MessageID, msg.Content)
	}
	for i := range facts {
		sid := ""
		if facts[i].SessionID != nil {
			sid = *facts[i].SessionID
		}
		m.indexRecord(ctx, factIDPrefix+facts[i].FactID, sid, facts[i].FactID, factText(&facts[i]))
	}

	m.logger.Info("indexes rebuilt",
		zap.Int("messages", len(msgs)),
		zap.Int("facts", len(facts)))
	return nil
}

// indexRecord embeds content and upserts it into the vector index, recording
// the cross-reference. Every failure here is logged and swallowed; the
// durable row stays valid with lexical-only recall.
func (m *Manager) indexRecord(ctx context.Context, indexID, sessionID, recordID, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}

	vec, err := m.embedder.Embed(ctx, content)
	if err != nil {
		m.logger.Warn("embedding failed, record indexed lexically only",
			zap.String("id", indexID), zap.Error(err))
		return
	}
	if vec == nil {
		m.logger.Debug("embedding unavailable, record indexed lexically only",
			zap.String("id", indexID))
		return
	}

	metadata := map[string]string{"record_id": recordID}
	if sessionID != "" {
		metadata["session_id"] = sessionID
	}
	if err := m.vectors.Add(ctx, indexID, vec, content, metadata); err != nil {
		m.logger.Warn("vector index add failed", zap.String("id", indexID), zap.Error(err))
		return
	}

	entry := &MemoryIndexEntry{
		SessionID:     sessionID,
		MessageID:     recordID,
		VectorIndexID: indexID,
		ContentHash:   embedding.ContentHash(content),
	}
	if err := m.store.SaveMemoryIndex(ctx, entry); err != nil {
		m.logger.Warn("memory index entry save failed", zap.String("id", indexID), zap.Error(err))
	}
}

// rebuildLexical refreshes the BM25 view from the full message+fact corpus.
// Synchronous inside the write path: O(corpus) per write is the documented
// scaling ceiling of this engine.
func (m *Manager) rebuildLexical(ctx context.Context) {
	msgs, err := m.store.AllMessages(ctx)
	if err != nil {
		m.logger.Warn("lexical rebuild: loading messages failed", zap.Error(err))
		return
	}
	facts, err := m.store.AllFacts(ctx)
	if err != nil {
		m.logger.Warn("lexical rebuild: loading facts failed", zap.Error(err))
		return
	}
	m.lexical.Rebuild(corpusDocs(msgs, facts))
}

func corpusDocs(msgs []Message, facts []Fact) []retrieval.Doc {
	docs := make([]retrieval.Doc, 0, len(msgs)+len(facts))
	for _, msg := range msgs {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		docs = append(docs, retrieval.Doc{ID: msgIDPrefix + msg.MessageID, Content: msg.Content})
	}
	for i := range facts {
		text := factText(&facts[i])
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, retrieval.Doc{ID: factIDPrefix + facts[i].FactID, Content: text})
	}
	return docs
}

// factText is the indexable text of a fact.
func factText(f *Fact) string {
	if f.Key != "" {
		return f.Key + ": " + f.Value
	}
	return f.Value
}

// summarizeMessages builds the compaction summary: the first 200 characters
// of each assistant message longer than 100 characters, at most max of them,
// pipe-joined. Deliberately heuristic, not LLM-based.
func summarizeMessages(msgs []Message, max int) string {
	parts := make([]string, 0, max)
	for _, msg := range msgs {
		if msg.Role != RoleAssistant || len(msg.Content) <= 100 {
			continue
		}
		content := msg.Content
		if len(content) > 200 {
			content = content[:200]
		}
		parts = append(parts, content)
		if len(parts) == max {
			break
		}
	}
	return strings.Join(parts, " | ")
}

// sortByScoreDesc orders ids by fused score descending with the id as a
// deterministic tie-break.
func sortByScoreDesc(ids []string, scores map[string]float64) {
	sort.SliceStable(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
}
