package memory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxAgeDays is the retention window for facts, messages and logs.
const DefaultMaxAgeDays = 30

// PruneStats reports per-category deletion counts of one pruning run.
type PruneStats struct {
	Facts    int64 `json:"facts"`
	Messages int64 `json:"messages"`
	Logs     int64 `json:"logs"`
}

// MemoryPruner deletes records older than the retention window. Designed to
// run periodically from an external scheduler; it never raises, failed
// categories count as 0.
type MemoryPruner struct {
	store   *MetadataStore
	vectors interface {
		Delete(ctx context.Context, ids ...string) error
	}
	logger *zap.Logger
}

// NewMemoryPruner creates a pruner. vectors may be nil when no vector-side
// cleanup is wanted (orphaned index entries are tolerated by search).
func NewMemoryPruner(store *MetadataStore, vectors interface {
	Delete(ctx context.Context, ids ...string) error
}, logger *zap.Logger) *MemoryPruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryPruner{
		store:   store,
		vectors: vectors,
		logger:  logger.With(zap.String("component", "memory_pruner")),
	}
}

// Prune removes facts, messages and system logs older than maxAgeDays
// (DefaultMaxAgeDays when <= 0). Deletion by age is idempotent.
func (p *MemoryPruner) Prune(ctx context.Context, maxAgeDays int) PruneStats {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	stats := PruneStats{
		Facts:    p.pruneOldFacts(ctx, cutoff),
		Messages: p.pruneOldMessages(ctx, cutoff),
	}

	logs, err := p.store.CleanupLogs(ctx, maxAgeDays)
	if err != nil {
		p.logger.Warn("log cleanup failed", zap.Error(err))
	} else {
		stats.Logs = logs
	}

	p.logger.Info("prune completed",
		zap.Int64("facts", stats.Facts),
		zap.Int64("messages", stats.Messages),
		zap.Int64("logs", stats.Logs),
		zap.Int("max_age_days", maxAgeDays))
	return stats
}

// PruneOldFacts removes only facts older than the cutoff.
func (p *MemoryPruner) PruneOldFacts(ctx context.Context, maxAgeDays int) int64 {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}
	return p.pruneOldFacts(ctx, time.Now().AddDate(0, 0, -maxAgeDays))
}

func (p *MemoryPruner) pruneOldFacts(ctx context.Context, cutoff time.Time) int64 {
	n, err := p.store.DeleteFactsBefore(ctx, cutoff)
	if err != nil {
		p.logger.Warn("fact pruning failed", zap.Error(err))
		return 0
	}
	return n
}

func (p *MemoryPruner) pruneOldMessages(ctx context.Context, cutoff time.Time) int64 {
	n, err := p.store.DeleteMessagesBefore(ctx, cutoff)
	if err != nil {
		p.logger.Warn("message pruning failed", zap.Error(err))
		return 0
	}
	return n
}
