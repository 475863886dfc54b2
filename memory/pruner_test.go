package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneDeletesOnlyStaleFacts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p := NewMemoryPruner(s, nil, nil)

	for _, f := range []Fact{
		{Category: CategoryPreference, Key: "drink", Value: "kopi susu", Confidence: 0.9},
		{Category: CategoryFactual, Key: "city", Value: "Bandung", Confidence: 0.8},
		{Category: CategoryHabit, Key: "sleep", Value: "late", Confidence: 0.7,
			CreatedAt: time.Now().AddDate(0, 0, -60)},
	} {
		fact := f
		require.NoError(t, s.AddFact(ctx, &fact))
	}

	stats := p.Prune(ctx, 30)
	assert.Equal(t, int64(1), stats.Facts)

	facts, err := s.GetFacts(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, facts, 2)
	for _, f := range facts {
		assert.NotEqual(t, "sleep", f.Key)
	}
}

func TestPruneDeletesStaleMessages(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p := NewMemoryPruner(s, nil, nil)

	old := &Message{SessionID: "s1", Role: RoleUser, Content: "stale",
		CreatedAt: time.Now().AddDate(0, 0, -45)}
	require.NoError(t, s.AddMessage(ctx, old))
	fresh := &Message{SessionID: "s1", Role: RoleUser, Content: "fresh"}
	require.NoError(t, s.AddMessage(ctx, fresh))

	stats := p.Prune(ctx, 30)
	assert.Equal(t, int64(1), stats.Messages)

	count, err := s.CountMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPruneIsIdempotent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p := NewMemoryPruner(s, nil, nil)

	stale := Fact{Category: CategoryEntity, Key: "old", Value: "gone",
		Confidence: 0.5, CreatedAt: time.Now().AddDate(0, 0, -90)}
	require.NoError(t, s.AddFact(ctx, &stale))

	first := p.Prune(ctx, 30)
	assert.Equal(t, int64(1), first.Facts)

	second := p.Prune(ctx, 30)
	assert.Zero(t, second.Facts)
	assert.Zero(t, second.Messages)
}

func TestPruneDefaultsRetentionWindow(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p := NewMemoryPruner(s, nil, nil)

	inside := Fact{Category: CategoryFactual, Key: "recent", Value: "kept",
		Confidence: 0.9, CreatedAt: time.Now().AddDate(0, 0, -10)}
	require.NoError(t, s.AddFact(ctx, &inside))

	// maxAgeDays <= 0 falls back to the 30 day default.
	stats := p.Prune(ctx, 0)
	assert.Zero(t, stats.Facts)

	facts, err := s.GetFacts(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestPruneOldFactsExported(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p := NewMemoryPruner(s, nil, nil)

	stale := Fact{Category: CategoryHabit, Key: "gym", Value: "mornings",
		Confidence: 0.6, CreatedAt: time.Now().AddDate(0, 0, -31)}
	require.NoError(t, s.AddFact(ctx, &stale))

	assert.Equal(t, int64(1), p.PruneOldFacts(ctx, 30))
}
