package rules

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/akashi-ai/noema/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(at time.Time) *MemoryStore {
	return NewMemoryStore(clock.Fixed{At: at})
}

func TestMemoryStore_Add_MergesOnSimilarity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	r1, err := s.Add(ctx, Rule{
		Condition:      "file exceeds 500 lines and has no tests",
		Recommendation: "split into smaller modules",
		Confidence:     0.5,
	})
	require.NoError(t, err)

	r2, err := s.Add(ctx, Rule{
		Condition:      "file exceeds 500 lines and has no tests present",
		Recommendation: "split the file into smaller modules",
		Confidence:     0.5,
	})
	require.NoError(t, err)

	assert.Equal(t, r1.ID, r2.ID)
	assert.Equal(t, 1, r2.SuccessCount)
	assert.InDelta(t, 0.55, r2.Confidence, 1e-9)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStore_Add_ConfidenceClampedAtOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := s.Add(ctx, Rule{Condition: "always validate input", Recommendation: "sanitize early", Confidence: 0.99})
	require.NoError(t, err)

	r, err := s.Add(ctx, Rule{Condition: "always validate input", Recommendation: "sanitize early", Confidence: 0.5})
	require.NoError(t, err)

	assert.LessOrEqual(t, r.Confidence, 1.0)
}

func TestMemoryStore_Add_DissimilarInsertsNewRule(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := s.Add(ctx, Rule{Condition: "database connection pool exhausted", Recommendation: "increase pool size"})
	require.NoError(t, err)
	_, err = s.Add(ctx, Rule{Condition: "unused import detected in file", Recommendation: "remove the import"})
	require.NoError(t, err)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_Search_RanksByScore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(now)

	strong, err := s.Add(ctx, Rule{Condition: "retry network timeout errors", Recommendation: "use exponential backoff"})
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		require.NoError(t, s.UpdateEffectiveness(ctx, strong.ID, true))
	}

	weak, err := s.Add(ctx, Rule{Condition: "retry network timeout failures in batch jobs", Recommendation: "use linear backoff"})
	require.NoError(t, err)
	_ = weak

	results, err := s.Search(ctx, "retry network timeout", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, strong.ID, results[0].ID)
}

func TestMemoryStore_Search_ExcludesInactive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	r, err := s.Add(ctx, Rule{Condition: "missing docstring on exported function", Recommendation: "add a doc comment"})
	require.NoError(t, err)
	r.Status = StatusPruned
	require.NoError(t, s.Update(ctx, r))

	results, err := s.Search(ctx, "missing docstring", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_UpdateEffectiveness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	r, err := s.Add(ctx, Rule{Condition: "config missing required field", Recommendation: "fail fast at startup"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateEffectiveness(ctx, r.ID, true))
	require.NoError(t, s.UpdateEffectiveness(ctx, r.ID, false))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SuccessCount)
	assert.Equal(t, 1, got.FailureCount)
	require.NotNil(t, got.LastUsed)
}

func TestMemoryStore_PruneIneffective(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	r, err := s.Add(ctx, Rule{Condition: "rule that keeps failing", Recommendation: "do the risky thing"})
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		require.NoError(t, s.UpdateEffectiveness(ctx, r.ID, false))
	}
	require.NoError(t, s.UpdateEffectiveness(ctx, r.ID, true))

	pruned, err := s.PruneIneffective(ctx, 10, 0.4)
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, r.ID, pruned[0])

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPruned, got.Status)
}

func TestMemoryStore_PruneStale(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(start)

	r, err := s.Add(ctx, Rule{Condition: "rule nobody has used in a while", Recommendation: "do something"})
	require.NoError(t, err)

	s.clock = clock.Fixed{At: start.AddDate(0, 0, 100)}

	deprecated, err := s.PruneStale(ctx, 90)
	require.NoError(t, err)
	require.Len(t, deprecated, 1)
	assert.Equal(t, r.ID, deprecated[0])

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeprecated, got.Status)
}

func TestMemoryStore_ExportImport_KeepsHigherEffectiveness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	r, err := s.Add(ctx, Rule{Condition: "circular dependency detected", Recommendation: "invert the dependency"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateEffectiveness(ctx, r.ID, true))

	data, err := s.Export(ctx)
	require.NoError(t, err)

	better := r
	better.SuccessCount += 10
	betterData, err := json.Marshal([]Rule{better})
	require.NoError(t, err)

	s2 := newTestStore(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s2.Import(ctx, data))
	require.NoError(t, s2.Import(ctx, betterData))

	got, err := s2.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, better.SuccessCount, got.SuccessCount)
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s := newTestStore(time.Now())
	_, err := s.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRule_EffectivenessAndThresholds(t *testing.T) {
	fresh := Rule{}
	assert.InDelta(t, 0.5, fresh.Effectiveness(), 1e-9)

	reliable := Rule{SuccessCount: 8, FailureCount: 2}
	assert.True(t, reliable.Reliable())
	assert.False(t, reliable.Pruneable())

	pruneable := Rule{SuccessCount: 1, FailureCount: 9}
	assert.True(t, pruneable.Pruneable())
	assert.False(t, pruneable.Reliable())
}

func TestRuleID_Deterministic(t *testing.T) {
	a := RuleID("same condition", "same recommendation")
	b := RuleID("same condition", "same recommendation")
	c := RuleID("different condition", "same recommendation")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestJaccardSimilarity(t *testing.T) {
	a := conditionTokens("file has no tests")
	b := conditionTokens("file has no tests")
	assert.Equal(t, 1.0, jaccardSimilarity(a, b))

	c := conditionTokens("completely unrelated text here")
	assert.Less(t, jaccardSimilarity(a, c), 0.5)
}
