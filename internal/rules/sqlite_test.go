package rules

import (
	"context"
	"testing"
	"time"

	"github.com/akashi-ai/noema/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T, at time.Time) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", clock.Fixed{At: at})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_AddAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	r, err := s.Add(ctx, Rule{Condition: "query times out under load", Recommendation: "add an index"})
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Condition, got.Condition)
	assert.Equal(t, StatusActive, got.Status)
}

func TestSQLiteStore_Add_MergesAboveThreshold(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	r1, err := s.Add(ctx, Rule{Condition: "handler panics on nil pointer dereference", Recommendation: "add a nil check", Confidence: 0.5})
	require.NoError(t, err)
	r2, err := s.Add(ctx, Rule{Condition: "handler panics on nil pointer dereference error", Recommendation: "add a nil check guard", Confidence: 0.5})
	require.NoError(t, err)

	assert.Equal(t, r1.ID, r2.ID)
	assert.Equal(t, 1, r2.SuccessCount)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStore_Search_FTSRanking(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := s.Add(ctx, Rule{Condition: "goroutine leak in background worker", Recommendation: "cancel the context on shutdown"})
	require.NoError(t, err)
	_, err = s.Add(ctx, Rule{Condition: "missing newline at end of file", Recommendation: "add a trailing newline"})
	require.NoError(t, err)

	results, err := s.Search(ctx, "goroutine worker", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Condition, "goroutine")
}

func TestSQLiteStore_PruneIneffectiveAndStale(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestSQLiteStore(t, start)

	bad, err := s.Add(ctx, Rule{Condition: "rule that never works", Recommendation: "do the thing anyway"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.UpdateEffectiveness(ctx, bad.ID, false))
	}

	pruned, err := s.PruneIneffective(ctx, 10, 0.4)
	require.NoError(t, err)
	assert.Contains(t, pruned, bad.ID)

	stale, err := s.Add(ctx, Rule{Condition: "rule unused for a long time", Recommendation: "something"})
	require.NoError(t, err)
	s.clock = clock.Fixed{At: start.AddDate(0, 0, 200)}

	deprecated, err := s.PruneStale(ctx, 90)
	require.NoError(t, err)
	assert.Contains(t, deprecated, stale.ID)
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	r, err := s.Add(ctx, Rule{Condition: "export import roundtrip rule", Recommendation: "keep it simple"})
	require.NoError(t, err)

	data, err := s.Export(ctx)
	require.NoError(t, err)

	s2 := newTestSQLiteStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s2.Import(ctx, data))

	got, err := s2.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Condition, got.Condition)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t, time.Now())
	_, err := s.Get(context.Background(), "missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}
