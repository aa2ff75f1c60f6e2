package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akashi-ai/noema/internal/clock"
)

func newTestStore(t *testing.T, at time.Time) *MemoryStore {
	t.Helper()
	return NewMemoryStore(clock.Fixed{At: at}, nil)
}

func TestMemoryStore_Record_LinksChain(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	first, err := s.Record(ctx, RecordInput{DecisionType: "plan", AgentID: "planner", Inputs: "a", Outputs: "b"})
	require.NoError(t, err)
	assert.Equal(t, "", first.PreviousEntryHash)

	second, err := s.Record(ctx, RecordInput{DecisionType: "plan", AgentID: "planner", Inputs: "c", Outputs: "d"})
	require.NoError(t, err)
	assert.Equal(t, first.EntryHash, second.PreviousEntryHash)
	assert.NotEqual(t, first.EntryHash, second.EntryHash)

	latest, err := s.LatestHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.EntryHash, latest)
}

func TestMemoryStore_LatestHash_EmptyStore(t *testing.T) {
	s := newTestStore(t, time.Now())
	h, err := s.LatestHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", h)
}

func TestMemoryStore_VerifyIntegrity_CleanChain(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 5; i++ {
		_, err := s.Record(ctx, RecordInput{DecisionType: "plan", AgentID: "planner"})
		require.NoError(t, err)
	}
	report, err := s.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Empty(t, report.Issues)
}

// TestMemoryStore_VerifyIntegrity_DetectsTamper is the concrete tamper
// scenario: record three entries, mutate entry[1]'s agent_id, and expect
// exactly one hash_mismatch at index 1 and one chain_break at index 2.
func TestMemoryStore_VerifyIntegrity_DetectsTamper(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		_, err := s.Record(ctx, RecordInput{DecisionType: "plan", AgentID: "planner"})
		require.NoError(t, err)
	}

	s.mu.Lock()
	s.entries[1].AgentID = "evil"
	s.mu.Unlock()

	report, err := s.VerifyIntegrity(ctx)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Len(t, report.Issues, 2)

	assert.Equal(t, 1, report.Issues[0].Index)
	assert.Equal(t, IssueHashMismatch, report.Issues[0].Kind)
	assert.Equal(t, 2, report.Issues[1].Index)
	assert.Equal(t, IssueChainBreak, report.Issues[1].Kind)
}

func TestMemoryStore_UpdateVerification(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Now())
	e, err := s.Record(ctx, RecordInput{DecisionType: "plan", AgentID: "planner"})
	require.NoError(t, err)

	score := 0.92
	require.NoError(t, s.UpdateVerification(ctx, e.EntryID, VerificationVerified, "symbolic", &score))

	got, err := s.Get(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, VerificationVerified, got.VerificationStatus)
	assert.Equal(t, []string{"symbolic"}, got.VerifierIDs)
	assert.Equal(t, []float64{0.92}, got.VerificationScores)
	assert.NotEqual(t, e.EntryHash, got.EntryHash)
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s := newTestStore(t, time.Now())
	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ParentChild(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Now())

	parent, err := s.Record(ctx, RecordInput{DecisionType: "plan", AgentID: "planner"})
	require.NoError(t, err)

	pid := parent.EntryID
	child, err := s.Record(ctx, RecordInput{DecisionType: "revise", AgentID: "planner", ParentEntryID: &pid})
	require.NoError(t, err)

	children, err := s.Children(ctx, parent.EntryID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.EntryID, children[0].EntryID)

	chain, err := s.AncestorChain(ctx, child.EntryID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, parent.EntryID, chain[0].EntryID)
	assert.Equal(t, child.EntryID, chain[1].EntryID)

	tree, err := s.DecisionTree(ctx, parent.EntryID)
	require.NoError(t, err)
	require.Len(t, tree, 2)
}

func TestMemoryStore_ByFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := s.Record(ctx, RecordInput{DecisionType: "plan", AgentID: "planner", SessionID: "s1"})
	require.NoError(t, err)
	_, err = s.Record(ctx, RecordInput{DecisionType: "review", AgentID: "reviewer", SessionID: "s2"})
	require.NoError(t, err)

	byAgent, err := s.ByAgent(ctx, "planner")
	require.NoError(t, err)
	assert.Len(t, byAgent, 1)

	bySession, err := s.BySession(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, bySession, 1)

	byType, err := s.ByType(ctx, "review")
	require.NoError(t, err)
	assert.Len(t, byType, 1)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	byDate, err := s.ByDateRange(ctx, DateRange{From: &from})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)
}
