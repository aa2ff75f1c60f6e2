package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akashi-ai/noema/internal/clock"
)

func TestEntityProvenanceTracker_TraceToSource(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil)
	tracker := NewEntityProvenanceTracker(store)

	root, err := store.Record(ctx, RecordInput{
		DecisionType:    "research",
		AgentID:         "researcher",
		SourceDocuments: []string{"doc-a"},
	})
	require.NoError(t, err)
	require.NoError(t, tracker.Record(ctx, ProvenanceRecord{
		EntryID: root.EntryID, SourceName: "doc-a", SourceType: "document", Role: ProvenanceRoleInput,
	}))

	parentID := root.EntryID
	child, err := store.Record(ctx, RecordInput{
		DecisionType:    "plan",
		AgentID:         "planner",
		ParentEntryID:   &parentID,
		SourceDocuments: []string{"doc-b"},
	})
	require.NoError(t, err)
	require.NoError(t, tracker.Record(ctx, ProvenanceRecord{
		EntryID: child.EntryID, SourceName: "doc-b", SourceType: "document", Role: ProvenanceRoleEvidence,
	}))

	sources, err := tracker.TraceToSource(ctx, child.EntryID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-b", "doc-a"}, sources)
}

func TestEntityProvenanceTracker_Intersect(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clock.Fixed{At: time.Now()}, nil)
	tracker := NewEntityProvenanceTracker(store)

	e, err := store.Record(ctx, RecordInput{DecisionType: "plan", AgentID: "planner"})
	require.NoError(t, err)

	require.NoError(t, tracker.Record(ctx, ProvenanceRecord{EntryID: e.EntryID, SourceName: "rule-1", SourceType: "rule", Role: ProvenanceRoleRule}))
	require.NoError(t, tracker.Record(ctx, ProvenanceRecord{EntryID: e.EntryID, SourceName: "doc-1", SourceType: "document", Role: ProvenanceRoleEvidence}))

	onlyRules := tracker.Intersect(ctx, WithRole(ProvenanceRoleRule))
	require.Len(t, onlyRules, 1)
	assert.Equal(t, "rule-1", onlyRules[0].SourceName)

	onlyDocs := tracker.Intersect(ctx, WithType("document"))
	require.Len(t, onlyDocs, 1)
	assert.Equal(t, "doc-1", onlyDocs[0].SourceName)

	none := tracker.Intersect(ctx, WithRole(ProvenanceRoleRule), WithType("document"))
	assert.Empty(t, none)
}

func TestEntityProvenanceTracker_Timeline(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clock.Fixed{At: time.Now()}, nil)
	tracker := NewEntityProvenanceTracker(store)

	root, err := store.Record(ctx, RecordInput{DecisionType: "research", AgentID: "researcher"})
	require.NoError(t, err)
	parentID := root.EntryID
	child, err := store.Record(ctx, RecordInput{DecisionType: "plan", AgentID: "planner", ParentEntryID: &parentID})
	require.NoError(t, err)

	require.NoError(t, tracker.Record(ctx, ProvenanceRecord{EntryID: root.EntryID, SourceName: "a", Role: ProvenanceRoleInput, AddedAt: time.Unix(1, 0)}))
	require.NoError(t, tracker.Record(ctx, ProvenanceRecord{EntryID: child.EntryID, SourceName: "b", Role: ProvenanceRoleEvidence, AddedAt: time.Unix(2, 0)}))

	timeline, err := tracker.Timeline(ctx, child.EntryID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, "a", timeline[0].SourceName)
	assert.Equal(t, "b", timeline[1].SourceName)
}
