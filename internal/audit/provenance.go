package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProvenanceRole is the relationship a source plays to the entry it is
// attached to.
type ProvenanceRole string

const (
	ProvenanceRoleInput     ProvenanceRole = "input"
	ProvenanceRoleEvidence  ProvenanceRole = "evidence"
	ProvenanceRoleRule      ProvenanceRole = "rule"
	ProvenanceRoleReference ProvenanceRole = "reference"
)

// ProvenanceRecord attaches an immutable source reference to an entry. A
// single entry may carry many records (context_sources/
// source_documents fan out into one record per source).
type ProvenanceRecord struct {
	EntryID    uuid.UUID
	SourceName string
	SourceType string
	Role       ProvenanceRole
	AddedAt    time.Time
}

// EntityProvenanceTracker indexes provenance records by entry, role,
// name, and type, and answers cross-entry provenance queries such as
// tracing a claim back to its ultimate sources through the audit chain's
// parent_entry_id links.
//
// See DESIGN.md for the grounding of the provenance lookups and the
// shared AncestorChain traversal in memory.go.
type EntityProvenanceTracker struct {
	mu      sync.RWMutex
	store   Store
	byEntry map[uuid.UUID][]ProvenanceRecord
	byRole  map[ProvenanceRole][]ProvenanceRecord
	byName  map[string][]ProvenanceRecord
	byType  map[string][]ProvenanceRecord
}

// NewEntityProvenanceTracker creates a tracker backed by store for chain
// traversal (TraceToSource).
func NewEntityProvenanceTracker(store Store) *EntityProvenanceTracker {
	return &EntityProvenanceTracker{
		store:   store,
		byEntry: make(map[uuid.UUID][]ProvenanceRecord),
		byRole:  make(map[ProvenanceRole][]ProvenanceRecord),
		byName:  make(map[string][]ProvenanceRecord),
		byType:  make(map[string][]ProvenanceRecord),
	}
}

// Record attaches a provenance record to an entry. Records are immutable
// once added: callers add new records rather than mutating existing ones.
func (t *EntityProvenanceTracker) Record(_ context.Context, r ProvenanceRecord) error {
	if r.EntryID == uuid.Nil {
		return fmt.Errorf("audit: record provenance: entry_id is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byEntry[r.EntryID] = append(t.byEntry[r.EntryID], r)
	t.byRole[r.Role] = append(t.byRole[r.Role], r)
	t.byName[r.SourceName] = append(t.byName[r.SourceName], r)
	t.byType[r.SourceType] = append(t.byType[r.SourceType], r)
	return nil
}

// ByEntry returns every provenance record attached to an entry.
func (t *EntityProvenanceTracker) ByEntry(_ context.Context, entryID uuid.UUID) []ProvenanceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ProvenanceRecord(nil), t.byEntry[entryID]...)
}

// ByRole returns every record with the given role, across all entries.
func (t *EntityProvenanceTracker) ByRole(_ context.Context, role ProvenanceRole) []ProvenanceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ProvenanceRecord(nil), t.byRole[role]...)
}

// ByName returns every record referencing a source by its name.
func (t *EntityProvenanceTracker) ByName(_ context.Context, name string) []ProvenanceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ProvenanceRecord(nil), t.byName[name]...)
}

// ByType returns every record whose source is of the given type.
func (t *EntityProvenanceTracker) ByType(_ context.Context, sourceType string) []ProvenanceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ProvenanceRecord(nil), t.byType[sourceType]...)
}

// Intersect returns records that satisfy every supplied predicate, e.g.
// ByRole(evidence) intersected with ByType(document). Predicates are
// produced by the With* helpers below.
func (t *EntityProvenanceTracker) Intersect(_ context.Context, preds ...func(ProvenanceRecord) bool) []ProvenanceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var all []ProvenanceRecord
	for _, recs := range t.byEntry {
		all = append(all, recs...)
	}
	var out []ProvenanceRecord
	for _, r := range all {
		matches := true
		for _, p := range preds {
			if !p(r) {
				matches = false
				break
			}
		}
		if matches {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out
}

// WithRole and WithType build predicates for Intersect.
func WithRole(role ProvenanceRole) func(ProvenanceRecord) bool {
	return func(r ProvenanceRecord) bool { return r.Role == role }
}

func WithType(sourceType string) func(ProvenanceRecord) bool {
	return func(r ProvenanceRecord) bool { return r.SourceType == sourceType }
}

// Timeline returns every record attached to entryID and its ancestors,
// ordered chronologically oldest-first — the full provenance history
// feeding into a decision.
func (t *EntityProvenanceTracker) Timeline(ctx context.Context, entryID uuid.UUID) ([]ProvenanceRecord, error) {
	chain, err := t.store.AncestorChain(ctx, entryID)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []ProvenanceRecord
	for _, e := range chain {
		out = append(out, t.byEntry[e.EntryID]...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

// TraceToSource walks the audit chain from entryID back through
// parent_entry_id links, cycle-safe, collecting every distinct source name
// referenced along the way — the ultimate provenance of a decision.
func (t *EntityProvenanceTracker) TraceToSource(ctx context.Context, entryID uuid.UUID) ([]string, error) {
	visited := make(map[uuid.UUID]bool)
	seen := make(map[string]bool)
	var out []string

	cur := entryID
	for {
		if visited[cur] {
			break
		}
		visited[cur] = true

		e, err := t.store.Get(ctx, cur)
		if err != nil {
			return nil, err
		}

		t.mu.RLock()
		for _, r := range t.byEntry[e.EntryID] {
			if !seen[r.SourceName] {
				seen[r.SourceName] = true
				out = append(out, r.SourceName)
			}
		}
		t.mu.RUnlock()

		for _, doc := range e.SourceDocuments {
			if !seen[doc] {
				seen[doc] = true
				out = append(out, doc)
			}
		}

		if e.ParentEntryID == nil {
			break
		}
		cur = *e.ParentEntryID
	}
	return out, nil
}
