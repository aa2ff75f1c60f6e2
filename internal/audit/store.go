package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an entry lookup by id finds nothing.
var ErrNotFound = errors.New("audit: entry not found")

// Issue kinds reported by VerifyIntegrity.
type IssueKind string

const (
	IssueHashMismatch IssueKind = "hash_mismatch"
	IssueChainBreak   IssueKind = "chain_break"
)

// Issue is a single integrity problem found at a specific entry.
type Issue struct {
	EntryID uuid.UUID
	Index   int
	Kind    IssueKind
}

// IntegrityReport is the result of walking the chain.
// Issues is empty — never nil-vs-non-nil distinguished by callers — when
// the chain is intact.
type IntegrityReport struct {
	Issues []Issue
}

// OK reports whether the chain had no integrity issues.
func (r IntegrityReport) OK() bool { return len(r.Issues) == 0 }

// DateRange bounds a query by entry timestamp, inclusive on both ends.
// A nil bound is unbounded on that side.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Store is the pluggable backend contract for the audit chain (,
// §9 "inheritance-based backends -> trait/interface").
type Store interface {
	// Record builds, hashes, links, and persists a new entry, advancing the
	// tip. Concurrent writers against the same store are not supported
	// (single-writer per §5); implementations serialize internally.
	Record(ctx context.Context, in RecordInput) (Entry, error)

	// Get returns the entry with the given id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (Entry, error)

	// UpdateVerification mutates only the verification tuple of an existing
	// entry and re-finalizes its entry_hash; it does not relink successors
	// (see DESIGN.md open-question decision).
	UpdateVerification(ctx context.Context, id uuid.UUID, status VerificationStatus, verifierID string, score *float64) error

	// VerifyIntegrity walks entries in stored order recomputing hashes and
	// checking chain linkage.
	VerifyIntegrity(ctx context.Context) (IntegrityReport, error)

	// LatestHash returns the entry_hash of the most recently recorded
	// entry, or "" when the store is empty.
	LatestHash(ctx context.Context) (string, error)

	// ByAgent, BySession, ByType, ByDateRange are structured queries.
	ByAgent(ctx context.Context, agentID string) ([]Entry, error)
	BySession(ctx context.Context, sessionID string) ([]Entry, error)
	ByType(ctx context.Context, decisionType string) ([]Entry, error)
	ByDateRange(ctx context.Context, r DateRange) ([]Entry, error)

	// Children returns entries whose parent_entry_id is id.
	Children(ctx context.Context, id uuid.UUID) ([]Entry, error)

	// AncestorChain walks parent_entry_id links from id back to a root,
	// returning entries oldest-first. Cycle-safe.
	AncestorChain(ctx context.Context, id uuid.UUID) ([]Entry, error)

	// DecisionTree returns id's full descendant tree (BFS order).
	DecisionTree(ctx context.Context, id uuid.UUID) ([]Entry, error)
}
