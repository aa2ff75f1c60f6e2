package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/akashi-ai/noema/internal/clock"
)

// MemoryStore is an in-memory Store backend: a vector plus an id index,
// guarded by a single mutex ("In-memory: vector + id index; used
// for tests and default manager"; §5 single-writer/multi-reader via a
// reader lock).
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[uuid.UUID]int // index into entries
	clock   clock.Clock
	logger  *slog.Logger
}

// NewMemoryStore creates an empty in-memory audit chain store.
func NewMemoryStore(cl clock.Clock, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		byID:   make(map[uuid.UUID]int),
		clock:  cl,
		logger: logger,
	}
}

func (s *MemoryStore) Record(_ context.Context, in RecordInput) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tip string
	if n := len(s.entries); n > 0 {
		tip = s.entries[n-1].EntryHash
	}

	e := buildEntry(s.clock, tip, in)
	s.entries = append(s.entries, e)
	s.byID[e.EntryID] = len(s.entries) - 1

	if e.ParentEntryID != nil {
		if pi, ok := s.byID[*e.ParentEntryID]; ok {
			s.entries[pi].ChildEntryIDs = append(s.entries[pi].ChildEntryIDs, e.EntryID)
		}
	}

	s.logger.Debug("audit: recorded entry", "entry_id", e.EntryID, "decision_type", e.DecisionType)
	return e, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return s.entries[idx], nil
}

func (s *MemoryStore) UpdateVerification(_ context.Context, id uuid.UUID, status VerificationStatus, verifierID string, score *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	e := s.entries[idx]
	e.VerificationStatus = status
	e.VerifierIDs = append(e.VerifierIDs, verifierID)
	if score != nil {
		e.VerificationScores = append(e.VerificationScores, *score)
	}
	// Re-finalize this entry's hash only; successors are not relinked
	// (DESIGN.md open-question decision: status is a mutable annotation).
	e.EntryHash = computeEntryHash(e)
	s.entries[idx] = e
	return nil
}

func (s *MemoryStore) VerifyIntegrity(_ context.Context) (IntegrityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return verifyChain(s.entries), nil
}

func (s *MemoryStore) LatestHash(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return "", nil
	}
	return s.entries[len(s.entries)-1].EntryHash, nil
}

func (s *MemoryStore) ByAgent(_ context.Context, agentID string) ([]Entry, error) {
	return s.filter(func(e Entry) bool { return e.AgentID == agentID }), nil
}

func (s *MemoryStore) BySession(_ context.Context, sessionID string) ([]Entry, error) {
	return s.filter(func(e Entry) bool { return e.SessionID == sessionID }), nil
}

func (s *MemoryStore) ByType(_ context.Context, decisionType string) ([]Entry, error) {
	return s.filter(func(e Entry) bool { return e.DecisionType == decisionType }), nil
}

func (s *MemoryStore) ByDateRange(_ context.Context, r DateRange) ([]Entry, error) {
	return s.filter(func(e Entry) bool {
		if r.From != nil && e.Timestamp.Before(*r.From) {
			return false
		}
		if r.To != nil && e.Timestamp.After(*r.To) {
			return false
		}
		return true
	}), nil
}

func (s *MemoryStore) filter(pred func(Entry) bool) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) Children(_ context.Context, id uuid.UUID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	var out []Entry
	for _, childID := range s.entries[idx].ChildEntryIDs {
		if ci, ok := s.byID[childID]; ok {
			out = append(out, s.entries[ci])
		}
	}
	return out, nil
}

func (s *MemoryStore) AncestorChain(_ context.Context, id uuid.UUID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[uuid.UUID]bool)
	var chain []Entry
	cur := id
	for {
		idx, ok := s.byID[cur]
		if !ok {
			return nil, ErrNotFound
		}
		if visited[cur] {
			break // cycle guard
		}
		visited[cur] = true
		e := s.entries[idx]
		chain = append(chain, e)
		if e.ParentEntryID == nil {
			break
		}
		cur = *e.ParentEntryID
	}
	// Reverse to oldest-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *MemoryStore) DecisionTree(_ context.Context, id uuid.UUID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	visited := map[uuid.UUID]bool{id: true}
	queue := []Entry{s.entries[idx]}
	var out []Entry
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		for _, childID := range cur.ChildEntryIDs {
			if visited[childID] {
				continue
			}
			visited[childID] = true
			if ci, ok := s.byID[childID]; ok {
				queue = append(queue, s.entries[ci])
			}
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)

// errBackend wraps a backend I/O failure with the component name, following
// the "<package>: <verb> <noun>: %w" convention used across this module.
func errBackend(verb string, err error) error {
	return fmt.Errorf("audit: %s: %w", verb, err)
}
