package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/akashi-ai/noema/internal/clock"
)

// MemoryMergeThreshold is the in-memory backend's Jaccard similarity
// threshold for merge-on-add ("≥0.6 with in-memory").
const MemoryMergeThreshold = 0.6

// MemoryStore is an in-memory rule Store, guarded by a single mutex
//.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]Rule
	clock clock.Clock
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore(cl clock.Clock) *MemoryStore {
	if cl == nil {
		cl = clock.Real{}
	}
	return &MemoryStore{rules: make(map[string]Rule), clock: cl}
}

func errRules(verb string, err error) error {
	return fmt.Errorf("rules: %s: %w", verb, err)
}

func (s *MemoryStore) Add(_ context.Context, r Rule) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	incomingTokens := conditionTokens(r.Condition)

	for id, existing := range s.rules {
		if existing.Status != StatusActive {
			continue
		}
		if jaccardSimilarity(incomingTokens, conditionTokens(existing.Condition)) >= MemoryMergeThreshold {
			existing.SuccessCount++
			existing.Confidence = math.Min(1.0, existing.Confidence*1.1)
			s.rules[id] = existing
			return existing, nil
		}
	}

	if r.ID == "" {
		r.ID = RuleID(r.Condition, r.Recommendation)
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	s.rules[r.ID] = r
	return r, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return Rule{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) Update(_ context.Context, r Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[r.ID]; !ok {
		return ErrNotFound
	}
	s.rules[r.ID] = r
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) GetAll(_ context.Context) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Search ranks ACTIVE rules by keyword-overlap relevance combined with
// effectiveness and recency. The in-memory backend has no
// full-text index, so norm_fts is approximated by normalized keyword
// overlap between the query and the rule's condition+recommendation text.
func (s *MemoryStore) Search(_ context.Context, query string, limit int) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	queryTokens := conditionTokens(query)

	type scored struct {
		rule  Rule
		score float64
	}
	var candidates []scored
	for _, r := range s.rules {
		if r.Status != StatusActive {
			continue
		}
		text := r.Condition + " " + r.Recommendation
		overlap := jaccardSimilarity(queryTokens, conditionTokens(text))
		score := 0.4*overlap + 0.4*r.Effectiveness() + 0.2*recencyDecay(r, now)
		candidates = append(candidates, scored{rule: r, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Rule, len(candidates))
	for i, c := range candidates {
		out[i] = c.rule
	}
	return out, nil
}

func (s *MemoryStore) UpdateEffectiveness(_ context.Context, id string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return ErrNotFound
	}
	if success {
		r.SuccessCount++
	} else {
		r.FailureCount++
	}
	now := s.clock.Now()
	r.LastUsed = &now
	s.rules[id] = r
	return nil
}

func (s *MemoryStore) PruneIneffective(_ context.Context, minApplications int, minEffectiveness float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned []string
	for id, r := range s.rules {
		if r.Status != StatusActive {
			continue
		}
		if r.Total() >= minApplications && r.Effectiveness() < minEffectiveness {
			r.Status = StatusPruned
			s.rules[id] = r
			pruned = append(pruned, id)
		}
	}
	return pruned, nil
}

func (s *MemoryStore) PruneStale(_ context.Context, days int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock.Now().AddDate(0, 0, -days)
	var deprecated []string
	for id, r := range s.rules {
		if r.Status != StatusActive {
			continue
		}
		ref := r.CreatedAt
		if r.LastUsed != nil {
			ref = *r.LastUsed
		}
		if ref.Before(cutoff) {
			r.Status = StatusDeprecated
			s.rules[id] = r
			deprecated = append(deprecated, id)
		}
	}
	return deprecated, nil
}

func (s *MemoryStore) Export(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, errRules("export", err)
	}
	return b, nil
}

func (s *MemoryStore) Import(_ context.Context, data []byte) error {
	var incoming []Rule
	if err := json.Unmarshal(data, &incoming); err != nil {
		return errRules("import", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range incoming {
		existing, ok := s.rules[r.ID]
		if !ok || r.Effectiveness() > existing.Effectiveness() {
			s.rules[r.ID] = r
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
