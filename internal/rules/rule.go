// Package rules implements the rule store and extractor: rules
// learned from agent executions, scored by a Bayesian effectiveness
// estimate, merged on similarity, and mined by an extraction/orchestration
// pipeline.
//
// See DESIGN.md for the grounding of the pairCache/normalizePair dedup
// pattern (reused here for similarity merging) and the add/search/merge
// semantics.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Status is a rule's lifecycle state.
type Status string

const (
	StatusActive        Status = "ACTIVE"
	StatusDeprecated    Status = "DEPRECATED"
	StatusPruned        Status = "PRUNED"
	StatusPendingReview Status = "PENDING_REVIEW"
)

// Rule is a learned condition/recommendation pair with usage statistics
// ("Extracted Rule").
type Rule struct {
	ID            string
	Condition     string
	Recommendation string
	Reasoning     string
	Confidence    float64
	SuccessCount  int
	FailureCount  int
	SourceTask    string
	SourceAgent   string
	Category      string
	Status        Status
	Tags          []string
	CreatedAt     time.Time
	LastUsed      *time.Time
	Metadata      map[string]any
}

// RuleID computes a rule's id: first16(SHA256(condition ":" recommendation)).
func RuleID(condition, recommendation string) string {
	sum := sha256.Sum256([]byte(condition + ":" + recommendation))
	return hex.EncodeToString(sum[:])[:16]
}

// Effectiveness is the Beta(2,2) posterior mean over success/failure
// counts: (2 + success) / (4 + success + failure).
func (r Rule) Effectiveness() float64 {
	total := r.SuccessCount + r.FailureCount
	return (2 + float64(r.SuccessCount)) / (4 + float64(total))
}

// Total is the number of times the rule has been applied.
func (r Rule) Total() int { return r.SuccessCount + r.FailureCount }

// Reliable reports whether the rule meets the reliability bar:
// total >= 5 and effectiveness >= 0.6.
func (r Rule) Reliable() bool { return r.Total() >= 5 && r.Effectiveness() >= 0.6 }

// Pruneable reports whether the rule meets the pruning bar:
// total >= 10 and effectiveness < 0.4.
func (r Rule) Pruneable() bool { return r.Total() >= 10 && r.Effectiveness() < 0.4 }

// recencyDecay computes max(0, 1 - days_since_last_use/90), or 0.5 when
// the rule was never used (search formula).
func recencyDecay(r Rule, now time.Time) float64 {
	if r.LastUsed == nil {
		return 0.5
	}
	days := now.Sub(*r.LastUsed).Hours() / 24
	d := 1 - days/90
	if d < 0 {
		return 0
	}
	return d
}

// conditionTokens lower-cases and splits condition text into a word set
// for Jaccard similarity.
func conditionTokens(condition string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(condition)) {
		w = strings.Trim(w, ".,;:!?()[]{}\"'")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

// jaccardSimilarity computes |A∩B| / |A∪B| over two condition token sets.
func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var intersection int
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
