package rules

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a rule lookup by id finds nothing.
var ErrNotFound = errors.New("rules: not found")

// Store is the pluggable rule backend contract.
type Store interface {
	// Add merges into a similar active rule (Jaccard similarity of
	// condition tokens at or above the backend's merge threshold) by
	// incrementing success_count and multiplicatively boosting confidence
	// (clamped to 1.0); otherwise inserts a new rule.
	Add(ctx context.Context, r Rule) (Rule, error)

	Get(ctx context.Context, id string) (Rule, error)
	Update(ctx context.Context, r Rule) error
	Delete(ctx context.Context, id string) error
	GetAll(ctx context.Context) ([]Rule, error)

	// Search ranks ACTIVE rules by 0.4*norm_fts + 0.4*effectiveness +
	// 0.2*recency_decay, descending, truncated to limit.
	Search(ctx context.Context, query string, limit int) ([]Rule, error)

	// UpdateEffectiveness records one application's outcome.
	UpdateEffectiveness(ctx context.Context, id string, success bool) error

	// PruneIneffective transitions qualifying ACTIVE rules to PRUNED and
	// returns their ids.
	PruneIneffective(ctx context.Context, minApplications int, minEffectiveness float64) ([]string, error)

	// PruneStale transitions ACTIVE rules unused for longer than days (or,
	// if never used, older than days) to DEPRECATED, returning their ids.
	PruneStale(ctx context.Context, days int) ([]string, error)

	// Export serializes every rule (all statuses) to JSON.
	Export(ctx context.Context) ([]byte, error)

	// Import merges rules from JSON, keeping the higher-effectiveness
	// version per id.
	Import(ctx context.Context, data []byte) error
}
