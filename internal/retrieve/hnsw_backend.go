package retrieve

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/akashi-ai/noema/internal/graph"
	"github.com/akashi-ai/noema/internal/retrieve/hnsw"
)

// HNSWBackend implements ANNBackend against the embedded HNSW sub-index,
// the default accelerator when no external Qdrant collection is
// configured (retrieve.ANNBackend has no required implementation — a
// Retriever with a nil backend brute-force scans instead).
type HNSWBackend struct {
	mu    sync.Mutex
	index *hnsw.Index
	store graph.Store
}

// NewHNSWBackend wraps an already-configured index. Claims must be added
// via Add as they are stored so the index and the claim store stay in
// sync; this backend never rebuilds the index from the store itself.
func NewHNSWBackend(index *hnsw.Index, store graph.Store) *HNSWBackend {
	return &HNSWBackend{index: index, store: store}
}

// Add indexes a claim's embedding under its claim id.
func (b *HNSWBackend) Add(claimID uuid.UUID, embedding []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Add(claimID.String(), embedding)
}

// Search implements ANNBackend, resolving the claim bodies for the
// returned ids via the knowledge graph store.
func (b *HNSWBackend) Search(ctx context.Context, vec []float32, k int) ([]graph.ScoredClaim, error) {
	b.mu.Lock()
	hits, err := b.index.Search(vec, k, nil)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("retrieve: hnsw search: %w", err)
	}

	out := make([]graph.ScoredClaim, 0, len(hits))
	for _, h := range hits {
		claimID, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		claim, err := b.store.ClaimByID(ctx, claimID)
		if err != nil {
			continue
		}
		out = append(out, graph.ScoredClaim{Claim: claim, Score: h.Score})
	}
	return out, nil
}
