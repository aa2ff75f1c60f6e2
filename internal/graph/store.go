package graph

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("graph: not found")

// ErrDimensionMismatch is returned when a claim's embedding dimension does
// not match the store's configured dimension.
var ErrDimensionMismatch = errors.New("graph: embedding dimension mismatch")

// Store is the pluggable backend for the knowledge graph.
// In-memory and relational backends share this logical schema: claims,
// sources, entities, topics, claim_entities, claim_topics, relationships.
type Store interface {
	// StoreClaim inserts claim, upserts its source/entities/topics, and
	// creates SOURCED_FROM, MENTIONS, ABOUT, GENERATED_IN edges.
	StoreClaim(ctx context.Context, c Claim) (uuid.UUID, error)

	// ClaimByID returns a claim by id, or ErrNotFound.
	ClaimByID(ctx context.Context, id uuid.UUID) (Claim, error)

	// ClaimsByEntity returns claims mentioning the given entity. entityType
	// may be empty to match any type with that name.
	ClaimsByEntity(ctx context.Context, name string, entityType EntityType) ([]Claim, error)

	// ClaimsByTopic returns claims tagged with topic.
	ClaimsByTopic(ctx context.Context, topic string) ([]Claim, error)

	// ClaimsBySession returns claims recorded under sessionID.
	ClaimsBySession(ctx context.Context, sessionID string) ([]Claim, error)

	// FindClaimsByEmbedding returns claims with stored embeddings scored
	// by cosine similarity to queryVec, descending, filtered to
	// similarity >= minSim, truncated to limit.
	FindClaimsByEmbedding(ctx context.Context, queryVec []float32, limit int, minSim float64) ([]ScoredClaim, error)

	// GetProvenanceChain DFS-walks SOURCED_FROM/DERIVED_FROM edges from
	// claimID, cycle-safe, bounded by maxDepth.
	GetProvenanceChain(ctx context.Context, claimID uuid.UUID, maxDepth int) ([]ProvenanceNode, error)

	// GetRelatedClaims BFS-walks claims sharing entities or topics with
	// claimID, bounded by maxHops, recording minimum hop distance.
	GetRelatedClaims(ctx context.Context, claimID uuid.UUID, maxHops int) ([]RelatedClaim, error)

	// FindContradictions returns claims sharing a topic with claimID but
	// with a different source and low embedding similarity,
	// ascending by similarity, truncated to 10.
	FindContradictions(ctx context.Context, claimID uuid.UUID, maxSimilarity float64) ([]ScoredClaim, error)

	// AllClaims returns every stored claim (used by retrieval/BM25
	// indices to build their corpus).
	AllClaims(ctx context.Context) ([]Claim, error)

	// EntityByKey returns a stored entity, or ErrNotFound.
	EntityByKey(ctx context.Context, key EntityKey) (Entity, error)
}

// ScoredClaim pairs a claim with a similarity score.
type ScoredClaim struct {
	Claim Claim
	Score float64
}
