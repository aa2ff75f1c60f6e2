// Package retrieve implements the hybrid retriever: a weighted fusion
// of vector similarity, graph expansion, and optional BM25 lexical scoring
// over the knowledge graph's claim corpus.
//
// See DESIGN.md for the grounding of the Result shape, the weighted-fusion
// rescoring pattern, and the ANN backend contract.
package retrieve

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/akashi-ai/noema/internal/graph"
)

// Embedder produces a query embedding. Concrete LLM-backed implementations
// live in internal/service/embedding; callers inject one.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ANNBackend accelerates the vector pass over large corpora. The default
// Retriever falls back to a brute-force scan when none is configured.
type ANNBackend interface {
	Search(ctx context.Context, vec []float32, k int) ([]graph.ScoredClaim, error)
}

// RetrievalPath labels how a result was discovered.
type RetrievalPath string

const (
	PathVector RetrievalPath = "vector"
	PathGraph  RetrievalPath = "graph"
	PathBoth   RetrievalPath = "both"
)

// Result is a single ranked claim with its contributing scores.
type Result struct {
	Claim         graph.Claim
	VectorScore   float64
	GraphScore    float64
	BM25Score     float64
	Combined      float64
	HopDistance   int
	Path          RetrievalPath
}

// Config tunes the fusion weights and thresholds (defaults).
type Config struct {
	Limit          int
	MinSimilarity  float64
	MaxHops        int
	MinGraphScore  float64
	WeightVector   float64
	WeightGraph    float64
	AsOf           *time.Time
	TemporalFilter bool
}

// DefaultConfig returns the documented default weights/thresholds.
func DefaultConfig() Config {
	return Config{
		Limit:         10,
		MinSimilarity: 0.5,
		MaxHops:       2,
		MinGraphScore: 0.1,
		WeightVector:  0.6,
		WeightGraph:   0.4,
	}
}

// Retriever runs the hybrid retrieval algorithm.
type Retriever struct {
	store    graph.Store
	embedder Embedder
	ann      ANNBackend
	cfg      Config
}

// New creates a Retriever. ann may be nil, in which case the vector pass
// brute-force scans the store.
func New(store graph.Store, embedder Embedder, ann ANNBackend, cfg Config) *Retriever {
	if cfg.Limit <= 0 {
		cfg = DefaultConfig()
	}
	return &Retriever{store: store, embedder: embedder, ann: ann, cfg: cfg}
}

// Retrieve runs the five-step algorithm from for a single query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Result, error) {
	q, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.retrieveVector(ctx, q)
}

func (r *Retriever) retrieveVector(ctx context.Context, q []float32) ([]Result, error) {
	scanLimit := r.cfg.Limit * 2

	var vectorHits []graph.ScoredClaim
	var err error
	if r.ann != nil {
		vectorHits, err = r.ann.Search(ctx, q, scanLimit)
	} else {
		vectorHits, err = r.store.FindClaimsByEmbedding(ctx, q, scanLimit, r.cfg.MinSimilarity)
	}
	if err != nil {
		return nil, err
	}

	results := make(map[uuid.UUID]*Result)
	seedEntities := make(map[graph.EntityKey]bool)

	for _, hit := range vectorHits {
		if hit.Score < r.cfg.MinSimilarity {
			continue
		}
		results[hit.Claim.ClaimID] = &Result{Claim: hit.Claim, VectorScore: hit.Score, Path: PathVector}
		for _, e := range hit.Claim.Entities {
			if r.cfg.TemporalFilter && r.cfg.AsOf != nil && !e.IsValid(*r.cfg.AsOf) {
				continue
			}
			seedEntities[e.Key()] = true
		}
	}

	if len(seedEntities) > 0 {
		if err := r.expandGraph(ctx, results, seedEntities); err != nil {
			return nil, err
		}
	}

	out := make([]Result, 0, len(results))
	for _, res := range results {
		res.Combined = r.cfg.WeightVector*res.VectorScore + r.cfg.WeightGraph*res.GraphScore
		if res.VectorScore > 0 && res.GraphScore > 0 {
			res.Path = PathBoth
		}
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Combined > out[j].Combined })
	if len(out) > r.cfg.Limit {
		out = out[:r.cfg.Limit]
	}
	return out, nil
}

// expandGraph performs the BFS-like graph expansion described in spec
// §4.4 step 3, seeded from entities on the vector-pass claims.
func (r *Retriever) expandGraph(ctx context.Context, results map[uuid.UUID]*Result, seedEntities map[graph.EntityKey]bool) error {
	seedCount := float64(len(seedEntities))
	visited := make(map[uuid.UUID]bool)
	for id := range results {
		visited[id] = true
	}

	frontier := make(map[graph.EntityKey]bool, len(seedEntities))
	for k := range seedEntities {
		frontier[k] = true
	}

	for h := 1; h <= r.cfg.MaxHops; h++ {
		var candidates []graph.Claim
		seen := make(map[uuid.UUID]bool)
		for key := range frontier {
			claims, err := r.store.ClaimsByEntity(ctx, key.Name, key.Type)
			if err != nil {
				return err
			}
			for _, c := range claims {
				if seen[c.ClaimID] {
					continue
				}
				seen[c.ClaimID] = true
				candidates = append(candidates, c)
			}
		}

		for _, c := range candidates {
			if visited[c.ClaimID] {
				continue
			}

			claimEntities := make(map[graph.EntityKey]bool, len(c.Entities))
			for _, e := range c.Entities {
				claimEntities[e.Key()] = true
			}
			overlap := 0
			for k := range seedEntities {
				if claimEntities[k] {
					overlap++
				}
			}
			denom := math.Max(seedCount, math.Max(float64(len(claimEntities)), 1))
			overlapRatio := float64(overlap) / denom
			graphScore := overlapRatio / float64(1+h)

			if graphScore < r.cfg.MinGraphScore {
				continue
			}

			visited[c.ClaimID] = true
			results[c.ClaimID] = &Result{Claim: c, GraphScore: graphScore, HopDistance: h, Path: PathGraph}
		}
	}
	return nil
}

// RetrieveBatch runs Retrieve for each query independently; no
// cross-query deduplication.
func (r *Retriever) RetrieveBatch(ctx context.Context, queries []string) (map[string][]Result, error) {
	out := make(map[string][]Result, len(queries))
	for _, q := range queries {
		res, err := r.Retrieve(ctx, q)
		if err != nil {
			return nil, err
		}
		out[q] = res
	}
	return out, nil
}
