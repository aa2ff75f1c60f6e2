package retrieve

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// FusionMode selects how the three-way hybrid combines vector, graph, and
// BM25 rankings ("Three-way hybrid").
type FusionMode string

const (
	FusionWeighted FusionMode = "weighted"
	FusionRRF      FusionMode = "rrf"
)

const rrfK = 60.0

// HybridConfig carries the BM25 index and fusion weights for three-way
// retrieval, layered on top of a Retriever's vector+graph pass.
type HybridConfig struct {
	BM25           *BM25Index
	Mode           FusionMode
	WeightVector   float64
	WeightGraph    float64
	WeightBM25     float64
}

// DefaultHybridConfig returns the documented 0.4/0.3/0.3 weighted
// split.
func DefaultHybridConfig(bm25 *BM25Index) HybridConfig {
	return HybridConfig{
		BM25:         bm25,
		Mode:         FusionWeighted,
		WeightVector: 0.4,
		WeightGraph:  0.3,
		WeightBM25:   0.3,
	}
}

// RetrieveHybrid runs the base vector+graph retrieval, then blends in a
// BM25 lexical rank list per hc.Mode.
func (r *Retriever) RetrieveHybrid(ctx context.Context, query string, hc HybridConfig) ([]Result, error) {
	base, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	if hc.BM25 == nil {
		return base, nil
	}

	bm25Hits := hc.BM25.Search(query, r.cfg.Limit*2)
	bm25Score := make(map[uuid.UUID]float64, len(bm25Hits))
	bm25Rank := make(map[uuid.UUID]int, len(bm25Hits))
	for i, h := range bm25Hits {
		bm25Score[h.ID] = h.Score
		bm25Rank[h.ID] = i + 1
	}

	byID := make(map[uuid.UUID]*Result, len(base))
	order := make([]uuid.UUID, 0, len(base))
	for i := range base {
		byID[base[i].Claim.ClaimID] = &base[i]
		order = append(order, base[i].Claim.ClaimID)
	}

	// Pull in BM25-only hits not already present from the vector/graph pass.
	for _, h := range bm25Hits {
		if _, ok := byID[h.ID]; !ok {
			claim, err := r.store.ClaimByID(ctx, h.ID)
			if err != nil {
				continue
			}
			res := Result{Claim: claim}
			base = append(base, res)
			byID[h.ID] = &base[len(base)-1]
			order = append(order, h.ID)
		}
	}

	normVector := normalizeScores(extractScores(base, func(r Result) float64 { return r.VectorScore }))
	normGraph := normalizeScores(extractScores(base, func(r Result) float64 { return r.GraphScore }))
	normBM25 := normalizeScores(bm25ScoresInOrder(order, bm25Score))

	vectorRank := rankOf(order, func(id uuid.UUID) float64 { return byID[id].VectorScore })
	graphRank := rankOf(order, func(id uuid.UUID) float64 { return byID[id].GraphScore })

	for i, id := range order {
		res := byID[id]
		res.BM25Score = bm25Score[id]

		switch hc.Mode {
		case FusionRRF:
			res.Combined = rrfTerm(vectorRank[id]) + rrfTerm(graphRank[id]) + rrfTerm(bm25Rank[id])
		default:
			res.Combined = hc.WeightVector*normVector[i] + hc.WeightGraph*normGraph[i] + hc.WeightBM25*normBM25[i]
		}
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Combined > out[j].Combined })
	if len(out) > r.cfg.Limit {
		out = out[:r.cfg.Limit]
	}
	return out, nil
}

func rrfTerm(rank int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / (rrfK + float64(rank))
}

func extractScores(results []Result, f func(Result) float64) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = f(r)
	}
	return out
}

func bm25ScoresInOrder(order []uuid.UUID, scores map[uuid.UUID]float64) []float64 {
	out := make([]float64, len(order))
	for i, id := range order {
		out[i] = scores[id]
	}
	return out
}

// normalizeScores min-max normalizes a slice to [0,1]; an all-equal slice
// normalizes to all 1s, or to all 0s when the shared value is 0.
func normalizeScores(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	if max == min {
		if max != 0 {
			for i := range out {
				out[i] = 1
			}
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}

func rankOf(order []uuid.UUID, score func(uuid.UUID) float64) map[uuid.UUID]int {
	type pair struct {
		id    uuid.UUID
		score float64
	}
	pairs := make([]pair, len(order))
	for i, id := range order {
		pairs[i] = pair{id: id, score: score(id)}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })
	out := make(map[uuid.UUID]int, len(pairs))
	for i, p := range pairs {
		out[p.id] = i + 1
	}
	return out
}
