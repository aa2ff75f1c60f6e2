package retrieve

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/akashi-ai/noema/internal/graph"
)

// BM25Index is an Okapi BM25 index over claim text, tokenized with a
// simple word-boundary splitter. This is a small hand-rolled scorer
// rather than a vendored full-text library (see DESIGN.md).
type BM25Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	docs       map[uuid.UUID][]string
	docLen     map[uuid.UUID]int
	avgDocLen  float64
	df         map[string]int // document frequency per term
	totalDocs  int
}

// NewBM25Index creates an index with the given k1/b parameters. Defaults
// per are k1=1.5, b=0.75.
func NewBM25Index(k1, b float64) *BM25Index {
	if k1 == 0 {
		k1 = 1.5
	}
	if b == 0 {
		b = 0.75
	}
	return &BM25Index{
		k1:     k1,
		b:      b,
		docs:   make(map[uuid.UUID][]string),
		docLen: make(map[uuid.UUID]int),
		df:     make(map[string]int),
	}
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	return raw
}

// Index adds or replaces a document's tokens.
func (idx *BM25Index) Index(id uuid.UUID, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tokens := tokenize(text)
	if _, exists := idx.docs[id]; !exists {
		idx.totalDocs++
		for term := range uniqueTerms(tokens) {
			idx.df[term]++
		}
	}
	idx.docs[id] = tokens
	idx.docLen[id] = len(tokens)

	var total int
	for _, l := range idx.docLen {
		total += l
	}
	if idx.totalDocs > 0 {
		idx.avgDocLen = float64(total) / float64(idx.totalDocs)
	}
}

func uniqueTerms(tokens []string) map[string]bool {
	out := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		out[t] = true
	}
	return out
}

// Search scores every indexed document against the query's terms using
// Okapi BM25, returning up to limit results descending by score.
func (idx *BM25Index) Search(query string, limit int) []IDScore {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	qTerms := tokenize(query)
	if len(qTerms) == 0 || idx.totalDocs == 0 {
		return nil
	}

	idf := make(map[string]float64, len(qTerms))
	for _, term := range qTerms {
		n := idx.df[term]
		idf[term] = math.Log(1 + (float64(idx.totalDocs)-float64(n)+0.5)/(float64(n)+0.5))
	}

	var scores []IDScore
	for id, tokens := range idx.docs {
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		dl := float64(idx.docLen[id])
		var score float64
		for _, term := range qTerms {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			numerator := f * (idx.k1 + 1)
			denominator := f + idx.k1*(1-idx.b+idx.b*dl/idx.avgDocLen)
			score += idf[term] * numerator / denominator
		}
		if score > 0 {
			scores = append(scores, IDScore{ID: id, Score: score})
		}
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}

// IDScore pairs a claim id with a scalar score (BM25 or RRF).
type IDScore struct {
	ID    uuid.UUID
	Score float64
}

// BuildBM25Index indexes every claim currently in store.
func BuildBM25Index(ctx context.Context, store graph.Store, k1, b float64) (*BM25Index, error) {
	idx := NewBM25Index(k1, b)
	claims, err := store.AllClaims(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range claims {
		idx.Index(c.ClaimID, c.Text)
	}
	return idx, nil
}
