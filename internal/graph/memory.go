package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store backend, guarded by a single
// read/write mutex (single-writer/multi-reader).
type MemoryStore struct {
	mu sync.RWMutex

	dimension int // 0 means unconstrained until first embedding is stored

	claims      map[uuid.UUID]Claim
	sources     map[string]Source
	entities    map[EntityKey]Entity
	topics      map[string]bool
	relations   map[relationKey]Relation
	byEntity    map[EntityKey][]uuid.UUID
	byTopic     map[string][]uuid.UUID
	bySession   map[string][]uuid.UUID
}

type relationKey struct {
	from string
	to   string
	typ  RelationType
}

// NewMemoryStore creates an empty in-memory knowledge graph. dimension, if
// nonzero, is enforced on every claim embedding; pass 0 to infer it from
// the first claim stored with an embedding.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		claims:    make(map[uuid.UUID]Claim),
		sources:   make(map[string]Source),
		entities:  make(map[EntityKey]Entity),
		topics:    make(map[string]bool),
		relations: make(map[relationKey]Relation),
		byEntity:  make(map[EntityKey][]uuid.UUID),
		byTopic:   make(map[string][]uuid.UUID),
		bySession: make(map[string][]uuid.UUID),
	}
}

func errGraph(verb string, err error) error {
	return fmt.Errorf("graph: %s: %w", verb, err)
}

func (s *MemoryStore) StoreClaim(_ context.Context, c Claim) (uuid.UUID, error) {
	if len(c.Embedding) > 0 {
		s.mu.RLock()
		dim := s.dimension
		s.mu.RUnlock()
		if dim == 0 {
			dim = len(c.Embedding)
		} else if len(c.Embedding) != dim {
			return uuid.Nil, errGraph("store claim", ErrDimensionMismatch)
		}
	}

	if c.ClaimID == uuid.Nil {
		c.ClaimID = uuid.New()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 && len(c.Embedding) > 0 {
		s.dimension = len(c.Embedding)
	}

	s.claims[c.ClaimID] = c

	if c.SourceURL != "" {
		if _, ok := s.sources[c.SourceURL]; !ok {
			s.sources[c.SourceURL] = Source{URL: c.SourceURL, Title: c.SourceTitle, PublicationDate: c.PublicationDate}
		}
		s.addRelation(Relation{FromID: c.ClaimID.String(), ToID: c.SourceURL, Type: RelationSourcedFrom})
	}

	for _, e := range c.Entities {
		key := e.Key()
		if _, ok := s.entities[key]; !ok {
			s.entities[key] = e
		}
		s.byEntity[key] = append(s.byEntity[key], c.ClaimID)
		s.addRelation(Relation{FromID: c.ClaimID.String(), ToID: entityNodeID(key), Type: RelationMentions})
	}

	for _, topic := range c.Topics {
		s.topics[topic] = true
		s.byTopic[topic] = append(s.byTopic[topic], c.ClaimID)
		s.addRelation(Relation{FromID: c.ClaimID.String(), ToID: topicNodeID(topic), Type: RelationAbout})
	}

	if c.SessionID != "" {
		s.bySession[c.SessionID] = append(s.bySession[c.SessionID], c.ClaimID)
		s.addRelation(Relation{FromID: c.ClaimID.String(), ToID: c.SessionID, Type: RelationGeneratedIn})
	}

	return c.ClaimID, nil
}

func entityNodeID(k EntityKey) string { return "entity:" + string(k.Type) + ":" + k.Name }
func topicNodeID(t string) string     { return "topic:" + t }

// addRelation must be called with s.mu held.
func (s *MemoryStore) addRelation(r Relation) {
	s.relations[relationKey{from: r.FromID, to: r.ToID, typ: r.Type}] = r
}

func (s *MemoryStore) ClaimByID(_ context.Context, id uuid.UUID) (Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok {
		return Claim{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) ClaimsByEntity(_ context.Context, name string, entityType EntityType) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	if entityType != "" {
		ids = s.byEntity[EntityKey{Name: name, Type: entityType}]
	} else {
		for k, v := range s.byEntity {
			if k.Name == name {
				ids = append(ids, v...)
			}
		}
	}
	return s.claimsFor(ids), nil
}

func (s *MemoryStore) ClaimsByTopic(_ context.Context, topic string) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claimsFor(s.byTopic[topic]), nil
}

func (s *MemoryStore) ClaimsBySession(_ context.Context, sessionID string) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claimsFor(s.bySession[sessionID]), nil
}

// claimsFor must be called with s.mu held (read or write).
func (s *MemoryStore) claimsFor(ids []uuid.UUID) []Claim {
	seen := make(map[uuid.UUID]bool)
	var out []Claim
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if c, ok := s.claims[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *MemoryStore) AllClaims(_ context.Context) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Claim, 0, len(s.claims))
	for _, c := range s.claims {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) EntityByKey(_ context.Context, key EntityKey) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[key]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) FindClaimsByEmbedding(_ context.Context, queryVec []float32, limit int, minSim float64) ([]ScoredClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []ScoredClaim
	for _, c := range s.claims {
		if len(c.Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(queryVec, c.Embedding)
		if sim >= minSim {
			scored = append(scored, ScoredClaim{Claim: c, Score: sim})
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// GetProvenanceChain DFS-walks SOURCED_FROM and DERIVED_FROM edges from
// claimID, cycle-safe via a visited set, bounded by maxDepth.
func (s *MemoryStore) GetProvenanceChain(_ context.Context, claimID uuid.UUID, maxDepth int) ([]ProvenanceNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.claims[claimID]; !ok {
		return nil, ErrNotFound
	}

	visited := make(map[string]bool)
	var out []ProvenanceNode

	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if visited[id] || (maxDepth > 0 && depth > maxDepth) {
			return
		}
		visited[id] = true

		if cid, err := uuid.Parse(id); err == nil {
			if c, ok := s.claims[cid]; ok {
				cCopy := c
				out = append(out, ProvenanceNode{Type: "claim", ID: id, Claim: &cCopy})
			}
		} else if src, ok := s.sources[id]; ok {
			srcCopy := src
			out = append(out, ProvenanceNode{Type: "source", ID: id, Source: &srcCopy})
		}

		for key, rel := range s.relations {
			if key.from != id {
				continue
			}
			if rel.Type != RelationSourcedFrom && rel.Type != RelationDerivedFrom {
				continue
			}
			walk(key.to, depth+1)
		}
	}
	walk(claimID.String(), 0)
	return out, nil
}

// GetRelatedClaims BFS-walks claims sharing entities or topics with
// claimID, bounded by maxHops, recording the minimum hop distance on
// first discovery.
func (s *MemoryStore) GetRelatedClaims(_ context.Context, claimID uuid.UUID, maxHops int) ([]RelatedClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root, ok := s.claims[claimID]
	if !ok {
		return nil, ErrNotFound
	}

	hop := map[uuid.UUID]int{claimID: 0}
	order := []uuid.UUID{claimID}
	frontier := []uuid.UUID{claimID}

	for h := 1; (maxHops <= 0 || h <= maxHops) && len(frontier) > 0; h++ {
		var next []uuid.UUID
		for _, id := range frontier {
			c := s.claims[id]
			neighbors := s.neighborsSharing(c)
			for _, nid := range neighbors {
				if _, seen := hop[nid]; seen {
					continue
				}
				hop[nid] = h
				order = append(order, nid)
				next = append(next, nid)
			}
		}
		frontier = next
	}

	_ = root
	var out []RelatedClaim
	for _, id := range order {
		if id == claimID {
			continue
		}
		out = append(out, RelatedClaim{Claim: s.claims[id], HopDistance: hop[id]})
	}
	return out, nil
}

// neighborsSharing must be called with s.mu held.
func (s *MemoryStore) neighborsSharing(c Claim) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(ids []uuid.UUID) {
		for _, id := range ids {
			if id == c.ClaimID || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, e := range c.Entities {
		add(s.byEntity[e.Key()])
	}
	for _, t := range c.Topics {
		add(s.byTopic[t])
	}
	return out
}

// FindContradictions returns claims sharing a topic with claimID but a
// different source and low embedding similarity, ascending by similarity,
// truncated to 10.
func (s *MemoryStore) FindContradictions(_ context.Context, claimID uuid.UUID, maxSimilarity float64) ([]ScoredClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.claims[claimID]
	if !ok {
		return nil, ErrNotFound
	}

	candidateIDs := make(map[uuid.UUID]bool)
	for _, t := range c.Topics {
		for _, id := range s.byTopic[t] {
			candidateIDs[id] = true
		}
	}

	var out []ScoredClaim
	for id := range candidateIDs {
		if id == claimID {
			continue
		}
		other := s.claims[id]
		if other.SourceURL == c.SourceURL {
			continue
		}
		if len(c.Embedding) == 0 || len(other.Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(c.Embedding, other.Embedding)
		if sim < maxSimilarity {
			out = append(out, ScoredClaim{Claim: other, Score: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
