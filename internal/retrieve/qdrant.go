package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/akashi-ai/noema/internal/graph"
)

// QdrantConfig connects an ANNBackend to a Qdrant collection.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dims       uint64
}

// QdrantANN implements ANNBackend against a Qdrant collection of claim
// vectors. Claim payloads are not retrieved from Qdrant directly — this
// backend returns bare scores keyed by claim id, and the caller's store
// supplies the claim bodies.
type QdrantANN struct {
	client     *qdrant.Client
	collection string
	store      graph.Store
	logger     *slog.Logger
}

// NewQdrantANN parses cfg.URL (REST or gRPC form) and connects.
func NewQdrantANN(cfg QdrantConfig, store graph.Store, logger *slog.Logger) (*QdrantANN, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: connect to qdrant at %s:%d: %w", host, port, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantANN{client: client, collection: cfg.Collection, store: store, logger: logger}, nil
}

func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("retrieve: invalid qdrant URL: %q", rawURL)
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("retrieve: invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}
	return host, port, useTLS, nil
}

// EnsureCollection creates the claim-vector collection if absent.
func (q *QdrantANN) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("retrieve: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	m := uint64(16)
	efConstruct := uint64(128)
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           &m,
				EfConstruct: &efConstruct,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("retrieve: create collection %q: %w", q.collection, err)
	}
	return nil
}

// Upsert indexes a claim's embedding under its claim id.
func (q *QdrantANN) Upsert(ctx context.Context, claimID uuid.UUID, embedding []float32) error {
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(claimID.String()),
			Vectors: qdrant.NewVectorsDense(embedding),
		}},
	})
	if err != nil {
		return fmt.Errorf("retrieve: qdrant upsert: %w", err)
	}
	return nil
}

// Search implements ANNBackend, resolving the claim bodies for the
// returned point ids via the knowledge graph store.
func (q *QdrantANN) Search(ctx context.Context, vec []float32, k int) ([]graph.ScoredClaim, error) {
	limit := uint64(k)
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: qdrant query: %w", err)
	}

	out := make([]graph.ScoredClaim, 0, len(scored))
	for _, sp := range scored {
		idStr := sp.Id.GetUuid()
		if idStr == "" {
			continue
		}
		claimID, err := uuid.Parse(idStr)
		if err != nil {
			q.logger.Warn("retrieve: invalid UUID in qdrant point id", "id", idStr)
			continue
		}
		claim, err := q.store.ClaimByID(ctx, claimID)
		if err != nil {
			continue
		}
		out = append(out, graph.ScoredClaim{Claim: claim, Score: float64(sp.Score)})
	}
	return out, nil
}
