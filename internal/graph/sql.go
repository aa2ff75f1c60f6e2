package graph

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SQLStore is a Postgres-backed Store using pgvector for embeddings,
// with per-row INSERTs inside one transaction and a pgvector.Vector column type.
type SQLStore struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewSQLStore wraps an already-connected pool. dimension enforces the
// configured embedding dimension on every claim.
func NewSQLStore(pool *pgxpool.Pool, dimension int) *SQLStore {
	return &SQLStore{pool: pool, dimension: dimension}
}

const graphSchema = `
CREATE TABLE IF NOT EXISTS graph_sources (
	url text PRIMARY KEY, title text, publication_date timestamptz,
	author text, domain text, last_accessed timestamptz,
	metadata jsonb NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS graph_entities (
	name text, entity_type text, metadata jsonb NOT NULL DEFAULT '{}',
	valid_from timestamptz, valid_to timestamptz, source_location text,
	PRIMARY KEY (name, entity_type)
);
CREATE TABLE IF NOT EXISTS graph_topics (name text PRIMARY KEY);
CREATE TABLE IF NOT EXISTS graph_claims (
	claim_id uuid PRIMARY KEY, text text NOT NULL, confidence double precision,
	source_url text, source_title text, publication_date timestamptz,
	agent_id text, session_id text, embedding vector, created_at timestamptz,
	metadata jsonb NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS graph_claims_session_idx ON graph_claims (session_id);
CREATE TABLE IF NOT EXISTS graph_claim_entities (
	claim_id uuid REFERENCES graph_claims(claim_id), entity_name text, entity_type text,
	PRIMARY KEY (claim_id, entity_name, entity_type)
);
CREATE TABLE IF NOT EXISTS graph_claim_topics (
	claim_id uuid REFERENCES graph_claims(claim_id), topic text,
	PRIMARY KEY (claim_id, topic)
);
CREATE TABLE IF NOT EXISTS graph_relationships (
	from_id text, to_id text, rel_type text, metadata jsonb NOT NULL DEFAULT '{}',
	PRIMARY KEY (from_id, to_id, rel_type)
);
`

// Migrate creates the knowledge-graph tables if absent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, graphSchema)
	if err != nil {
		return errGraph("migrate schema", err)
	}
	return nil
}

func (s *SQLStore) StoreClaim(ctx context.Context, c Claim) (uuid.UUID, error) {
	if len(c.Embedding) > 0 && s.dimension != 0 && len(c.Embedding) != s.dimension {
		return uuid.Nil, errGraph("store claim", ErrDimensionMismatch)
	}
	if c.ClaimID == uuid.Nil {
		c.ClaimID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, errGraph("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	metadata, _ := json.Marshal(c.Metadata)
	var vec *pgvector.Vector
	if len(c.Embedding) > 0 {
		v := pgvector.NewVector(c.Embedding)
		vec = &v
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO graph_claims (claim_id, text, confidence, source_url, source_title,
			publication_date, agent_id, session_id, embedding, created_at, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (claim_id) DO UPDATE SET
			text = EXCLUDED.text, confidence = EXCLUDED.confidence, embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		c.ClaimID, c.Text, c.Confidence, c.SourceURL, c.SourceTitle,
		c.PublicationDate, c.AgentID, c.SessionID, vec, c.CreatedAt, metadata)
	if err != nil {
		return uuid.Nil, errGraph("insert claim", err)
	}

	if c.SourceURL != "" {
		_, err = tx.Exec(ctx, `
			INSERT INTO graph_sources (url, title, publication_date)
			VALUES ($1,$2,$3) ON CONFLICT (url) DO NOTHING`,
			c.SourceURL, c.SourceTitle, c.PublicationDate)
		if err != nil {
			return uuid.Nil, errGraph("upsert source", err)
		}
		if err := upsertRelation(ctx, tx, c.ClaimID.String(), c.SourceURL, RelationSourcedFrom); err != nil {
			return uuid.Nil, err
		}
	}

	for _, e := range c.Entities {
		em, _ := json.Marshal(e.Metadata)
		_, err = tx.Exec(ctx, `
			INSERT INTO graph_entities (name, entity_type, metadata, valid_from, valid_to, source_location)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (name, entity_type) DO NOTHING`,
			e.Name, string(e.Type), em, e.ValidFrom, e.ValidTo, e.SourceLocation)
		if err != nil {
			return uuid.Nil, errGraph("upsert entity", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO graph_claim_entities (claim_id, entity_name, entity_type)
			VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`, c.ClaimID, e.Name, string(e.Type))
		if err != nil {
			return uuid.Nil, errGraph("link claim entity", err)
		}
		if err := upsertRelation(ctx, tx, c.ClaimID.String(), entityNodeID(e.Key()), RelationMentions); err != nil {
			return uuid.Nil, err
		}
	}

	for _, topic := range c.Topics {
		_, err = tx.Exec(ctx, `INSERT INTO graph_topics (name) VALUES ($1) ON CONFLICT DO NOTHING`, topic)
		if err != nil {
			return uuid.Nil, errGraph("upsert topic", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO graph_claim_topics (claim_id, topic) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			c.ClaimID, topic)
		if err != nil {
			return uuid.Nil, errGraph("link claim topic", err)
		}
		if err := upsertRelation(ctx, tx, c.ClaimID.String(), topicNodeID(topic), RelationAbout); err != nil {
			return uuid.Nil, err
		}
	}

	if c.SessionID != "" {
		if err := upsertRelation(ctx, tx, c.ClaimID.String(), c.SessionID, RelationGeneratedIn); err != nil {
			return uuid.Nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, errGraph("commit tx", err)
	}
	return c.ClaimID, nil
}

func upsertRelation(ctx context.Context, tx pgx.Tx, from, to string, typ RelationType) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO graph_relationships (from_id, to_id, rel_type) VALUES ($1,$2,$3)
		ON CONFLICT (from_id, to_id, rel_type) DO NOTHING`, from, to, string(typ))
	if err != nil {
		return errGraph("upsert relation", err)
	}
	return nil
}

const claimSelectSQL = `
SELECT claim_id, text, confidence, source_url, source_title, publication_date,
       agent_id, session_id, embedding, created_at, metadata
FROM graph_claims`

func scanClaim(row pgx.Row) (Claim, error) {
	var c Claim
	var metadata []byte
	var vec *pgvector.Vector
	err := row.Scan(&c.ClaimID, &c.Text, &c.Confidence, &c.SourceURL, &c.SourceTitle,
		&c.PublicationDate, &c.AgentID, &c.SessionID, &vec, &c.CreatedAt, &metadata)
	if err != nil {
		return Claim{}, errGraph("scan claim", err)
	}
	if vec != nil {
		c.Embedding = vec.Slice()
	}
	_ = json.Unmarshal(metadata, &c.Metadata)
	return c, nil
}

func (s *SQLStore) ClaimByID(ctx context.Context, id uuid.UUID) (Claim, error) {
	row := s.pool.QueryRow(ctx, claimSelectSQL+` WHERE claim_id = $1`, id)
	c, err := scanClaim(row)
	if err == pgx.ErrNoRows {
		return Claim{}, ErrNotFound
	}
	return c, err
}

func (s *SQLStore) ClaimsByEntity(ctx context.Context, name string, entityType EntityType) ([]Claim, error) {
	var rows pgx.Rows
	var err error
	if entityType != "" {
		rows, err = s.pool.Query(ctx, claimSelectSQL+`
			JOIN graph_claim_entities ce ON ce.claim_id = graph_claims.claim_id
			WHERE ce.entity_name = $1 AND ce.entity_type = $2`, name, string(entityType))
	} else {
		rows, err = s.pool.Query(ctx, claimSelectSQL+`
			JOIN graph_claim_entities ce ON ce.claim_id = graph_claims.claim_id
			WHERE ce.entity_name = $1`, name)
	}
	if err != nil {
		return nil, errGraph("query claims by entity", err)
	}
	return scanClaims(rows)
}

func (s *SQLStore) ClaimsByTopic(ctx context.Context, topic string) ([]Claim, error) {
	rows, err := s.pool.Query(ctx, claimSelectSQL+`
		JOIN graph_claim_topics ct ON ct.claim_id = graph_claims.claim_id
		WHERE ct.topic = $1`, topic)
	if err != nil {
		return nil, errGraph("query claims by topic", err)
	}
	return scanClaims(rows)
}

func (s *SQLStore) ClaimsBySession(ctx context.Context, sessionID string) ([]Claim, error) {
	rows, err := s.pool.Query(ctx, claimSelectSQL+` WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, errGraph("query claims by session", err)
	}
	return scanClaims(rows)
}

func (s *SQLStore) AllClaims(ctx context.Context) ([]Claim, error) {
	rows, err := s.pool.Query(ctx, claimSelectSQL+` ORDER BY created_at`)
	if err != nil {
		return nil, errGraph("query all claims", err)
	}
	return scanClaims(rows)
}

func scanClaims(rows pgx.Rows) ([]Claim, error) {
	defer rows.Close()
	var out []Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) EntityByKey(ctx context.Context, key EntityKey) (Entity, error) {
	var e Entity
	var metadata []byte
	var t string
	err := s.pool.QueryRow(ctx, `
		SELECT name, entity_type, metadata, valid_from, valid_to, source_location
		FROM graph_entities WHERE name = $1 AND entity_type = $2`, key.Name, string(key.Type)).
		Scan(&e.Name, &t, &metadata, &e.ValidFrom, &e.ValidTo, &e.SourceLocation)
	if err == pgx.ErrNoRows {
		return Entity{}, ErrNotFound
	}
	if err != nil {
		return Entity{}, errGraph("query entity", err)
	}
	e.Type = EntityType(t)
	_ = json.Unmarshal(metadata, &e.Metadata)
	return e, nil
}

// FindClaimsByEmbedding delegates to Postgres's pgvector cosine-distance
// operator (<=>) for approximate nearest-neighbor ranking.
func (s *SQLStore) FindClaimsByEmbedding(ctx context.Context, queryVec []float32, limit int, minSim float64) ([]ScoredClaim, error) {
	if limit <= 0 {
		limit = 20
	}
	v := pgvector.NewVector(queryVec)
	rows, err := s.pool.Query(ctx, `
		SELECT claim_id, text, confidence, source_url, source_title, publication_date,
		       agent_id, session_id, embedding, created_at, metadata,
		       1 - (embedding <=> $1) AS similarity
		FROM graph_claims WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1 LIMIT $2`, v, limit)
	if err != nil {
		return nil, errGraph("query by embedding", err)
	}
	defer rows.Close()

	var out []ScoredClaim
	for rows.Next() {
		var metadata []byte
		var vec *pgvector.Vector
		var sim float64
		var c Claim
		err := rows.Scan(&c.ClaimID, &c.Text, &c.Confidence, &c.SourceURL, &c.SourceTitle,
			&c.PublicationDate, &c.AgentID, &c.SessionID, &vec, &c.CreatedAt, &metadata, &sim)
		if err != nil {
			return nil, errGraph("scan scored claim", err)
		}
		if vec != nil {
			c.Embedding = vec.Slice()
		}
		_ = json.Unmarshal(metadata, &c.Metadata)
		if sim >= minSim {
			out = append(out, ScoredClaim{Claim: c, Score: sim})
		}
	}
	return out, rows.Err()
}

// GetProvenanceChain and GetRelatedClaims load the relevant slice of the
// graph into memory and reuse MemoryStore's traversal logic, since both
// are bounded, depth-limited walks unsuited to a single SQL query.
func (s *SQLStore) GetProvenanceChain(ctx context.Context, claimID uuid.UUID, maxDepth int) ([]ProvenanceNode, error) {
	mem, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return mem.GetProvenanceChain(ctx, claimID, maxDepth)
}

func (s *SQLStore) GetRelatedClaims(ctx context.Context, claimID uuid.UUID, maxHops int) ([]RelatedClaim, error) {
	mem, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return mem.GetRelatedClaims(ctx, claimID, maxHops)
}

func (s *SQLStore) FindContradictions(ctx context.Context, claimID uuid.UUID, maxSimilarity float64) ([]ScoredClaim, error) {
	mem, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return mem.FindContradictions(ctx, claimID, maxSimilarity)
}

// snapshot loads all claims and sources into a MemoryStore for traversal
// helpers that are impractical to express as single SQL statements.
func (s *SQLStore) snapshot(ctx context.Context) (*MemoryStore, error) {
	claims, err := s.AllClaims(ctx)
	if err != nil {
		return nil, err
	}
	mem := NewMemoryStore(s.dimension)
	for _, c := range claims {
		if _, err := mem.StoreClaim(ctx, c); err != nil {
			return nil, err
		}
	}
	return mem, nil
}

var _ Store = (*SQLStore)(nil)
