package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akashi-ai/noema/internal/clock"
)

// SQLStore is a Postgres-backed Store that writes with plain INSERT/UPDATE
// statements on a pgxpool.Pool. The write path is serialized with an
// in-process mutex per the single-writer model; reads run directly
// against the pool.
type SQLStore struct {
	pool   *pgxpool.Pool
	clock  clock.Clock
	logger *slog.Logger

	mu sync.Mutex
}

// NewSQLStore wraps an already-connected pool. Callers are responsible for
// running the schema migration that creates the audit_entries table.
func NewSQLStore(pool *pgxpool.Pool, cl clock.Clock, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{pool: pool, clock: cl, logger: logger}
}

const auditEntrySchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	entry_id             uuid PRIMARY KEY,
	timestamp            timestamptz NOT NULL,
	session_id           text NOT NULL,
	conversation_id      text NOT NULL,
	decision_type        text NOT NULL,
	agent_id             text NOT NULL,
	model_name           text NOT NULL,
	model_version        text NOT NULL,
	input_hash           text NOT NULL,
	input_summary        text NOT NULL,
	context_sources      jsonb NOT NULL DEFAULT '[]',
	reasoning_summary    text NOT NULL,
	alternatives         jsonb NOT NULL DEFAULT '[]',
	selected_action      text NOT NULL,
	confidence_score     double precision NOT NULL,
	rules_applied        jsonb NOT NULL DEFAULT '[]',
	output_hash          text NOT NULL,
	output_summary       text NOT NULL,
	verification_status  text NOT NULL,
	verifier_ids         jsonb NOT NULL DEFAULT '[]',
	verification_scores  jsonb NOT NULL DEFAULT '[]',
	source_documents     jsonb NOT NULL DEFAULT '[]',
	parent_entry_id      uuid REFERENCES audit_entries(entry_id),
	previous_entry_hash  text NOT NULL,
	entry_hash           text NOT NULL,
	metadata             jsonb NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS audit_entries_agent_idx ON audit_entries (agent_id);
CREATE INDEX IF NOT EXISTS audit_entries_session_idx ON audit_entries (session_id);
CREATE INDEX IF NOT EXISTS audit_entries_type_idx ON audit_entries (decision_type);
CREATE INDEX IF NOT EXISTS audit_entries_timestamp_idx ON audit_entries (timestamp);
CREATE INDEX IF NOT EXISTS audit_entries_parent_idx ON audit_entries (parent_entry_id);
`

// Migrate creates the audit_entries table and its indices if absent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, auditEntrySchema)
	if err != nil {
		return errBackend("migrate audit schema", err)
	}
	return nil
}

func (s *SQLStore) Record(ctx context.Context, in RecordInput) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, err := s.latestHashLocked(ctx)
	if err != nil {
		return Entry{}, err
	}
	e := buildEntry(s.clock, tip, in)

	contextSources, _ := json.Marshal(e.ContextSources)
	alternatives, _ := json.Marshal(e.Alternatives)
	rulesApplied, _ := json.Marshal(e.RulesApplied)
	verifierIDs, _ := json.Marshal(e.VerifierIDs)
	verificationScores, _ := json.Marshal(e.VerificationScores)
	sourceDocuments, _ := json.Marshal(e.SourceDocuments)
	metadata, _ := json.Marshal(e.Metadata)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_entries (
			entry_id, timestamp, session_id, conversation_id, decision_type,
			agent_id, model_name, model_version, input_hash, input_summary,
			context_sources, reasoning_summary, alternatives, selected_action,
			confidence_score, rules_applied, output_hash, output_summary,
			verification_status, verifier_ids, verification_scores,
			source_documents, parent_entry_id, previous_entry_hash, entry_hash,
			metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26
		)`,
		e.EntryID, e.Timestamp, e.SessionID, e.ConversationID, e.DecisionType,
		e.AgentID, e.ModelName, e.ModelVersion, e.InputHash, e.InputSummary,
		contextSources, e.ReasoningSummary, alternatives, e.SelectedAction,
		e.ConfidenceScore, rulesApplied, e.OutputHash, e.OutputSummary,
		string(e.VerificationStatus), verifierIDs, verificationScores,
		sourceDocuments, e.ParentEntryID, e.PreviousEntryHash, e.EntryHash,
		metadata,
	)
	if err != nil {
		return Entry{}, errBackend("insert audit entry", err)
	}

	s.logger.Debug("audit: recorded entry", "entry_id", e.EntryID, "decision_type", e.DecisionType)
	return e, nil
}

func (s *SQLStore) latestHashLocked(ctx context.Context) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT entry_hash FROM audit_entries ORDER BY timestamp DESC, entry_id DESC LIMIT 1`,
	).Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errBackend("query latest hash", err)
	}
	return hash, nil
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	rows, err := s.pool.Query(ctx, entrySelectSQL+` WHERE entry_id = $1`, id)
	if err != nil {
		return Entry{}, errBackend("query entry", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return Entry{}, ErrNotFound
	}
	e, err := scanEntry(rows)
	if err != nil {
		return Entry{}, err
	}
	children, err := s.childIDs(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	e.ChildEntryIDs = children
	return e, nil
}

func (s *SQLStore) childIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT entry_id FROM audit_entries WHERE parent_entry_id = $1 ORDER BY timestamp`, id)
	if err != nil {
		return nil, errBackend("query children ids", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var cid uuid.UUID
		if err := rows.Scan(&cid); err != nil {
			return nil, errBackend("scan child id", err)
		}
		out = append(out, cid)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateVerification(ctx context.Context, id uuid.UUID, status VerificationStatus, verifierID string, score *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	e.VerificationStatus = status
	e.VerifierIDs = append(e.VerifierIDs, verifierID)
	if score != nil {
		e.VerificationScores = append(e.VerificationScores, *score)
	}
	e.EntryHash = computeEntryHash(e)

	verifierIDs, _ := json.Marshal(e.VerifierIDs)
	verificationScores, _ := json.Marshal(e.VerificationScores)

	_, err = s.pool.Exec(ctx, `
		UPDATE audit_entries
		SET verification_status = $2, verifier_ids = $3, verification_scores = $4, entry_hash = $5
		WHERE entry_id = $1`,
		id, string(status), verifierIDs, verificationScores, e.EntryHash,
	)
	if err != nil {
		return errBackend("update verification", err)
	}
	return nil
}

func (s *SQLStore) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	rows, err := s.pool.Query(ctx, entrySelectSQL+` ORDER BY timestamp, entry_id`)
	if err != nil {
		return IntegrityReport{}, errBackend("query entries for verify", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return IntegrityReport{}, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return IntegrityReport{}, errBackend("iterate entries", err)
	}
	return verifyChain(entries), nil
}

func (s *SQLStore) LatestHash(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestHashLocked(ctx)
}

func (s *SQLStore) ByAgent(ctx context.Context, agentID string) ([]Entry, error) {
	return s.queryWhere(ctx, `WHERE agent_id = $1 ORDER BY timestamp`, agentID)
}

func (s *SQLStore) BySession(ctx context.Context, sessionID string) ([]Entry, error) {
	return s.queryWhere(ctx, `WHERE session_id = $1 ORDER BY timestamp`, sessionID)
}

func (s *SQLStore) ByType(ctx context.Context, decisionType string) ([]Entry, error) {
	return s.queryWhere(ctx, `WHERE decision_type = $1 ORDER BY timestamp`, decisionType)
}

func (s *SQLStore) ByDateRange(ctx context.Context, r DateRange) ([]Entry, error) {
	var from, to time.Time
	if r.From != nil {
		from = *r.From
	}
	if r.To != nil {
		to = *r.To
	} else {
		to = time.Now().UTC().AddDate(100, 0, 0)
	}
	return s.queryWhere(ctx, `WHERE timestamp >= $1 AND timestamp <= $2 ORDER BY timestamp`, from, to)
}

func (s *SQLStore) Children(ctx context.Context, id uuid.UUID) ([]Entry, error) {
	return s.queryWhere(ctx, `WHERE parent_entry_id = $1 ORDER BY timestamp`, id)
}

func (s *SQLStore) queryWhere(ctx context.Context, clause string, args ...any) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, entrySelectSQL+" "+clause, args...)
	if err != nil {
		return nil, errBackend("query entries", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) AncestorChain(ctx context.Context, id uuid.UUID) ([]Entry, error) {
	visited := make(map[uuid.UUID]bool)
	var chain []Entry
	cur := id
	for {
		e, err := s.Get(ctx, cur)
		if err != nil {
			return nil, err
		}
		if visited[cur] {
			break
		}
		visited[cur] = true
		chain = append(chain, e)
		if e.ParentEntryID == nil {
			break
		}
		cur = *e.ParentEntryID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *SQLStore) DecisionTree(ctx context.Context, id uuid.UUID) ([]Entry, error) {
	root, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	visited := map[uuid.UUID]bool{id: true}
	queue := []Entry{root}
	var out []Entry
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		for _, childID := range cur.ChildEntryIDs {
			if visited[childID] {
				continue
			}
			visited[childID] = true
			child, err := s.Get(ctx, childID)
			if err != nil {
				return nil, err
			}
			queue = append(queue, child)
		}
	}
	return out, nil
}

const entrySelectSQL = `
SELECT entry_id, timestamp, session_id, conversation_id, decision_type,
       agent_id, model_name, model_version, input_hash, input_summary,
       context_sources, reasoning_summary, alternatives, selected_action,
       confidence_score, rules_applied, output_hash, output_summary,
       verification_status, verifier_ids, verification_scores,
       source_documents, parent_entry_id, previous_entry_hash, entry_hash,
       metadata
FROM audit_entries`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var status string
	var contextSources, alternatives, rulesApplied, verifierIDs, verificationScores, sourceDocuments, metadata []byte

	err := row.Scan(
		&e.EntryID, &e.Timestamp, &e.SessionID, &e.ConversationID, &e.DecisionType,
		&e.AgentID, &e.ModelName, &e.ModelVersion, &e.InputHash, &e.InputSummary,
		&contextSources, &e.ReasoningSummary, &alternatives, &e.SelectedAction,
		&e.ConfidenceScore, &rulesApplied, &e.OutputHash, &e.OutputSummary,
		&status, &verifierIDs, &verificationScores,
		&sourceDocuments, &e.ParentEntryID, &e.PreviousEntryHash, &e.EntryHash,
		&metadata,
	)
	if err != nil {
		return Entry{}, errBackend("scan entry", err)
	}
	e.VerificationStatus = VerificationStatus(status)
	_ = json.Unmarshal(contextSources, &e.ContextSources)
	_ = json.Unmarshal(alternatives, &e.Alternatives)
	_ = json.Unmarshal(rulesApplied, &e.RulesApplied)
	_ = json.Unmarshal(verifierIDs, &e.VerifierIDs)
	_ = json.Unmarshal(verificationScores, &e.VerificationScores)
	_ = json.Unmarshal(sourceDocuments, &e.SourceDocuments)
	_ = json.Unmarshal(metadata, &e.Metadata)
	return e, nil
}

var _ Store = (*SQLStore)(nil)
