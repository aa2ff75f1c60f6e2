package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/akashi-ai/noema/internal/clock"

	_ "modernc.org/sqlite"
)

// SQLiteMergeThreshold is the FTS-backed store's merge threshold
// ("≥0.7 with FTS-backed").
const SQLiteMergeThreshold = 0.7

// SQLiteStore is a rule Store backed by SQLite's FTS5 full-text index
// (modernc.org/sqlite, a pure-Go driver with no cgo dependency).
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rules (
	id text PRIMARY KEY, condition text, recommendation text, reasoning text,
	confidence real, success_count integer, failure_count integer,
	source_task text, source_agent text, category text, status text,
	tags text, created_at text, last_used text, metadata text
);
CREATE VIRTUAL TABLE IF NOT EXISTS rules_fts USING fts5(
	id UNINDEXED, condition, recommendation, content=rules, content_rowid=rowid
);
`

// NewSQLiteStore opens (or creates) a SQLite rule store at path. Pass
// ":memory:" for an ephemeral store.
func NewSQLiteStore(path string, cl clock.Clock) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errRules("open sqlite", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, errRules("migrate sqlite schema", err)
	}
	if cl == nil {
		cl = clock.Real{}
	}
	return &SQLiteStore{db: db, clock: cl}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) Add(ctx context.Context, r Rule) (Rule, error) {
	active, err := s.activeRules(ctx)
	if err != nil {
		return Rule{}, err
	}

	incomingTokens := conditionTokens(r.Condition)
	for _, existing := range active {
		if jaccardSimilarity(incomingTokens, conditionTokens(existing.Condition)) >= SQLiteMergeThreshold {
			existing.SuccessCount++
			conf := existing.Confidence * 1.1
			if conf > 1.0 {
				conf = 1.0
			}
			existing.Confidence = conf
			if err := s.upsert(ctx, existing); err != nil {
				return Rule{}, err
			}
			return existing, nil
		}
	}

	if r.ID == "" {
		r.ID = RuleID(r.Condition, r.Recommendation)
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock.Now()
	}
	if err := s.upsert(ctx, r); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func (s *SQLiteStore) upsert(ctx context.Context, r Rule) error {
	tags, _ := json.Marshal(r.Tags)
	metadata, _ := json.Marshal(r.Metadata)
	var lastUsed any
	if r.LastUsed != nil {
		lastUsed = r.LastUsed.Format(timeLayout)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, condition, recommendation, reasoning, confidence,
			success_count, failure_count, source_task, source_agent, category,
			status, tags, created_at, last_used, metadata)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			condition=excluded.condition, recommendation=excluded.recommendation,
			reasoning=excluded.reasoning, confidence=excluded.confidence,
			success_count=excluded.success_count, failure_count=excluded.failure_count,
			status=excluded.status, tags=excluded.tags, last_used=excluded.last_used,
			metadata=excluded.metadata`,
		r.ID, r.Condition, r.Recommendation, r.Reasoning, r.Confidence,
		r.SuccessCount, r.FailureCount, r.SourceTask, r.SourceAgent, r.Category,
		string(r.Status), string(tags), r.CreatedAt.Format(timeLayout), lastUsed, string(metadata))
	if err != nil {
		return errRules("upsert rule", err)
	}

	// FTS5 external-content tables don't support ON CONFLICT; re-sync the
	// index row with a delete followed by a fresh insert.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rules_fts WHERE id = ?`, r.ID); err != nil {
		return errRules("clear fts row", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules_fts(rowid, id, condition, recommendation)
		SELECT rowid, id, condition, recommendation FROM rules WHERE id = ?`, r.ID)
	if err != nil {
		return errRules("upsert fts row", err)
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func (s *SQLiteStore) activeRules(ctx context.Context) ([]Rule, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []Rule
	for _, r := range all {
		if r.Status == StatusActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Rule, error) {
	row := s.db.QueryRowContext(ctx, ruleSelectSQL+` WHERE id = ?`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return Rule{}, ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) Update(ctx context.Context, r Rule) error {
	if _, err := s.Get(ctx, r.ID); err != nil {
		return err
	}
	return s.upsert(ctx, r)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
		return errRules("delete rule", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rules_fts WHERE id = ?`, id); err != nil {
		return errRules("delete fts row", err)
	}
	return nil
}

const ruleSelectSQL = `
SELECT id, condition, recommendation, reasoning, confidence, success_count,
       failure_count, source_task, source_agent, category, status, tags,
       created_at, last_used, metadata
FROM rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (Rule, error) {
	var r Rule
	var status, tags, createdAt, metadata string
	var lastUsed sql.NullString
	err := row.Scan(&r.ID, &r.Condition, &r.Recommendation, &r.Reasoning, &r.Confidence,
		&r.SuccessCount, &r.FailureCount, &r.SourceTask, &r.SourceAgent, &r.Category,
		&status, &tags, &createdAt, &lastUsed, &metadata)
	if err != nil {
		return Rule{}, err
	}
	r.Status = Status(status)
	_ = json.Unmarshal([]byte(tags), &r.Tags)
	_ = json.Unmarshal([]byte(metadata), &r.Metadata)
	r.CreatedAt, _ = parseTime(createdAt)
	if lastUsed.Valid && lastUsed.String != "" {
		t, err := parseTime(lastUsed.String)
		if err == nil {
			r.LastUsed = &t
		}
	}
	return r, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, ruleSelectSQL+` ORDER BY created_at`)
	if err != nil {
		return nil, errRules("query all rules", err)
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, errRules("scan rule", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Search ranks ACTIVE rules via FTS5 BM25 for the lexical term combined
// with effectiveness and recency.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]Rule, error) {
	active, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return limitRules(active, limit), nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bm25(rules_fts) FROM rules_fts WHERE rules_fts MATCH ?`, ftsQuery(query))
	if err != nil {
		// FTS5 MATCH syntax errors (e.g. punctuation-only queries) degrade
		// to keyword-overlap scoring rather than failing the search.
		return s.searchByOverlap(active, query, limit), nil
	}
	defer rows.Close()

	ftsScore := make(map[string]float64)
	for rows.Next() {
		var id string
		var bm25 float64
		if err := rows.Scan(&id, &bm25); err != nil {
			continue
		}
		// bm25() returns lower-is-better; invert so higher means better.
		ftsScore[id] = -bm25
	}

	maxScore := 0.0
	for _, v := range ftsScore {
		if v > maxScore {
			maxScore = v
		}
	}

	type scored struct {
		rule  Rule
		score float64
	}
	now := s.clock.Now()
	var candidates []scored
	for _, r := range active {
		norm := 0.0
		if raw, ok := ftsScore[r.ID]; ok && maxScore > 0 {
			norm = raw / maxScore
		}
		score := 0.4*norm + 0.4*r.Effectiveness() + 0.2*recencyDecay(r, now)
		candidates = append(candidates, scored{rule: r, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Rule, len(candidates))
	for i, c := range candidates {
		out[i] = c.rule
	}
	return out, nil
}

func (s *SQLiteStore) searchByOverlap(active []Rule, query string, limit int) []Rule {
	queryTokens := conditionTokens(query)
	now := s.clock.Now()
	type scored struct {
		rule  Rule
		score float64
	}
	var candidates []scored
	for _, r := range active {
		overlap := jaccardSimilarity(queryTokens, conditionTokens(r.Condition+" "+r.Recommendation))
		score := 0.4*overlap + 0.4*r.Effectiveness() + 0.2*recencyDecay(r, now)
		candidates = append(candidates, scored{rule: r, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Rule, len(candidates))
	for i, c := range candidates {
		out[i] = c.rule
	}
	return out
}

func limitRules(rules []Rule, limit int) []Rule {
	if limit > 0 && len(rules) > limit {
		return rules[:limit]
	}
	return rules
}

// ftsQuery quotes each query word as an FTS5 string and ORs them, so
// punctuation cannot break MATCH syntax and any matching word counts.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " OR ")
}

func (s *SQLiteStore) UpdateEffectiveness(ctx context.Context, id string, success bool) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if success {
		r.SuccessCount++
	} else {
		r.FailureCount++
	}
	now := s.clock.Now()
	r.LastUsed = &now
	return s.upsert(ctx, r)
}

func (s *SQLiteStore) PruneIneffective(ctx context.Context, minApplications int, minEffectiveness float64) ([]string, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var pruned []string
	for _, r := range all {
		if r.Status != StatusActive {
			continue
		}
		if r.Total() >= minApplications && r.Effectiveness() < minEffectiveness {
			r.Status = StatusPruned
			if err := s.upsert(ctx, r); err != nil {
				return nil, err
			}
			pruned = append(pruned, r.ID)
		}
	}
	return pruned, nil
}

func (s *SQLiteStore) PruneStale(ctx context.Context, days int) ([]string, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.clock.Now().AddDate(0, 0, -days)
	var deprecated []string
	for _, r := range all {
		if r.Status != StatusActive {
			continue
		}
		ref := r.CreatedAt
		if r.LastUsed != nil {
			ref = *r.LastUsed
		}
		if ref.Before(cutoff) {
			r.Status = StatusDeprecated
			if err := s.upsert(ctx, r); err != nil {
				return nil, err
			}
			deprecated = append(deprecated, r.ID)
		}
	}
	return deprecated, nil
}

func (s *SQLiteStore) Export(ctx context.Context) ([]byte, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(all)
	if err != nil {
		return nil, errRules("export", err)
	}
	return b, nil
}

func (s *SQLiteStore) Import(ctx context.Context, data []byte) error {
	var incoming []Rule
	if err := json.Unmarshal(data, &incoming); err != nil {
		return errRules("import", err)
	}
	for _, r := range incoming {
		existing, err := s.Get(ctx, r.ID)
		if err == ErrNotFound || r.Effectiveness() > existing.Effectiveness() {
			if err := s.upsert(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
