// Package runtime wires the core components into a single
// constructible unit: the audit chain, the knowledge graph, the hybrid
// retriever, the rule store and its learning orchestrator, the
// specification compiler/enforcer, and the symbolic verifier, all built
// from one internal/config.Config.
//
// The wiring sequence follows config load, storage connect, embedding
// provider selection, then service construction — shaped as a reusable
// constructor rather than a main() body, since this core exposes no
// HTTP surface of its own.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/akashi-ai/noema/internal/audit"
	"github.com/akashi-ai/noema/internal/clock"
	"github.com/akashi-ai/noema/internal/config"
	"github.com/akashi-ai/noema/internal/graph"
	"github.com/akashi-ai/noema/internal/retrieve"
	"github.com/akashi-ai/noema/internal/retrieve/hnsw"
	"github.com/akashi-ai/noema/internal/rules"
	"github.com/akashi-ai/noema/internal/service/embedding"
	"github.com/akashi-ai/noema/internal/spec"
	"github.com/akashi-ai/noema/internal/verify"
)

// Runtime bundles the constructed components. Audit, Graph, Rules and
// Embedder are interface types, so callers can substitute their own
// implementation (e.g. a test double) by building one by hand instead of
// calling New; Provenance, Retriever, Verifier and Solver are concrete types.
type Runtime struct {
	Audit        audit.Store
	Provenance   *audit.EntityProvenanceTracker
	Graph        graph.Store
	Retriever    *retrieve.Retriever
	Rules        rules.Store
	Verifier     *verify.HybridVerifier
	Solver       *verify.Solver
	Embedder     embedding.Provider
	Config       config.Config
	Logger       *slog.Logger

	pool *pgxpool.Pool
	hnsw *retrieve.HNSWBackend
}

// New builds a Runtime from cfg. judge may be nil (symbolic-only
// verification; LLM fallback reports UNKNOWN). Rule extraction agents
// are built per-agent via NewOrchestrator, not held on Runtime.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, judge verify.Judge) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := clock.Real{}

	auditStore, provenance, graphStore, pool, err := newStores(ctx, cfg, cl, logger)
	if err != nil {
		return nil, err
	}

	embedder := newEmbeddingProvider(cfg, logger)

	ruleStore, err := newRuleStore(cfg, cl)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	ann, err := newANNBackend(cfg, graphStore)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	retrieverCfg := retrieve.Config{
		Limit:          10,
		MinSimilarity:  cfg.RetrieverMinSimilarity,
		MaxHops:        cfg.RetrieverMaxHops,
		MinGraphScore:  cfg.RetrieverMinGraphScore,
		WeightVector:   cfg.RetrieverVectorWeight,
		WeightGraph:    cfg.RetrieverGraphWeight,
		TemporalFilter: cfg.RetrieverTemporalFilter,
	}
	retriever := retrieve.New(graphStore, embedderAdapter{embedder}, ann, retrieverCfg)

	solver := verify.NewSolver(time.Duration(cfg.SolverTimeoutMS) * time.Millisecond)
	verifier := verify.NewHybridVerifier(solver, judge, cl)

	return &Runtime{
		Audit:      auditStore,
		Provenance: provenance,
		Graph:      graphStore,
		Retriever:  retriever,
		Rules:      ruleStore,
		Verifier:   verifier,
		Solver:     solver,
		Embedder:   embedder,
		Config:     cfg,
		Logger:     logger,
		pool:       pool,
		hnsw:       ann,
	}, nil
}

// NewOrchestrator builds a learning orchestrator over the runtime's rule
// store and the given agent, gated by the config's effectiveness/pruning
// knobs. Each orchestrator is scoped to one Agent, so it is built
// per-agent rather than held on Runtime.
func (r *Runtime) NewOrchestrator(agent rules.Agent, extractor rules.Extractor) *rules.Orchestrator {
	if extractor == nil {
		extractor = rules.NoopExtractor{}
	}
	cfg := rules.OrchestratorConfig{
		TopN:                 5,
		MinRuleEffectiveness: 0.6,
		AutoPrune:            r.Config.RulesAutoPrune,
		PruneIntervalHours:   r.Config.RulesPruneIntervalHours,
		MinApplications:      r.Config.RulesMinApplicationsForPruning,
		MinEffectiveness:     r.Config.RulesMinEffectivenessThreshold,
	}
	return rules.NewOrchestrator(r.Rules, extractor, agent, cfg, clock.Real{})
}

// CompileSpecification parses a specification source document into an
// AgentSpecification, ready to drive EnforceAgent.
func (r *Runtime) CompileSpecification(source string) (*spec.AgentSpecification, error) {
	return spec.NewParser().Parse(source)
}

// EnforceAgent wraps agent with the compiled specification, enforcing its
// tool/behavior prompting, limits, and output constraints. Strictness
// follows cfg.SpecStrict: strict mode surfaces a SpecificationViolation on
// any failing constraint, soft mode returns the failures for the caller to
// inspect.
func (r *Runtime) EnforceAgent(s *spec.AgentSpecification, agent spec.UnderlyingAgent) *spec.EnforcedAgent {
	mode := spec.ModeSoft
	if r.Config.SpecStrict {
		mode = spec.ModeStrict
	}
	return spec.NewEnforcedAgent(s, agent, mode, clock.Real{})
}

// ComplianceReport builds an audit compliance report for [start, end],
// sampling up to sampleCount entries and optionally verifying chain
// integrity.
func (r *Runtime) ComplianceReport(ctx context.Context, start, end time.Time, sampleCount int, verifyIntegrity bool) (audit.ComplianceReport, error) {
	gen := audit.NewComplianceReportGenerator(r.Audit, "", r.Config.ServiceName)
	return gen.Generate(ctx, start, end, sampleCount, verifyIntegrity)
}

// IndexClaim stores a claim in the knowledge graph and, when the runtime
// is using the embedded HNSW accelerator, adds it to the vector index in
// the same call so the two never drift apart.
func (r *Runtime) IndexClaim(ctx context.Context, c graph.Claim) (graph.Claim, error) {
	id, err := r.Graph.StoreClaim(ctx, c)
	if err != nil {
		return graph.Claim{}, err
	}
	c.ClaimID = id
	if r.hnsw != nil && len(c.Embedding) > 0 {
		if err := r.hnsw.Add(id, c.Embedding); err != nil {
			r.Logger.Warn("runtime: hnsw index add failed", "claim_id", id, "error", err)
		}
	}
	return c, nil
}

// IndexClaims indexes claims concurrently, bounded by workers (defaults to
// 4 when workers <= 0), and returns the stored claims in input order. A
// failure on any one claim cancels the rest and returns that error.
func (r *Runtime) IndexClaims(ctx context.Context, claims []graph.Claim, workers int) ([]graph.Claim, error) {
	if workers <= 0 {
		workers = 4
	}

	out := make([]graph.Claim, len(claims))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, c := range claims {
		i, c := i, c
		g.Go(func() error {
			stored, err := r.IndexClaim(gCtx, c)
			if err != nil {
				return err
			}
			out[i] = stored
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the runtime's pooled resources. Safe to call on a
// Runtime built in embedded (file/memory) mode.
func (r *Runtime) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func newStores(ctx context.Context, cfg config.Config, cl clock.Clock, logger *slog.Logger) (audit.Store, *audit.EntityProvenanceTracker, graph.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		maxBytes := int64(cfg.AuditMaxFileSizeMB) * 1024 * 1024
		if !cfg.AuditRotate {
			maxBytes = math.MaxInt64
		}
		fileStore, err := audit.NewFileStore(cfg.AuditStoragePath, maxBytes, cl, logger)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("runtime: open audit file store: %w", err)
		}
		memGraph := graph.NewMemoryStore(cfg.KGEmbeddingDim)
		return fileStore, audit.NewEntityProvenanceTracker(fileStore), memGraph, nil, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("runtime: connect to database: %w", err)
	}

	sqlAudit := audit.NewSQLStore(pool, cl, logger)
	if err := sqlAudit.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("runtime: migrate audit store: %w", err)
	}

	sqlGraph := graph.NewSQLStore(pool, cfg.KGEmbeddingDim)
	if err := sqlGraph.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("runtime: migrate graph store: %w", err)
	}

	return sqlAudit, audit.NewEntityProvenanceTracker(sqlAudit), sqlGraph, pool, nil
}

func newRuleStore(cfg config.Config, cl clock.Clock) (rules.Store, error) {
	if cfg.RulesDBPath == "" || cfg.RulesDBPath == ":memory:" {
		return rules.NewMemoryStore(cl), nil
	}
	store, err := rules.NewSQLiteStore(cfg.RulesDBPath, cl)
	if err != nil {
		return nil, fmt.Errorf("runtime: open rule store: %w", err)
	}
	return store, nil
}

func newANNBackend(cfg config.Config, store graph.Store) (*retrieve.HNSWBackend, error) {
	idx, err := hnsw.New(hnsw.Config{
		Dim:            cfg.KGEmbeddingDim,
		M:              cfg.HNSWM,
		EfConstruction: cfg.HNSWEfConstruction,
		EfSearch:       cfg.HNSWEfSearch,
		Metric:         hnsw.MetricCosine,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: build hnsw index: %w", err)
	}
	return retrieve.NewHNSWBackend(idx, store), nil
}

// newEmbeddingProvider selects an embedding backend by cfg.EmbeddingProvider
// ("auto", "openai", "ollama", "noop"). Auto mode tries Ollama first
// (on-premises, no external API cost) via a reachability probe, then
// OpenAI if a key is present, else noop.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.KGEmbeddingDim

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when NOEMA_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		if err != nil {
			logger.Error("openai provider init failed", "error", err)
			return embedding.NewNoopProvider(dims)
		}
		return p

	case "ollama":
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.EmbeddingModel, dims)

	case "noop":
		return embedding.NewNoopProvider(dims)

	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.EmbeddingModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
			if err == nil {
				logger.Info("embedding provider: openai (auto-detected)", "dimensions", dims)
				return p
			}
			logger.Error("openai provider init failed", "error", err)
		}
		logger.Warn("no embedding provider available, using noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

// ollamaReachable checks if an Ollama server is responding, used to pick
// the auto-detected embedding provider without requiring configuration.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// embedderAdapter satisfies retrieve.Embedder against a
// service/embedding.Provider, converting its pgvector.Vector return type
// to the plain []float32 the retriever operates on.
type embedderAdapter struct {
	provider embedding.Provider
}

func (a embedderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := a.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return v.Slice(), nil
}
