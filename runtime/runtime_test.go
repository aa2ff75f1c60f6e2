package runtime_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akashi-ai/noema/internal/audit"
	"github.com/akashi-ai/noema/internal/config"
	"github.com/akashi-ai/noema/internal/graph"
	"github.com/akashi-ai/noema/internal/rules"
	"github.com/akashi-ai/noema/runtime"
)

func embeddedConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		AuditStoragePath:               filepath.Join(dir, "audit"),
		AuditMaxFileSizeMB:             64,
		DatabaseURL:                    "",
		KGEmbeddingDim:                 4,
		RetrieverVectorWeight:          0.6,
		RetrieverGraphWeight:           0.4,
		RetrieverMaxHops:               2,
		RetrieverMinSimilarity:         0.5,
		RetrieverMinGraphScore:         0.1,
		HNSWM:                          16,
		HNSWEfConstruction:             200,
		HNSWEfSearch:                   50,
		RulesDBPath:                    ":memory:",
		RulesPruneIntervalHours:        24,
		RulesMinApplicationsForPruning: 10,
		RulesMinEffectivenessThreshold: 0.4,
		RulesExtractorModel:            "llama3.1",
		SolverTimeoutMS:                5000,
		SpecStrict:                     true,
		EmbeddingProvider:              "noop",
	}
}

func TestNew_EmbeddedMode_PopulatesAllComponents(t *testing.T) {
	ctx := context.Background()
	cfg := embeddedConfig(t)

	rt, err := runtime.New(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.NotNil(t, rt.Audit)
	assert.NotNil(t, rt.Provenance)
	assert.NotNil(t, rt.Graph)
	assert.NotNil(t, rt.Retriever)
	assert.NotNil(t, rt.Rules)
	assert.NotNil(t, rt.Verifier)
	assert.NotNil(t, rt.Solver)
	assert.NotNil(t, rt.Embedder)
	assert.Equal(t, cfg, rt.Config)
}

func TestNew_DefaultLogger_WhenNil(t *testing.T) {
	ctx := context.Background()
	cfg := embeddedConfig(t)

	rt, err := runtime.New(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.NotNil(t, rt.Logger)
}

func TestRuntime_IndexClaim_AddsToGraphAndANNIndex(t *testing.T) {
	ctx := context.Background()
	cfg := embeddedConfig(t)

	rt, err := runtime.New(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer rt.Close()

	claim := graph.Claim{
		Text:      "the sky is blue",
		Embedding: []float32{1, 0, 0, 0},
	}
	stored, err := rt.IndexClaim(ctx, claim)
	require.NoError(t, err)
	assert.NotEqual(t, stored.ClaimID.String(), "00000000-0000-0000-0000-000000000000")

	fetched, err := rt.Graph.ClaimByID(ctx, stored.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, "the sky is blue", fetched.Text)

	// The noop embedding provider always errors (it signals callers to
	// skip embedding storage), so Retrieve surfaces that error rather
	// than a zero vector — confirms the adapter propagates it intact.
	_, err = rt.Retriever.Retrieve(ctx, "the sky is blue")
	assert.Error(t, err)
}

type stubAgent struct {
	result rules.AgentResult
	err    error
}

func (s stubAgent) Execute(ctx context.Context, prompt string) (rules.AgentResult, error) {
	return s.result, s.err
}

func TestRuntime_NewOrchestrator_ExecutesWithLearning(t *testing.T) {
	ctx := context.Background()
	cfg := embeddedConfig(t)

	rt, err := runtime.New(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer rt.Close()

	agent := stubAgent{result: rules.AgentResult{
		Output: "done",
		Outcome: rules.Outcome{
			Success:      true,
			QualityScore: 0.9,
			AgentID:      "tester",
		},
	}}

	orch := rt.NewOrchestrator(agent, nil)
	require.NotNil(t, orch)

	result, err := orch.ExecuteWithLearning(ctx, "summarize the report", "tester", "")
	require.NoError(t, err)
	assert.Equal(t, "done", result.Output)
}

func TestRuntime_CompileAndEnforceSpecification(t *testing.T) {
	ctx := context.Background()
	cfg := embeddedConfig(t)

	rt, err := runtime.New(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer rt.Close()

	const dsl = `AGENT Summarizer:
    TIER: haiku
    TOOLS: [Read]
    OUTPUT MUST SATISFY:
        confidence IN RANGE [0.0, 1.0]
    BEHAVIOR:
        PREFER concise summaries OVER verbose ones
    LIMITS:
        max_tool_calls: 10
`
	compiled, err := rt.CompileSpecification(dsl)
	require.NoError(t, err)
	require.Equal(t, "Summarizer", compiled.Name)

	enforced := rt.EnforceAgent(compiled, stubUnderlyingAgent{output: map[string]any{"confidence": 0.8}})
	require.NotNil(t, enforced)

	result, err := enforced.Execute(ctx, "summarize the report")
	require.NoError(t, err)
	assert.Equal(t, "Summarizer", result.SpecName)
	require.Len(t, result.ValidationResults, 1)
	assert.True(t, result.ValidationResults[0].Valid)
}

func TestRuntime_IndexClaims_IndexesAllConcurrently(t *testing.T) {
	ctx := context.Background()
	cfg := embeddedConfig(t)

	rt, err := runtime.New(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer rt.Close()

	claims := []graph.Claim{
		{Text: "claim one", Embedding: []float32{1, 0, 0, 0}},
		{Text: "claim two", Embedding: []float32{0, 1, 0, 0}},
		{Text: "claim three", Embedding: []float32{0, 0, 1, 0}},
	}

	stored, err := rt.IndexClaims(ctx, claims, 2)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, c := range stored {
		assert.Equal(t, claims[i].Text, c.Text)
		fetched, err := rt.Graph.ClaimByID(ctx, c.ClaimID)
		require.NoError(t, err)
		assert.Equal(t, claims[i].Text, fetched.Text)
	}
}

func TestRuntime_ComplianceReport_CoversRecordedEntries(t *testing.T) {
	ctx := context.Background()
	cfg := embeddedConfig(t)

	rt, err := runtime.New(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Audit.Record(ctx, audit.RecordInput{DecisionType: "plan", AgentID: "planner"})
	require.NoError(t, err)

	now := time.Now().UTC()
	report, err := rt.ComplianceReport(ctx, now.Add(-time.Hour), now.Add(time.Hour), 5, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalDecisions)
	assert.Equal(t, 1, report.ByType["plan"])
}

type stubUnderlyingAgent struct {
	output map[string]any
}

func (s stubUnderlyingAgent) Execute(ctx context.Context, prompt string) (map[string]any, error) {
	return s.output, nil
}
