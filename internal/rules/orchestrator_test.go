package rules

import (
	"context"
	"testing"
	"time"

	"github.com/akashi-ai/noema/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	result AgentResult
	err    error
	prompt string
}

func (a *fakeAgent) Execute(_ context.Context, prompt string) (AgentResult, error) {
	a.prompt = prompt
	return a.result, a.err
}

type fakeExtractor struct {
	rules []Rule
}

func (e *fakeExtractor) Extract(_ context.Context, _ ExtractInput) ([]Rule, error) {
	return e.rules, nil
}

func TestOrchestrator_ExecuteWithLearning_AppliesAndUpdatesRules(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(clock.Fixed{At: now})

	r, err := store.Add(ctx, Rule{Condition: "task involves database migration", Recommendation: "run in a transaction"})
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.NoError(t, store.UpdateEffectiveness(ctx, r.ID, true))
	}

	agent := &fakeAgent{result: AgentResult{
		Output:  "migrated schema successfully",
		Outcome: Outcome{Success: true, QualityScore: 0.75},
	}}

	orch := NewOrchestrator(store, &fakeExtractor{}, agent, DefaultOrchestratorConfig(), clock.Fixed{At: now})

	result, err := orch.ExecuteWithLearning(ctx, "database migration for users table", "agent-1", "")
	require.NoError(t, err)

	assert.Contains(t, agent.prompt, "task involves database migration")
	require.Len(t, result.RulesApplied, 1)
	assert.Equal(t, r.ID, result.RulesApplied[0])

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.SuccessCount)
}

func TestOrchestrator_ExecuteWithLearning_ExtractsOnHighQuality(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(clock.Fixed{At: now})

	agent := &fakeAgent{result: AgentResult{
		Output:  "refactored the module cleanly",
		Outcome: Outcome{Success: true, QualityScore: 0.9},
	}}
	extractor := &fakeExtractor{rules: []Rule{
		{Condition: "module exceeds 500 lines", Recommendation: "split by responsibility", Category: "ARCHITECTURE"},
	}}

	orch := NewOrchestrator(store, extractor, agent, DefaultOrchestratorConfig(), clock.Fixed{At: now})
	_, err := orch.ExecuteWithLearning(ctx, "refactor the parser module", "agent-1", "")
	require.NoError(t, err)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "module exceeds 500 lines", all[0].Condition)
}

func TestOrchestrator_ExecuteWithLearning_SkipsExtractionBelowQualityBar(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(clock.Fixed{At: now})

	agent := &fakeAgent{result: AgentResult{
		Output:  "fixed the bug",
		Outcome: Outcome{Success: true, QualityScore: 0.72},
	}}
	extractor := &fakeExtractor{rules: []Rule{
		{Condition: "should never appear", Recommendation: "n/a"},
	}}

	orch := NewOrchestrator(store, extractor, agent, DefaultOrchestratorConfig(), clock.Fixed{At: now})
	_, err := orch.ExecuteWithLearning(ctx, "fix a bug", "agent-1", "")
	require.NoError(t, err)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOrchestrator_ExecuteWithLearning_PrunesOnInterval(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(clock.Fixed{At: start})

	bad, err := store.Add(ctx, Rule{Condition: "rule that never helps", Recommendation: "do it anyway"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, store.UpdateEffectiveness(ctx, bad.ID, false))
	}

	agent := &fakeAgent{result: AgentResult{Output: "done", Outcome: Outcome{Success: true, QualityScore: 0.5}}}
	cfg := DefaultOrchestratorConfig()
	cfg.MinApplications = 10
	cfg.MinEffectiveness = 0.4

	fc := clock.Fixed{At: start}
	orch := NewOrchestrator(store, &fakeExtractor{}, agent, cfg, fc)

	_, err = orch.ExecuteWithLearning(ctx, "unrelated task", "agent-1", "")
	require.NoError(t, err)

	got, err := store.Get(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPruned, got.Status)
}

func TestGenerateRuleContext_EmptyRulesReturnsTaskOnly(t *testing.T) {
	assert.Equal(t, "do the thing", GenerateRuleContext("do the thing", nil))
}

func TestParseExtractedRules_TolerantOfFencingAndUnknownCategory(t *testing.T) {
	response := "```json\n[{\"condition\": \"c\", \"recommendation\": \"r\", \"category\": \"WEIRD\"}]\n```"
	rules := ParseExtractedRules(response, ExtractInput{Task: "t", Outcome: Outcome{AgentID: "a"}})
	require.Len(t, rules, 1)
	assert.Equal(t, string(CategoryGeneral), rules[0].Category)
	assert.Equal(t, InitialConfidence, rules[0].Confidence)
}

func TestParseExtractedRules_DropsIncompleteEntries(t *testing.T) {
	response := `[{"condition": "", "recommendation": "r"}, {"condition": "c2", "recommendation": "r2"}]`
	rules := ParseExtractedRules(response, ExtractInput{})
	require.Len(t, rules, 1)
	assert.Equal(t, "c2", rules[0].Condition)
}

func TestParseExtractedRules_CapsAtMax(t *testing.T) {
	response := `[
		{"condition":"c1","recommendation":"r1"},{"condition":"c2","recommendation":"r2"},
		{"condition":"c3","recommendation":"r3"},{"condition":"c4","recommendation":"r4"},
		{"condition":"c5","recommendation":"r5"},{"condition":"c6","recommendation":"r6"}
	]`
	rules := ParseExtractedRules(response, ExtractInput{})
	assert.Len(t, rules, MaxRulesPerExtraction)
}

func TestOutcome_LearnableAndHighQuality(t *testing.T) {
	assert.True(t, Outcome{Success: true, QualityScore: 0.7}.Learnable())
	assert.False(t, Outcome{Success: true, QualityScore: 0.69}.Learnable())
	assert.False(t, Outcome{Success: false, QualityScore: 0.9}.Learnable())

	assert.True(t, Outcome{Success: true, QualityScore: 0.8}.HighQuality())
	assert.False(t, Outcome{Success: true, QualityScore: 0.79}.HighQuality())
}
