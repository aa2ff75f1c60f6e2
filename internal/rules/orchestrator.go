package rules

import (
	"context"
	"time"

	"github.com/akashi-ai/noema/internal/clock"
)

// Agent executes a task, optionally informed by a rule-augmented prompt,
// and reports how it went. Callers supply their own agent implementation;
// the orchestrator only shapes the prompt and records the outcome.
type Agent interface {
	Execute(ctx context.Context, prompt string) (AgentResult, error)
}

// AgentResult is what an Agent reports back about one execution.
type AgentResult struct {
	Output  string
	Outcome Outcome
}

// LearningResult is what ExecuteWithLearning returns: the agent's own
// result plus the orchestrator's bookkeeping (step 6's
// "_learning" attachment).
type LearningResult struct {
	AgentResult
	RulesApplied   []string
	ExecutionTime  time.Duration
	OutcomeQuality float64
}

// OrchestratorConfig tunes ExecuteWithLearning.
type OrchestratorConfig struct {
	TopN                 int
	MinRuleEffectiveness float64
	AutoPrune            bool
	PruneIntervalHours   int
	MinApplications      int
	MinEffectiveness     float64
}

// DefaultOrchestratorConfig returns the documented default tuning.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		TopN:                 5,
		MinRuleEffectiveness: 0.6,
		AutoPrune:            true,
		PruneIntervalHours:   24,
		MinApplications:      10,
		MinEffectiveness:     0.4,
	}
}

// Orchestrator wires an Agent, a rule Store, and an Extractor together to
// implement the seven-step execute-with-learning algorithm.
type Orchestrator struct {
	store     Store
	extractor Extractor
	agent     Agent
	cfg       OrchestratorConfig
	clock     clock.Clock

	lastPrune time.Time
}

// NewOrchestrator builds an Orchestrator. A nil extractor behaves like
// NoopExtractor.
func NewOrchestrator(store Store, extractor Extractor, agent Agent, cfg OrchestratorConfig, cl clock.Clock) *Orchestrator {
	if extractor == nil {
		extractor = NoopExtractor{}
	}
	if cl == nil {
		cl = clock.Real{}
	}
	return &Orchestrator{store: store, extractor: extractor, agent: agent, cfg: cfg, clock: cl}
}

// ExecuteWithLearning runs the seven-step algorithm:
//  1. fetch top-N rules with effectiveness >= MinRuleEffectiveness
//  2. augment the prompt with rule context
//  3. execute the agent, capturing output and elapsed time
//  4. update effectiveness of each applied rule
//  5. on a high-quality outcome, extract and add new rules
//  6. attach learning bookkeeping to the result
//  7. periodically prune ineffective rules
func (o *Orchestrator) ExecuteWithLearning(ctx context.Context, task, agentID string, feedback string) (LearningResult, error) {
	rules, err := o.applicableRules(ctx, task)
	if err != nil {
		return LearningResult{}, err
	}

	prompt := GenerateRuleContext(task, rules)

	start := o.clock.Now()
	result, err := o.agent.Execute(ctx, prompt)
	if err != nil {
		return LearningResult{}, err
	}
	elapsed := o.clock.Now().Sub(start)
	if result.Outcome.AgentID == "" {
		result.Outcome.AgentID = agentID
	}
	if result.Outcome.Feedback == "" {
		result.Outcome.Feedback = feedback
	}

	applied := make([]string, 0, len(rules))
	for _, r := range rules {
		if err := o.store.UpdateEffectiveness(ctx, r.ID, result.Outcome.Success); err != nil {
			continue
		}
		applied = append(applied, r.ID)
	}

	if result.Outcome.HighQuality() {
		extracted, err := o.extractor.Extract(ctx, ExtractInput{Task: task, Approach: result.Output, Outcome: result.Outcome})
		if err == nil {
			for _, r := range extracted {
				_, _ = o.store.Add(ctx, r)
			}
		}
	}

	o.maybePrune(ctx)

	return LearningResult{
		AgentResult:    result,
		RulesApplied:   applied,
		ExecutionTime:  elapsed,
		OutcomeQuality: result.Outcome.QualityScore,
	}, nil
}

func (o *Orchestrator) applicableRules(ctx context.Context, task string) ([]Rule, error) {
	topN := o.cfg.TopN
	if topN <= 0 {
		topN = DefaultOrchestratorConfig().TopN
	}
	candidates, err := o.store.Search(ctx, task, topN*3)
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, topN)
	for _, r := range candidates {
		if r.Effectiveness() < o.cfg.MinRuleEffectiveness {
			continue
		}
		out = append(out, r)
		if len(out) >= topN {
			break
		}
	}
	return out, nil
}

func (o *Orchestrator) maybePrune(ctx context.Context) {
	if !o.cfg.AutoPrune {
		return
	}
	interval := time.Duration(o.cfg.PruneIntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	now := o.clock.Now()
	if !o.lastPrune.IsZero() && now.Sub(o.lastPrune) < interval {
		return
	}
	o.lastPrune = now
	_, _ = o.store.PruneIneffective(ctx, o.cfg.MinApplications, o.cfg.MinEffectiveness)
}

// GenerateRuleContext renders the applicable rules as a prompt-ready block
// headed "Relevant rules from past experience:", one "- IF ... THEN ..."
// bullet per rule, then appends the task after a "Task: " line. With no
// rules it returns the task unchanged.
func GenerateRuleContext(task string, applicable []Rule) string {
	if len(applicable) == 0 {
		return task
	}
	out := "Relevant rules from past experience:\n"
	for _, r := range applicable {
		out += "- IF " + r.Condition + " THEN " + r.Recommendation
		if r.Reasoning != "" {
			out += " (" + r.Reasoning + ")"
		}
		out += "\n"
	}
	out += "\nTask: " + task
	return out
}
