package spec

import (
	"context"
	"fmt"
	"strings"

	"github.com/akashi-ai/noema/internal/clock"
)

// SpecificationViolation is raised in strict mode when one or more output
// constraints fail.
type SpecificationViolation struct {
	Results []ValidationResult
}

func (e *SpecificationViolation) Error() string {
	return fmt.Sprintf("spec: specification violation: %d constraint(s) failed", len(e.Results))
}

// UnderlyingAgent is the wrapped agent an EnforcedAgent drives. It
// receives the fully assembled prompt and returns a structured output to
// validate against the specification's constraints.
type UnderlyingAgent interface {
	Execute(ctx context.Context, prompt string) (map[string]any, error)
}

// Mode selects strict-vs-soft enforcement.
type Mode int

const (
	ModeSoft Mode = iota
	ModeStrict
)

// ExecutionResult is what EnforcedAgent.Execute returns.
type ExecutionResult struct {
	Output            map[string]any
	ValidationResults []ValidationResult
	ExecutionTimeMS   int64
	LimitsEnforced    map[string]int
	SpecName          string
}

// EnforcedAgent wraps an UnderlyingAgent with a compiled AgentSpecification,
// enforcing tool/behavior prompting, limits, and output validation.
type EnforcedAgent struct {
	spec     *AgentSpecification
	agent    UnderlyingAgent
	enforcer *LimitEnforcer
	mode     Mode
	clock    clock.Clock
}

// NewEnforcedAgent builds an EnforcedAgent for spec, wrapping agent.
func NewEnforcedAgent(spec *AgentSpecification, agent UnderlyingAgent, mode Mode, cl clock.Clock) *EnforcedAgent {
	if cl == nil {
		cl = clock.Real{}
	}
	return &EnforcedAgent{
		spec:     spec,
		agent:    agent,
		enforcer: NewLimitEnforcer(spec.Limits, cl),
		mode:     mode,
		clock:    cl,
	}
}

// Execute runs the four-step enforced-execution algorithm:
//  1. build prompt = behavior block + tool restrictions + task
//  2. reset limit counters, execute the wrapped agent, surface LimitExceeded
//  3. validate output; strict mode raises SpecificationViolation on any failure
//  4. return ExecutionResult
func (a *EnforcedAgent) Execute(ctx context.Context, task string) (ExecutionResult, error) {
	prompt := a.buildPrompt(task)

	a.enforcer.Reset()
	start := a.clock.Now()
	output, err := a.agent.Execute(ctx, prompt)
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := a.enforcer.CheckTimeout(); err != nil {
		return ExecutionResult{}, err
	}
	elapsed := a.clock.Now().Sub(start)

	results := a.validate(output)

	result := ExecutionResult{
		Output:            output,
		ValidationResults: results,
		ExecutionTimeMS:   elapsed.Milliseconds(),
		LimitsEnforced:    a.spec.Limits,
		SpecName:          a.spec.Name,
	}

	if a.mode == ModeStrict {
		var failing []ValidationResult
		for _, r := range results {
			if !r.Valid {
				failing = append(failing, r)
			}
		}
		if len(failing) > 0 {
			return result, &SpecificationViolation{Results: failing}
		}
	}

	return result, nil
}

func (a *EnforcedAgent) buildPrompt(task string) string {
	var b strings.Builder
	if block := GenerateBehaviorPrompt(a.spec.Behaviors); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}
	if len(a.spec.Tools) > 0 {
		b.WriteString("Allowed tools: ")
		b.WriteString(strings.Join(a.spec.Tools, ", "))
		b.WriteString("\n\n")
	}
	b.WriteString(task)
	return b.String()
}

func (a *EnforcedAgent) validate(output map[string]any) []ValidationResult {
	now := a.clock.Now()
	results := make([]ValidationResult, 0, len(a.spec.Constraints))
	for _, c := range a.spec.Constraints {
		results = append(results, c.Validate(output, map[string]any{}, now))
	}
	return results
}

// CheckToolCall records one tool invocation against the spec's
// max_tool_calls limit, if configured.
func (a *EnforcedAgent) CheckToolCall() error {
	return a.enforcer.CheckLimit("max_tool_calls", 1)
}
