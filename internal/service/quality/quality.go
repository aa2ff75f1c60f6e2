// Package quality provides audit entry quality scoring.
// Quality scores (0.0-1.0) measure decision-trace completeness, on the same
// scale as rules.Outcome.QualityScore, which gates whether a trace is
// eligible for rule extraction (internal/rules.MinLearnableQuality/MinHighQuality).
// Nothing in this module copies a Score into an Outcome; callers set it.
package quality

import (
	"strings"

	"github.com/akashi-ai/noema/internal/audit"
)

// StandardDecisionTypes are the canonical decision types the runtime's
// prompt templates emit. Using a standard type improves discoverability
// and consistency of extracted rules.
var StandardDecisionTypes = map[string]bool{
	"model_selection": true,
	"architecture":    true,
	"data_source":     true,
	"error_handling":  true,
	"feature_scope":   true,
	"trade_off":       true,
	"deployment":      true,
	"security":        true,
}

// Score computes a quality score (0.0-1.0) for an audit entry. Higher
// scores indicate more complete, useful traces, and a more reliable
// input to rule extraction.
//
// Scoring factors:
//   - Confidence present and reasonable (0.05-0.95): 0.15
//   - Reasoning substantive (>50 chars): up to 0.25
//   - Alternatives considered (>=2): up to 0.20
//   - Rules applied are recorded: 0.10
//   - Context sources provided: up to 0.15
//   - Standard decision type: 0.10
//   - Output summary substantive (>20 chars): 0.05
func Score(e audit.Entry) float64 {
	var score float64

	// Factor 1: Confidence is present and reasonable.
	// Extreme values (exactly 0 or 1) are often defaults, so mid-range is
	// rewarded over the edges. Strict inequality: exactly 0.05 and 0.95
	// fall to the edge tier.
	if e.ConfidenceScore > 0.05 && e.ConfidenceScore < 0.95 {
		score += 0.15
	} else if e.ConfidenceScore > 0 && e.ConfidenceScore < 1 {
		score += 0.10
	}

	// Factor 2: Reasoning is substantive.
	reasoningLen := len(strings.TrimSpace(e.ReasoningSummary))
	switch {
	case reasoningLen > 100:
		score += 0.25
	case reasoningLen > 50:
		score += 0.20
	case reasoningLen > 20:
		score += 0.10
	}

	// Factor 3: Alternatives considered.
	switch {
	case len(e.Alternatives) >= 3:
		score += 0.20
	case len(e.Alternatives) >= 2:
		score += 0.15
	case len(e.Alternatives) >= 1:
		score += 0.05
	}

	// Factor 4: At least one rule was applied and recorded.
	if len(e.RulesApplied) >= 1 {
		score += 0.10
	}

	// Factor 5: Context sources provided.
	if len(e.ContextSources) >= 2 {
		score += 0.15
	} else if len(e.ContextSources) >= 1 {
		score += 0.10
	}

	// Factor 6: Decision type is from the standard taxonomy.
	if StandardDecisionTypes[e.DecisionType] {
		score += 0.10
	}

	// Factor 7: Output summary is substantive.
	if len(strings.TrimSpace(e.OutputSummary)) > 20 {
		score += 0.05
	}

	return score
}
