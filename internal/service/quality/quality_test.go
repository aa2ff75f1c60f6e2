package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/akashi-ai/noema/internal/audit"
)

// repeat returns a string of n copies of ch.
func repeat(ch byte, n int) string {
	return strings.Repeat(string(ch), n)
}

func TestScore_ZeroInput(t *testing.T) {
	e := audit.Entry{}
	assert.Equal(t, 0.0, Score(e), "empty entry should score 0")
}

func TestScore_MaximumScore(t *testing.T) {
	// Every factor at its maximum tier.
	e := audit.Entry{
		DecisionType:     "architecture",                        // standard type → 0.10
		OutputSummary:    "chose Redis for session caching now", // >20 chars → 0.05
		ConfidenceScore:  0.85,                                  // mid-range → 0.15
		ReasoningSummary: repeat('x', 101),                      // >100 chars → 0.25
		Alternatives:     []string{"a", "b", "c"},                // >=3 alts → 0.20
		RulesApplied:     []string{"rule-1"},                     // recorded → 0.10
		ContextSources:   []string{"doc-1", "doc-2"},             // >=2 sources → 0.15
	}
	assert.InDelta(t, 1.0, Score(e), 0.001, "fully populated entry should score 1.0")
}

// ---------------------------------------------------------------------------
// Factor isolation tests: set only one factor at a time, verify its
// contribution in isolation.
// ---------------------------------------------------------------------------

func TestScore_Factor1_ConfidenceMidRange(t *testing.T) {
	e := audit.Entry{ConfidenceScore: 0.50}
	assert.InDelta(t, 0.15, Score(e), 0.001)
}

func TestScore_Factor1_ConfidenceEdge(t *testing.T) {
	// Values at the boundary of mid-range fall into the edge tier.
	e := audit.Entry{ConfidenceScore: 0.05}
	assert.InDelta(t, 0.10, Score(e), 0.001,
		"confidence == 0.05 is not > 0.05, so falls to edge tier")
}

func TestScore_Factor2_ReasoningLong(t *testing.T) {
	e := audit.Entry{ReasoningSummary: repeat('a', 101)}
	assert.InDelta(t, 0.25, Score(e), 0.001)
}

func TestScore_Factor3_ThreeAlternatives(t *testing.T) {
	e := audit.Entry{Alternatives: []string{"a", "b", "c"}}
	assert.InDelta(t, 0.20, Score(e), 0.001)
}

func TestScore_Factor4_RulesApplied(t *testing.T) {
	e := audit.Entry{RulesApplied: []string{"rule-1"}}
	assert.InDelta(t, 0.10, Score(e), 0.001)
}

func TestScore_Factor4_NoRulesApplied(t *testing.T) {
	e := audit.Entry{RulesApplied: nil}
	assert.InDelta(t, 0.0, Score(e), 0.001)
}

func TestScore_Factor5_TwoContextSources(t *testing.T) {
	e := audit.Entry{ContextSources: []string{"a", "b"}}
	assert.InDelta(t, 0.15, Score(e), 0.001)
}

func TestScore_Factor6_StandardType(t *testing.T) {
	e := audit.Entry{DecisionType: "security"}
	assert.InDelta(t, 0.10, Score(e), 0.001)
}

func TestScore_Factor7_SubstantiveOutputSummary(t *testing.T) {
	e := audit.Entry{OutputSummary: "chose Redis for session caching now"} // >20 chars
	assert.InDelta(t, 0.05, Score(e), 0.001)
}

// ---------------------------------------------------------------------------
// Confidence boundary tests
// ---------------------------------------------------------------------------

func TestScore_ConfidenceBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       float64
	}{
		{"exactly 0", 0.0, 0.0},          // not > 0 → no credit
		{"exactly 1", 1.0, 0.0},          // not < 1 → no credit
		{"exactly 0.05", 0.05, 0.10},     // > 0 && < 1 but not > 0.05 → edge tier
		{"exactly 0.95", 0.95, 0.10},     // > 0 && < 1 but not < 0.95 → edge tier
		{"just above 0.05", 0.06, 0.15},  // > 0.05 && < 0.95 → mid-range
		{"just below 0.95", 0.94, 0.15},  // > 0.05 && < 0.95 → mid-range
		{"just above 0", 0.01, 0.10},     // edge tier
		{"just below 1", 0.99, 0.10},     // edge tier
		{"mid-range center", 0.50, 0.15}, // mid-range
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := audit.Entry{ConfidenceScore: tt.confidence}
			assert.InDelta(t, tt.want, Score(e), 0.001)
		})
	}
}

// ---------------------------------------------------------------------------
// Reasoning length boundary tests
// ---------------------------------------------------------------------------

func TestScore_ReasoningBoundaries(t *testing.T) {
	tests := []struct {
		name string
		len  int
		want float64
	}{
		{"empty string", 0, 0.0},
		{"1 char", 1, 0.0},
		{"exactly 20 chars", 20, 0.0},    // not > 20
		{"21 chars", 21, 0.10},           // > 20
		{"exactly 50 chars", 50, 0.10},   // not > 50
		{"51 chars", 51, 0.20},           // > 50
		{"exactly 100 chars", 100, 0.20}, // not > 100
		{"101 chars", 101, 0.25},         // > 100
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := audit.Entry{ReasoningSummary: repeat('x', tt.len)}
			assert.InDelta(t, tt.want, Score(e), 0.001)
		})
	}
}

func TestScore_ReasoningEmpty(t *testing.T) {
	e := audit.Entry{ReasoningSummary: ""}
	assert.InDelta(t, 0.0, Score(e), 0.001)
}

func TestScore_ReasoningWhitespaceOnly(t *testing.T) {
	// 30 spaces, but after TrimSpace the length is 0 → no credit.
	e := audit.Entry{ReasoningSummary: strings.Repeat(" ", 30)}
	assert.InDelta(t, 0.0, Score(e), 0.001)
}

// ---------------------------------------------------------------------------
// Alternatives count boundary tests
// ---------------------------------------------------------------------------

func TestScore_AlternativesCount(t *testing.T) {
	makeAlts := func(n int) []string {
		alts := make([]string, n)
		for i := range alts {
			alts[i] = repeat('a'+byte(i%26), 1)
		}
		return alts
	}

	tests := []struct {
		name  string
		count int
		want  float64
	}{
		{"0 alternatives", 0, 0.0},
		{"1 alternative", 1, 0.05},
		{"2 alternatives", 2, 0.15},
		{"3 alternatives", 3, 0.20},
		{"5 alternatives", 5, 0.20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := audit.Entry{Alternatives: makeAlts(tt.count)}
			assert.InDelta(t, tt.want, Score(e), 0.001)
		})
	}
}

// ---------------------------------------------------------------------------
// Context sources boundary tests
// ---------------------------------------------------------------------------

func TestScore_ContextSourcesCount(t *testing.T) {
	makeSources := func(n int) []string {
		sources := make([]string, n)
		for i := range sources {
			sources[i] = "source"
		}
		return sources
	}

	tests := []struct {
		name  string
		count int
		want  float64
	}{
		{"0 sources", 0, 0.0},
		{"1 source", 1, 0.10},
		{"2 sources", 2, 0.15},
		{"5 sources", 5, 0.15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := audit.Entry{ContextSources: makeSources(tt.count)}
			assert.InDelta(t, tt.want, Score(e), 0.001)
		})
	}
}

// ---------------------------------------------------------------------------
// Decision type tests
// ---------------------------------------------------------------------------

func TestScore_NonStandardDecisionType(t *testing.T) {
	e := audit.Entry{DecisionType: "custom_workflow"}
	assert.InDelta(t, 0.0, Score(e), 0.001)
}

func TestScore_AllStandardDecisionTypes(t *testing.T) {
	for dt := range StandardDecisionTypes {
		t.Run(dt, func(t *testing.T) {
			e := audit.Entry{DecisionType: dt}
			assert.InDelta(t, 0.10, Score(e), 0.001)
		})
	}
}

// ---------------------------------------------------------------------------
// Output summary boundary tests
// ---------------------------------------------------------------------------

func TestScore_OutputSummaryBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		summary string
		want    float64
	}{
		{"empty", "", 0.0},
		{"exactly 20 chars", repeat('x', 20), 0.0},
		{"21 chars", repeat('x', 21), 0.05},
		{"whitespace padded to 25 but trimmed to 15", "   " + repeat('x', 15) + "       ", 0.0},
		{"whitespace padded to 30 with 21 content", "    " + repeat('x', 21) + "     ", 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := audit.Entry{OutputSummary: tt.summary}
			assert.InDelta(t, tt.want, Score(e), 0.001)
		})
	}
}

// ---------------------------------------------------------------------------
// Composite scoring: verify additive behavior of multiple factors.
// ---------------------------------------------------------------------------

func TestScore_TwoFactorsCombined(t *testing.T) {
	// Confidence mid-range (0.15) + standard type (0.10) = 0.25
	e := audit.Entry{
		DecisionType:    "trade_off",
		ConfidenceScore: 0.70,
	}
	assert.InDelta(t, 0.25, Score(e), 0.001)
}

func TestScore_ThreeFactorsCombined(t *testing.T) {
	// Confidence mid-range (0.15) + reasoning >100 (0.25) + 2 sources (0.15) = 0.55
	e := audit.Entry{
		ConfidenceScore:  0.60,
		ReasoningSummary: repeat('r', 101),
		ContextSources:   []string{"a", "b"},
	}
	assert.InDelta(t, 0.55, Score(e), 0.001)
}

// ---------------------------------------------------------------------------
// StandardDecisionTypes map completeness
// ---------------------------------------------------------------------------

func TestStandardDecisionTypes_Contains(t *testing.T) {
	expected := []string{
		"model_selection", "architecture", "data_source", "error_handling",
		"feature_scope", "trade_off", "deployment", "security",
	}
	assert.Equal(t, len(expected), len(StandardDecisionTypes),
		"StandardDecisionTypes should have exactly %d entries", len(expected))
	for _, dt := range expected {
		assert.True(t, StandardDecisionTypes[dt], "%q should be a standard decision type", dt)
	}
}

func TestStandardDecisionTypes_ExcludesUnknown(t *testing.T) {
	bogus := []string{"", "unknown", "custom", "MODEL_SELECTION", "Architecture"}
	for _, dt := range bogus {
		assert.False(t, StandardDecisionTypes[dt], "%q should not be a standard decision type", dt)
	}
}
