package verify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/akashi-ai/noema/internal/clock"
)

// Judge is the async LLM-judge collaborator a HybridVerifier falls back
// to for claims outside the symbolic fragment.
type Judge interface {
	Judge(ctx context.Context, claimText string, verifyCtx map[string]any) (Output, error)
}

// ClaimVerificationResult is the outcome of verifying a single claim.
type ClaimVerificationResult struct {
	Claim              ClassifiedClaim
	VerificationMethod string // "symbolic" or "llm"
	Result             Result
	Output             Output
	FallbackUsed       bool
}

// VerificationReport aggregates verification results across all claims
// extracted from a piece of content.
type VerificationReport struct {
	ContentSummary    string
	TotalClaims       int
	VerifiedClaims    []ClaimVerificationResult
	RefutedClaims     []ClaimVerificationResult
	UncertainClaims   []ClaimVerificationResult
	SymbolicCount     int
	LLMCount          int
	OverallConfidence float64
	VerificationMS    int64
	Timestamp         time.Time
}

// AllVerified reports whether every claim in the report verified.
func (r VerificationReport) AllVerified() bool {
	return len(r.RefutedClaims) == 0 && len(r.UncertainClaims) == 0
}

// HasRefuted reports whether any claim was refuted.
func (r VerificationReport) HasRefuted() bool {
	return len(r.RefutedClaims) > 0
}

// HybridVerifier routes claims to the symbolic Solver where applicable,
// falling back to an LLM Judge otherwise.
type HybridVerifier struct {
	solver *Solver
	judge  Judge
	clock  clock.Clock
}

// NewHybridVerifier builds a HybridVerifier. judge may be nil, in which
// case claims outside the symbolic fragment resolve to UNKNOWN.
func NewHybridVerifier(solver *Solver, judge Judge, cl clock.Clock) *HybridVerifier {
	if solver == nil {
		solver = NewSolver(0)
	}
	if cl == nil {
		cl = clock.Real{}
	}
	return &HybridVerifier{solver: solver, judge: judge, clock: cl}
}

// VerifyContent extracts claims from content (unless claims is given
// explicitly), classifies and verifies each, and aggregates a
// VerificationReport.
func (v *HybridVerifier) VerifyContent(ctx context.Context, content string, verifyCtx map[string]any, claims []string) (VerificationReport, error) {
	start := v.clock.Now()

	if claims == nil {
		claims = ExtractClaims(content)
	}

	results := make([]ClaimVerificationResult, 0, len(claims))
	for _, c := range claims {
		classified := ClassifyClaim(c)
		r, err := v.verifyClaim(ctx, classified, verifyCtx)
		if err != nil {
			return VerificationReport{}, err
		}
		results = append(results, r)
	}

	var verified, refuted, uncertain []ClaimVerificationResult
	var symbolicCount, llmCount int
	var confidenceSum float64
	for _, r := range results {
		switch r.Result {
		case ResultVerified:
			verified = append(verified, r)
		case ResultRefuted:
			refuted = append(refuted, r)
		default:
			uncertain = append(uncertain, r)
		}
		if r.VerificationMethod == "symbolic" {
			symbolicCount++
		} else {
			llmCount++
		}
		confidenceSum += r.Claim.Confidence
	}

	overallConfidence := 0.0
	if len(results) > 0 {
		overallConfidence = confidenceSum / float64(len(results))
	}

	summary := content
	if len(summary) > 500 {
		summary = summary[:500]
	}

	return VerificationReport{
		ContentSummary:    summary,
		TotalClaims:       len(results),
		VerifiedClaims:    verified,
		RefutedClaims:     refuted,
		UncertainClaims:   uncertain,
		SymbolicCount:     symbolicCount,
		LLMCount:          llmCount,
		OverallConfidence: overallConfidence,
		VerificationMS:    v.clock.Now().Sub(start).Milliseconds(),
		Timestamp:         v.clock.Now(),
	}, nil
}

// VerifyClaim verifies a single claim string.
func (v *HybridVerifier) VerifyClaim(ctx context.Context, claimText string, verifyCtx map[string]any) (ClaimVerificationResult, error) {
	classified := ClassifyClaim(claimText)
	return v.verifyClaim(ctx, classified, verifyCtx)
}

func (v *HybridVerifier) verifyClaim(ctx context.Context, claim ClassifiedClaim, verifyCtx map[string]any) (ClaimVerificationResult, error) {
	if claim.SymbolicApplicable {
		out := v.trySymbolic(claim, verifyCtx)
		if out.Result != ResultNotApplicable {
			return ClaimVerificationResult{
				Claim:               claim,
				VerificationMethod:  "symbolic",
				Result:              out.Result,
				Output:              out,
				FallbackUsed:        false,
			}, nil
		}
	}

	out, err := v.llmVerify(ctx, claim, verifyCtx)
	if err != nil {
		return ClaimVerificationResult{}, err
	}
	return ClaimVerificationResult{
		Claim:               claim,
		VerificationMethod:  "llm",
		Result:              out.Result,
		Output:              out,
		FallbackUsed:        claim.SymbolicApplicable,
	}, nil
}

func (v *HybridVerifier) trySymbolic(claim ClassifiedClaim, verifyCtx map[string]any) Output {
	switch claim.ClaimType {
	case ClaimArithmetic:
		return v.verifyArithmeticClaim(claim, verifyCtx)
	case ClaimConstraint:
		return v.verifyConstraintClaim(verifyCtx)
	case ClaimImplication:
		return v.verifyImplicationClaim(verifyCtx)
	case ClaimComparison:
		return v.verifyComparisonClaim(claim)
	case ClaimEquality:
		return v.verifyEqualityClaim(verifyCtx)
	default:
		return Output{Result: ResultNotApplicable, Explanation: fmt.Sprintf("no symbolic verification for %s", claim.ClaimType)}
	}
}

var arithmeticPair = regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d+)?)\s*([+\-*/])\s*(\d+(?:,\d{3})*(?:\.\d+)?)\s*(?:=|equals?|is)\s*(\d+(?:,\d{3})*(?:\.\d+)?)`)

func (v *HybridVerifier) verifyArithmeticClaim(claim ClassifiedClaim, verifyCtx map[string]any) Output {
	if m := arithmeticPair.FindStringSubmatch(claim.ClaimText); m != nil {
		a := parseCommaFloat(m[1])
		op := m[2]
		b := parseCommaFloat(m[3])
		claimed := parseCommaFloat(m[4])
		return v.solver.VerifyArithmetic(map[string]float64{"a": a, "b": b}, claimed, fmt.Sprintf("a %s b", op), 1e-3)
	}

	if verifyCtx != nil {
		values, okV := verifyCtx["values"].(map[string]float64)
		op, okOp := verifyCtx["operation"].(string)
		claimed, okC := verifyCtx["claimed_result"].(float64)
		if okV && okOp && okC {
			return v.solver.VerifyArithmetic(values, claimed, op, 1e-3)
		}
	}

	return Output{Result: ResultNotApplicable, Explanation: "could not extract arithmetic components from claim"}
}

var commaPattern = regexp.MustCompile(`,`)

func parseCommaFloat(s string) float64 {
	clean := commaPattern.ReplaceAllString(s, "")
	n, _ := strconv.ParseFloat(clean, 64)
	return n
}

func (v *HybridVerifier) verifyConstraintClaim(verifyCtx map[string]any) Output {
	constraints, okC := verifyCtx["constraints"].([]string)
	types, okT := verifyCtx["variable_types"].(map[string]VariableType)
	if !okC || !okT {
		return Output{Result: ResultNotApplicable, Explanation: "constraint extraction from natural language not supported without structured context"}
	}
	shouldBeSat, _ := verifyCtx["should_be_satisfiable"].(bool)
	return v.solver.VerifyConstraints(constraints, types, shouldBeSat)
}

func (v *HybridVerifier) verifyImplicationClaim(verifyCtx map[string]any) Output {
	premises, okP := verifyCtx["premises"].([]string)
	conclusion, okC := verifyCtx["conclusion"].(string)
	types, okT := verifyCtx["variable_types"].(map[string]VariableType)
	if !okP || !okC || !okT {
		return Output{Result: ResultNotApplicable, Explanation: "implication extraction from natural language not supported without structured context"}
	}
	return v.solver.VerifyImplication(premises, conclusion, types)
}

var comparisonPair = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(>=|<=|==|!=|>|<)\s*(\d+(?:\.\d+)?)`)

func (v *HybridVerifier) verifyComparisonClaim(claim ClassifiedClaim) Output {
	m := comparisonPair.FindStringSubmatch(claim.ClaimText)
	if m == nil {
		return Output{Result: ResultNotApplicable, Explanation: "could not extract comparison from claim"}
	}
	a, _ := strconv.ParseFloat(m[1], 64)
	op := m[2]
	b, _ := strconv.ParseFloat(m[3], 64)

	ok := compareFloats(op, a, b)
	if ok {
		return Output{Result: ResultVerified, Explanation: fmt.Sprintf("comparison verified: %v %s %v is true", a, op, b), ClaimText: claim.ClaimText}
	}
	return Output{Result: ResultRefuted, Explanation: fmt.Sprintf("comparison false: %v %s %v is false", a, op, b), ClaimText: claim.ClaimText}
}

func (v *HybridVerifier) verifyEqualityClaim(verifyCtx map[string]any) Output {
	expr1, ok1 := verifyCtx["expr1"].(string)
	expr2, ok2 := verifyCtx["expr2"].(string)
	types, okT := verifyCtx["variable_types"].(map[string]VariableType)
	if !ok1 || !ok2 || !okT {
		return Output{Result: ResultNotApplicable, Explanation: "equality verification requires structured expressions"}
	}
	return v.solver.VerifyEquality(expr1, expr2, types)
}

func compareFloats(op string, a, b float64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	case ">=":
		return a >= b
	}
	return false
}

func (v *HybridVerifier) llmVerify(ctx context.Context, claim ClassifiedClaim, verifyCtx map[string]any) (Output, error) {
	if v.judge == nil {
		return Output{Result: ResultUnknown, Explanation: "no LLM judge configured", Method: "llm"}, nil
	}
	out, err := v.judge.Judge(ctx, claim.ClaimText, verifyCtx)
	if err != nil {
		return Output{}, fmt.Errorf("verify: llm judge: %w", err)
	}
	out.Method = "llm"
	return out, nil
}
