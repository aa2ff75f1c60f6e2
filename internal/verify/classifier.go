// Package verify implements the symbolic/LLM hybrid claim verifier:
// a claim classifier, a safe arithmetic/constraint expression parser,
// an enumerative decision procedure standing in for an SMT solver, and
// a hybrid verifier that falls back to an LLM judge for claims outside
// the symbolic fragment.
package verify

import (
	"regexp"
	"strconv"
	"strings"
)

// ClaimType is the 8-way classification a claim's text is routed into.
type ClaimType string

const (
	ClaimArithmetic  ClaimType = "arithmetic"
	ClaimConstraint  ClaimType = "constraint"
	ClaimImplication ClaimType = "implication"
	ClaimComparison  ClaimType = "comparison"
	ClaimEquality    ClaimType = "equality"
	ClaimBoolean     ClaimType = "boolean"
	ClaimTextual     ClaimType = "textual"
	ClaimUnknown     ClaimType = "unknown"
)

// symbolicApplicable is the set of claim types the symbolic verifier can
// attempt before falling back to the LLM judge.
var symbolicApplicable = map[ClaimType]bool{
	ClaimArithmetic:  true,
	ClaimConstraint:  true,
	ClaimImplication: true,
	ClaimComparison:  true,
	ClaimEquality:    true,
}

// ImplicationParts is the premise/conclusion split of an implication claim.
type ImplicationParts struct {
	Premise    string
	Conclusion string
	Splitter   string
	Whole      string // set instead of Premise/Conclusion if no splitter matched
}

// ClassifiedClaim is a claim together with its routing classification.
type ClassifiedClaim struct {
	ClaimText           string
	ClaimType           ClaimType
	Confidence          float64
	Numbers             []float64
	Variables           []string
	VariableTypes       map[string]VariableType
	Implication         *ImplicationParts
	SymbolicApplicable  bool
	ClassificationNotes string
}

// VariableType is the inferred Z3-style type for a classified variable.
type VariableType string

const (
	VarInt  VariableType = "int"
	VarReal VariableType = "real"
	VarBool VariableType = "bool"
)

type patternRule struct {
	pattern *regexp.Regexp
	label   string
}

var arithmeticPatterns = []patternRule{
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([+\-*/])\s*(\d+(?:\.\d+)?)\s*=\s*(\d+(?:\.\d+)?)`), "simple arithmetic equation"},
	{regexp.MustCompile(`(?i)(?:sum|total|difference|product|quotient|result)\s+(?:is|equals|=)\s*(\d+(?:\.\d+)?)`), "named arithmetic result"},
	{regexp.MustCompile(`(\w+)\s*([+\-*/])\s*(\w+)\s*=\s*(\d+(?:\.\d+)?)`), "variable arithmetic equation"},
	{regexp.MustCompile(`(?i)(?:calculated?|computed?|equals?|is)\s+(\d+(?:,\d{3})*(?:\.\d+)?)`), "calculated result"},
}

var constraintPatterns = []patternRule{
	{regexp.MustCompile(`(?i)(?:must\s+be|should\s+be|is)\s+(?:greater|less|at\s+least|at\s+most)`), "constraint requirement"},
	{regexp.MustCompile(`(?i)\b(?:satisf(?:y|ies|iable)|feasible|possible|valid)\b`), "satisfiability claim"},
	{regexp.MustCompile(`(?i)(?:between|within|range|limit)`), "range constraint"},
	{regexp.MustCompile(`(?i)(?:and|or|not)\s+(?:greater|less|equal)`), "compound constraint"},
}

var implicationPatterns = []patternRule{
	{regexp.MustCompile(`(?i)\b(?:if|when|given|assuming)\b.*\b(?:then|therefore|implies|means)\b`), "if-then implication"},
	{regexp.MustCompile(`(?i)\b(?:because|since|as)\b.*\b(?:therefore|thus|so|hence)\b`), "causal implication"},
	{regexp.MustCompile(`(?i)\b(?:implies|entails|leads\s+to|results\s+in)\b`), "explicit implication"},
	{regexp.MustCompile(`(?i)(?:follows\s+from|derived\s+from|consequence\s+of)`), "derived conclusion"},
}

var comparisonPatterns = []patternRule{
	{regexp.MustCompile(`(\w+)\s*(>=|<=|==|!=|>|<)\s*(\w+)`), "direct comparison"},
	{regexp.MustCompile(`(?i)\b(?:greater|larger|bigger|more)\s+than\b`), "greater than"},
	{regexp.MustCompile(`(?i)\b(?:less|smaller|fewer)\s+than\b`), "less than"},
	{regexp.MustCompile(`(?i)\b(?:equal|same|identical)\s+(?:to|as)\b`), "equality comparison"},
}

var equalityPatterns = []patternRule{
	{regexp.MustCompile(`(\w+)\s*(?:=|==|equals?)\s*(\w+|\d+(?:\.\d+)?)`), "equality assertion"},
	{regexp.MustCompile(`(?i)\b(?:is|are|was|were)\s+(?:equal\s+to|the\s+same\s+as)\b`), "equality claim"},
}

var (
	numberPattern   = regexp.MustCompile(`-?\d+(?:,\d{3})*(?:\.\d+)?`)
	variablePattern = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\b`)
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "must": true, "shall": true,
	"if": true, "then": true, "else": true, "when": true, "where": true, "which": true,
	"that": true, "this": true, "and": true, "or": true, "not": true,
	"true": true, "false": true, "null": true, "none": true,
	"greater": true, "less": true, "equal": true, "than": true, "to": true, "from": true,
	"between": true, "sum": true, "total": true, "difference": true, "product": true,
	"result": true, "value": true, "calculated": true, "computed": true, "equals": true,
	"implies": true, "therefore": true,
}

var implicationSplitters = []struct {
	pattern *regexp.Regexp
	name    string
}{
	{regexp.MustCompile(`(?i)\bthen\b`), "if-then"},
	{regexp.MustCompile(`(?i)\btherefore\b`), "therefore"},
	{regexp.MustCompile(`(?i)\bimplies\b`), "implies"},
	{regexp.MustCompile(`(?i)\bso\b`), "so"},
	{regexp.MustCompile(`(?i)\bhence\b`), "hence"},
}

var implicationPrefix = regexp.MustCompile(`(?i)^(?:if|when|given|assuming)\s+`)

// ClassifyClaim classifies claim text into one of the 8 claim types,
// extracting numbers/variables and, for implications, splitting
// premise/conclusion.
func ClassifyClaim(claim string) ClassifiedClaim {
	claim = strings.TrimSpace(claim)

	if conf, note, ok := matchArithmetic(claim); ok {
		return buildClassified(claim, ClaimArithmetic, conf, note, nil)
	}
	if conf, note, ok := matchAny(claim, implicationPatterns); ok {
		parts := splitImplication(claim)
		return buildClassified(claim, ClaimImplication, conf, note, parts)
	}
	if conf, note, ok := matchAny(claim, constraintPatterns); ok {
		return buildClassified(claim, ClaimConstraint, conf, note, nil)
	}
	if conf, note, ok := matchAny(claim, comparisonPatterns); ok {
		return buildClassified(claim, ClaimComparison, conf, note, nil)
	}
	if conf, note, ok := matchAny(claim, equalityPatterns); ok {
		return buildClassified(claim, ClaimEquality, conf, note, nil)
	}

	return ClassifiedClaim{
		ClaimText:           claim,
		ClaimType:           ClaimTextual,
		Confidence:          0.5,
		SymbolicApplicable:  false,
		ClassificationNotes: "no patterns matched - treating as textual claim",
	}
}

func matchArithmetic(claim string) (float64, string, bool) {
	for _, r := range arithmeticPatterns {
		if r.pattern.MatchString(claim) {
			numbers := extractNumbers(claim)
			conf := 0.7
			if len(numbers) >= 2 {
				conf = 0.9
			}
			return conf, "matched arithmetic pattern: " + r.label, true
		}
	}
	return 0, "", false
}

func matchAny(claim string, rules []patternRule) (float64, string, bool) {
	for _, r := range rules {
		if r.pattern.MatchString(claim) {
			return 0.8, "matched pattern: " + r.label, true
		}
	}
	return 0, "", false
}

func buildClassified(claim string, kind ClaimType, confidence float64, note string, impl *ImplicationParts) ClassifiedClaim {
	numbers := extractNumbers(claim)
	variables := extractVariables(claim)
	types := inferVariableTypes(variables)

	return ClassifiedClaim{
		ClaimText:           claim,
		ClaimType:           kind,
		Confidence:          confidence,
		Numbers:             numbers,
		Variables:           variables,
		VariableTypes:       types,
		Implication:         impl,
		SymbolicApplicable:  symbolicApplicable[kind],
		ClassificationNotes: note,
	}
}

func extractNumbers(text string) []float64 {
	matches := numberPattern.FindAllString(text, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		clean := strings.ReplaceAll(m, ",", "")
		if n, err := strconv.ParseFloat(clean, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func extractVariables(text string) []string {
	matches := variablePattern.FindAllString(text, -1)
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		if stopwords[strings.ToLower(m)] || len(m) <= 1 {
			continue
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func inferVariableTypes(variables []string) map[string]VariableType {
	types := make(map[string]VariableType, len(variables))
	for _, v := range variables {
		lower := strings.ToLower(v)
		switch {
		case lower == "count" || lower == "num" || lower == "index" ||
			lower == "i" || lower == "j" || lower == "k" || lower == "n":
			types[v] = VarInt
		case strings.HasPrefix(lower, "is_") || strings.HasPrefix(lower, "has_") ||
			lower == "flag" || lower == "should" || lower == "can":
			types[v] = VarBool
		default:
			types[v] = VarReal
		}
	}
	return types
}

func splitImplication(claim string) *ImplicationParts {
	for _, s := range implicationSplitters {
		loc := s.pattern.FindStringIndex(claim)
		if loc == nil {
			continue
		}
		premise := strings.TrimSpace(claim[:loc[0]])
		conclusion := strings.TrimSpace(claim[loc[1]:])
		premise = implicationPrefix.ReplaceAllString(premise, "")
		return &ImplicationParts{Premise: premise, Conclusion: conclusion, Splitter: s.name}
	}
	return &ImplicationParts{Whole: claim}
}

var sentenceSplitPattern = regexp.MustCompile(`[.!?]\s+`)

// ExtractClaims splits a block of text into sentence-like claim
// candidates, filtering questions and sentences with no claim-like
// vocabulary (content-level entry point for HybridVerifier).
func ExtractClaims(text string) []string {
	sentences := sentenceSplitPattern.Split(text, -1)

	var claims []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if len(s) < 10 || strings.HasSuffix(s, "?") {
			continue
		}
		lower := strings.ToLower(s)
		for _, kw := range []string{
			"equals", "is", "are", "was", "were", "=",
			"greater", "less", "more", "fewer",
			"implies", "therefore", "must", "should",
			"calculated", "computed", "result",
		} {
			if strings.Contains(lower, kw) {
				claims = append(claims, s)
				break
			}
		}
	}
	return claims
}
