package spec

import "strings"

// BehaviorRuleKind discriminates a behavior rule's DSL form.
type BehaviorRuleKind int

const (
	BehaviorPrefer BehaviorRuleKind = iota
	BehaviorNever
	BehaviorAlways
	BehaviorWhen
)

// BehaviorRule is one entry of a spec's BEHAVIOR block:
// `PREFER a OVER b`, `NEVER x`, `ALWAYS x`, `WHEN cond: x`.
type BehaviorRule struct {
	Kind BehaviorRuleKind
	A    string // PREFER's preferred option; WHEN's condition text
	B    string // PREFER's disfavored option; NEVER/ALWAYS/WHEN's action text
}

// GenerateBehaviorPrompt emits a natural-language bulleted "Behavioral
// Guidelines" block from rules.
func GenerateBehaviorPrompt(rules []BehaviorRule) string {
	if len(rules) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Behavioral Guidelines:\n")
	for _, r := range rules {
		b.WriteString("- ")
		switch r.Kind {
		case BehaviorPrefer:
			b.WriteString("Prefer ")
			b.WriteString(r.A)
			b.WriteString(" over ")
			b.WriteString(r.B)
		case BehaviorNever:
			b.WriteString("Never ")
			b.WriteString(r.B)
		case BehaviorAlways:
			b.WriteString("Always ")
			b.WriteString(r.B)
		case BehaviorWhen:
			b.WriteString("When ")
			b.WriteString(r.A)
			b.WriteString(", ")
			b.WriteString(r.B)
		}
		b.WriteString(".\n")
	}
	return b.String()
}
