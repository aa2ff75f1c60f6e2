package spec

import (
	"strconv"
	"strings"
)

// Parser builds an AgentSpecification from DSL source (grammar
// sketch, §6 surface). It is line-oriented: section headers dispatch to
// per-line parsers, each of which runs its own Lexer over the line text.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser { return &Parser{} }

// Parse compiles DSL source into an AgentSpecification, or a *ParseError
// describing the first malformed fragment encountered.
func (p *Parser) Parse(source string) (*AgentSpecification, error) {
	lines := splitNonEmptyLines(source)
	if len(lines) == 0 {
		return nil, &ParseError{Fragment: "", Reason: "empty specification"}
	}

	spec := &AgentSpecification{Limits: make(map[string]int)}

	header := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(header, "AGENT ") {
		return nil, &ParseError{Fragment: header, Reason: "expected AGENT <name>:"}
	}
	name := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(header, "AGENT ")), ":")
	if name == "" {
		return nil, &ParseError{Fragment: header, Reason: "missing agent name"}
	}
	spec.Name = name

	section := ""
	for _, raw := range lines[1:] {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "TIER:"):
			spec.Tier = strings.TrimSpace(strings.TrimPrefix(line, "TIER:"))
			section = ""
			continue
		case strings.HasPrefix(line, "TOOLS:"):
			tools, err := parseToolList(strings.TrimSpace(strings.TrimPrefix(line, "TOOLS:")))
			if err != nil {
				return nil, err
			}
			spec.Tools = tools
			section = ""
			continue
		case line == "OUTPUT MUST SATISFY:":
			section = "constraints"
			continue
		case line == "BEHAVIOR:":
			section = "behavior"
			continue
		case line == "LIMITS:":
			section = "limits"
			continue
		}

		switch section {
		case "constraints":
			c, err := ParseConstraint(line)
			if err != nil {
				return nil, err
			}
			spec.Constraints = append(spec.Constraints, c)
		case "behavior":
			b, err := parseBehaviorLine(line)
			if err != nil {
				return nil, err
			}
			spec.Behaviors = append(spec.Behaviors, b)
		case "limits":
			name, val, err := parseLimitLine(line)
			if err != nil {
				return nil, err
			}
			spec.Limits[name] = val
		default:
			return nil, &ParseError{Fragment: line, Reason: "unexpected line outside any section"}
		}
	}

	return spec, nil
}

func splitNonEmptyLines(source string) []string {
	var out []string
	for _, line := range strings.Split(source, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func parseToolList(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return nil, &ParseError{Fragment: text, Reason: "expected [id, id, ...]"}
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil, nil
	}
	var out []string
	for _, part := range strings.Split(inner, ",") {
		out = append(out, strings.TrimSpace(part))
	}
	return out, nil
}

func parseLimitLine(line string) (string, int, error) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", 0, &ParseError{Fragment: line, Reason: "expected <name>: <int>"}
	}
	name := strings.TrimSpace(line[:idx])
	valText := strings.TrimSpace(line[idx+1:])
	val, err := strconv.Atoi(valText)
	if err != nil {
		return "", 0, &ParseError{Fragment: line, Reason: "limit value must be an integer"}
	}
	return name, val, nil
}

func parseBehaviorLine(line string) (BehaviorRule, error) {
	switch {
	case strings.HasPrefix(line, "PREFER "):
		rest := strings.TrimPrefix(line, "PREFER ")
		idx := strings.Index(rest, " OVER ")
		if idx < 0 {
			return BehaviorRule{}, &ParseError{Fragment: line, Reason: "expected PREFER a OVER b"}
		}
		return BehaviorRule{Kind: BehaviorPrefer, A: strings.TrimSpace(rest[:idx]), B: strings.TrimSpace(rest[idx+len(" OVER "):])}, nil
	case strings.HasPrefix(line, "NEVER "):
		return BehaviorRule{Kind: BehaviorNever, B: strings.TrimSpace(strings.TrimPrefix(line, "NEVER "))}, nil
	case strings.HasPrefix(line, "ALWAYS "):
		return BehaviorRule{Kind: BehaviorAlways, B: strings.TrimSpace(strings.TrimPrefix(line, "ALWAYS "))}, nil
	case strings.HasPrefix(line, "WHEN "):
		rest := strings.TrimPrefix(line, "WHEN ")
		idx := strings.Index(rest, ":")
		if idx < 0 {
			return BehaviorRule{}, &ParseError{Fragment: line, Reason: "expected WHEN cond: action"}
		}
		return BehaviorRule{Kind: BehaviorWhen, A: strings.TrimSpace(rest[:idx]), B: strings.TrimSpace(rest[idx+1:])}, nil
	}
	return BehaviorRule{}, &ParseError{Fragment: line, Reason: "expected PREFER/NEVER/ALWAYS/WHEN"}
}
