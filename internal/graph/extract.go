package graph

import (
	"regexp"
	"strings"
)

// EntityExtractor produces entities mentioned in text. Implementations
// must be idempotent and side-effect free.
type EntityExtractor interface {
	ExtractEntities(text string) []Entity
}

// TopicExtractor produces topic tags for text.
type TopicExtractor interface {
	ExtractTopics(text string) []string
}

// RegexExtractor is the default pluggable extractor: applies a fixed set
// of regex patterns to recognize common code/doc entity shapes, and
// lower-cased significant words as topics.
type RegexExtractor struct{}

var (
	filePattern     = regexp.MustCompile(`\b[\w\-/]+\.(go|py|js|ts|java|rs|rb|md|json|yaml|yml|toml)\b`)
	functionPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	classPattern    = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]*(?:[A-Z][a-z0-9]*)+)\b`)
	moduleDotted    = regexp.MustCompile(`\b([a-z][a-z0-9_]*(?:\.[a-z][a-z0-9_]*){1,})\b`)
)

// ExtractEntities applies regex patterns for files, functions, classes
// (CamelCase identifiers), and dotted module paths.
func (RegexExtractor) ExtractEntities(text string) []Entity {
	seen := make(map[EntityKey]bool)
	var out []Entity

	add := func(name string, t EntityType) {
		key := EntityKey{Name: name, Type: t}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Entity{Name: name, Type: t})
	}

	for _, m := range filePattern.FindAllString(text, -1) {
		add(m, EntityFile)
	}
	for _, m := range functionPattern.FindAllStringSubmatch(text, -1) {
		add(m[1], EntityFunction)
	}
	for _, m := range classPattern.FindAllString(text, -1) {
		add(m, EntityClass)
	}
	for _, m := range moduleDotted.FindAllString(text, -1) {
		add(m, EntityModule)
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "for": true, "is": true, "on": true, "with": true,
	"that": true, "this": true, "it": true, "as": true, "by": true, "be": true,
	"are": true, "was": true, "were": true, "at": true, "from": true,
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]{2,}`)

// ExtractTopics lower-cases significant (non-stopword, length>=3) words as
// topic tags, deduplicated.
func (RegexExtractor) ExtractTopics(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range wordPattern.FindAllString(text, -1) {
		lw := strings.ToLower(w)
		if stopWords[lw] || seen[lw] {
			continue
		}
		seen[lw] = true
		out = append(out, lw)
	}
	return out
}
