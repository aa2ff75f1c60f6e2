package spec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const researchAgentDSL = `AGENT ResearchAgent:
    TIER: sonnet
    TOOLS: [WebSearch, Read, Write]
    OUTPUT MUST SATISFY:
        confidence IN RANGE [0.0, 1.0]
        sources IS NOT_EMPTY
        forall s in sources: s.url IS VALID_URL
    BEHAVIOR:
        PREFER primary sources OVER secondary sources
        NEVER make claims without citations
    LIMITS:
        max_tool_calls: 50
        timeout_seconds: 300
`

func TestParser_ParsesDSLSurfaceExample(t *testing.T) {
	got, err := NewParser().Parse(researchAgentDSL)
	require.NoError(t, err)

	assert.Equal(t, "ResearchAgent", got.Name)
	assert.Equal(t, "sonnet", got.Tier)
	assert.Equal(t, []string{"WebSearch", "Read", "Write"}, got.Tools)
	require.Len(t, got.Constraints, 3)
	require.Len(t, got.Behaviors, 2)
	assert.Equal(t, 50, got.Limits["max_tool_calls"])
	assert.Equal(t, 300, got.Limits["timeout_seconds"])
}

func TestParser_RejectsMissingHeader(t *testing.T) {
	_, err := NewParser().Parse("TIER: sonnet\n")
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseConstraint_Comparison(t *testing.T) {
	c, err := ParseConstraint("score > 0.5")
	require.NoError(t, err)

	r := c.Validate(map[string]any{"score": 0.9}, nil, time.Now().UTC())
	assert.True(t, r.Valid)

	r2 := c.Validate(map[string]any{"score": 0.1}, nil, time.Now().UTC())
	assert.False(t, r2.Valid)
}

func TestParseConstraint_RangeInclusive(t *testing.T) {
	c, err := ParseConstraint("confidence IN RANGE [0.0, 1.0]")
	require.NoError(t, err)

	assert.True(t, c.Validate(map[string]any{"confidence": 1.0}, nil, time.Now().UTC()).Valid)
	assert.True(t, c.Validate(map[string]any{"confidence": 0.0}, nil, time.Now().UTC()).Valid)
	assert.False(t, c.Validate(map[string]any{"confidence": 1.5}, nil, time.Now().UTC()).Valid)
}

func TestParseConstraint_NotEmpty(t *testing.T) {
	c, err := ParseConstraint("sources IS NOT_EMPTY")
	require.NoError(t, err)

	assert.True(t, c.Validate(map[string]any{"sources": []any{"a"}}, nil, time.Now().UTC()).Valid)
	assert.False(t, c.Validate(map[string]any{"sources": []any{}}, nil, time.Now().UTC()).Valid)
}

func TestParseConstraint_ForallValidURL(t *testing.T) {
	c, err := ParseConstraint("forall s in sources: s.url IS VALID_URL")
	require.NoError(t, err)

	good := map[string]any{"sources": []any{
		map[string]any{"url": "https://example.com"},
		map[string]any{"url": "https://example.org/path"},
	}}
	assert.True(t, c.Validate(good, nil, time.Now().UTC()).Valid)

	bad := map[string]any{"sources": []any{
		map[string]any{"url": "not-a-url"},
	}}
	assert.False(t, c.Validate(bad, nil, time.Now().UTC()).Valid)
}

func TestParseConstraint_ExistsQuantifier(t *testing.T) {
	c, err := ParseConstraint("exists t in tags: t == \"urgent\"")
	require.NoError(t, err)

	assert.True(t, c.Validate(map[string]any{"tags": []any{"low", "urgent"}}, nil, time.Now().UTC()).Valid)
	assert.False(t, c.Validate(map[string]any{"tags": []any{"low", "medium"}}, nil, time.Now().UTC()).Valid)
}

func TestParseConstraint_InList(t *testing.T) {
	c, err := ParseConstraint(`status IN ["open", "closed"]`)
	require.NoError(t, err)

	assert.True(t, c.Validate(map[string]any{"status": "open"}, nil, time.Now().UTC()).Valid)
	assert.False(t, c.Validate(map[string]any{"status": "pending"}, nil, time.Now().UTC()).Valid)
}

func TestParseConstraint_AndOrNot(t *testing.T) {
	c, err := ParseConstraint("score > 0.5 AND score < 0.9")
	require.NoError(t, err)
	assert.True(t, c.Validate(map[string]any{"score": 0.7}, nil, time.Now().UTC()).Valid)
	assert.False(t, c.Validate(map[string]any{"score": 0.95}, nil, time.Now().UTC()).Valid)

	orC, err := ParseConstraint("status == \"open\" OR status == \"closed\"")
	require.NoError(t, err)
	assert.True(t, orC.Validate(map[string]any{"status": "closed"}, nil, time.Now().UTC()).Valid)

	notC, err := ParseConstraint("NOT status == \"closed\"")
	require.NoError(t, err)
	assert.True(t, notC.Validate(map[string]any{"status": "open"}, nil, time.Now().UTC()).Valid)
}

func TestParseConstraint_ComparisonAgainstNull(t *testing.T) {
	c, err := ParseConstraint("deleted_at == NULL")
	require.NoError(t, err)
	assert.True(t, c.Validate(map[string]any{"deleted_at": nil}, nil, time.Now().UTC()).Valid)
	assert.False(t, c.Validate(map[string]any{"deleted_at": "2026-01-01"}, nil, time.Now().UTC()).Valid)
}

func TestParseConstraint_TodayRelative(t *testing.T) {
	c, err := ParseConstraint("expires_at >= TODAY - 1 DAYS")
	require.NoError(t, err)

	now := time.Now().UTC()
	valid := map[string]any{"expires_at": now.Format("2006-01-02")}
	assert.True(t, c.Validate(valid, nil, now).Valid)
}

func TestParseConstraint_MissingPathFails(t *testing.T) {
	c, err := ParseConstraint("confidence IN RANGE [0.0, 1.0]")
	require.NoError(t, err)
	r := c.Validate(map[string]any{}, nil, time.Now().UTC())
	assert.False(t, r.Valid)
}

func TestParseConstraint_ValidEmail(t *testing.T) {
	c, err := ParseConstraint("contact IS VALID_EMAIL")
	require.NoError(t, err)
	assert.True(t, c.Validate(map[string]any{"contact": "a@example.com"}, nil, time.Now().UTC()).Valid)
	assert.False(t, c.Validate(map[string]any{"contact": "not-an-email"}, nil, time.Now().UTC()).Valid)
}

func TestParseConstraint_VerifiedRequiresTwoSources(t *testing.T) {
	c, err := ParseConstraint("verification_status == \"verified\"")
	require.NoError(t, err)

	twoSources := map[string]any{
		"verification_status": "verified",
		"sources":             []any{"a", "b"},
	}
	assert.True(t, c.Validate(twoSources, nil, time.Now().UTC()).Valid)

	oneSource := map[string]any{
		"verification_status": "verified",
		"sources":             []any{"a"},
	}
	assert.False(t, c.Validate(oneSource, nil, time.Now().UTC()).Valid)

	noSources := map[string]any{"verification_status": "verified"}
	assert.False(t, c.Validate(noSources, nil, time.Now().UTC()).Valid)
}

func TestParseConstraint_SingleSourceStatusUnaffectedBySourcesCheck(t *testing.T) {
	c, err := ParseConstraint("verification_status == \"single_source\"")
	require.NoError(t, err)

	assert.True(t, c.Validate(map[string]any{
		"verification_status": "single_source",
		"sources":             []any{"a"},
	}, nil, time.Now().UTC()).Valid)
}
