package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ComplianceReport aggregates audit chain activity over a time period for
// regulatory or internal review.
type ComplianceReport struct {
	GeneratedAt        time.Time         `yaml:"generated_at"`
	PeriodStart        time.Time         `yaml:"period_start"`
	PeriodEnd          time.Time         `yaml:"period_end"`
	TotalDecisions     int               `yaml:"total_decisions"`
	ByType             map[string]int    `yaml:"by_type"`
	ByAgent            map[string]int    `yaml:"by_agent"`
	VerificationCounts map[string]int    `yaml:"verification_counts"`
	Integrity          *IntegrityReport  `yaml:"integrity,omitempty"`
	SampleEntries      []Entry           `yaml:"sample_entries,omitempty"`
	ExecutiveSummary   string            `yaml:"executive_summary"`
}

// ComplianceReportGenerator builds ComplianceReports from an audit Store.
type ComplianceReportGenerator struct {
	store           Store
	organizationName string
	systemName      string
}

// NewComplianceReportGenerator builds a generator over store. organization
// and system name only decorate the executive summary; either may be empty.
func NewComplianceReportGenerator(store Store, organizationName, systemName string) *ComplianceReportGenerator {
	if systemName == "" {
		systemName = "noema"
	}
	return &ComplianceReportGenerator{store: store, organizationName: organizationName, systemName: systemName}
}

// Generate aggregates entries in [start, end] into a ComplianceReport.
// verifyIntegrity walks the full chain (expensive on large stores);
// sampleCount bounds how many entries are embedded verbatim in the report.
func (g *ComplianceReportGenerator) Generate(ctx context.Context, start, end time.Time, sampleCount int, verifyIntegrity bool) (ComplianceReport, error) {
	entries, err := g.store.ByDateRange(ctx, DateRange{From: &start, To: &end})
	if err != nil {
		return ComplianceReport{}, fmt.Errorf("audit: compliance report: list entries: %w", err)
	}

	byType := make(map[string]int)
	byAgent := make(map[string]int)
	verification := map[string]int{
		string(VerificationPending):  0,
		string(VerificationVerified): 0,
		string(VerificationFailed):   0,
		string(VerificationSkipped):  0,
	}
	for _, e := range entries {
		byType[e.DecisionType]++
		if e.AgentID != "" {
			byAgent[e.AgentID]++
		}
		verification[string(e.VerificationStatus)]++
	}

	var integrity *IntegrityReport
	if verifyIntegrity {
		r, err := g.store.VerifyIntegrity(ctx)
		if err != nil {
			return ComplianceReport{}, fmt.Errorf("audit: compliance report: verify integrity: %w", err)
		}
		integrity = &r
	}

	var samples []Entry
	if sampleCount > 0 && len(entries) > 0 {
		n := sampleCount
		if n > len(entries) {
			n = len(entries)
		}
		samples = entries[:n]
	}

	report := ComplianceReport{
		GeneratedAt:        time.Now().UTC(),
		PeriodStart:        start,
		PeriodEnd:          end,
		TotalDecisions:     len(entries),
		ByType:             byType,
		ByAgent:            byAgent,
		VerificationCounts: verification,
		Integrity:          integrity,
		SampleEntries:      samples,
	}
	report.ExecutiveSummary = g.summarize(report)
	return report, nil
}

func (g *ComplianceReportGenerator) summarize(r ComplianceReport) string {
	status := "not checked"
	if r.Integrity != nil {
		if r.Integrity.OK() {
			status = "intact"
		} else {
			status = fmt.Sprintf("%d issue(s) found", len(r.Integrity.Issues))
		}
	}
	name := g.systemName
	if g.organizationName != "" {
		name = fmt.Sprintf("%s (%s)", g.systemName, g.organizationName)
	}
	return fmt.Sprintf("%s recorded %d decision(s) between %s and %s. Chain integrity: %s.",
		name, r.TotalDecisions, r.PeriodStart.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02"), status)
}

// ToYAML renders the report as YAML, the pack's preferred structured
// export format for human-editable fixtures and reports.
func (r ComplianceReport) ToYAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// ToMarkdown renders the report as a human-readable Markdown document.
func (r ComplianceReport) ToMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Compliance Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Period:** %s to %s\n\n", r.PeriodStart.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02"))
	fmt.Fprintf(&b, "## Executive Summary\n\n%s\n\n", r.ExecutiveSummary)

	fmt.Fprintf(&b, "## Statistics\n\n")
	fmt.Fprintf(&b, "**Total Decisions:** %d\n\n", r.TotalDecisions)

	fmt.Fprintf(&b, "### Decisions by Type\n\n")
	for _, k := range sortedByCountDesc(r.ByType) {
		fmt.Fprintf(&b, "- %s: %d\n", k, r.ByType[k])
	}

	fmt.Fprintf(&b, "\n### Decisions by Agent\n\n")
	for _, k := range sortedByCountDesc(r.ByAgent) {
		fmt.Fprintf(&b, "- %s: %d\n", k, r.ByAgent[k])
	}

	fmt.Fprintf(&b, "\n### Verification Status\n\n")
	for _, k := range []string{string(VerificationPending), string(VerificationVerified), string(VerificationFailed), string(VerificationSkipped)} {
		fmt.Fprintf(&b, "- %s: %d\n", k, r.VerificationCounts[k])
	}

	fmt.Fprintf(&b, "\n## Integrity Verification\n\n")
	if r.Integrity == nil {
		fmt.Fprintf(&b, "_Integrity check not performed_\n")
	} else if r.Integrity.OK() {
		fmt.Fprintf(&b, "**Status:** PASSED\n")
	} else {
		fmt.Fprintf(&b, "**Status:** FAILED\n\n### Issues Found\n\n")
		for i, issue := range r.Integrity.Issues {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&b, "- %s: %s (index %d)\n", issue.EntryID, issue.Kind, issue.Index)
		}
	}

	if len(r.SampleEntries) > 0 {
		fmt.Fprintf(&b, "\n## Sample Entries\n\n")
		for i, e := range r.SampleEntries {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "### %s\n", e.EntryID)
			fmt.Fprintf(&b, "- Type: %s\n", e.DecisionType)
			fmt.Fprintf(&b, "- Agent: %s\n", e.AgentID)
			fmt.Fprintf(&b, "- Time: %s\n", e.Timestamp.Format(time.RFC3339))
			fmt.Fprintf(&b, "- Action: %s\n\n", e.SelectedAction)
		}
	}

	return b.String()
}

func sortedByCountDesc(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
