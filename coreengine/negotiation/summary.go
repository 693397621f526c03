package negotiation

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// NotStartedSummary is returned by ExecutiveSummary before the first round.
const NotStartedSummary = "Simulation not started."

// policyBudgetCeiling is the internal Policy 4.2 spending threshold.
const policyBudgetCeiling = 100000

type reportInput struct {
	scenario   *scenario.Scenario
	proposal   scenario.ProposalVector
	confidence int
	rounds     int
	rankings   []VendorRanking
}

type summaryBuilder func(in reportInput) string

var summaryBuilders = map[scenario.ModuleKind]summaryBuilder{
	scenario.ModuleGeneral:          generalSummary,
	scenario.ModuleVendorEval:       vendorSummary,
	scenario.ModulePolicyCompliance: complianceSummary,
	scenario.ModuleProjectPlanning:  projectPlanSummary,
	scenario.ModuleRoadmapPRD:       prdSummary,
}

func buildSummary(in reportInput) string {
	if in.rounds == 0 {
		return NotStartedSummary
	}
	builder, ok := summaryBuilders[in.scenario.Module]
	if !ok || (in.scenario.Module == scenario.ModuleVendorEval && len(in.rankings) == 0) {
		builder = generalSummary
	}
	return builder(in)
}

var printer = message.NewPrinter(language.English)

// grouped formats v rounded to an integer with English digit grouping.
func grouped(v float64) string {
	return printer.Sprintf("%d", int64(math.Round(v)))
}

func rounded(v float64) int64 {
	return int64(math.Round(v))
}

// =============================================================================
// BUILDERS
// =============================================================================

func generalSummary(in reportInput) string {
	p, c := in.proposal, in.scenario.Constraints
	var b strings.Builder
	b.WriteString("## Executive Decision Summary\n")
	b.WriteString("**Recommendation:** Proceed with the optimized proposal.\n")
	fmt.Fprintf(&b, "**Confidence Score:** %d/100\n\n", in.confidence)
	b.WriteString("### Key Metrics\n")
	fmt.Fprintf(&b, "- **Final Budget:** $%s (Cap: $%s)\n", grouped(p.Budget), grouped(c.Budget))
	fmt.Fprintf(&b, "- **Timeline:** %d Days\n", rounded(p.Timeline))
	fmt.Fprintf(&b, "- **Projected Quality:** %d/100\n", rounded(p.Quality))
	fmt.Fprintf(&b, "- **Risk Profile:** %d/100\n", rounded(p.Risk))
	return b.String()
}

func vendorSummary(in reportInput) string {
	leader := in.rankings[0]
	m, c := leader.Metrics, in.scenario.Constraints

	pick := func(ok bool, yes, no string) string {
		if ok {
			return yes
		}
		return no
	}

	var b strings.Builder
	b.WriteString("# Vendor Selection Report\n\n")
	fmt.Fprintf(&b, "## Primary Recommendation: %s\n", leader.VendorName)
	fmt.Fprintf(&b, "**Consensus Match:** %d%%\n", in.confidence)
	b.WriteString("**Decision Status:** SELECTED\n\n")

	b.WriteString("### Final Selection Metrics\n")
	b.WriteString("| Parameter | Value | Status |\n| :--- | :--- | :--- |\n")
	fmt.Fprintf(&b, "| Commercial | $%s | %s |\n", grouped(m.Budget), pick(c.Satisfies(scenario.MetricBudget, m.Budget), "Within Cap", "Exceeds Cap"))
	fmt.Fprintf(&b, "| Delivery | %d Days | %s |\n", rounded(m.Timeline), pick(c.Satisfies(scenario.MetricTimeline, m.Timeline), "On Time", "Delayed"))
	fmt.Fprintf(&b, "| Quality | %d/100 | %s |\n", rounded(m.Quality), pick(c.Satisfies(scenario.MetricQuality, m.Quality), "Superior", "Standard"))
	fmt.Fprintf(&b, "| Risk | %d%% | %s |\n\n", rounded(m.Risk), pick(c.Satisfies(scenario.MetricRisk, m.Risk), "Safe", "Exposure Detected"))

	b.WriteString("## Strategic Rationale\n")
	fmt.Fprintf(&b, "After %d rounds of agent negotiation, %s emerged as the high-consensus candidate.\n", in.rounds, leader.VendorName)
	fmt.Fprintf(&b, "The group prioritized the %s weighting to finalize this decision.\n\n", in.scenario.Priorities.Highest())

	b.WriteString("### Comparative Ranking\n")
	b.WriteString("| Rank | Vendor | Match Score | Risk profile |\n| :--- | :--- | :--- | :--- |\n")
	fmt.Fprintf(&b, "| **#1** | **%s** | **%d%%** | **%s** |\n", leader.VendorName, in.confidence, pick(m.Risk < 15, "Stable", "Conditional"))
	for i, alt := range in.rankings[1:] {
		match := in.confidence - (i+1)*15
		if match < 10 {
			match = 10
		}
		fmt.Fprintf(&b, "| #%d | %s | %d%% | %s |\n", alt.Rank, alt.VendorName, match, pick(alt.Metrics.Risk > 20, "High", "Medium"))
	}

	b.WriteString("\n## Evidence Matrix\n")
	if len(leader.Facts) == 0 {
		b.WriteString("No extracted clauses were available for the selected vendor.\n")
	} else {
		b.WriteString("The following extracted clauses from vendor documents served as grounding for this decision:\n\n")
		for _, f := range leader.Facts {
			fmt.Fprintf(&b, "- **%s**: \"%s\"\n", strings.ToUpper(string(f.Field)), f.Quote)
		}
	}

	b.WriteString("\n## Final Decision\n")
	fmt.Fprintf(&b, "**%s** is authorized for procurement based on the above technical and commercial audit.\n", leader.VendorName)
	return b.String()
}

func complianceSummary(in reportInput) string {
	p := in.proposal
	status := "PROVISIONAL"
	if p.Risk < 15 {
		status = "COMPLIANT"
	}
	policy := "PASS"
	if p.Budget > policyBudgetCeiling {
		policy = "VIOLATION"
	}

	var b strings.Builder
	b.WriteString("# Policy & Compliance Audit\n")
	fmt.Fprintf(&b, "## Status: %s\n\n", status)
	b.WriteString("### Violation Check\n")
	b.WriteString("- **Regulatory Alignment:** PASS\n")
	fmt.Fprintf(&b, "- **Internal Policy 4.2:** %s\n", policy)
	b.WriteString("- **Data Privacy:** PASS\n\n")
	b.WriteString("## Evidence\n")
	fmt.Fprintf(&b, "Based on %d policy documents analyzed.\n", len(in.scenario.Documents))
	return b.String()
}

func projectPlanSummary(in reportInput) string {
	p := in.proposal
	var b strings.Builder
	b.WriteString("# Strategic Delivery Plan\n")
	fmt.Fprintf(&b, "## Timeline Overview: %d Days\n", rounded(p.Timeline))
	fmt.Fprintf(&b, "## Budget Cap: $%s\n\n", grouped(p.Budget))
	b.WriteString("### Deliverables\n")
	fmt.Fprintf(&b, "1. Initiation (%dd)\n", rounded(p.Timeline*0.2))
	fmt.Fprintf(&b, "2. Migration (%dd)\n", rounded(p.Timeline*0.5))
	fmt.Fprintf(&b, "3. Launch (%dd)\n", rounded(p.Timeline*0.3))
	return b.String()
}

func prdSummary(in reportInput) string {
	var b strings.Builder
	b.WriteString("# Product Requirements Document (PRD)\n")
	fmt.Fprintf(&b, "**Title:** %s\n", in.scenario.Title)
	b.WriteString("**Status:** APPROVED\n\n")
	b.WriteString("## Roadmap & Scope\n")
	b.WriteString("### In Scope (MVP)\n")
	b.WriteString("- AI Engine Integration\n")
	fmt.Fprintf(&b, "- Multi-region Support (Projected Quality: %d)\n\n", rounded(in.proposal.Quality))
	b.WriteString("### Success Metrics\n")
	fmt.Fprintf(&b, "- Delivery Confidence: %d%%\n", in.confidence)
	return b.String()
}
