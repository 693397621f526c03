package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/forecast"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
)

const summaryWidth = 100

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	convergedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	conflictStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	criticalStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func printRound(w io.Writer, r *negotiation.RoundResult) {
	status := conflictStyle.Render(fmt.Sprintf("%d conflicts", r.ConflictCount))
	if r.Converged {
		status = convergedStyle.Render("converged")
	}
	fmt.Fprintf(w, "Round %d: %s [%s]\n", r.Round, r.Summary, status)

	if len(r.FallbackAgents) > 0 {
		roles := make([]string, len(r.FallbackAgents))
		for i, role := range r.FallbackAgents {
			roles[i] = string(role)
		}
		fmt.Fprintln(w, mutedStyle.Render("  fallback: "+strings.Join(roles, ", ")))
	}
}

func printOutcome(w io.Writer, snap negotiation.Snapshot, raw bool) error {
	fmt.Fprintln(w)
	if snap.State == negotiation.StateConverged {
		fmt.Fprintln(w, convergedStyle.Render(fmt.Sprintf("Converged after %d rounds.", snap.Round)))
	} else {
		fmt.Fprintln(w, conflictStyle.Render(fmt.Sprintf("Stopped after %d rounds without convergence.", snap.Round)))
	}
	fmt.Fprintf(w, "Confidence: %d/100\n", snap.Confidence)

	if len(snap.Rankings) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tVENDOR\tSCORE\tCONFIDENCE")
		for _, r := range snap.Rankings {
			fmt.Fprintf(tw, "%d\t%s\t%.1f\t%d\n", r.Rank, r.VendorName, r.Score, r.Confidence)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	summary, err := renderMarkdown(snap.ExecutiveSummary, raw)
	if err != nil {
		return err
	}
	fmt.Fprint(w, summary)
	return nil
}

func printForecast(w io.Writer, title string, f forecast.Forecast) error {
	fmt.Fprintln(w, titleStyle.Render("Risk forecast: "+title))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tRISK\tUTILIZATION\tVELOCITY")
	for _, m := range f.Months {
		risk := fmt.Sprintf("%d", m.RiskScore)
		if m.Critical {
			risk = criticalStyle.Render(risk + " !")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%d\n", m.Label, risk, m.ResourceUtilization, m.Velocity)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if f.HasCriticalMonth() {
		fmt.Fprintf(w, "First critical month: %d\n", f.CriticalMonth)
	}
	fmt.Fprintf(w, "Estimated completion: %d days\n", f.EstimatedCompletionDays)
	return nil
}

// renderMarkdown formats an executive summary for the terminal. raw returns
// the markdown unchanged.
func renderMarkdown(md string, raw bool) (string, error) {
	if raw || strings.TrimSpace(md) == "" {
		if !strings.HasSuffix(md, "\n") {
			md += "\n"
		}
		return md, nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(summaryWidth),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return renderer.Render(md)
}
