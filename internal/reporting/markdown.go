package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Validation Study Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Candidates: %d | Windows: %d | Lanes: %s\n\n",
		r.CandidateCount, r.WindowCount, strings.Join(r.Lanes, ", ")))

	// Study summary
	sb.WriteString("## Study Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Study Start | %s |\n", formatUnix(r.StudyStart)))
	sb.WriteString(fmt.Sprintf("| Study End | %s |\n", formatUnix(r.StudyEnd)))
	sb.WriteString(fmt.Sprintf("| Cells | %d |\n", r.CellSummary.Total))
	sb.WriteString(fmt.Sprintf("| Succeeded | %d |\n", r.CellSummary.Succeeded))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", r.CellSummary.Failed))
	sb.WriteString(fmt.Sprintf("| Skipped | %d |\n", r.CellSummary.Skipped))
	sb.WriteString("\n")

	// Ranking
	sb.WriteString("## Champions\n\n")
	if len(r.Champions) > 0 {
		sb.WriteString("| Rank | Candidate | Maximin | Median | Mean | Trades | Cells | Worst Window | Worst Lane |\n")
		sb.WriteString("|------|-----------|---------|--------|------|--------|-------|--------------|------------|\n")
		for _, c := range r.Champions {
			sb.WriteString(fmt.Sprintf("| %d | %s | %.4f | %.4f | %.4f | %d | %d | %s | %s |\n",
				c.Rank, c.CandidateID, c.MaximinScore, c.MedianScore, c.MeanScore,
				c.TotalTrades, c.Cells, c.WorstWindow, c.WorstLane))
		}
	} else {
		sb.WriteString("No candidate produced a scored cell.\n")
	}
	sb.WriteString("\n")

	if len(r.Unranked) > 0 {
		sb.WriteString(fmt.Sprintf("Unranked (failed or unscored cells): %s\n\n", strings.Join(r.Unranked, ", ")))
	}

	// Lane sensitivity
	sb.WriteString("## Lane Sensitivity\n\n")
	if len(r.LaneSensitivity) > 0 {
		sb.WriteString("| Candidate | Lane | Cells | Mean | Min | Δ vs baseline |\n")
		sb.WriteString("|-----------|------|-------|------|-----|---------------|\n")
		for _, s := range r.LaneSensitivity {
			delta := "n/a"
			if s.HasBaseline {
				delta = fmt.Sprintf("%+.4f", s.DeltaMean)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.4f | %.4f | %s |\n",
				s.CandidateID, s.Lane, s.Cells, s.MeanScore, s.MinScore, delta))
		}
	} else {
		sb.WriteString("No lane sensitivity data available.\n")
	}
	sb.WriteString("\n")

	// Failures
	if len(r.Failures) > 0 {
		sb.WriteString("## Failed Cells\n\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("- `%s`: %s\n", f.Cell, f.Error))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatUnix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}
