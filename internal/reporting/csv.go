package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the champion ranking as CSV string.
func RenderCSV(champions []ChampionRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("rank,candidate_id,maximin_score,median_score,mean_score,")
	sb.WriteString("total_trades,cells,worst_window,worst_lane\n")

	// Rows
	for _, c := range champions {
		sb.WriteString(fmt.Sprintf("%d,%s,%.6f,%.6f,%.6f,%d,%d,%s,%s\n",
			c.Rank,
			c.CandidateID,
			c.MaximinScore,
			c.MedianScore,
			c.MeanScore,
			c.TotalTrades,
			c.Cells,
			c.WorstWindow,
			c.WorstLane,
		))
	}

	return sb.String()
}
