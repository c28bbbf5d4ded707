package reporting

import (
	"sort"
	"time"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/metrics"
	"signal-replay-lab/internal/validation"
)

// StudyInfo describes the study a report is generated for.
type StudyInfo struct {
	Start      int64
	End        int64
	Candidates int
	Windows    int
	Lanes      []string
}

// Generator produces reports from study results.
type Generator struct {
	now func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator() *Generator {
	return &Generator{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report from a ranked study.
func (g *Generator) Generate(info StudyInfo, ranked *validation.RankedChampions) *Report {
	r := &Report{
		GeneratedAt:     g.now(),
		StudyStart:      info.Start,
		StudyEnd:        info.End,
		CandidateCount:  info.Candidates,
		WindowCount:     info.Windows,
		Lanes:           info.Lanes,
		Unranked:        ranked.Unranked,
		LaneSensitivity: laneSensitivity(ranked.Cells),
	}

	for _, c := range ranked.Cells {
		r.CellSummary.Total++
		switch c.Status {
		case validation.CellSucceeded:
			r.CellSummary.Succeeded++
		case validation.CellFailed:
			r.CellSummary.Failed++
			r.Failures = append(r.Failures, FailureRow{Cell: c.Key(), Error: c.Error})
		case validation.CellSkipped:
			r.CellSummary.Skipped++
		}
	}

	for _, c := range ranked.Champions {
		r.Champions = append(r.Champions, ChampionRow{
			Rank:         c.Rank,
			CandidateID:  c.CandidateID,
			MaximinScore: c.MaximinScore,
			MedianScore:  c.MedianScore,
			MeanScore:    c.MeanScore,
			TotalTrades:  c.TotalTrades,
			Cells:        c.Cells,
			WorstWindow:  c.WorstWindow,
			WorstLane:    c.WorstLane,
		})
	}
	return r
}

// laneSensitivity groups succeeded cells by (candidate, lane).
func laneSensitivity(cells []validation.CellResult) []LaneSensitivityRow {
	type key struct{ candidate, lane string }
	scores := make(map[key][]float64)
	for _, c := range cells {
		if c.Status != validation.CellSucceeded {
			continue
		}
		k := key{c.CandidateID, c.Lane}
		scores[k] = append(scores[k], c.Score)
	}

	rows := make([]LaneSensitivityRow, 0, len(scores))
	for k, s := range scores {
		sorted := append([]float64(nil), s...)
		sort.Float64s(sorted)
		rows = append(rows, LaneSensitivityRow{
			CandidateID: k.candidate,
			Lane:        k.lane,
			Cells:       len(s),
			MeanScore:   metrics.Mean(s),
			MinScore:    sorted[0],
		})
	}

	baseline := make(map[string]float64)
	for _, row := range rows {
		if row.Lane == domain.LaneBaseline {
			baseline[row.CandidateID] = row.MeanScore
		}
	}
	for i := range rows {
		if b, ok := baseline[rows[i].CandidateID]; ok {
			rows[i].HasBaseline = true
			rows[i].DeltaMean = rows[i].MeanScore - b
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CandidateID != rows[j].CandidateID {
			return rows[i].CandidateID < rows[j].CandidateID
		}
		return rows[i].Lane < rows[j].Lane
	})
	return rows
}
