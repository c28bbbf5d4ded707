// Package reporting renders validation study results as Markdown and CSV.
package reporting

import "time"

// Report represents a validation study report.
type Report struct {
	// Metadata
	GeneratedAt    time.Time
	StudyStart     int64 // Unix sec
	StudyEnd       int64 // Unix sec
	CandidateCount int
	WindowCount    int
	Lanes          []string

	// Cell outcomes
	CellSummary CellSummary

	// Champions in rank order
	Champions []ChampionRow
	Unranked  []string

	// Lane sensitivity (sorted by candidate_id, lane)
	LaneSensitivity []LaneSensitivityRow

	// Failed cells (sorted by cell key)
	Failures []FailureRow
}

// CellSummary counts cells by status.
type CellSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
}

// ChampionRow represents one row in the ranking table.
type ChampionRow struct {
	Rank         int
	CandidateID  string
	MaximinScore float64
	MedianScore  float64
	MeanScore    float64
	TotalTrades  int
	Cells        int
	WorstWindow  string
	WorstLane    string
}

// LaneSensitivityRow compares a candidate's scores on one lane against its
// baseline lane.
type LaneSensitivityRow struct {
	CandidateID string
	Lane        string
	Cells       int
	MeanScore   float64
	MinScore    float64
	HasBaseline bool
	DeltaMean   float64 // MeanScore - baseline MeanScore, when HasBaseline
}

// FailureRow represents one failed cell.
type FailureRow struct {
	Cell  string
	Error string
}
