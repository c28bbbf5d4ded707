package validation

import (
	"sort"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/metrics"
)

// Champion is a ranked candidate.
type Champion struct {
	Rank         int
	CandidateID  string
	MaximinScore float64 // worst cell score
	MedianScore  float64
	MeanScore    float64
	TotalTrades  int
	Cells        int // scored cells
	WorstWindow  string
	WorstLane    string
}

// RankedChampions is the result of a validation study.
type RankedChampions struct {
	Champions []Champion
	Unranked  []string     // candidates with a failed cell or without a scored cell
	Cells     []CellResult // sorted by candidate, window, lane
	Summary   domain.Summary
}

// Rank orders candidates by maximin score, descending. Ties are broken by
// median score (descending), total trades (descending) and candidate id, so
// the ranking is a total order independent of input order. Only succeeded
// cells are scored. A candidate with a failed cell has no known worst case
// and is left unranked.
func Rank(candidateIDs []string, cells []CellResult) ([]Champion, []string) {
	byCandidate := make(map[string][]CellResult)
	failed := make(map[string]bool)
	for _, c := range cells {
		switch c.Status {
		case CellSucceeded:
			byCandidate[c.CandidateID] = append(byCandidate[c.CandidateID], c)
		case CellFailed:
			failed[c.CandidateID] = true
		}
	}

	var champions []Champion
	var unranked []string
	seen := make(map[string]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		scored := byCandidate[id]
		if len(scored) == 0 || failed[id] {
			unranked = append(unranked, id)
			continue
		}
		sort.Slice(scored, func(i, j int) bool { return scored[i].Key() < scored[j].Key() })

		ch := Champion{CandidateID: id, Cells: len(scored)}
		scores := make([]float64, len(scored))
		worst := 0
		for i, c := range scored {
			scores[i] = c.Score
			ch.TotalTrades += c.Trades
			if c.Score < scored[worst].Score {
				worst = i
			}
		}
		ch.MaximinScore = scored[worst].Score
		ch.WorstWindow = scored[worst].WindowID
		ch.WorstLane = scored[worst].Lane
		ch.MedianScore = metrics.Median(scores)
		ch.MeanScore = metrics.Mean(scores)
		champions = append(champions, ch)
	}

	sort.Slice(champions, func(i, j int) bool {
		a, b := champions[i], champions[j]
		if a.MaximinScore != b.MaximinScore {
			return a.MaximinScore > b.MaximinScore
		}
		if a.MedianScore != b.MedianScore {
			return a.MedianScore > b.MedianScore
		}
		if a.TotalTrades != b.TotalTrades {
			return a.TotalTrades > b.TotalTrades
		}
		return a.CandidateID < b.CandidateID
	})
	for i := range champions {
		champions[i].Rank = i + 1
	}
	sort.Strings(unranked)
	return champions, unranked
}
