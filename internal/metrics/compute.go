// Package metrics aggregates replay outcomes into distribution statistics.
package metrics

import (
	"math"
	"sort"

	"signal-replay-lab/internal/domain"
)

// Aggregate summarises the net returns of a set of replays.
type Aggregate struct {
	Replays       int // non-empty results only
	Trades        int // position cycles across all replays
	Signals       int // distinct signal ids
	Wins          int
	Losses        int
	WinRate       float64
	SignalWinRate float64 // share of signals with at least one winning cycle

	Mean   float64
	Median float64
	P10    float64
	P25    float64
	P75    float64
	P90    float64
	Min    float64
	Max    float64
	Stddev float64

	MaxDrawdown          float64
	MaxConsecutiveLosses int
}

// Compute builds an Aggregate. Empty results (no position opened) are
// ignored. Results are ordered by entry time then signal id before the
// order-dependent statistics are computed, so the input order never matters.
func Compute(results []*domain.BacktestResult) Aggregate {
	var filled []*domain.BacktestResult
	for _, r := range results {
		if r != nil && !r.Empty() {
			filled = append(filled, r)
		}
	}
	n := len(filled)
	if n == 0 {
		return Aggregate{}
	}

	sort.Slice(filled, func(i, j int) bool {
		ti, tj := entryTime(filled[i]), entryTime(filled[j])
		if ti != tj {
			return ti < tj
		}
		return filled[i].SignalID < filled[j].SignalID
	})

	outcomes := make([]float64, n)
	agg := Aggregate{Replays: n}
	for i, r := range filled {
		outcomes[i] = r.NetReturn()
		agg.Trades += len(r.Trades)
		if outcomes[i] > 0 {
			agg.Wins++
		} else {
			agg.Losses++
		}
	}
	agg.WinRate = float64(agg.Wins) / float64(n)
	agg.Signals, agg.SignalWinRate = signalWinRate(filled)

	sorted := make([]float64, n)
	copy(sorted, outcomes)
	sort.Float64s(sorted)

	agg.Mean = Mean(outcomes)
	agg.Stddev = Stddev(outcomes, agg.Mean)
	agg.Median = Percentile(sorted, 0.50)
	agg.P10 = Percentile(sorted, 0.10)
	agg.P25 = Percentile(sorted, 0.25)
	agg.P75 = Percentile(sorted, 0.75)
	agg.P90 = Percentile(sorted, 0.90)
	agg.Min = sorted[0]
	agg.Max = sorted[n-1]
	agg.MaxDrawdown = MaxDrawdown(outcomes)
	agg.MaxConsecutiveLosses = maxConsecutiveLosses(outcomes)
	return agg
}

func entryTime(r *domain.BacktestResult) int64 {
	if len(r.Events) == 0 {
		return 0
	}
	return r.Events[0].Timestamp
}

// signalWinRate groups results by signal id; a signal wins when any of its
// position cycles returned more than it invested.
func signalWinRate(results []*domain.BacktestResult) (int, float64) {
	won := make(map[string]bool)
	for _, r := range results {
		w := won[r.SignalID]
		for _, t := range r.Trades {
			if t.PnlMultiplier > 1 {
				w = true
				break
			}
		}
		won[r.SignalID] = w
	}

	wins := 0
	for _, w := range won {
		if w {
			wins++
		}
	}
	return len(won), float64(wins) / float64(len(won))
}

// Mean returns the arithmetic mean, 0 for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Stddev returns the sample standard deviation (n-1 denominator).
func Stddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// Percentile uses linear interpolation. sorted must be ascending; p is a
// fraction (0.10 = 10th percentile).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// Median returns the median of values without modifying them.
func Median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return Percentile(sorted, 0.5)
}

// MaxDrawdown returns the worst peak-to-trough of the cumulative outcome
// curve. Outcomes must be in chronological order.
func MaxDrawdown(outcomes []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0
	for _, o := range outcomes {
		cumulative += o
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// maxConsecutiveLosses finds the longest streak of outcomes <= 0.
func maxConsecutiveLosses(outcomes []float64) int {
	maxStreak, streak := 0, 0
	for _, o := range outcomes {
		if o <= 0 {
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		} else {
			streak = 0
		}
	}
	return maxStreak
}
