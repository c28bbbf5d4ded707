// Package execution simulates how a requested fill actually executes:
// fees, slippage, latency, fill failures, partial fills and stop gaps.
package execution

import (
	"math"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/rng"
)

// Side is the direction of a fill.
type Side int

// Sides.
const (
	SideBuy Side = iota
	SideSell
)

// Kind classifies a fill by the order type that produced it.
type Kind string

// Fill kinds.
//
// Market fills (entries and re-entries) are subject to latency.
// Limit fills (ladder rungs) may fail or fill partially.
// Stop fills may gap below the stop under a stress lane.
// Final fills never degrade.
const (
	KindMarket Kind = "market"
	KindLimit  Kind = "limit"
	KindStop   Kind = "stop"
	KindFinal  Kind = "final"
)

// maxImpactMultiple caps volume impact at this multiple of base slippage.
const maxImpactMultiple = 10.0

// FillRequest describes a fill the engine wants to make.
type FillRequest struct {
	Key          string  // RNG substream key, e.g. "c0/exit/1"
	Side         Side    // buy pays up, sell receives less
	Kind         Kind    // order type
	RawPrice     float64 // price before costs
	Notional     float64 // requested notional at RawPrice
	CandleLow    float64 // low of the fill candle, floor for gapped stops
	CandleVolume float64 // base volume of the fill candle
	IntervalSec  int64   // candle interval, for latency conversion
}

// FillResult is the simulated outcome of a FillRequest.
type FillResult struct {
	Price          float64 // fill price after gap and slippage
	FeeRate        float64 // fee as a fraction of filled value
	SlippageBps    float64 // total slippage applied
	FilledFraction float64 // of the requested size; 0 when Failed
	Failed         bool
	LatencyCandles int  // candles to defer a market fill by
	StopGapped     bool // stop filled below its trigger
}

// Degraded reports whether the fill failed or filled partially.
func (r FillResult) Degraded() bool {
	return r.Failed || r.FilledFraction < 1
}

// Reprice applies the fill's slippage to a different raw price. Used when a
// market fill is deferred by latency and executes at a later candle's close.
func (r FillResult) Reprice(raw float64, side Side) float64 {
	slip := r.SlippageBps / 10_000
	if side == SideBuy {
		return raw * (1 + slip)
	}
	return max(raw*(1-slip), 0)
}

// Model applies a strategy's cost configuration and a stress lane to fills.
// It holds no mutable state; all randomness comes from the RNG passed to Fill.
type Model struct {
	costs domain.CostConfig
	lane  domain.StressLane
}

// NewModel creates a cost model.
func NewModel(costs domain.CostConfig, lane domain.StressLane) *Model {
	return &Model{costs: costs, lane: lane}
}

// Lane returns the stress lane applied by the model.
func (m *Model) Lane() domain.StressLane { return m.lane }

// FeeRate returns the total fee as a fraction of value.
func (m *Model) FeeRate() float64 {
	return (m.costs.FeeBps + m.lane.FeeBps) / 10_000
}

// Fill simulates req. Draws come from root.Derive(req.Key), so the outcome of
// one fill never depends on how many other fills happened before it.
func (m *Model) Fill(req FillRequest, root *rng.RNG) FillResult {
	r := root.Derive(req.Key)

	res := FillResult{
		Price:          req.RawPrice,
		FeeRate:        m.FeeRate(),
		FilledFraction: 1,
	}

	switch req.Kind {
	case KindMarket:
		res.LatencyCandles = m.latencyCandles(req.IntervalSec, r)
	case KindLimit:
		if m.costs.Failure != nil && r.Bernoulli(m.failureRate()) {
			res.Failed = true
			res.FilledFraction = 0
			return res
		}
		if pf := m.costs.PartialFill; pf != nil && r.Bernoulli(pf.Probability) {
			res.FilledFraction = clamp(r.NextFloat(pf.MinFraction, pf.MaxFraction), 0, 1)
		}
	case KindStop:
		if m.lane.StopGapProbability > 0 && r.Bernoulli(m.lane.StopGapProbability) {
			gapped := req.RawPrice * m.lane.StopGapMultiplier
			if gapped < req.CandleLow {
				gapped = req.CandleLow
			}
			if gapped < res.Price {
				res.Price = gapped
				res.StopGapped = true
			}
		}
	}

	res.SlippageBps = m.slippageBps(req.Notional, req.CandleVolume)
	slip := res.SlippageBps / 10_000
	if req.Side == SideBuy {
		res.Price *= 1 + slip
	} else {
		res.Price *= 1 - slip
	}
	if res.Price < 0 {
		res.Price = 0
	}

	return res
}

// slippageBps returns base slippage plus volume impact.
// Impact is VolumeImpactBps scaled by the fill's share of candle volume,
// capped at maxImpactMultiple times base slippage.
func (m *Model) slippageBps(notional, volume float64) float64 {
	base := m.costs.SlippageBps + m.lane.SlippageBps
	if m.costs.VolumeImpactBps <= 0 || volume <= 0 || notional <= 0 {
		return base
	}
	impact := m.costs.VolumeImpactBps * notional / volume
	limit := maxImpactMultiple * base
	if base <= 0 {
		limit = m.costs.VolumeImpactBps
	}
	if impact > limit {
		impact = limit
	}
	return base + impact
}

func (m *Model) failureRate() float64 {
	f := m.costs.Failure
	mult := f.CongestionMultiplier
	if mult <= 0 {
		mult = 1
	}
	return clamp(f.BaseRate*mult, 0, 1)
}

// latencyCandles converts a latency draw into whole candles skipped, plus
// the lane's fixed latency.
func (m *Model) latencyCandles(intervalSec int64, r *rng.RNG) int {
	candles := m.lane.LatencyCandles
	if m.costs.Latency == nil || intervalSec <= 0 {
		return candles
	}
	ms := SampleLatencyMs(*m.costs.Latency, r)
	return candles + int(math.Floor(ms/float64(intervalSec*1000)))
}

// SampleLatencyMs draws a latency from the piecewise-linear inverse CDF
// through (0.5, p50), (0.9, p90) and (0.99, p99), plus uniform jitter.
// Draws above the 99th percentile are clamped to p99.
func SampleLatencyMs(lm domain.LatencyModel, r *rng.RNG) float64 {
	u := r.Next()
	ms := InverseLatencyCDF(lm, u)
	if lm.JitterMs > 0 {
		ms += r.NextFloat(-lm.JitterMs, lm.JitterMs)
	}
	if ms < 0 {
		ms = 0
	}
	return ms
}

// InverseLatencyCDF maps a quantile u in [0,1) to a latency in ms.
func InverseLatencyCDF(lm domain.LatencyModel, u float64) float64 {
	switch {
	case u <= 0.5:
		return lerp(0, 0, 0.5, lm.P50Ms, u)
	case u <= 0.9:
		return lerp(0.5, lm.P50Ms, 0.9, lm.P90Ms, u)
	case u <= 0.99:
		return lerp(0.9, lm.P90Ms, 0.99, lm.P99Ms, u)
	default:
		return lm.P99Ms
	}
}

func lerp(x0, y0, x1, y1, x float64) float64 {
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
