package domain

// StressLane is a named perturbation of the execution cost model.
type StressLane struct {
	Name               string
	FeeBps             float64 // added to the strategy's fee
	SlippageBps        float64 // added to the strategy's slippage
	LatencyCandles     int     // added to every market fill
	StopGapProbability float64 // chance a triggered stop fills below its price
	StopGapMultiplier  float64 // stop fill = stop * multiplier (floored at candle low)
}

// IsBaseline reports whether the lane leaves the cost model untouched.
func (l StressLane) IsBaseline() bool {
	return l.FeeBps == 0 && l.SlippageBps == 0 && l.LatencyCandles == 0 && l.StopGapProbability == 0
}

// Lane name constants.
const (
	LaneBaseline      = "baseline"
	LaneFeeShock      = "fee_shock"
	LaneSlippageShock = "slippage_shock"
	LaneLatencyShock  = "latency_shock"
	LaneStopGap       = "stop_gap"
	LaneOptimistic    = "optimistic"
	LaneRealistic     = "realistic"
	LanePessimistic   = "pessimistic"
	LaneDegraded      = "degraded"
)

// Predefined stress lanes. The last four mirror the execution scenarios
// (optimistic < realistic < pessimistic < degraded).
var (
	LaneConfigBaseline = StressLane{Name: LaneBaseline}

	LaneConfigFeeShock = StressLane{Name: LaneFeeShock, FeeBps: 50}

	LaneConfigSlippageShock = StressLane{Name: LaneSlippageShock, SlippageBps: 150}

	LaneConfigLatencyShock = StressLane{Name: LaneLatencyShock, LatencyCandles: 2}

	LaneConfigStopGap = StressLane{
		Name:               LaneStopGap,
		StopGapProbability: 0.5,
		StopGapMultiplier:  0.9,
	}

	LaneConfigOptimistic = StressLane{
		Name:        LaneOptimistic,
		FeeBps:      5,
		SlippageBps: 25,
	}

	LaneConfigRealistic = StressLane{
		Name:               LaneRealistic,
		FeeBps:             10,
		SlippageBps:        100,
		LatencyCandles:     0,
		StopGapProbability: 0.1,
		StopGapMultiplier:  0.97,
	}

	LaneConfigPessimistic = StressLane{
		Name:               LanePessimistic,
		FeeBps:             30,
		SlippageBps:        250,
		LatencyCandles:     1,
		StopGapProbability: 0.25,
		StopGapMultiplier:  0.95,
	}

	LaneConfigDegraded = StressLane{
		Name:               LaneDegraded,
		FeeBps:             100,
		SlippageBps:        500,
		LatencyCandles:     3,
		StopGapProbability: 0.5,
		StopGapMultiplier:  0.9,
	}
)

// LaneByName returns a predefined lane.
func LaneByName(name string) (StressLane, bool) {
	switch name {
	case LaneBaseline:
		return LaneConfigBaseline, true
	case LaneFeeShock:
		return LaneConfigFeeShock, true
	case LaneSlippageShock:
		return LaneConfigSlippageShock, true
	case LaneLatencyShock:
		return LaneConfigLatencyShock, true
	case LaneStopGap:
		return LaneConfigStopGap, true
	case LaneOptimistic:
		return LaneConfigOptimistic, true
	case LaneRealistic:
		return LaneConfigRealistic, true
	case LanePessimistic:
		return LaneConfigPessimistic, true
	case LaneDegraded:
		return LaneConfigDegraded, true
	}
	return StressLane{}, false
}
