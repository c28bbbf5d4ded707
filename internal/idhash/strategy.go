package idhash

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"signal-replay-lab/internal/domain"
)

// canonical is a flat key/value rendering with sorted keys. Floats go through
// decimal so 0.1 and 1e-1 render identically.
type canonical map[string]string

func (c canonical) putStr(key, v string) { c[key] = strconv.Quote(v) }

func (c canonical) putInt(key string, v int) { c[key] = strconv.Itoa(v) }

func (c canonical) putFloat(key string, v float64) {
	c[key] = decimal.NewFromFloat(v).String()
}

func (c canonical) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c[k])
	}
	return b.String()
}

// StrategyHash hashes the behavioural part of a strategy: entry, ladders,
// stops, re-entry, hold limit and intrabar policy. Costs are hashed
// separately by RiskHash. The name is not part of the identity.
func StrategyHash(s domain.Strategy) (string, error) {
	c := canonical{}
	switch v := s.(type) {
	case *domain.LadderStrategy:
		if v == nil {
			return "", fmt.Errorf("nil ladder strategy")
		}
		c.putStr("family", "ladder")
		if err := entryFields(c, v.Entry); err != nil {
			return "", err
		}
		for i, r := range v.EntryLadder {
			c.putFloat(fmt.Sprintf("entry_ladder.%03d.multiple", i), r.TriggerMultiple)
			c.putFloat(fmt.Sprintf("entry_ladder.%03d.fraction", i), r.SizeFraction)
		}
		for i, r := range v.ExitLadder {
			c.putFloat(fmt.Sprintf("exit_ladder.%03d.multiple", i), r.TriggerMultiple)
			c.putFloat(fmt.Sprintf("exit_ladder.%03d.fraction", i), r.SizeFraction)
		}
		c.putFloat("stop.initial_pct", v.StopLoss.InitialPct)
		c.putFloat("stop.hard_bps", v.StopLoss.HardStopBps)
		if t := v.StopLoss.Trailing; t != nil {
			c.putFloat("stop.trailing.activation", t.ActivationMultiple)
			c.putFloat("stop.trailing.bps", t.TrailBps)
		}
		if re := v.ReEntry; re != nil {
			c.putFloat("reentry.pct", re.TrailingReEntryPct)
			c.putInt("reentry.max", re.MaxReEntries)
			c.putFloat("reentry.size_pct", re.SizePercent)
		}
		c.putInt("max_hold", v.MaxHoldCandles)
		c.putStr("intrabar", string(intrabarOrDefault(v.IntrabarPolicy)))
	case *domain.OverlayStrategy:
		if v == nil {
			return "", fmt.Errorf("nil overlay strategy")
		}
		c.putStr("family", "overlay")
		if err := entryFields(c, v.Entry); err != nil {
			return "", err
		}
		c.putFloat("take_profit", v.TakeProfitMultiple)
		c.putFloat("stop_pct", v.StopLossPct)
		c.putInt("max_hold", v.MaxHoldCandles)
		c.putStr("intrabar", string(intrabarOrDefault(v.IntrabarPolicy)))
	default:
		return "", fmt.Errorf("unknown strategy type %T", s)
	}
	return hashFields(c.String()), nil
}

func entryFields(c canonical, e domain.EntryRule) error {
	switch v := e.(type) {
	case nil, domain.EntryImmediate:
		c.putStr("entry", domain.EntryKindImmediate)
	case domain.EntryDelayed:
		c.putStr("entry", domain.EntryKindDelayed)
		c.putInt("entry.candles", v.Candles)
	case domain.EntryTrailing:
		c.putStr("entry", domain.EntryKindTrailing)
		c.putFloat("entry.retrace_pct", v.RetracePct)
		c.putInt("entry.max_wait", v.MaxWaitCandles)
	default:
		return fmt.Errorf("unknown entry rule %T", e)
	}
	return nil
}

func intrabarOrDefault(p domain.IntrabarPolicy) domain.IntrabarPolicy {
	if p == "" {
		return domain.IntrabarStopFirst
	}
	return p
}

// RiskHash hashes everything that shapes execution: the cost configuration,
// the stress lane applied on top of it and the seed driving the cost model's
// random draws.
func RiskHash(costs domain.CostConfig, lane domain.StressLane, seed uint64) string {
	c := canonical{}
	c.putStr("seed", strconv.FormatUint(seed, 10))
	c.putFloat("fee_bps", costs.FeeBps)
	c.putFloat("slippage_bps", costs.SlippageBps)
	c.putFloat("volume_impact_bps", costs.VolumeImpactBps)
	if l := costs.Latency; l != nil {
		c.putFloat("latency.p50", l.P50Ms)
		c.putFloat("latency.p90", l.P90Ms)
		c.putFloat("latency.p99", l.P99Ms)
		c.putFloat("latency.jitter", l.JitterMs)
	}
	if f := costs.Failure; f != nil {
		c.putFloat("failure.base", f.BaseRate)
		c.putFloat("failure.congestion", f.CongestionMultiplier)
	}
	if p := costs.PartialFill; p != nil {
		c.putFloat("partial.prob", p.Probability)
		c.putFloat("partial.min", p.MinFraction)
		c.putFloat("partial.max", p.MaxFraction)
	}
	c.putFloat("lane.fee_bps", lane.FeeBps)
	c.putFloat("lane.slippage_bps", lane.SlippageBps)
	c.putInt("lane.latency_candles", lane.LatencyCandles)
	c.putFloat("lane.stop_gap_prob", lane.StopGapProbability)
	c.putFloat("lane.stop_gap_mult", lane.StopGapMultiplier)
	return hashFields(c.String())
}
