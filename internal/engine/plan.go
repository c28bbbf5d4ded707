package engine

import (
	"fmt"
	"math"

	"signal-replay-lab/internal/domain"
)

// fractionEpsilon absorbs float error when summing ladder fractions.
const fractionEpsilon = 1e-9

// Plan is a validated, normalised strategy ready to be replayed.
// Both strategy families compile to the same plan shape.
type Plan struct {
	Name            string
	Entry           domain.EntryRule
	EntryLadder     []domain.EntryRung // descending TriggerMultiple
	ExitLadder      []domain.ExitRung  // ascending TriggerMultiple
	InitialStopPct  float64
	Trailing        *domain.TrailingStop
	HardStopBps     float64
	ReEntry         *domain.ReEntryPolicy
	MaxHoldCandles  int
	Intrabar        domain.IntrabarPolicy
	Costs           domain.CostConfig
	InitialFraction float64 // share of notional bought by the initial entry
}

// Compile validates a strategy and builds its plan. Every configuration
// problem is reported as domain.ErrConfiguration before any candle is read.
func Compile(s domain.Strategy) (*Plan, error) {
	switch st := s.(type) {
	case *domain.LadderStrategy:
		return compileLadder(st)
	case *domain.OverlayStrategy:
		return compileOverlay(st)
	case nil:
		return nil, configErr("strategy is nil")
	default:
		return nil, configErr("unsupported strategy type %T", s)
	}
}

func compileLadder(s *domain.LadderStrategy) (*Plan, error) {
	if s == nil {
		return nil, configErr("strategy is nil")
	}
	p := &Plan{
		Name:           s.Name,
		Entry:          s.Entry,
		EntryLadder:    append([]domain.EntryRung(nil), s.EntryLadder...),
		ExitLadder:     append([]domain.ExitRung(nil), s.ExitLadder...),
		InitialStopPct: s.StopLoss.InitialPct,
		HardStopBps:    s.StopLoss.HardStopBps,
		MaxHoldCandles: s.MaxHoldCandles,
		Intrabar:       s.IntrabarPolicy,
		Costs:          s.Costs,
	}
	if s.StopLoss.Trailing != nil {
		ts := *s.StopLoss.Trailing
		p.Trailing = &ts
	}
	if s.ReEntry != nil {
		re := *s.ReEntry
		p.ReEntry = &re
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func compileOverlay(s *domain.OverlayStrategy) (*Plan, error) {
	if s == nil {
		return nil, configErr("strategy is nil")
	}
	if s.TakeProfitMultiple != 0 && s.TakeProfitMultiple <= 1 {
		return nil, configErr("take profit multiple must be > 1, got %v", s.TakeProfitMultiple)
	}
	p := &Plan{
		Name:           s.Name,
		Entry:          s.Entry,
		InitialStopPct: s.StopLossPct,
		MaxHoldCandles: s.MaxHoldCandles,
		Intrabar:       s.IntrabarPolicy,
		Costs:          s.Costs,
	}
	if s.TakeProfitMultiple > 0 {
		p.ExitLadder = []domain.ExitRung{{TriggerMultiple: s.TakeProfitMultiple, SizeFraction: 1}}
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plan) validate() error {
	if p.Name == "" {
		return configErr("strategy name is required")
	}
	if err := validateEntry(p.Entry); err != nil {
		return err
	}

	var exitSum float64
	for i, r := range p.ExitLadder {
		if r.TriggerMultiple <= 0 || math.IsNaN(r.TriggerMultiple) {
			return configErr("exit rung %d: trigger multiple must be positive", i)
		}
		if i > 0 && r.TriggerMultiple <= p.ExitLadder[i-1].TriggerMultiple {
			return configErr("exit rung %d: trigger multiples must be strictly ascending", i)
		}
		if r.SizeFraction <= 0 || r.SizeFraction > 1 {
			return configErr("exit rung %d: size fraction must be in (0, 1]", i)
		}
		exitSum += r.SizeFraction
	}
	if exitSum > 1+fractionEpsilon {
		return configErr("exit ladder fractions sum to %.4f > 1", exitSum)
	}

	var entrySum float64
	for i, r := range p.EntryLadder {
		if r.TriggerMultiple <= 0 || r.TriggerMultiple >= 1 {
			return configErr("entry rung %d: trigger multiple must be in (0, 1)", i)
		}
		if i > 0 && r.TriggerMultiple >= p.EntryLadder[i-1].TriggerMultiple {
			return configErr("entry rung %d: trigger multiples must be strictly descending", i)
		}
		if r.SizeFraction <= 0 || r.SizeFraction > 1 {
			return configErr("entry rung %d: size fraction must be in (0, 1]", i)
		}
		entrySum += r.SizeFraction
	}
	if entrySum >= 1-fractionEpsilon {
		return configErr("entry ladder fractions sum to %.4f, leaving nothing for the initial entry", entrySum)
	}
	p.InitialFraction = 1 - entrySum

	if p.InitialStopPct < 0 || p.InitialStopPct >= 1 {
		return configErr("initial stop pct must be in [0, 1), got %v", p.InitialStopPct)
	}
	if p.HardStopBps < 0 || p.HardStopBps >= 10_000 {
		return configErr("hard stop bps must be in [0, 10000), got %v", p.HardStopBps)
	}
	if ts := p.Trailing; ts != nil {
		if ts.ActivationMultiple <= 0 {
			return configErr("trailing stop activation multiple must be positive")
		}
		if ts.TrailBps <= 0 || ts.TrailBps >= 10_000 {
			return configErr("trailing stop bps must be in (0, 10000), got %v", ts.TrailBps)
		}
	}

	if re := p.ReEntry; re != nil {
		if re.TrailingReEntryPct <= 0 {
			return configErr("re-entry retrace pct must be positive")
		}
		if re.MaxReEntries < 0 {
			return configErr("max re-entries must be >= 0")
		}
		if re.SizePercent <= 0 || re.SizePercent > 100 {
			return configErr("re-entry size percent must be in (0, 100], got %v", re.SizePercent)
		}
	}

	if p.MaxHoldCandles < 0 {
		return configErr("max hold candles must be >= 0")
	}

	switch p.Intrabar {
	case "":
		p.Intrabar = domain.IntrabarStopFirst
	case domain.IntrabarStopFirst, domain.IntrabarTargetFirst, domain.IntrabarOpenProximity:
	default:
		return configErr("unknown intrabar policy %q", p.Intrabar)
	}

	return validateCosts(p.Costs)
}

func validateEntry(rule domain.EntryRule) error {
	switch r := rule.(type) {
	case domain.EntryImmediate:
		return nil
	case domain.EntryDelayed:
		if r.Candles < 0 {
			return configErr("entry delay must be >= 0 candles")
		}
		return nil
	case domain.EntryTrailing:
		if r.RetracePct <= 0 {
			return configErr("trailing entry retrace pct must be positive")
		}
		if r.MaxWaitCandles <= 0 {
			return configErr("trailing entry max wait must be > 0 candles")
		}
		return nil
	case nil:
		return configErr("entry rule is required")
	default:
		return configErr("unsupported entry rule %T", rule)
	}
}

func validateCosts(c domain.CostConfig) error {
	if c.FeeBps < 0 || c.SlippageBps < 0 || c.VolumeImpactBps < 0 {
		return configErr("cost bps must be non-negative")
	}
	if lm := c.Latency; lm != nil {
		if lm.P50Ms < 0 || lm.P90Ms < lm.P50Ms || lm.P99Ms < lm.P90Ms {
			return configErr("latency percentiles must satisfy 0 <= p50 <= p90 <= p99")
		}
		if lm.JitterMs < 0 {
			return configErr("latency jitter must be non-negative")
		}
	}
	if f := c.Failure; f != nil {
		if f.BaseRate < 0 || f.BaseRate > 1 {
			return configErr("failure base rate must be in [0, 1]")
		}
		if f.CongestionMultiplier < 0 {
			return configErr("congestion multiplier must be non-negative")
		}
	}
	if pf := c.PartialFill; pf != nil {
		if pf.Probability < 0 || pf.Probability > 1 {
			return configErr("partial fill probability must be in [0, 1]")
		}
		if pf.MinFraction <= 0 || pf.MaxFraction > 1 || pf.MinFraction > pf.MaxFraction {
			return configErr("partial fill range must satisfy 0 < min <= max <= 1")
		}
	}
	return nil
}

func configErr(format string, args ...any) error {
	return domain.WrapError(domain.ErrConfiguration, fmt.Errorf(format, args...))
}
