package config

import (
	"fmt"

	"github.com/spf13/viper"

	"signal-replay-lab/internal/domain"
)

// Strategy document types.
const (
	StrategyTypeLadder  = "ladder"
	StrategyTypeOverlay = "overlay"
)

// NamedStrategy is a strategy with the id it was declared under.
type NamedStrategy struct {
	ID       string
	Strategy domain.Strategy
}

// StrategyDoc is the file form of a strategy. Type selects which of the
// fields apply: ladder strategies use the ladders, stop loss and re-entry;
// overlays use TakeProfitMultiple and StopLossPct.
type StrategyDoc struct {
	ID                 string      `mapstructure:"id"`
	Type               string      `mapstructure:"type"`
	Name               string      `mapstructure:"name"` // default: ID
	Entry              EntryDoc    `mapstructure:"entry"`
	EntryLadder        []RungDoc   `mapstructure:"entry_ladder"`
	ExitLadder         []RungDoc   `mapstructure:"exit_ladder"`
	StopLoss           StopLossDoc `mapstructure:"stop_loss"`
	ReEntry            *ReEntryDoc `mapstructure:"re_entry"`
	TakeProfitMultiple float64     `mapstructure:"take_profit_multiple"`
	StopLossPct        float64     `mapstructure:"stop_loss_pct"`
	MaxHoldCandles     int         `mapstructure:"max_hold_candles"`
	IntrabarPolicy     string      `mapstructure:"intrabar_policy"`
	Costs              CostsDoc    `mapstructure:"costs"`
}

type EntryDoc struct {
	Kind           string  `mapstructure:"kind"` // immediate (default), delayed, trailing
	Candles        int     `mapstructure:"candles"`
	RetracePct     float64 `mapstructure:"retrace_pct"`
	MaxWaitCandles int     `mapstructure:"max_wait_candles"`
}

type RungDoc struct {
	TriggerMultiple float64 `mapstructure:"trigger_multiple"`
	SizeFraction    float64 `mapstructure:"size_fraction"`
}

type StopLossDoc struct {
	InitialPct  float64      `mapstructure:"initial_pct"`
	Trailing    *TrailingDoc `mapstructure:"trailing"`
	HardStopBps float64      `mapstructure:"hard_stop_bps"`
}

type TrailingDoc struct {
	ActivationMultiple float64 `mapstructure:"activation_multiple"`
	TrailBps           float64 `mapstructure:"trail_bps"`
}

type ReEntryDoc struct {
	TrailingReEntryPct float64 `mapstructure:"trailing_reentry_pct"`
	MaxReEntries       int     `mapstructure:"max_reentries"`
	SizePercent        float64 `mapstructure:"size_percent"`
}

type CostsDoc struct {
	FeeBps          float64         `mapstructure:"fee_bps"`
	SlippageBps     float64         `mapstructure:"slippage_bps"`
	VolumeImpactBps float64         `mapstructure:"volume_impact_bps"`
	Latency         *LatencyDoc     `mapstructure:"latency"`
	Failure         *FailureDoc     `mapstructure:"failure"`
	PartialFill     *PartialFillDoc `mapstructure:"partial_fill"`
}

type LatencyDoc struct {
	P50Ms    float64 `mapstructure:"p50_ms"`
	P90Ms    float64 `mapstructure:"p90_ms"`
	P99Ms    float64 `mapstructure:"p99_ms"`
	JitterMs float64 `mapstructure:"jitter_ms"`
}

type FailureDoc struct {
	BaseRate             float64 `mapstructure:"base_rate"`
	CongestionMultiplier float64 `mapstructure:"congestion_multiplier"`
}

type PartialFillDoc struct {
	Probability float64 `mapstructure:"probability"`
	MinFraction float64 `mapstructure:"min_fraction"`
	MaxFraction float64 `mapstructure:"max_fraction"`
}

// LoadStrategies reads the "strategies" list from a YAML, JSON or TOML file.
// Structural problems are configuration errors; strategy semantics are
// validated later, when the engine compiles them.
func LoadStrategies(path string) ([]NamedStrategy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading strategies: %w", err)
	}

	var docs []StrategyDoc
	if err := v.UnmarshalKey("strategies", &docs); err != nil {
		return nil, fmt.Errorf("unmarshaling strategies: %w", err)
	}
	if len(docs) == 0 {
		return nil, domain.Errorf(domain.ErrConfiguration, "%s declares no strategies", path)
	}

	out := make([]NamedStrategy, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return nil, domain.Errorf(domain.ErrConfiguration, "strategy %d has no id", i)
		}
		if seen[d.ID] {
			return nil, domain.Errorf(domain.ErrConfiguration, "duplicate strategy id %q", d.ID)
		}
		seen[d.ID] = true

		s, err := d.Build()
		if err != nil {
			return nil, err
		}
		out = append(out, NamedStrategy{ID: d.ID, Strategy: s})
	}
	return out, nil
}

// Build converts the document into a domain strategy.
func (d StrategyDoc) Build() (domain.Strategy, error) {
	name := d.Name
	if name == "" {
		name = d.ID
	}
	entry, err := d.Entry.build()
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", d.ID, err)
	}

	switch d.Type {
	case StrategyTypeLadder:
		s := &domain.LadderStrategy{
			Name:           name,
			Entry:          entry,
			MaxHoldCandles: d.MaxHoldCandles,
			IntrabarPolicy: domain.IntrabarPolicy(d.IntrabarPolicy),
			Costs:          d.Costs.build(),
			StopLoss: domain.StopLoss{
				InitialPct:  d.StopLoss.InitialPct,
				HardStopBps: d.StopLoss.HardStopBps,
			},
		}
		for _, r := range d.EntryLadder {
			s.EntryLadder = append(s.EntryLadder, domain.EntryRung{TriggerMultiple: r.TriggerMultiple, SizeFraction: r.SizeFraction})
		}
		for _, r := range d.ExitLadder {
			s.ExitLadder = append(s.ExitLadder, domain.ExitRung{TriggerMultiple: r.TriggerMultiple, SizeFraction: r.SizeFraction})
		}
		if ts := d.StopLoss.Trailing; ts != nil {
			s.StopLoss.Trailing = &domain.TrailingStop{ActivationMultiple: ts.ActivationMultiple, TrailBps: ts.TrailBps}
		}
		if re := d.ReEntry; re != nil {
			s.ReEntry = &domain.ReEntryPolicy{TrailingReEntryPct: re.TrailingReEntryPct, MaxReEntries: re.MaxReEntries, SizePercent: re.SizePercent}
		}
		return s, nil

	case StrategyTypeOverlay:
		return &domain.OverlayStrategy{
			Name:               name,
			Entry:              entry,
			TakeProfitMultiple: d.TakeProfitMultiple,
			StopLossPct:        d.StopLossPct,
			MaxHoldCandles:     d.MaxHoldCandles,
			IntrabarPolicy:     domain.IntrabarPolicy(d.IntrabarPolicy),
			Costs:              d.Costs.build(),
		}, nil

	default:
		return nil, domain.Errorf(domain.ErrConfiguration, "strategy %s: unknown type %q", d.ID, d.Type)
	}
}

func (e EntryDoc) build() (domain.EntryRule, error) {
	switch e.Kind {
	case "", domain.EntryKindImmediate:
		return domain.EntryImmediate{}, nil
	case domain.EntryKindDelayed:
		return domain.EntryDelayed{Candles: e.Candles}, nil
	case domain.EntryKindTrailing:
		return domain.EntryTrailing{RetracePct: e.RetracePct, MaxWaitCandles: e.MaxWaitCandles}, nil
	}
	return nil, domain.Errorf(domain.ErrConfiguration, "unknown entry kind %q", e.Kind)
}

func (c CostsDoc) build() domain.CostConfig {
	out := domain.CostConfig{
		FeeBps:          c.FeeBps,
		SlippageBps:     c.SlippageBps,
		VolumeImpactBps: c.VolumeImpactBps,
	}
	if l := c.Latency; l != nil {
		out.Latency = &domain.LatencyModel{P50Ms: l.P50Ms, P90Ms: l.P90Ms, P99Ms: l.P99Ms, JitterMs: l.JitterMs}
	}
	if f := c.Failure; f != nil {
		out.Failure = &domain.FailureModel{BaseRate: f.BaseRate, CongestionMultiplier: f.CongestionMultiplier}
	}
	if p := c.PartialFill; p != nil {
		out.PartialFill = &domain.PartialFillModel{Probability: p.Probability, MinFraction: p.MinFraction, MaxFraction: p.MaxFraction}
	}
	return out
}
