package domain

// Strategy is the closed set of supported strategy families.
// The engine switches exhaustively over the concrete types; the unexported
// marker keeps the set closed to this package.
type Strategy interface {
	StrategyName() string
	isStrategy()
}

// LadderStrategy enters on a signal, optionally scales in through an entry
// ladder, scales out through an exit ladder and protects the position with
// an initial/trailing/hard stop. Stopped positions may be re-entered.
type LadderStrategy struct {
	Name           string
	Entry          EntryRule
	EntryLadder    []EntryRung // optional scale-in rungs
	ExitLadder     []ExitRung  // ascending TriggerMultiple
	StopLoss       StopLoss
	ReEntry        *ReEntryPolicy // nil disables re-entry
	MaxHoldCandles int            // 0 = hold until data ends
	IntrabarPolicy IntrabarPolicy
	Costs          CostConfig
}

// OverlayStrategy is a single take-profit/stop-loss overlay on top of the entry.
type OverlayStrategy struct {
	Name               string
	Entry              EntryRule
	TakeProfitMultiple float64 // e.g. 2.0 = exit everything at 2x entry
	StopLossPct        float64 // e.g. 0.25 = exit everything at -25%
	MaxHoldCandles     int
	IntrabarPolicy     IntrabarPolicy
	Costs              CostConfig
}

// StrategyName implements Strategy.
func (s *LadderStrategy) StrategyName() string { return s.Name }

// StrategyName implements Strategy.
func (s *OverlayStrategy) StrategyName() string { return s.Name }

func (*LadderStrategy) isStrategy()  {}
func (*OverlayStrategy) isStrategy() {}

// EntryRule is the closed set of entry rules.
type EntryRule interface {
	EntryKind() string
	isEntryRule()
}

// EntryImmediate enters on the first causally visible candle at/after the signal.
type EntryImmediate struct{}

// EntryDelayed enters Candles candles after the first visible candle.
type EntryDelayed struct {
	Candles int
}

// EntryTrailing is a trailing buy: it tracks the lowest low after the signal
// and enters once price rebounds RetracePct above it. Gives up after
// MaxWaitCandles candles, which must be positive.
type EntryTrailing struct {
	RetracePct     float64
	MaxWaitCandles int
}

// Entry rule kinds.
const (
	EntryKindImmediate = "immediate"
	EntryKindDelayed   = "delayed"
	EntryKindTrailing  = "trailing"
)

// EntryKind implements EntryRule.
func (EntryImmediate) EntryKind() string { return EntryKindImmediate }

// EntryKind implements EntryRule.
func (EntryDelayed) EntryKind() string { return EntryKindDelayed }

// EntryKind implements EntryRule.
func (EntryTrailing) EntryKind() string { return EntryKindTrailing }

func (EntryImmediate) isEntryRule() {}
func (EntryDelayed) isEntryRule()   {}
func (EntryTrailing) isEntryRule()  {}

// ExitRung sells SizeFraction of the original position once price reaches
// TriggerMultiple x entry price.
type ExitRung struct {
	TriggerMultiple float64
	SizeFraction    float64
}

// EntryRung buys SizeFraction of the planned notional once price drops to
// TriggerMultiple x initial entry price (TriggerMultiple < 1).
type EntryRung struct {
	TriggerMultiple float64
	SizeFraction    float64
}

// StopLoss combines the initial, trailing and hard stops. The effective stop
// is the highest of the three.
type StopLoss struct {
	InitialPct  float64       // 0.25 = stop at 75% of entry; 0 disables
	Trailing    *TrailingStop // nil disables trailing
	HardStopBps float64       // max drawdown from entry in bps; 0 disables
}

// TrailingStop activates at ActivationMultiple x entry and then ratchets to
// TrailBps below the highest observed price.
type TrailingStop struct {
	ActivationMultiple float64
	TrailBps           float64
}

// ReEntryPolicy re-opens a stopped position on a rebound of
// TrailingReEntryPct from the post-stop low.
type ReEntryPolicy struct {
	TrailingReEntryPct float64
	MaxReEntries       int
	SizePercent        float64 // of original notional, 0-100
}

// IntrabarPolicy decides which of a stop and a take-profit executes first
// when both lie inside the same candle's range.
type IntrabarPolicy string

// Intrabar policies.
const (
	IntrabarStopFirst     IntrabarPolicy = "STOP_FIRST"
	IntrabarTargetFirst   IntrabarPolicy = "TARGET_FIRST"
	IntrabarOpenProximity IntrabarPolicy = "OPEN_PROXIMITY"
)

// CostConfig parameterises the execution cost model.
type CostConfig struct {
	FeeBps          float64
	SlippageBps     float64
	VolumeImpactBps float64 // extra bps per unit of notional/volume participation
	Latency         *LatencyModel
	Failure         *FailureModel
	PartialFill     *PartialFillModel
}

// LatencyModel describes order latency as percentiles plus uniform jitter.
type LatencyModel struct {
	P50Ms    float64
	P90Ms    float64
	P99Ms    float64
	JitterMs float64
}

// FailureModel describes random fill failures.
type FailureModel struct {
	BaseRate             float64
	CongestionMultiplier float64
}

// PartialFillModel describes random partial fills.
type PartialFillModel struct {
	Probability float64
	MinFraction float64
	MaxFraction float64
}
