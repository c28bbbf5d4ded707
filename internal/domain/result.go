package domain

// EventKind tags a SimulationEvent.
type EventKind string

// Event kinds.
const (
	EventEntry                  EventKind = "entry"
	EventLadderEntry            EventKind = "ladder_entry"
	EventTargetHit              EventKind = "target_hit"
	EventStopMoved              EventKind = "stop_moved"
	EventStopLoss               EventKind = "stop_loss"
	EventTrailingEntryTriggered EventKind = "trailing_entry_triggered"
	EventReEntry                EventKind = "re_entry"
	EventFinalExit              EventKind = "final_exit"
)

// IsEntry reports whether the kind opens or adds to a position.
func (k EventKind) IsEntry() bool {
	switch k {
	case EventEntry, EventLadderEntry, EventTrailingEntryTriggered, EventReEntry:
		return true
	}
	return false
}

// IsExit reports whether the kind reduces or closes a position.
func (k EventKind) IsExit() bool {
	switch k {
	case EventTargetHit, EventStopLoss, EventFinalExit:
		return true
	}
	return false
}

// SimulationEvent is one entry in the append-only replay log.
type SimulationEvent struct {
	Kind                      EventKind
	Timestamp                 int64   // decision time (sec)
	Price                     float64 // fill price after slippage
	Quantity                  float64 // asset units
	Value                     float64 // Price * Quantity
	Fee                       float64 // fee paid on this fill
	RemainingPositionFraction float64 // of the cycle's original quantity
	CumulativePnl             float64 // realised PnL in notional units
	Description               string
}

// Trade summarises one position cycle (initial entry or a re-entry).
type Trade struct {
	Index         int
	EntryTime     int64
	EntryPrice    float64 // average fill price
	ExitTime      int64
	ExitPrice     float64 // average exit price
	Invested      float64 // notional spent incl. fees
	Returned      float64 // notional received net of fees
	PnlMultiplier float64 // Returned / Invested
	ExitReason    string
}

// Exit reason codes.
const (
	ExitReasonLadder   = "LADDER"
	ExitReasonStopLoss = "STOP_LOSS"
	ExitReasonMaxHold  = "MAX_HOLD"
	ExitReasonDataEnd  = "DATA_END"
)

// Degradation records a simulated fill failure or partial fill.
type Degradation struct {
	Timestamp      int64
	Leg            string  // fill key, e.g. "c0/exit/1"
	Failed         bool    // true = no fill at all
	FilledFraction float64 // of the requested size
}

// BacktestResult is the immutable output of one replay.
type BacktestResult struct {
	SignalID             string
	StrategyName         string
	Seed                 uint64
	Events               []SimulationEvent
	EntryPrice           float64
	FinalPrice           float64
	FinalPnlMultiplier   float64 // 1.0 = breakeven
	TotalCandlesConsumed int
	Trades               []Trade
	Degradations         []Degradation
	Violations           []string // invariant check output, empty when valid
}

// Empty reports whether no position was ever opened.
func (r *BacktestResult) Empty() bool {
	return len(r.Events) == 0
}

// NetReturn returns FinalPnlMultiplier - 1, or 0 for an empty result.
func (r *BacktestResult) NetReturn() float64 {
	if r.Empty() {
		return 0
	}
	return r.FinalPnlMultiplier - 1
}
