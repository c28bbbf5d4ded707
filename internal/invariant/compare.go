package invariant

import (
	"fmt"
	"math"

	"signal-replay-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons between a stored
// and a replayed result.
const FloatTolerance = 1e-9

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // field path, e.g. "Events[3].Price"
	Expected any    // stored value
	Actual   any    // replayed value
}

// Compare reports every field where replayed differs from stored.
// Used to verify that a persisted result still reproduces.
func Compare(stored, replayed *domain.BacktestResult) []FieldDivergence {
	var d []FieldDivergence
	str := func(field, a, b string) {
		if a != b {
			d = append(d, FieldDivergence{Field: field, Expected: a, Actual: b})
		}
	}
	num := func(field string, a, b float64) {
		if !floatEquals(a, b) {
			d = append(d, FieldDivergence{Field: field, Expected: a, Actual: b})
		}
	}
	integer := func(field string, a, b int64) {
		if a != b {
			d = append(d, FieldDivergence{Field: field, Expected: a, Actual: b})
		}
	}

	str("SignalID", stored.SignalID, replayed.SignalID)
	str("StrategyName", stored.StrategyName, replayed.StrategyName)
	num("EntryPrice", stored.EntryPrice, replayed.EntryPrice)
	num("FinalPrice", stored.FinalPrice, replayed.FinalPrice)
	num("FinalPnlMultiplier", stored.FinalPnlMultiplier, replayed.FinalPnlMultiplier)
	integer("TotalCandlesConsumed", int64(stored.TotalCandlesConsumed), int64(replayed.TotalCandlesConsumed))
	integer("len(Events)", int64(len(stored.Events)), int64(len(replayed.Events)))
	integer("len(Trades)", int64(len(stored.Trades)), int64(len(replayed.Trades)))

	for i := 0; i < min(len(stored.Events), len(replayed.Events)); i++ {
		a, b := stored.Events[i], replayed.Events[i]
		prefix := fmt.Sprintf("Events[%d].", i)
		str(prefix+"Kind", string(a.Kind), string(b.Kind))
		integer(prefix+"Timestamp", a.Timestamp, b.Timestamp)
		num(prefix+"Price", a.Price, b.Price)
		num(prefix+"Quantity", a.Quantity, b.Quantity)
		num(prefix+"RemainingPositionFraction", a.RemainingPositionFraction, b.RemainingPositionFraction)
		num(prefix+"CumulativePnl", a.CumulativePnl, b.CumulativePnl)
	}

	for i := 0; i < min(len(stored.Trades), len(replayed.Trades)); i++ {
		a, b := stored.Trades[i], replayed.Trades[i]
		prefix := fmt.Sprintf("Trades[%d].", i)
		integer(prefix+"EntryTime", a.EntryTime, b.EntryTime)
		integer(prefix+"ExitTime", a.ExitTime, b.ExitTime)
		num(prefix+"PnlMultiplier", a.PnlMultiplier, b.PnlMultiplier)
		str(prefix+"ExitReason", a.ExitReason, b.ExitReason)
	}

	return d
}

// floatEquals compares two float64 values with tolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
