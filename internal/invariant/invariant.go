// Package invariant validates completed replay results. Violations are
// returned as values so a batch caller can log and continue.
package invariant

import (
	"fmt"
	"math"

	"signal-replay-lab/internal/domain"
)

// Rule names.
const (
	RulePnlNonNegative       = "PNL_NON_NEGATIVE"
	RuleEntryPricePositive   = "ENTRY_PRICE_POSITIVE"
	RuleFinalPricePositive   = "FINAL_PRICE_POSITIVE"
	RuleTimestampsMonotonic  = "TIMESTAMPS_MONOTONIC"
	RuleFirstEventIsEntry    = "FIRST_EVENT_IS_ENTRY"
	RuleExitPnlMonotonic     = "EXIT_PNL_MONOTONIC"
	RuleCandlesConsumed      = "CANDLES_CONSUMED"
	RuleEventPricePositive   = "EVENT_PRICE_POSITIVE"
	RuleEventQuantityNonNeg  = "EVENT_QUANTITY_NON_NEGATIVE"
	RuleEventValueConsistent = "EVENT_VALUE_CONSISTENT"
)

// valueTolerance is the relative tolerance for value ~= price * quantity.
const valueTolerance = 0.01

// Violation is one failed rule. EventIndex is -1 for result-level rules.
type Violation struct {
	Rule       string
	EventIndex int
	Message    string
}

// String formats the violation for logs.
func (v Violation) String() string {
	if v.EventIndex < 0 {
		return fmt.Sprintf("%s: %s", v.Rule, v.Message)
	}
	return fmt.Sprintf("%s at event %d: %s", v.Rule, v.EventIndex, v.Message)
}

// Options tunes the checker.
//
// The exit PnL rule requires cumulative PnL to be non-decreasing across exit
// events, which a stop-loss after a profitable rung breaks. It stays on by
// default; AllowExitPnlDecrease turns it off.
type Options struct {
	AllowExitPnlDecrease bool
}

// Check validates res with default options. An empty result is valid.
func Check(res *domain.BacktestResult) []Violation {
	return Options{}.Check(res)
}

// Check validates res. Every rule is evaluated independently.
func (o Options) Check(res *domain.BacktestResult) []Violation {
	if res == nil || res.Empty() {
		return nil
	}

	var out []Violation
	add := func(rule string, idx int, format string, args ...any) {
		out = append(out, Violation{Rule: rule, EventIndex: idx, Message: fmt.Sprintf(format, args...)})
	}

	if res.FinalPnlMultiplier < 0 || math.IsNaN(res.FinalPnlMultiplier) {
		add(RulePnlNonNegative, -1, "final pnl multiplier %v", res.FinalPnlMultiplier)
	}
	if !(res.EntryPrice > 0) {
		add(RuleEntryPricePositive, -1, "entry price %v", res.EntryPrice)
	}
	if !(res.FinalPrice > 0) {
		add(RuleFinalPricePositive, -1, "final price %v", res.FinalPrice)
	}
	if res.TotalCandlesConsumed <= 0 {
		add(RuleCandlesConsumed, -1, "total candles consumed %d", res.TotalCandlesConsumed)
	}
	if first := res.Events[0]; !first.Kind.IsEntry() {
		add(RuleFirstEventIsEntry, 0, "first event is %s", first.Kind)
	}

	lastExitPnl := math.Inf(-1)
	for i, e := range res.Events {
		if i > 0 && e.Timestamp < res.Events[i-1].Timestamp {
			add(RuleTimestampsMonotonic, i, "timestamp %d before %d", e.Timestamp, res.Events[i-1].Timestamp)
		}
		if !(e.Price > 0) {
			add(RuleEventPricePositive, i, "%s price %v", e.Kind, e.Price)
		}
		if e.Quantity < 0 || math.IsNaN(e.Quantity) {
			add(RuleEventQuantityNonNeg, i, "%s quantity %v", e.Kind, e.Quantity)
		}
		expected := e.Price * e.Quantity
		if math.Abs(e.Value-expected) > valueTolerance*math.Abs(expected)+1e-12 {
			add(RuleEventValueConsistent, i, "%s value %v, price*quantity %v", e.Kind, e.Value, expected)
		}
		if e.Kind.IsExit() {
			if !o.AllowExitPnlDecrease && e.CumulativePnl < lastExitPnl {
				add(RuleExitPnlMonotonic, i, "cumulative pnl fell from %v to %v", lastExitPnl, e.CumulativePnl)
			}
			lastExitPnl = e.CumulativePnl
		}
	}

	return out
}

// Strings renders violations for BacktestResult.Violations.
func Strings(vs []Violation) []string {
	if len(vs) == 0 {
		return nil
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}
