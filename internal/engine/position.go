package engine

import "signal-replay-lab/internal/domain"

// dustEpsilon treats a relative remaining quantity below it as flat.
const dustEpsilon = 1e-12

// cycle is one position lifecycle: the initial entry or a re-entry, plus
// its ladder fills, until the position is flat again.
type cycle struct {
	index     int
	notional  float64 // planned notional for the cycle
	refPrice  float64 // first fill price, reference for multiples and stops
	entryIdx  int     // clock candle index of the first fill
	entryTime int64

	held   float64 // asset units currently held
	bought float64 // asset units bought over the cycle
	sold   float64 // asset units sold over the cycle

	costBasis float64 // invested notional attributable to held units
	invested  float64 // buy value + buy fees
	returned  float64 // sell value - sell fees
	buyValue  float64
	sellValue float64
	exitTime  int64

	entryRungsDone []bool
	exitRungsDone  []bool

	highest     float64 // highest high since entry
	trailActive bool
	trailStop   float64
}

func newCycle(index int, notional float64, plan *Plan) *cycle {
	return &cycle{
		index:          index,
		notional:       notional,
		entryRungsDone: make([]bool, len(plan.EntryLadder)),
		exitRungsDone:  make([]bool, len(plan.ExitLadder)),
	}
}

// buy records a fill that spends notional (fees included) at price.
func (c *cycle) buy(price, notional, feeRate float64) (qty, value, fee float64) {
	value = notional / (1 + feeRate)
	fee = notional - value
	qty = value / price

	c.held += qty
	c.bought += qty
	c.invested += notional
	c.costBasis += notional
	c.buyValue += value
	return qty, value, fee
}

// sell records a fill of qty units at price and returns the realised PnL
// of the sold units against their share of cost basis.
func (c *cycle) sell(price, qty, feeRate float64) (value, fee, realised float64) {
	if qty > c.held {
		qty = c.held
	}
	value = price * qty
	fee = value * feeRate
	proceeds := value - fee

	var basis float64
	if c.held > 0 {
		basis = c.costBasis * qty / c.held
	}
	c.costBasis -= basis
	c.held -= qty
	c.sold += qty
	c.returned += proceeds
	c.sellValue += value

	if c.flat() {
		c.held = 0
		c.costBasis = 0
	}
	return value, fee, proceeds - basis
}

func (c *cycle) flat() bool {
	return c.bought == 0 || c.held <= c.bought*dustEpsilon
}

// remainingFraction is the held share of everything bought in the cycle.
func (c *cycle) remainingFraction() float64 {
	if c.bought == 0 {
		return 0
	}
	if c.flat() {
		return 0
	}
	return c.held / c.bought
}

// stopLevel returns the effective stop: the highest of the initial, hard
// and trailing stops, or 0 when none is configured.
func (c *cycle) stopLevel(plan *Plan) float64 {
	var stop float64
	if plan.InitialStopPct > 0 {
		stop = c.refPrice * (1 - plan.InitialStopPct)
	}
	if plan.HardStopBps > 0 {
		stop = max(stop, c.refPrice*(1-plan.HardStopBps/10_000))
	}
	if c.trailActive {
		stop = max(stop, c.trailStop)
	}
	return stop
}

// nextExitRung returns the index of the lowest unfired exit rung, or -1.
func (c *cycle) nextExitRung() int {
	for i, done := range c.exitRungsDone {
		if !done {
			return i
		}
	}
	return -1
}

func (c *cycle) trade(reason string) domain.Trade {
	t := domain.Trade{
		Index:      c.index,
		EntryTime:  c.entryTime,
		ExitTime:   c.exitTime,
		Invested:   c.invested,
		Returned:   c.returned,
		ExitReason: reason,
	}
	if c.bought > 0 {
		t.EntryPrice = c.buyValue / c.bought
	}
	if c.sold > 0 {
		t.ExitPrice = c.sellValue / c.sold
	}
	if c.invested > 0 {
		t.PnlMultiplier = c.returned / c.invested
	}
	return t
}
