// Package engine replays one signal through a compiled strategy plan,
// candle by candle, using only what the causal accessor reveals.
package engine

import (
	"errors"
	"fmt"

	"signal-replay-lab/internal/causal"
	"signal-replay-lab/internal/clock"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/execution"
	"signal-replay-lab/internal/rng"
)

// Version identifies the replay semantics. It is part of every SimID, so any
// change to fill or exit rules must bump it.
const Version = "engine-v1"

type phase int

const (
	phaseAwaitingEntry phase = iota
	phaseOpen
	phasePartiallyExited
	phaseAwaitingReEntry
	phaseClosed
)

// pendingEntry is a market entry deferred by latency.
type pendingEntry struct {
	atIdx    int // clock candle index whose close fills the order
	kind     domain.EventKind
	notional float64
	fill     execution.FillResult
}

// replay holds the mutable state of one Run.
type replay struct {
	plan  *Plan
	sig   domain.Signal
	acc   *causal.Accessor
	clk   *clock.Clock
	rng   *rng.RNG
	model *execution.Model

	phase   phase
	result  *domain.BacktestResult
	cycles  []*cycle
	cur     *cycle
	pending *pendingEntry

	cumPnl        float64
	reEntries     int
	watchLow      float64 // lowest low tracked by trailing entry or re-entry
	firstIdx      int     // first candle at or after the signal
	firstEntryIdx int     // first fill of the replay, for candle accounting
	finalEmitted  bool

	last      domain.Candle
	lastClose int64
}

// Run replays sig through plan. The accessor must be positioned at or
// before the signal time; the clock counts every candle the replay observes.
//
// A replay that never enters returns an empty result and no error.
// Look-ahead or time reversal aborts with domain.ErrOrderingViolation.
func Run(plan *Plan, sig domain.Signal, acc *causal.Accessor, clk *clock.Clock, r *rng.RNG, model *execution.Model) (*domain.BacktestResult, error) {
	if plan == nil {
		return nil, configErr("plan is nil")
	}
	if acc == nil || clk == nil || r == nil {
		return nil, errors.New("engine: accessor, clock and rng are required")
	}
	if model == nil {
		model = execution.NewModel(plan.Costs, domain.LaneConfigBaseline)
	}

	rp := &replay{
		plan:  plan,
		sig:   sig,
		acc:   acc,
		clk:   clk,
		rng:   r,
		model: model,
		result: &domain.BacktestResult{
			SignalID:     sig.ID,
			StrategyName: plan.Name,
			Seed:         r.Seed(),
			Events:       []domain.SimulationEvent{},
			Trades:       []domain.Trade{},
		},
		firstIdx:      -1,
		firstEntryIdx: -1,
	}

	if err := rp.loop(); err != nil {
		return nil, err
	}
	rp.finish()
	return rp.result, nil
}

func (rp *replay) loop() error {
	t := rp.acc.Now()
	for rp.phase != phaseClosed {
		next, ok := rp.acc.NextCloseAfter(t)
		if !ok {
			return nil
		}
		if err := rp.acc.Advance(next); err != nil {
			return err
		}
		if err := rp.clk.Observe(next); err != nil {
			return err
		}
		c, ok, err := rp.acc.LatestClosedBefore(next)
		if err != nil {
			return err
		}
		t = next
		if !ok || c.Timestamp < rp.sig.CreatedAt {
			continue
		}

		rp.last = c
		rp.lastClose = next
		rp.step(c, next)
	}
	return nil
}

func (rp *replay) step(c domain.Candle, now int64) {
	idx := rp.clk.CandleIndex()
	if rp.firstIdx < 0 {
		rp.firstIdx = idx
	}

	switch rp.phase {
	case phaseAwaitingEntry:
		rp.stepAwaitingEntry(c, now, idx)
	case phaseOpen, phasePartiallyExited:
		rp.stepHolding(c, now)
	case phaseAwaitingReEntry:
		rp.stepAwaitingReEntry(c, now, idx)
	}

	rp.checkMaxHold(c, now)
}

func (rp *replay) stepAwaitingEntry(c domain.Candle, now int64, idx int) {
	if rp.pending != nil {
		rp.fillPending(c, now, idx)
		return
	}

	switch e := rp.plan.Entry.(type) {
	case domain.EntryImmediate:
		rp.decideEntry(c, now, idx, c.Close, domain.EventEntry, 1, "entry at candle close")
	case domain.EntryDelayed:
		if rp.clk.CandlesSince(rp.firstIdx) >= e.Candles {
			rp.decideEntry(c, now, idx, c.Close, domain.EventEntry, 1,
				fmt.Sprintf("entry after %d candle delay", e.Candles))
		}
	case domain.EntryTrailing:
		if rp.clk.CandlesSince(rp.firstIdx) > e.MaxWaitCandles {
			rp.phase = phaseClosed
			return
		}
		if rp.watchLow > 0 {
			trigger := rp.watchLow * (1 + e.RetracePct)
			if c.High >= trigger {
				rp.decideEntry(c, now, idx, max(trigger, c.Open), domain.EventTrailingEntryTriggered, 1,
					fmt.Sprintf("rebound %.4g%% from low %.10g", e.RetracePct*100, rp.watchLow))
				return
			}
		}
		rp.trackLow(c)
	}
}

func (rp *replay) stepAwaitingReEntry(c domain.Candle, now int64, idx int) {
	if rp.pending != nil {
		rp.fillPending(c, now, idx)
		return
	}

	re := rp.plan.ReEntry
	trigger := rp.watchLow * (1 + re.TrailingReEntryPct)
	if c.High >= trigger {
		rp.reEntries++
		rp.decideEntry(c, now, idx, max(trigger, c.Open), domain.EventReEntry, re.SizePercent/100,
			fmt.Sprintf("re-entry %d/%d after rebound from %.10g", rp.reEntries, re.MaxReEntries, rp.watchLow))
		return
	}
	rp.trackLow(c)
}

func (rp *replay) trackLow(c domain.Candle) {
	if rp.watchLow == 0 || c.Low < rp.watchLow {
		rp.watchLow = c.Low
	}
}

// decideEntry submits a market entry. Without latency it fills at raw on
// this candle, otherwise it fills at the close of a later candle.
func (rp *replay) decideEntry(c domain.Candle, now int64, idx int, raw float64, kind domain.EventKind, notional float64, desc string) {
	fill := rp.model.Fill(execution.FillRequest{
		Key:          fmt.Sprintf("c%d/entry", len(rp.cycles)),
		Side:         execution.SideBuy,
		Kind:         execution.KindMarket,
		RawPrice:     raw,
		Notional:     notional,
		CandleLow:    c.Low,
		CandleVolume: c.Volume,
		IntervalSec:  rp.acc.Interval().Seconds(),
	}, rp.rng)

	if fill.LatencyCandles > 0 {
		rp.pending = &pendingEntry{
			atIdx:    idx + fill.LatencyCandles,
			kind:     kind,
			notional: notional,
			fill:     fill,
		}
		return
	}
	rp.openCycle(now, fill.Price, fill.FeeRate, kind, notional, desc)
}

func (rp *replay) fillPending(c domain.Candle, now int64, idx int) {
	p := rp.pending
	if idx < p.atIdx {
		return
	}
	rp.pending = nil
	price := p.fill.Reprice(c.Close, execution.SideBuy)
	rp.openCycle(now, price, p.fill.FeeRate, p.kind, p.notional,
		fmt.Sprintf("fill delayed %d candles by latency", p.fill.LatencyCandles))
}

func (rp *replay) openCycle(now int64, price, feeRate float64, kind domain.EventKind, notional float64, desc string) {
	idx := rp.clk.CandleIndex()
	cy := newCycle(len(rp.cycles), notional, rp.plan)
	cy.refPrice = price
	cy.entryIdx = idx
	cy.entryTime = now
	cy.highest = price

	fraction := 1.0
	if cy.index == 0 {
		fraction = rp.plan.InitialFraction
	} else {
		for i := range cy.entryRungsDone {
			cy.entryRungsDone[i] = true
		}
	}

	qty, value, fee := cy.buy(price, notional*fraction, feeRate)
	rp.cycles = append(rp.cycles, cy)
	rp.cur = cy
	rp.phase = phaseOpen
	if rp.firstEntryIdx < 0 {
		rp.firstEntryIdx = idx
	}

	rp.emit(kind, now, price, qty, value, fee, desc)
}

func (rp *replay) stepHolding(c domain.Candle, now int64) {
	cy := rp.cur
	rp.fillEntryLadder(c, now, cy)

	for !cy.flat() {
		stop := cy.stopLevel(rp.plan)
		j := cy.nextExitRung()
		var target float64
		if j >= 0 {
			target = cy.refPrice * rp.plan.ExitLadder[j].TriggerMultiple
		}

		switch firstTouch(c, target, stop, rp.plan.Intrabar) {
		case touchStop:
			rp.fillStop(c, now, stop)
			return
		case touchTarget:
			rp.fillExitRung(c, now, j, target)
			if rp.phase == phaseClosed {
				return
			}
			continue
		}
		break
	}

	rp.updateTrailingStop(c, now, cy)
}

// fillEntryLadder buys the rungs the candle reached. A rung at or below a
// stop the candle also reached is never bought: the price crosses the stop
// first and the stop closes the cycle.
func (rp *replay) fillEntryLadder(c domain.Candle, now int64, cy *cycle) {
	stop := cy.stopLevel(rp.plan)
	for j, rung := range rp.plan.EntryLadder {
		if cy.entryRungsDone[j] {
			continue
		}
		level := cy.refPrice * rung.TriggerMultiple
		if c.Low > level {
			return
		}
		if stop > 0 && c.Low <= stop && level <= stop {
			return
		}
		cy.entryRungsDone[j] = true

		key := fmt.Sprintf("c%d/ladder/%d", cy.index, j)
		notional := cy.notional * rung.SizeFraction
		fill := rp.model.Fill(execution.FillRequest{
			Key:          key,
			Side:         execution.SideBuy,
			Kind:         execution.KindLimit,
			RawPrice:     level,
			Notional:     notional,
			CandleLow:    c.Low,
			CandleVolume: c.Volume,
			IntervalSec:  rp.acc.Interval().Seconds(),
		}, rp.rng)
		rp.recordDegradation(now, key, fill)
		if fill.Failed {
			continue
		}

		qty, value, fee := cy.buy(fill.Price, notional*fill.FilledFraction, fill.FeeRate)
		rp.emit(domain.EventLadderEntry, now, fill.Price, qty, value, fee,
			fmt.Sprintf("entry rung %d at %.4gx", j, rung.TriggerMultiple))
	}
}

func (rp *replay) fillExitRung(c domain.Candle, now int64, j int, target float64) {
	cy := rp.cur
	rung := rp.plan.ExitLadder[j]
	cy.exitRungsDone[j] = true

	key := fmt.Sprintf("c%d/exit/%d", cy.index, j)
	qty := min(rung.SizeFraction*cy.bought, cy.held)
	fill := rp.model.Fill(execution.FillRequest{
		Key:          key,
		Side:         execution.SideSell,
		Kind:         execution.KindLimit,
		RawPrice:     target,
		Notional:     qty * target,
		CandleLow:    c.Low,
		CandleVolume: c.Volume,
		IntervalSec:  rp.acc.Interval().Seconds(),
	}, rp.rng)
	rp.recordDegradation(now, key, fill)
	if fill.Failed {
		return
	}

	value, fee, realised := cy.sell(fill.Price, qty*fill.FilledFraction, fill.FeeRate)
	rp.cumPnl += realised
	rp.emit(domain.EventTargetHit, now, fill.Price, qty*fill.FilledFraction, value, fee,
		fmt.Sprintf("exit rung %d at %.4gx", j, rung.TriggerMultiple))

	if cy.flat() {
		rp.closeCycle(now, domain.ExitReasonLadder)
		rp.phase = phaseClosed
		return
	}
	rp.phase = phasePartiallyExited
}

func (rp *replay) fillStop(c domain.Candle, now int64, stop float64) {
	cy := rp.cur
	qty := cy.held
	fill := rp.model.Fill(execution.FillRequest{
		Key:          fmt.Sprintf("c%d/stop", cy.index),
		Side:         execution.SideSell,
		Kind:         execution.KindStop,
		RawPrice:     stop,
		Notional:     qty * stop,
		CandleLow:    c.Low,
		CandleVolume: c.Volume,
		IntervalSec:  rp.acc.Interval().Seconds(),
	}, rp.rng)

	value, fee, realised := cy.sell(fill.Price, qty, fill.FeeRate)
	rp.cumPnl += realised
	desc := fmt.Sprintf("stop at %.10g", stop)
	if fill.StopGapped {
		desc += " (gapped)"
	}
	rp.emit(domain.EventStopLoss, now, fill.Price, qty, value, fee, desc)
	rp.closeCycle(now, domain.ExitReasonStopLoss)

	if re := rp.plan.ReEntry; re != nil && rp.reEntries < re.MaxReEntries {
		rp.phase = phaseAwaitingReEntry
		rp.watchLow = c.Low
		return
	}
	rp.phase = phaseClosed
}

// updateTrailingStop ratchets the trailing stop after the candle's exit
// checks, so a candle never triggers the stop it raised.
func (rp *replay) updateTrailingStop(c domain.Candle, now int64, cy *cycle) {
	ts := rp.plan.Trailing
	if ts == nil || cy.flat() {
		return
	}

	before := cy.stopLevel(rp.plan)
	cy.highest = max(cy.highest, c.High)
	if !cy.trailActive && cy.highest >= cy.refPrice*ts.ActivationMultiple {
		cy.trailActive = true
	}
	if cy.trailActive {
		cy.trailStop = max(cy.trailStop, cy.highest*(1-ts.TrailBps/10_000))
	}

	if after := cy.stopLevel(rp.plan); after > before {
		rp.emit(domain.EventStopMoved, now, after, 0, 0, 0,
			fmt.Sprintf("stop raised to %.10g", after))
	}
}

// checkMaxHold force-closes the open cycle MaxHoldCandles candles after its
// own entry. Each re-entry starts a fresh hold; no hold runs while flat.
func (rp *replay) checkMaxHold(c domain.Candle, now int64) {
	hold := rp.plan.MaxHoldCandles
	cy := rp.cur
	if hold <= 0 || cy == nil || rp.phase == phaseClosed {
		return
	}
	if rp.clk.CandlesSince(cy.entryIdx) < hold {
		return
	}

	rp.finalExit(c, now, domain.ExitReasonMaxHold)
	rp.phase = phaseClosed
}

func (rp *replay) finish() {
	if len(rp.cycles) == 0 {
		rp.result.Events = []domain.SimulationEvent{}
		rp.result.Trades = []domain.Trade{}
		rp.result.Degradations = nil
		return
	}

	if !rp.finalEmitted {
		rp.finalExit(rp.last, rp.lastClose, domain.ExitReasonDataEnd)
	}

	var invested, returned float64
	for _, cy := range rp.cycles {
		invested += cy.invested
		returned += cy.returned
	}

	res := rp.result
	res.EntryPrice = rp.cycles[0].refPrice
	res.FinalPrice = res.Events[len(res.Events)-1].Price
	if invested > 0 {
		res.FinalPnlMultiplier = returned / invested
	}
	res.TotalCandlesConsumed = rp.clk.CandleIndex() - rp.firstEntryIdx + 1
}

// finalExit closes any open position at the candle close and always emits a
// final_exit event, as a zero-size marker when already flat.
func (rp *replay) finalExit(c domain.Candle, now int64, reason string) {
	rp.finalEmitted = true
	cy := rp.cur

	if cy == nil || cy.flat() {
		rp.emit(domain.EventFinalExit, now, c.Close, 0, 0, 0, "final exit marker, position already flat")
		return
	}

	qty := cy.held
	fill := rp.model.Fill(execution.FillRequest{
		Key:          fmt.Sprintf("c%d/final", cy.index),
		Side:         execution.SideSell,
		Kind:         execution.KindFinal,
		RawPrice:     c.Close,
		Notional:     qty * c.Close,
		CandleLow:    c.Low,
		CandleVolume: c.Volume,
		IntervalSec:  rp.acc.Interval().Seconds(),
	}, rp.rng)

	value, fee, realised := cy.sell(fill.Price, qty, fill.FeeRate)
	rp.cumPnl += realised
	rp.emit(domain.EventFinalExit, now, fill.Price, qty, value, fee, "final exit: "+reason)
	rp.closeCycle(now, reason)
}

func (rp *replay) closeCycle(now int64, reason string) {
	cy := rp.cur
	cy.exitTime = now
	rp.result.Trades = append(rp.result.Trades, cy.trade(reason))
	rp.cur = nil
}

func (rp *replay) emit(kind domain.EventKind, now int64, price, qty, value, fee float64, desc string) {
	var remaining float64
	if rp.cur != nil {
		remaining = rp.cur.remainingFraction()
	}
	rp.result.Events = append(rp.result.Events, domain.SimulationEvent{
		Kind:                      kind,
		Timestamp:                 now,
		Price:                     price,
		Quantity:                  qty,
		Value:                     value,
		Fee:                       fee,
		RemainingPositionFraction: remaining,
		CumulativePnl:             rp.cumPnl,
		Description:               desc,
	})
}

func (rp *replay) recordDegradation(now int64, leg string, fill execution.FillResult) {
	if !fill.Degraded() {
		return
	}
	rp.result.Degradations = append(rp.result.Degradations, domain.Degradation{
		Timestamp:      now,
		Leg:            leg,
		Failed:         fill.Failed,
		FilledFraction: fill.FilledFraction,
	})
}
