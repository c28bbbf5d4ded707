// Package replay is the entry point for running signals through strategies.
// It wires the causal accessor, clock, RNG and cost model into the engine and
// validates every result before returning it.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"signal-replay-lab/internal/causal"
	"signal-replay-lab/internal/clock"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/engine"
	"signal-replay-lab/internal/execution"
	"signal-replay-lab/internal/invariant"
	"signal-replay-lab/internal/logger"
	"signal-replay-lab/internal/observability"
	"signal-replay-lab/internal/rng"
)

// Replay status labels.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// RunConfig holds the run parameters of a replay.
type RunConfig struct {
	Seed       uint64
	SeedString string           // overrides Seed when set
	Resolution clock.Resolution // default: seconds
	Interval   domain.Interval  // candle interval for source-backed runs
	Lane       domain.StressLane
	ErrorMode  domain.ErrorMode // batch runs only
	Invariants invariant.Options
}

// EffectiveSeed returns the seed the replay will use.
func (c RunConfig) EffectiveSeed() uint64 {
	if c.SeedString != "" {
		return rng.SeedFromString(c.SeedString)
	}
	return c.Seed
}

// Runner executes replays.
type Runner struct {
	source causal.CandleSource
	log    *zap.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source causal.CandleSource // needed by RunSignal and RunBatch
	Logger *zap.Logger
}

// NewRunner creates a replay runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{
		source: opts.Source,
		log:    logger.OrNop(opts.Logger),
	}
}

// RunReplay replays one signal over acc.
// Steps:
//  1. Compile the strategy (configuration errors abort before any candle is read)
//  2. Seed the clock from the first candle and the RNG from the run config
//  3. Run the engine
//  4. Check invariants; violations are logged and returned in the result
//
// An accessor without candles yields an empty result and no error.
func (r *Runner) RunReplay(ctx context.Context, sig domain.Signal, strat domain.Strategy, acc *causal.Accessor, cfg RunConfig) (*domain.BacktestResult, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan, err := engine.Compile(strat)
	if err != nil {
		observability.RecordReplay(StatusFailed, time.Since(start).Seconds(), 0)
		return nil, err
	}

	resolution := cfg.Resolution
	if resolution == "" {
		resolution = clock.ResolutionSecond
	}
	origin := acc.Now()
	if first, ok := acc.FirstCloseTime(); ok {
		origin = min(origin, first-acc.Interval().Seconds())
	}
	clk, err := clock.New(origin, resolution)
	if err != nil {
		return nil, err
	}

	seed := cfg.EffectiveSeed()
	result, err := engine.Run(plan, sig, acc, clk, rng.New(seed), execution.NewModel(plan.Costs, cfg.Lane))
	if err != nil {
		r.log.Error("replay aborted",
			zap.String("signal_id", sig.ID),
			zap.String("strategy", plan.Name),
			zap.Error(err))
		observability.RecordReplay(StatusFailed, time.Since(start).Seconds(), 0)
		return nil, err
	}

	violations := cfg.Invariants.Check(result)
	for _, v := range violations {
		r.log.Warn("invariant violation",
			zap.String("signal_id", sig.ID),
			zap.String("strategy", plan.Name),
			zap.String("rule", v.Rule),
			zap.Int("event_index", v.EventIndex),
			zap.String("detail", v.Message))
		observability.RecordInvariantViolation(v.Rule)
	}
	result.Violations = invariant.Strings(violations)

	for _, d := range result.Degradations {
		observability.RecordFillDegradation(d.Failed)
	}

	status := StatusSuccess
	if result.Empty() {
		status = StatusEmpty
	}
	observability.RecordReplay(status, time.Since(start).Seconds(), result.TotalCandlesConsumed)
	r.log.Debug("replay complete",
		zap.String("signal_id", sig.ID),
		zap.String("strategy", plan.Name),
		zap.String("lane", cfg.Lane.Name),
		zap.Uint64("seed", seed),
		zap.Int("events", len(result.Events)),
		zap.Float64("pnl_multiplier", result.FinalPnlMultiplier))

	return result, nil
}

// RunSignal loads candles for sig from the runner's source, covering
// [sig.CreatedAt, until], and replays it. A signal without any candles in
// that range is a domain.ErrDataGap.
func (r *Runner) RunSignal(ctx context.Context, sig domain.Signal, strat domain.Strategy, until int64, cfg RunConfig) (*domain.BacktestResult, error) {
	if r.source == nil {
		return nil, errors.New("replay: runner has no candle source")
	}
	interval := cfg.Interval
	if interval == "" {
		interval = domain.Interval1m
	}

	series, err := causal.Load(ctx, r.source, sig.AssetID, interval, sig.CreatedAt, until)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, domain.Errorf(domain.ErrDataGap, "no %s candles for %s in [%d, %d]", interval, sig.AssetID, sig.CreatedAt, until)
	}

	return r.RunReplay(ctx, sig, strat, causal.NewAccessor(series, sig.CreatedAt), cfg)
}

// BatchResult is the outcome of RunBatch.
type BatchResult struct {
	Results []*domain.BacktestResult // successful replays, in signal order
	Summary domain.Summary
}

// RunBatch replays every signal up to until. Each signal gets its own seed
// derived from the batch seed and the signal id, so signal order does not
// affect any individual result.
//
// Cancellation is checked between replays. Under ErrorModeFailFast the first
// failure aborts the batch; data gaps are always recorded as skipped.
func (r *Runner) RunBatch(ctx context.Context, signals []domain.Signal, strat domain.Strategy, until int64, cfg RunConfig) (*BatchResult, error) {
	out := &BatchResult{}
	batchSeed := cfg.EffectiveSeed()

	for _, sig := range signals {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		itemCfg := cfg
		itemCfg.SeedString = ""
		itemCfg.Seed = rng.SeedFromString(fmt.Sprintf("%d|%s", batchSeed, sig.ID))

		res, err := r.RunSignal(ctx, sig, strat, until, itemCfg)
		switch {
		case err == nil:
			out.Results = append(out.Results, res)
			out.Summary.Succeeded++
		case errors.Is(err, domain.ErrDataGap):
			out.Summary.Skipped++
			out.Summary.Failures = append(out.Summary.Failures, domain.ItemFailure{ItemID: sig.ID, Error: err.Error(), Skipped: true})
			observability.RecordReplay(StatusSkipped, 0, 0)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return out, err
		default:
			out.Summary.Failed++
			out.Summary.Failures = append(out.Summary.Failures, domain.ItemFailure{ItemID: sig.ID, Error: err.Error()})
			r.log.Warn("replay failed",
				zap.String("signal_id", sig.ID),
				zap.Error(err))
			if cfg.ErrorMode == domain.ErrorModeFailFast {
				return out, fmt.Errorf("signal %s: %w", sig.ID, err)
			}
		}
	}

	return out, nil
}
