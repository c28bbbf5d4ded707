package causal

import (
	"context"
	"fmt"

	"signal-replay-lab/internal/domain"
)

// Accessor is a time-gated, read-only view over a Series.
// The decision time only moves forward. Every query is bounded by it.
type Accessor struct {
	series *Series
	now    int64
}

// NewAccessor creates an accessor positioned at decision time t0.
func NewAccessor(series *Series, t0 int64) *Accessor {
	return &Accessor{series: series, now: t0}
}

// Now returns the current decision time.
func (a *Accessor) Now() int64 {
	return a.now
}

// AssetID returns the asset of the underlying series.
func (a *Accessor) AssetID() string {
	return a.series.assetID
}

// Interval returns the candle interval of the underlying series.
func (a *Accessor) Interval() domain.Interval {
	return a.series.interval
}

// Advance moves the decision time to t. Moving backward is an ordering violation.
func (a *Accessor) Advance(t int64) error {
	if t < a.now {
		return domain.WrapError(domain.ErrOrderingViolation,
			fmt.Errorf("%w: %d < %d", ErrTimeReversal, t, a.now))
	}
	a.now = t
	return nil
}

// CandlesUpTo returns a copy of every candle with close time <= t.
// t must not exceed the decision time.
func (a *Accessor) CandlesUpTo(t int64) ([]domain.Candle, error) {
	if err := a.checkVisible(t); err != nil {
		return nil, err
	}
	n := a.series.countClosedBy(t)
	out := make([]domain.Candle, n)
	copy(out, a.series.candles[:n])
	return out, nil
}

// LatestClosedBefore returns the most recent candle with close time <= t.
// ok is false when no candle has closed by t.
func (a *Accessor) LatestClosedBefore(t int64) (c domain.Candle, ok bool, err error) {
	if err := a.checkVisible(t); err != nil {
		return domain.Candle{}, false, err
	}
	n := a.series.countClosedBy(t)
	if n == 0 {
		return domain.Candle{}, false, nil
	}
	return a.series.candles[n-1], true, nil
}

// HasDataThrough reports whether the series contains a candle closing at or after t.
// It reveals only coverage, never prices.
func (a *Accessor) HasDataThrough(t int64) bool {
	n := len(a.series.candles)
	return n > 0 && a.series.closeTime(n-1) >= t
}

// FirstCloseTime returns the close time of the first candle.
func (a *Accessor) FirstCloseTime() (int64, bool) {
	if len(a.series.candles) == 0 {
		return 0, false
	}
	return a.series.closeTime(0), true
}

// NextCloseAfter returns the close time of the first candle closing after t.
// Only the timestamp is exposed, so a replay loop can step without seeing prices.
func (a *Accessor) NextCloseAfter(t int64) (int64, bool) {
	n := a.series.countClosedBy(t)
	if n >= len(a.series.candles) {
		return 0, false
	}
	return a.series.closeTime(n), true
}

func (a *Accessor) checkVisible(t int64) error {
	if t > a.now {
		return domain.WrapError(domain.ErrOrderingViolation,
			fmt.Errorf("%w: %d > %d", ErrLookAhead, t, a.now))
	}
	return nil
}

// CandleSource is the storage-side port that supplies raw candles.
// Only this package turns its output into something a replay can read.
type CandleSource interface {
	// GetRange returns candles for an asset with open time in [from, to], ordered by timestamp ASC.
	GetRange(ctx context.Context, assetID string, interval domain.Interval, from, to int64) ([]domain.Candle, error)
}

// Load fetches candles from src and wraps them in a Series.
func Load(ctx context.Context, src CandleSource, assetID string, interval domain.Interval, from, to int64) (*Series, error) {
	candles, err := src.GetRange(ctx, assetID, interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("load candles for %s: %w", assetID, err)
	}
	return NewSeries(assetID, interval, candles)
}
