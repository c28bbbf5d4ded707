// Package causal provides the only read path from a candle series into a
// replay. A Series cannot be read directly; every read goes through an
// Accessor, which is gated by a monotonically advancing decision time and
// never returns a candle whose close time is after that time.
package causal

import (
	"fmt"

	"signal-replay-lab/internal/domain"
)

// Series is an immutable, validated candle series for one (asset, interval).
// Its candles are unexported: the package offers no way to read them except
// through an Accessor.
type Series struct {
	assetID  string
	interval domain.Interval
	candles  []domain.Candle
}

// NewSeries validates and copies candles into a Series.
// Candles must be strictly ascending by timestamp and satisfy the OHLCV
// invariants; violations are reported as domain.ErrDataGap.
func NewSeries(assetID string, interval domain.Interval, candles []domain.Candle) (*Series, error) {
	if !interval.Valid() {
		return nil, domain.WrapError(domain.ErrDataGap, fmt.Errorf("%w: %q", ErrUnknownInterval, interval))
	}

	copied := make([]domain.Candle, len(candles))
	copy(copied, candles)

	for i, c := range copied {
		if err := c.Validate(); err != nil {
			return nil, domain.WrapError(domain.ErrDataGap, fmt.Errorf("%w: %v", ErrInvalidCandle, err))
		}
		if i > 0 && c.Timestamp <= copied[i-1].Timestamp {
			return nil, domain.WrapError(domain.ErrDataGap,
				fmt.Errorf("%w: %d after %d", ErrUnsortedSeries, c.Timestamp, copied[i-1].Timestamp))
		}
	}

	return &Series{
		assetID:  assetID,
		interval: interval,
		candles:  copied,
	}, nil
}

// AssetID returns the asset the series belongs to.
func (s *Series) AssetID() string { return s.assetID }

// Interval returns the candle interval.
func (s *Series) Interval() domain.Interval { return s.interval }

// Len returns the number of candles in the series.
func (s *Series) Len() int { return len(s.candles) }

// closeTime returns the close time of candle i.
func (s *Series) closeTime(i int) int64 {
	return s.candles[i].CloseTime(s.interval)
}

// countClosedBy returns the number of candles with close time <= t.
// Binary search (upper bound on close time).
func (s *Series) countClosedBy(t int64) int {
	low, high := 0, len(s.candles)
	for low < high {
		mid := (low + high) / 2
		if s.closeTime(mid) <= t {
			low = mid + 1
		} else {
			high = mid
		}
	}
	return low
}
