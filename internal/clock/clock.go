// Package clock provides the simulated time authority for a replay.
// Wall-clock time is never read; time only advances by observing candles.
package clock

import (
	"fmt"

	"signal-replay-lab/internal/domain"
)

// Resolution is the unit Since reports in.
type Resolution string

// Supported resolutions.
const (
	ResolutionMillisecond Resolution = "ms"
	ResolutionSecond      Resolution = "s"
	ResolutionMinute      Resolution = "m"
	ResolutionHour        Resolution = "h"
)

// Millis returns the resolution unit in milliseconds, or 0 if unknown.
func (r Resolution) Millis() int64 {
	switch r {
	case ResolutionMillisecond:
		return 1
	case ResolutionSecond:
		return 1000
	case ResolutionMinute:
		return 60_000
	case ResolutionHour:
		return 3_600_000
	default:
		return 0
	}
}

// ParseResolution parses a resolution string. Empty means seconds.
func ParseResolution(s string) (Resolution, error) {
	if s == "" {
		return ResolutionSecond, nil
	}
	r := Resolution(s)
	if r.Millis() == 0 {
		return "", domain.Errorf(domain.ErrConfiguration, "unknown clock resolution %q", s)
	}
	return r, nil
}

// Clock is a monotonic simulated clock. It counts observed candles so that
// hold and wait limits are expressed in candles rather than wall time.
type Clock struct {
	origin     int64 // seconds
	now        int64 // seconds
	resolution Resolution
	candles    int // number of observed candles
}

// New creates a clock positioned at originSec.
func New(originSec int64, resolution Resolution) (*Clock, error) {
	if resolution.Millis() == 0 {
		return nil, domain.Errorf(domain.ErrConfiguration, "unknown clock resolution %q", resolution)
	}
	return &Clock{
		origin:     originSec,
		now:        originSec,
		resolution: resolution,
	}, nil
}

// Origin returns the time the clock was created at.
func (c *Clock) Origin() int64 { return c.origin }

// Now returns the current simulated time in seconds.
func (c *Clock) Now() int64 { return c.now }

// Resolution returns the clock resolution.
func (c *Clock) Resolution() Resolution { return c.resolution }

// Observe advances the clock to the close time of a newly observed candle.
func (c *Clock) Observe(ts int64) error {
	if ts < c.now {
		return domain.WrapError(domain.ErrOrderingViolation,
			fmt.Errorf("clock cannot move backward: %d < %d", ts, c.now))
	}
	c.now = ts
	c.candles++
	return nil
}

// CandleIndex returns the index of the last observed candle, -1 before any.
func (c *Clock) CandleIndex() int {
	return c.candles - 1
}

// CandlesSince returns the number of candles observed after candle idx.
func (c *Clock) CandlesSince(idx int) int {
	return c.CandleIndex() - idx
}

// Since returns the elapsed simulated time since ts in resolution units.
func (c *Clock) Since(ts int64) int64 {
	return (c.now - ts) * 1000 / c.resolution.Millis()
}
