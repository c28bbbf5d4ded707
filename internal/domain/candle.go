package domain

import "fmt"

// Candle is one OHLCV bar. Timestamp is the bar open time in Unix seconds.
type Candle struct {
	Timestamp int64   // open time (sec)
	Open      float64 // first trade price
	High      float64 // highest trade price
	Low       float64 // lowest trade price
	Close     float64 // last trade price
	Volume    float64 // base volume
}

// CloseTime returns the time at which the candle becomes observable.
func (c Candle) CloseTime(interval Interval) int64 {
	return c.Timestamp + interval.Seconds()
}

// Validate checks the OHLCV invariants.
func (c Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("candle %d: non-positive price", c.Timestamp)
	}
	if c.High < c.Low {
		return fmt.Errorf("candle %d: high %.10g < low %.10g", c.Timestamp, c.High, c.Low)
	}
	if c.Open < c.Low || c.Open > c.High {
		return fmt.Errorf("candle %d: open %.10g outside [low, high]", c.Timestamp, c.Open)
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("candle %d: close %.10g outside [low, high]", c.Timestamp, c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle %d: negative volume", c.Timestamp)
	}
	return nil
}

// Interval is a candle aggregation interval such as "1m" or "1h".
type Interval string

// Supported intervals.
const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Seconds returns the interval length, or 0 for an unknown interval.
func (i Interval) Seconds() int64 {
	switch i {
	case Interval1m:
		return 60
	case Interval5m:
		return 300
	case Interval15m:
		return 900
	case Interval1h:
		return 3600
	case Interval4h:
		return 14400
	case Interval1d:
		return 86400
	default:
		return 0
	}
}

// Valid reports whether the interval is supported.
func (i Interval) Valid() bool {
	return i.Seconds() > 0
}
