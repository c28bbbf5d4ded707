package causal

import "errors"

// Errors returned by the accessor. Ordering errors are wrapped in
// domain.ErrOrderingViolation, data errors in domain.ErrDataGap.
var (
	ErrLookAhead       = errors.New("requested time is after the decision time")
	ErrTimeReversal    = errors.New("decision time cannot move backward")
	ErrUnsortedSeries  = errors.New("candles are not strictly ascending by timestamp")
	ErrInvalidCandle   = errors.New("candle violates OHLCV invariants")
	ErrUnknownInterval = errors.New("unknown candle interval")
)
