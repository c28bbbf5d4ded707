package engine

import "signal-replay-lab/internal/domain"

// touch is the outcome of intrabar conflict resolution.
type touch int

const (
	touchNone touch = iota
	touchTarget
	touchStop
)

// firstTouch decides whether the stop or the nearest target executes first
// in a candle. stop <= 0 disables the stop, target <= 0 disables the target.
func firstTouch(c domain.Candle, target, stop float64, policy domain.IntrabarPolicy) touch {
	stopHit := stop > 0 && c.Low <= stop
	targetHit := target > 0 && c.High >= target

	switch {
	case stopHit && targetHit:
		return resolveConflict(c, policy)
	case stopHit:
		return touchStop
	case targetHit:
		return touchTarget
	default:
		return touchNone
	}
}

// resolveConflict applies the intrabar policy when both levels lie inside the
// candle's range. OPEN_PROXIMITY assumes the path open -> nearer extreme ->
// farther extreme -> close.
func resolveConflict(c domain.Candle, policy domain.IntrabarPolicy) touch {
	switch policy {
	case domain.IntrabarTargetFirst:
		return touchTarget
	case domain.IntrabarOpenProximity:
		distHigh := abs(c.High - c.Open)
		distLow := abs(c.Open - c.Low)
		if distLow < distHigh {
			return touchStop
		}
		return touchTarget
	default:
		return touchStop
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
