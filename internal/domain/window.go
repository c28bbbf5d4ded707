package domain

// RollingWindow is one walk-forward (train, test) pair. Times are Unix
// seconds, ranges are half-open [from, to).
type RollingWindow struct {
	WindowID  string
	TrainFrom int64
	TrainTo   int64
	TestFrom  int64
	TestTo    int64
}
