package domain

// ItemFailure records one batch item that did not produce a result.
type ItemFailure struct {
	ItemID  string `json:"itemId"`
	Error   string `json:"error"`
	Skipped bool   `json:"skipped,omitempty"` // data gap, not a failure
}

// Summary counts batch outcomes. Failures are never dropped silently.
type Summary struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// Merge adds other's counts and failures into s.
func (s *Summary) Merge(other Summary) {
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.Failures = append(s.Failures, other.Failures...)
}

// Total returns the number of items processed.
func (s Summary) Total() int {
	return s.Succeeded + s.Failed + s.Skipped
}
