package catalog

import (
	"context"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/idhash"
)

// Output describes what a producer wrote under its artifact directory.
type Output struct {
	ArtifactPath string           // archive path of the main artifact
	ContentHash  string           // hex SHA256 of the artifact bytes
	RowCounts    map[string]int64 // per table/asset row counts
}

// Rows returns the sum of all row counts.
func (o *Output) Rows() int64 {
	var n int64
	for _, c := range o.RowCounts {
		n += c
	}
	return n
}

// SliceExporter materialises a candle slice under dir.
type SliceExporter interface {
	ExportSlice(ctx context.Context, spec domain.SliceSpec, dir string) (*Output, error)
}

// FeatureComputer materialises a feature set over an indexed slice under dir.
type FeatureComputer interface {
	ComputeFeatures(ctx context.Context, slice *domain.SliceRecord, features []domain.FeatureSpec, dir string) (*Output, error)
}

// SimRunSpec fully determines a simulation run. The producer replays exactly
// Signals over the candles of the features' slice.
type SimRunSpec struct {
	FeaturesID string
	Strategy   domain.Strategy
	Lane       domain.StressLane
	Window     *domain.RollingWindow // nil for a whole-range run
	Signals    []domain.Signal
	Seed       uint64
}

// WindowID returns the window id, or "" when the run is not windowed.
func (s SimRunSpec) WindowID() string {
	if s.Window == nil {
		return ""
	}
	return s.Window.WindowID
}

// SignalSetID returns the id of the replayed signals, or "" when there are none.
func (s SimRunSpec) SignalSetID() string {
	if len(s.Signals) == 0 {
		return ""
	}
	return idhash.SignalSetID(s.Signals)
}

// SimulationRunner materialises a simulation run under dir.
type SimulationRunner interface {
	RunSimulation(ctx context.Context, spec SimRunSpec, dir string) (*Output, error)
}
