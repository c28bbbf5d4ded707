package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"

	"go.uber.org/zap"

	"signal-replay-lab/internal/archive"
	"signal-replay-lab/internal/catalog"
	"signal-replay-lab/internal/clock"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/invariant"
	"signal-replay-lab/internal/logger"
	"signal-replay-lab/internal/metrics"
	"signal-replay-lab/internal/replay"
)

// ResultsArtifact is the file name of a materialised study cell.
const ResultsArtifact = "cell.json"

// Cell is one (candidate, window, lane) replay batch.
type Cell struct {
	CandidateID string
	Strategy    domain.Strategy
	Window      domain.RollingWindow
	Lane        domain.StressLane
	Seed        uint64
	Signals     []domain.Signal // nil: the window's test-range signals
}

// SignalResult is the per-signal outcome inside a cell.
type SignalResult struct {
	SignalID      string  `json:"signalId"`
	NetReturn     float64 `json:"netReturn"`
	PnlMultiplier float64 `json:"pnlMultiplier"`
	Trades        int     `json:"trades"`
	Violations    int     `json:"violations"`
}

// CellOutcome is what a cell contributes to the ranking.
type CellOutcome struct {
	Score   float64        `json:"score"` // mean net return over replayed signals
	Trades  int            `json:"trades"`
	Signals []SignalResult `json:"signals"`
	Summary domain.Summary `json:"summary"`
}

// Executor runs a single cell. An executor returns domain.ErrDataGap when
// the cell has nothing to replay.
type Executor interface {
	RunCell(ctx context.Context, cell Cell) (*CellOutcome, error)
}

// SignalSource lists the signals created in [start, end). storage.SignalStore
// satisfies it.
type SignalSource interface {
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Signal, error)
}

// ReplayExecutor replays a cell's test-range signals directly.
type ReplayExecutor struct {
	runner     *replay.Runner
	signals    SignalSource
	interval   domain.Interval
	resolution clock.Resolution
	invariants invariant.Options
	log        *zap.Logger
}

// ReplayExecutorOptions contains configuration for creating a ReplayExecutor.
type ReplayExecutorOptions struct {
	Runner     *replay.Runner
	Signals    SignalSource
	Interval   domain.Interval
	Resolution clock.Resolution
	Invariants invariant.Options
	Logger     *zap.Logger
}

// NewReplayExecutor creates a ReplayExecutor.
func NewReplayExecutor(opts ReplayExecutorOptions) *ReplayExecutor {
	return &ReplayExecutor{
		runner:     opts.Runner,
		signals:    opts.Signals,
		interval:   opts.Interval,
		resolution: opts.Resolution,
		invariants: opts.Invariants,
		log:        logger.OrNop(opts.Logger),
	}
}

// RunCell replays the cell's signals, or every signal created in the
// window's test range, with candles up to the end of the test range. Any
// failing signal fails the cell.
func (e *ReplayExecutor) RunCell(ctx context.Context, cell Cell) (*CellOutcome, error) {
	w := cell.Window
	signals := cell.Signals
	if signals == nil {
		var err error
		if signals, err = windowSignals(ctx, e.signals, w); err != nil {
			return nil, err
		}
	}
	if len(signals) == 0 {
		return nil, domain.Errorf(domain.ErrDataGap, "no signals in window %s", w.WindowID)
	}

	batch, err := e.runner.RunBatch(ctx, signals, cell.Strategy, w.TestTo-1, replay.RunConfig{
		Seed:       cell.Seed,
		Resolution: e.resolution,
		Interval:   e.interval,
		Lane:       cell.Lane,
		ErrorMode:  domain.ErrorModeFailFast,
		Invariants: e.invariants,
	})
	if err != nil {
		return nil, err
	}
	if batch.Summary.Succeeded == 0 {
		return nil, domain.Errorf(domain.ErrDataGap, "no candles for any of %d signals in window %s", len(signals), w.WindowID)
	}

	out := &CellOutcome{Summary: batch.Summary}
	returns := make([]float64, 0, len(batch.Results))
	for _, r := range batch.Results {
		out.Signals = append(out.Signals, SignalResult{
			SignalID:      r.SignalID,
			NetReturn:     r.NetReturn(),
			PnlMultiplier: r.FinalPnlMultiplier,
			Trades:        len(r.Trades),
			Violations:    len(r.Violations),
		})
		out.Trades += len(r.Trades)
		returns = append(returns, r.NetReturn())
	}
	out.Score = metrics.Mean(returns)

	e.log.Debug("cell replayed",
		zap.String("candidate", cell.CandidateID),
		zap.String("window", w.WindowID),
		zap.String("lane", cell.Lane.Name),
		zap.Int("signals", len(signals)),
		zap.Float64("score", out.Score))
	return out, nil
}

// SimRunner materialises study cells as catalog sim runs.
type SimRunner struct {
	exec  Executor
	blobs archive.Storage
}

// NewSimRunner creates a catalog.SimulationRunner that runs cells with exec
// and writes their outcome to blobs.
func NewSimRunner(exec Executor, blobs archive.Storage) *SimRunner {
	return &SimRunner{exec: exec, blobs: blobs}
}

// RunSimulation implements catalog.SimulationRunner.
func (s *SimRunner) RunSimulation(ctx context.Context, spec catalog.SimRunSpec, dir string) (*catalog.Output, error) {
	if spec.Window == nil {
		return nil, domain.Errorf(domain.ErrConfiguration, "study sim runs need a window")
	}
	out, err := s.exec.RunCell(ctx, Cell{
		CandidateID: spec.Strategy.StrategyName(),
		Strategy:    spec.Strategy,
		Window:      *spec.Window,
		Lane:        spec.Lane,
		Seed:        spec.Seed,
		Signals:     spec.Signals,
	})
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode cell: %w", err)
	}
	artifact := path.Join(dir, ResultsArtifact)
	if err := s.blobs.Write(ctx, artifact, data); err != nil {
		return nil, fmt.Errorf("write cell artifact: %w", err)
	}
	return &catalog.Output{
		ArtifactPath: artifact,
		ContentHash:  catalog.ContentHash(data),
		RowCounts:    map[string]int64{"signals": int64(len(out.Signals))},
	}, nil
}

// CachedExecutor resolves cells through the catalog, so a cell that was
// already materialised for the same features, strategy, lane, window,
// signals and seed is read back instead of replayed.
type CachedExecutor struct {
	cat        *catalog.Catalog
	featuresID string
	signals    SignalSource
}

// NewCachedExecutor creates a CachedExecutor. The catalog's simulation
// producer must be a SimRunner replaying from the features' slice.
func NewCachedExecutor(cat *catalog.Catalog, featuresID string, signals SignalSource) *CachedExecutor {
	return &CachedExecutor{cat: cat, featuresID: featuresID, signals: signals}
}

// RunCell implements Executor. The window's signals are listed first and
// become part of the sim run identity.
func (e *CachedExecutor) RunCell(ctx context.Context, cell Cell) (*CellOutcome, error) {
	w := cell.Window
	signals := cell.Signals
	if signals == nil {
		var err error
		if signals, err = windowSignals(ctx, e.signals, w); err != nil {
			return nil, err
		}
	}
	if len(signals) == 0 {
		return nil, domain.Errorf(domain.ErrDataGap, "no signals in window %s", w.WindowID)
	}

	rec, err := e.cat.SimRun(ctx, catalog.SimRunSpec{
		FeaturesID: e.featuresID,
		Strategy:   cell.Strategy,
		Lane:       cell.Lane,
		Window:     &w,
		Signals:    signals,
		Seed:       cell.Seed,
	})
	if err != nil {
		return nil, err
	}

	data, err := catalog.ReadArtifact(ctx, e.cat.Blobs(), rec.ManifestPath)
	if err != nil {
		return nil, err
	}
	var out CellOutcome
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode cell %s: %w", rec.SimID, err)
	}
	return &out, nil
}

// windowSignals lists the signals created in w's test range, ordered by
// creation time then id.
func windowSignals(ctx context.Context, src SignalSource, w domain.RollingWindow) ([]domain.Signal, error) {
	if src == nil {
		return nil, domain.Errorf(domain.ErrConfiguration, "no signal source for window %s", w.WindowID)
	}
	ptrs, err := src.GetByTimeRange(ctx, w.TestFrom, w.TestTo)
	if err != nil {
		return nil, fmt.Errorf("load signals for %s: %w", w.WindowID, err)
	}
	signals := make([]domain.Signal, len(ptrs))
	for i, s := range ptrs {
		signals[i] = *s
	}
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].CreatedAt != signals[j].CreatedAt {
			return signals[i].CreatedAt < signals[j].CreatedAt
		}
		return signals[i].ID < signals[j].ID
	})
	return signals, nil
}

// isSkip reports whether a cell error means "nothing to replay".
func isSkip(err error) bool {
	return errors.Is(err, domain.ErrDataGap)
}
