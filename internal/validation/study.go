package validation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"signal-replay-lab/internal/causal"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/engine"
	"signal-replay-lab/internal/logger"
	"signal-replay-lab/internal/observability"
	"signal-replay-lab/internal/replay"
	"signal-replay-lab/internal/rng"
)

// Cell status labels.
const (
	CellSucceeded = "succeeded"
	CellFailed    = "failed"
	CellSkipped   = "skipped"
)

// Candidate is a named strategy under study.
type Candidate struct {
	ID       string
	Strategy domain.Strategy
}

// Study describes a validation study: every candidate is replayed in every
// window's test range under every lane.
type Study struct {
	Candidates []Candidate
	Windows    []domain.RollingWindow
	Lanes      []domain.StressLane // empty = baseline only

	// Executor runs the cells. When nil, a ReplayExecutor is built from
	// Signals, Source and Interval.
	Executor Executor
	Signals  SignalSource
	Source   causal.CandleSource
	Interval domain.Interval

	Workers   int           // default runtime.NumCPU()
	Timeout   time.Duration // bounds the whole study; 0 = none
	ErrorMode domain.ErrorMode
	Logger    *zap.Logger
}

// CellResult is the outcome of one cell.
type CellResult struct {
	CandidateID string
	WindowID    string
	Lane        string
	Seed        uint64
	Status      string
	Score       float64
	Trades      int
	Error       string
}

// Key identifies the cell in summaries and logs.
func (c CellResult) Key() string {
	return c.CandidateID + "|" + c.WindowID + "|" + c.Lane
}

// CellSeed derives the RNG seed of a cell from its identity, so results do
// not depend on scheduling order.
func CellSeed(candidateID, windowID, lane string) uint64 {
	return rng.SeedFromString(candidateID + "|" + windowID + "|" + lane)
}

// RunValidationStudy runs every (candidate, window, lane) cell on a bounded
// worker pool and ranks candidates by their worst cell score.
//
// Configuration problems (no candidates or windows, duplicate ids, invalid
// strategies) are reported before any cell runs. Cells without data are
// skipped. A failing cell aborts the study under ErrorModeFailFast and is
// recorded otherwise. Cancellation is cooperative: running cells finish
// their current replay, queued cells never start.
func RunValidationStudy(ctx context.Context, study Study) (*RankedChampions, error) {
	start := time.Now()
	log := logger.OrNop(study.Logger)

	cells, err := study.cells()
	if err != nil {
		return nil, err
	}
	exec := study.Executor
	if exec == nil {
		if study.Signals == nil || study.Source == nil {
			return nil, domain.Errorf(domain.ErrConfiguration, "study needs an executor or a signal and candle source")
		}
		exec = NewReplayExecutor(ReplayExecutorOptions{
			Runner:   replay.NewRunner(replay.RunnerOptions{Source: study.Source, Logger: study.Logger}),
			Signals:  study.Signals,
			Interval: study.Interval,
			Logger:   study.Logger,
		})
	}

	workers := study.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if study.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, study.Timeout)
		defer cancel()
	}

	log.Info("validation study started",
		zap.Int("candidates", len(study.Candidates)),
		zap.Int("windows", len(study.Windows)),
		zap.Int("cells", len(cells)),
		zap.Int("workers", workers))

	results := make([]CellResult, len(cells))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, cell := range cells {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := CellResult{
				CandidateID: cell.CandidateID,
				WindowID:    cell.Window.WindowID,
				Lane:        cell.Lane.Name,
				Seed:        cell.Seed,
			}

			out, err := exec.RunCell(gctx, cell)
			switch {
			case err == nil:
				res.Status = CellSucceeded
				res.Score = out.Score
				res.Trades = out.Trades
			case isSkip(err):
				res.Status = CellSkipped
				res.Error = err.Error()
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				res.Status = CellFailed
				res.Error = err.Error()
				log.Warn("study cell failed",
					zap.String("cell", res.Key()),
					zap.Error(err))
			}
			results[i] = res
			observability.RecordStudyCell(res.Status)

			if res.Status == CellFailed && study.ErrorMode == domain.ErrorModeFailFast {
				return fmt.Errorf("cell %s: %w", res.Key(), err)
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		// The loop may have stopped early on a parent cancellation.
		err = ctx.Err()
	}
	observability.RecordStudy(time.Since(start).Seconds())
	if err != nil {
		log.Warn("validation study aborted", zap.Error(err))
		return nil, err
	}

	ranked := &RankedChampions{Cells: results}
	for _, r := range results {
		switch r.Status {
		case CellSucceeded:
			ranked.Summary.Succeeded++
		case CellSkipped:
			ranked.Summary.Skipped++
			ranked.Summary.Failures = append(ranked.Summary.Failures, domain.ItemFailure{ItemID: r.Key(), Error: r.Error, Skipped: true})
		case CellFailed:
			ranked.Summary.Failed++
			ranked.Summary.Failures = append(ranked.Summary.Failures, domain.ItemFailure{ItemID: r.Key(), Error: r.Error})
		}
	}

	ids := make([]string, len(study.Candidates))
	for i, c := range study.Candidates {
		ids[i] = c.ID
	}
	ranked.Champions, ranked.Unranked = Rank(ids, results)

	log.Info("validation study complete",
		zap.Int("succeeded", ranked.Summary.Succeeded),
		zap.Int("failed", ranked.Summary.Failed),
		zap.Int("skipped", ranked.Summary.Skipped),
		zap.Duration("duration", time.Since(start)))
	return ranked, nil
}

// cells validates the study and expands it into cells sorted by candidate
// id, window id and lane name.
func (s Study) cells() ([]Cell, error) {
	if len(s.Candidates) == 0 {
		return nil, domain.Errorf(domain.ErrConfiguration, "study has no candidates")
	}
	if len(s.Windows) == 0 {
		return nil, domain.Errorf(domain.ErrConfiguration, "study has no windows")
	}

	candidates := append([]Candidate(nil), s.Candidates...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	for i, c := range candidates {
		if c.ID == "" {
			return nil, domain.Errorf(domain.ErrConfiguration, "candidate %d has no id", i)
		}
		if i > 0 && candidates[i-1].ID == c.ID {
			return nil, domain.Errorf(domain.ErrConfiguration, "duplicate candidate id %q", c.ID)
		}
		if _, err := engine.Compile(c.Strategy); err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
	}

	windows := append([]domain.RollingWindow(nil), s.Windows...)
	sort.Slice(windows, func(i, j int) bool { return windows[i].WindowID < windows[j].WindowID })
	for i, w := range windows {
		if w.WindowID == "" || (i > 0 && windows[i-1].WindowID == w.WindowID) {
			return nil, domain.Errorf(domain.ErrConfiguration, "window ids must be unique and non-empty (%q)", w.WindowID)
		}
		if w.TrainTo > w.TestFrom || w.TestTo <= w.TestFrom {
			return nil, domain.Errorf(domain.ErrConfiguration, "window %s: invalid ranges", w.WindowID)
		}
	}

	lanes := append([]domain.StressLane(nil), s.Lanes...)
	if len(lanes) == 0 {
		lanes = []domain.StressLane{domain.LaneConfigBaseline}
	}
	sort.Slice(lanes, func(i, j int) bool { return lanes[i].Name < lanes[j].Name })
	for i, l := range lanes {
		if l.Name == "" || (i > 0 && lanes[i-1].Name == l.Name) {
			return nil, domain.Errorf(domain.ErrConfiguration, "lane names must be unique and non-empty (%q)", l.Name)
		}
	}

	cells := make([]Cell, 0, len(candidates)*len(windows)*len(lanes))
	for _, c := range candidates {
		for _, w := range windows {
			for _, l := range lanes {
				cells = append(cells, Cell{
					CandidateID: c.ID,
					Strategy:    c.Strategy,
					Window:      w,
					Lane:        l,
					Seed:        CellSeed(c.ID, w.WindowID, l.Name),
				})
			}
		}
	}
	return cells, nil
}
