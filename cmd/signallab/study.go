package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"signal-replay-lab/internal/catalog"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/features"
	"signal-replay-lab/internal/replay"
	"signal-replay-lab/internal/reporting"
	"signal-replay-lab/internal/validation"
)

var (
	studyStrategies string
	studyStart      string
	studyEnd        string
	studyTrainDays  int
	studyTestDays   int
	studyStepDays   int
	studyLanes      []string
	studyWorkers    int
	studyTimeout    time.Duration
	studyFailFast   bool
	studyCache      bool
	studyFeatures   string
	studyChain      string
	studyJSON       bool
	studyReport     string
)

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Rank candidate strategies with walk-forward validation",
	Long: `Run every candidate strategy over rolling test windows and stress lanes,
then rank candidates by their worst cell score. With --cache, cells are
materialised in the artifact catalog and reused by later studies.`,
	RunE: runStudy,
}

func init() {
	f := studyCmd.Flags()
	f.StringVar(&studyStrategies, "strategies", "", "candidate strategy file (required)")
	f.StringVar(&studyStart, "start", "", "study start, unix seconds, RFC3339 or YYYY-MM-DD (required)")
	f.StringVar(&studyEnd, "end", "", "study end, exclusive (required)")
	f.IntVar(&studyTrainDays, "train-days", 0, "train window length (default: study.train_days)")
	f.IntVar(&studyTestDays, "test-days", 0, "test window length (default: study.test_days)")
	f.IntVar(&studyStepDays, "step-days", 0, "window step (default: study.step_days)")
	f.StringSliceVar(&studyLanes, "lanes", nil, "stress lanes (default: study.lanes)")
	f.IntVar(&studyWorkers, "workers", 0, "concurrent cells (default: study.workers)")
	f.DurationVar(&studyTimeout, "timeout", 0, "study timeout (default: study.timeout)")
	f.BoolVar(&studyFailFast, "fail-fast", false, "abort on the first failing cell")
	f.BoolVar(&studyCache, "cache", false, "resolve cells through the artifact catalog")
	f.StringVar(&studyFeatures, "features", "log_return,sma:20,atr:14", "feature set the cached sim runs are keyed on")
	f.StringVar(&studyChain, "chain", "solana", "chain recorded in the slice spec")
	f.BoolVar(&studyJSON, "json", false, "output as JSON")
	f.StringVar(&studyReport, "report", "", "directory to write study_report.md and champions.csv to")

	studyCmd.MarkFlagRequired("strategies")
	studyCmd.MarkFlagRequired("start")
	studyCmd.MarkFlagRequired("end")

	rootCmd.AddCommand(studyCmd)
}

func runStudy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	overrideStudyConfig(cmd, e)
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	start, err := parseTime(studyStart)
	if err != nil {
		return err
	}
	end, err := parseTime(studyEnd)
	if err != nil {
		return err
	}
	sc := e.cfg.Study
	windows, err := validation.GenerateWindows(start, end, sc.TrainDays, sc.TestDays, sc.StepDays)
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		return domain.Errorf(domain.ErrConfiguration,
			"study range too short for %d train + %d test days", sc.TrainDays, sc.TestDays)
	}

	strategies, err := selectStrategies(studyStrategies, "")
	if err != nil {
		return err
	}
	candidates := make([]validation.Candidate, len(strategies))
	for i, s := range strategies {
		candidates[i] = validation.Candidate{ID: s.ID, Strategy: s.Strategy}
	}

	mode, err := domain.ParseErrorMode(sc.ErrorMode)
	if err != nil {
		return err
	}
	study := validation.Study{
		Candidates: candidates,
		Windows:    windows,
		Lanes:      e.cfg.StudyLanes(),
		Signals:    e.signals,
		Source:     e.candles,
		Interval:   e.interval,
		Workers:    sc.Workers,
		Timeout:    sc.Timeout,
		ErrorMode:  mode,
		Logger:     e.log,
	}
	if studyCache {
		study.Executor, err = cachedExecutor(ctx, e, windows)
		if err != nil {
			return err
		}
	}

	e.log.Info("starting study",
		zap.Int("candidates", len(candidates)),
		zap.Int("windows", len(windows)),
		zap.Int("lanes", len(study.Lanes)),
		zap.Bool("cache", studyCache))

	ranked, err := validation.RunValidationStudy(ctx, study)
	if err != nil {
		return fmt.Errorf("study failed: %w", err)
	}

	if studyReport != "" {
		info := reporting.StudyInfo{
			Start:      start,
			End:        end,
			Candidates: len(candidates),
			Windows:    len(windows),
			Lanes:      laneNames(study.Lanes),
		}
		if err := writeReport(studyReport, reporting.NewGenerator().Generate(info, ranked)); err != nil {
			return err
		}
		e.log.Info("report written", zap.String("dir", studyReport))
	}

	if studyJSON {
		return printJSON(ranked)
	}
	printRanking(ranked)
	return nil
}

func laneNames(lanes []domain.StressLane) []string {
	out := make([]string, len(lanes))
	for i, l := range lanes {
		out[i] = l.Name
	}
	return out
}

func writeReport(dir string, r *reporting.Report) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "study_report.md"), []byte(reporting.RenderMarkdown(r)), 0644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "champions.csv"), []byte(reporting.RenderCSV(r.Champions)), 0644); err != nil {
		return fmt.Errorf("write csv report: %w", err)
	}
	return nil
}

func overrideStudyConfig(cmd *cobra.Command, e *env) {
	sc := &e.cfg.Study
	flags := cmd.Flags()
	if flags.Changed("train-days") {
		sc.TrainDays = studyTrainDays
	}
	if flags.Changed("test-days") {
		sc.TestDays = studyTestDays
	}
	if flags.Changed("step-days") {
		sc.StepDays = studyStepDays
	}
	if flags.Changed("lanes") {
		sc.Lanes = studyLanes
	}
	if flags.Changed("workers") {
		sc.Workers = studyWorkers
	}
	if flags.Changed("timeout") {
		sc.Timeout = studyTimeout
	}
	if studyFailFast {
		sc.ErrorMode = string(domain.ErrorModeFailFast)
	}
}

// cachedExecutor materialises the study's slice and feature set and returns
// an executor whose cells are sim runs keyed on that feature set.
func cachedExecutor(ctx context.Context, e *env, windows []domain.RollingWindow) (validation.Executor, error) {
	specs, err := features.ParseList(studyFeatures)
	if err != nil {
		return nil, err
	}

	from := windows[0].TestFrom
	to := windows[len(windows)-1].TestTo
	assets, err := signalAssets(ctx, e, from, to)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, domain.Errorf(domain.ErrDataGap, "no signals between %d and %d", from, to)
	}

	base, err := newCatalog(e, nil)
	if err != nil {
		return nil, err
	}
	spec := sliceSpec(e, studyChain, from, to, assets)
	feat, err := base.Features(ctx, spec, specs)
	if err != nil {
		return nil, fmt.Errorf("resolve features: %w", err)
	}
	slice, err := base.Slice(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("resolve slice: %w", err)
	}
	src, err := catalog.NewSliceSource(ctx, e.blobs, slice)
	if err != nil {
		return nil, err
	}

	// Cached cells replay from the slice, never from the live candle store.
	cat, err := newCatalog(e, validation.NewReplayExecutor(validation.ReplayExecutorOptions{
		Runner:     replay.NewRunner(replay.RunnerOptions{Source: src, Logger: e.log}),
		Signals:    e.signals,
		Interval:   e.interval,
		Resolution: e.resolution,
		Logger:     e.log,
	}))
	if err != nil {
		return nil, err
	}
	e.log.Info("study cache ready",
		zap.String("features_id", feat.FeaturesID),
		zap.String("slice_id", feat.SliceID),
		zap.Int("assets", len(assets)))
	return validation.NewCachedExecutor(cat, feat.FeaturesID, e.signals), nil
}

// signalAssets returns the sorted distinct assets of signals in [from, to).
func signalAssets(ctx context.Context, e *env, from, to int64) ([]string, error) {
	signals, err := e.signals.GetByTimeRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	seen := make(map[string]bool)
	var out []string
	for _, s := range signals {
		if !seen[s.AssetID] {
			seen[s.AssetID] = true
			out = append(out, s.AssetID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func printRanking(r *validation.RankedChampions) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tCANDIDATE\tMAXIMIN\tMEDIAN\tMEAN\tTRADES\tCELLS\tWORST WINDOW\tWORST LANE")
	for _, c := range r.Champions {
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%.4f\t%.4f\t%d\t%d\t%s\t%s\n",
			c.Rank, c.CandidateID, c.MaximinScore, c.MedianScore, c.MeanScore,
			c.TotalTrades, c.Cells, c.WorstWindow, c.WorstLane)
	}
	_ = w.Flush()

	if len(r.Unranked) > 0 {
		fmt.Printf("\nUnranked (failed or unscored cells): %v\n", r.Unranked)
	}
	fmt.Printf("\nCells: %d succeeded, %d failed, %d skipped\n",
		r.Summary.Succeeded, r.Summary.Failed, r.Summary.Skipped)
	for _, f := range r.Summary.Failures {
		if !f.Skipped {
			fmt.Printf("FAILED %s: %s\n", f.ItemID, f.Error)
		}
	}
}
