package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"signal-replay-lab/internal/config"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/invariant"
	"signal-replay-lab/internal/metrics"
	"signal-replay-lab/internal/replay"
)

var (
	replaySignalID    string
	replayFrom        string
	replayTo          string
	replayUntil       string
	replayHorizon     time.Duration
	replayStrategies  string
	replayStrategy    string
	replaySeed        uint64
	replaySeedString  string
	replayLane        string
	replayFailFast    bool
	replayAllowPnlDec bool
	replayJSON        bool
	replayVerify      string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay signals under a strategy",
	Long: `Replay one signal (--signal-id) or every signal created in [--from, --to)
under the strategies declared in --strategies. The same inputs and seed always
produce the same result.`,
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replaySignalID, "signal-id", "", "replay a single signal")
	f.StringVar(&replayFrom, "from", "", "batch start, unix seconds, RFC3339 or YYYY-MM-DD")
	f.StringVar(&replayTo, "to", "", "batch end (exclusive)")
	f.StringVar(&replayUntil, "until", "", "last candle time to replay up to (default: signal or batch end + horizon)")
	f.DurationVar(&replayHorizon, "horizon", 24*time.Hour, "replay horizon when --until is not set")
	f.StringVar(&replayStrategies, "strategies", "", "strategy file (required)")
	f.StringVar(&replayStrategy, "strategy", "", "strategy id (default: all strategies in the file)")
	f.Uint64Var(&replaySeed, "seed", 0, "RNG seed (default: replay.seed from config)")
	f.StringVar(&replaySeedString, "seed-string", "", "derive the seed from a string")
	f.StringVar(&replayLane, "lane", domain.LaneBaseline, "stress lane")
	f.BoolVar(&replayFailFast, "fail-fast", false, "abort a batch on the first failing signal")
	f.BoolVar(&replayAllowPnlDec, "allow-exit-pnl-decrease", false, "accept exits that lower cumulative PnL")
	f.BoolVar(&replayJSON, "json", false, "output as JSON")
	f.StringVar(&replayVerify, "verify", "", "compare a single-signal replay against results stored with --json")

	replayCmd.MarkFlagRequired("strategies")
	replayCmd.MarkFlagsMutuallyExclusive("signal-id", "from")
	replayCmd.MarkFlagsRequiredTogether("from", "to")
	replayCmd.MarkFlagsOneRequired("signal-id", "from")
	replayCmd.MarkFlagsMutuallyExclusive("verify", "from")

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	strategies, err := selectStrategies(replayStrategies, replayStrategy)
	if err != nil {
		return err
	}
	lane, ok := domain.LaneByName(replayLane)
	if !ok {
		return domain.Errorf(domain.ErrConfiguration, "unknown stress lane %q", replayLane)
	}

	runCfg := replay.RunConfig{
		Seed:       e.cfg.Replay.Seed,
		SeedString: replaySeedString,
		Resolution: e.resolution,
		Interval:   e.interval,
		Lane:       lane,
		ErrorMode:  domain.ErrorModeCollect,
		Invariants: invariant.Options{AllowExitPnlDecrease: replayAllowPnlDec},
	}
	if cmd.Flags().Changed("seed") {
		runCfg.Seed = replaySeed
	}
	if replayFailFast {
		runCfg.ErrorMode = domain.ErrorModeFailFast
	}

	runner := newRunner(e)

	if replaySignalID != "" {
		sig, err := e.signals.GetByID(ctx, replaySignalID)
		if err != nil {
			return fmt.Errorf("load signal %s: %w", replaySignalID, err)
		}
		until, err := untilOr(sig.CreatedAt)
		if err != nil {
			return err
		}

		results := make([]*domain.BacktestResult, 0, len(strategies))
		for _, s := range strategies {
			res, err := runner.RunSignal(ctx, *sig, s.Strategy, until, runCfg)
			if err != nil {
				return fmt.Errorf("replay %s under %s: %w", sig.ID, s.ID, err)
			}
			results = append(results, res)
		}
		if replayVerify != "" {
			return verifyResults(replayVerify, results)
		}
		if replayJSON {
			return printJSON(results)
		}
		for _, res := range results {
			printResult(res)
		}
		return nil
	}

	from, err := parseTime(replayFrom)
	if err != nil {
		return err
	}
	to, err := parseTime(replayTo)
	if err != nil {
		return err
	}
	if to <= from {
		return domain.Errorf(domain.ErrConfiguration, "--to must be after --from")
	}
	until, err := untilOr(to)
	if err != nil {
		return err
	}

	ptrs, err := e.signals.GetByTimeRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load signals: %w", err)
	}
	signals := make([]domain.Signal, len(ptrs))
	for i, s := range ptrs {
		signals[i] = *s
	}
	e.log.Info("replaying batch",
		zap.Int("signals", len(signals)),
		zap.Int("strategies", len(strategies)),
		zap.String("lane", lane.Name),
		zap.Uint64("seed", runCfg.EffectiveSeed()))

	type batchReport struct {
		Strategy  string            `json:"strategy"`
		Summary   domain.Summary    `json:"summary"`
		Aggregate metrics.Aggregate `json:"aggregate"`
	}
	reports := make([]batchReport, 0, len(strategies))
	for _, s := range strategies {
		batch, err := runner.RunBatch(ctx, signals, s.Strategy, until, runCfg)
		if err != nil {
			return fmt.Errorf("batch under %s: %w", s.ID, err)
		}
		reports = append(reports, batchReport{
			Strategy:  s.ID,
			Summary:   batch.Summary,
			Aggregate: metrics.Compute(batch.Results),
		})
	}

	if replayJSON {
		return printJSON(reports)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tOK\tFAILED\tSKIPPED\tTRADES\tWIN RATE\tMEAN\tMEDIAN\tP10\tP90\tMAX DD")
	for _, r := range reports {
		a := r.Aggregate
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1f%%\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			r.Strategy, r.Summary.Succeeded, r.Summary.Failed, r.Summary.Skipped,
			a.Trades, a.WinRate*100, a.Mean, a.Median, a.P10, a.P90, a.MaxDrawdown)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, r := range reports {
		for _, f := range r.Summary.Failures {
			fmt.Printf("%s: %s: %s\n", r.Strategy, f.ItemID, f.Error)
		}
	}
	return nil
}

// selectStrategies loads the strategy file and keeps only id, when set.
func selectStrategies(path, id string) ([]config.NamedStrategy, error) {
	all, err := config.LoadStrategies(path)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return all, nil
	}
	for _, s := range all {
		if s.ID == id {
			return []config.NamedStrategy{s}, nil
		}
	}
	return nil, domain.Errorf(domain.ErrConfiguration, "strategy %q not found in %s", id, path)
}

// verifyResults checks that every stored result for the replayed signal and
// strategies reproduces field by field.
func verifyResults(path string, replayed []*domain.BacktestResult) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var stored []*domain.BacktestResult
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	byKey := make(map[string]*domain.BacktestResult, len(stored))
	for _, s := range stored {
		byKey[s.SignalID+"|"+s.StrategyName] = s
	}

	diverged := 0
	for _, r := range replayed {
		s, ok := byKey[r.SignalID+"|"+r.StrategyName]
		if !ok {
			fmt.Printf("%s / %s: no stored result\n", r.SignalID, r.StrategyName)
			continue
		}
		d := invariant.Compare(s, r)
		if len(d) == 0 {
			fmt.Printf("%s / %s: OK\n", r.SignalID, r.StrategyName)
			continue
		}
		diverged++
		fmt.Printf("%s / %s: %d divergences\n", r.SignalID, r.StrategyName, len(d))
		for _, fd := range d {
			fmt.Printf("  %s: stored %v, replayed %v\n", fd.Field, fd.Expected, fd.Actual)
		}
	}
	if diverged > 0 {
		return fmt.Errorf("%d results did not reproduce", diverged)
	}
	return nil
}

func untilOr(base int64) (int64, error) {
	if replayUntil != "" {
		return parseTime(replayUntil)
	}
	return base + int64(replayHorizon/time.Second), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(res *domain.BacktestResult) {
	fmt.Printf("\n=== %s / %s ===\n", res.SignalID, res.StrategyName)
	fmt.Printf("Seed:            %d\n", res.Seed)
	fmt.Printf("Candles:         %d\n", res.TotalCandlesConsumed)
	if res.Empty() {
		fmt.Println("No position opened")
		return
	}
	fmt.Printf("Entry price:     %g\n", res.EntryPrice)
	fmt.Printf("Final price:     %g\n", res.FinalPrice)
	fmt.Printf("PnL multiplier:  %.4f\n", res.FinalPnlMultiplier)
	fmt.Printf("Net return:      %.2f%%\n", res.NetReturn()*100)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nTIME\tEVENT\tPRICE\tQTY\tFEE\tREMAINING\tCUM PNL")
	for _, ev := range res.Events {
		fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%g\t%.2f\t%.4f\n",
			time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339), ev.Kind,
			ev.Price, ev.Quantity, ev.Fee, ev.RemainingPositionFraction, ev.CumulativePnl)
	}
	_ = w.Flush()

	for _, v := range res.Violations {
		fmt.Printf("VIOLATION: %s\n", v)
	}
}
