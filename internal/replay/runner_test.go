package replay

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"signal-replay-lab/internal/causal"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/invariant"
)

// fakeSource serves candles per asset and counts calls.
type fakeSource struct {
	candles map[string][]domain.Candle
	err     error
	calls   int
}

func (f *fakeSource) GetRange(_ context.Context, assetID string, _ domain.Interval, from, to int64) ([]domain.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Candle
	for _, c := range f.candles[assetID] {
		if c.Timestamp >= from && c.Timestamp <= to {
			out = append(out, c)
		}
	}
	return out, nil
}

func candle(i int, open, high, low, close float64) domain.Candle {
	return domain.Candle{Timestamp: int64(i) * 60, Open: open, High: high, Low: low, Close: close, Volume: 1000}
}

func flat(n int, price float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = candle(i, price, price, price, price)
	}
	return out
}

func accessorFor(t *testing.T, candles []domain.Candle, t0 int64) *causal.Accessor {
	t.Helper()
	series, err := causal.NewSeries("asset-a", domain.Interval1m, candles)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return causal.NewAccessor(series, t0)
}

func twoXStrategy() *domain.LadderStrategy {
	return &domain.LadderStrategy{
		Name:       "2x",
		Entry:      domain.EntryImmediate{},
		ExitLadder: []domain.ExitRung{{TriggerMultiple: 2, SizeFraction: 1}},
		StopLoss:   domain.StopLoss{InitialPct: 0.25},
	}
}

func noisyStrategy() *domain.LadderStrategy {
	s := twoXStrategy()
	s.Costs = domain.CostConfig{
		SlippageBps: 20,
		Latency:     &domain.LatencyModel{P50Ms: 30_000, P90Ms: 90_000, P99Ms: 180_000, JitterMs: 5_000},
		PartialFill: &domain.PartialFillModel{Probability: 0.5, MinFraction: 0.3, MaxFraction: 0.9},
	}
	s.ExitLadder = []domain.ExitRung{{TriggerMultiple: 1.2, SizeFraction: 0.5}, {TriggerMultiple: 1.5, SizeFraction: 0.5}}
	return s
}

func risingCandles(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		p := 1 + 0.05*float64(i)
		out[i] = candle(i, p, p*1.02, p*0.99, p)
	}
	return out
}

func TestRunReplay_ZeroCandlesIsEmptySuccess(t *testing.T) {
	r := NewRunner(RunnerOptions{})
	acc := accessorFor(t, nil, 0)

	res, err := r.RunReplay(context.Background(), domain.Signal{ID: "s", AssetID: "asset-a"}, twoXStrategy(), acc, RunConfig{Seed: 1})
	if err != nil {
		t.Fatalf("RunReplay: %v", err)
	}
	if !res.Empty() {
		t.Errorf("expected empty result, got %d events", len(res.Events))
	}
	if len(res.Violations) != 0 {
		t.Errorf("empty result has violations: %v", res.Violations)
	}
}

func TestRunReplay_ConfigurationErrorBeforeReplay(t *testing.T) {
	r := NewRunner(RunnerOptions{})
	bad := twoXStrategy()
	bad.ExitLadder = []domain.ExitRung{{TriggerMultiple: 2, SizeFraction: 0.8}, {TriggerMultiple: 3, SizeFraction: 0.8}}

	_, err := r.RunReplay(context.Background(), domain.Signal{ID: "s"}, bad, accessorFor(t, flat(3, 1), 0), RunConfig{})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunReplay_CancelledContext(t *testing.T) {
	r := NewRunner(RunnerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunReplay(ctx, domain.Signal{ID: "s"}, twoXStrategy(), accessorFor(t, flat(3, 1), 0), RunConfig{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunReplay_Deterministic(t *testing.T) {
	r := NewRunner(RunnerOptions{})
	sig := domain.Signal{ID: "s", AssetID: "asset-a"}
	cfg := RunConfig{SeedString: "study-1", Lane: domain.LaneConfigRealistic}

	var first *domain.BacktestResult
	for i := 0; i < 5; i++ {
		res, err := r.RunReplay(context.Background(), sig, noisyStrategy(), accessorFor(t, risingCandles(20), 0), cfg)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if first == nil {
			first = res
			continue
		}
		if !reflect.DeepEqual(first, res) {
			t.Fatalf("run %d diverged from run 0", i)
		}
		if d := invariant.Compare(first, res); len(d) != 0 {
			t.Fatalf("run %d diverged: %v", i, d)
		}
	}
}

func TestRunConfig_SeedStringOverridesSeed(t *testing.T) {
	a := RunConfig{Seed: 7, SeedString: "x"}
	b := RunConfig{Seed: 8, SeedString: "x"}
	if a.EffectiveSeed() != b.EffectiveSeed() {
		t.Error("seed string should take precedence over numeric seed")
	}
	if (RunConfig{Seed: 7}).EffectiveSeed() != 7 {
		t.Error("numeric seed not used")
	}
}

func TestRunReplay_ViolationsLoggedAndReturned(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRunner(RunnerOptions{Logger: zap.New(core)})

	s := &domain.LadderStrategy{
		Name:       "half-then-stop",
		Entry:      domain.EntryImmediate{},
		ExitLadder: []domain.ExitRung{{TriggerMultiple: 1.5, SizeFraction: 0.5}},
		StopLoss:   domain.StopLoss{InitialPct: 0.25},
	}
	candles := []domain.Candle{
		candle(0, 1, 1, 1, 1),
		candle(1, 1, 1.6, 1, 1.5),
		candle(2, 1.5, 1.5, 0.5, 0.6),
	}

	res, err := r.RunReplay(context.Background(), domain.Signal{ID: "s", AssetID: "asset-a"}, s, accessorFor(t, candles, 0), RunConfig{Seed: 1})
	if err != nil {
		t.Fatalf("RunReplay: %v", err)
	}
	if len(res.Violations) == 0 {
		t.Fatal("expected an exit PnL violation")
	}
	if logs.FilterMessage("invariant violation").Len() != len(res.Violations) {
		t.Errorf("logged %d violations, result has %d", logs.FilterMessage("invariant violation").Len(), len(res.Violations))
	}

	relaxed, err := r.RunReplay(context.Background(), domain.Signal{ID: "s", AssetID: "asset-a"}, s, accessorFor(t, candles, 0),
		RunConfig{Seed: 1, Invariants: invariant.Options{AllowExitPnlDecrease: true}})
	if err != nil {
		t.Fatalf("RunReplay: %v", err)
	}
	if len(relaxed.Violations) != 0 {
		t.Errorf("relaxed run has violations: %v", relaxed.Violations)
	}
}

func TestRunSignal_LoadsFromSource(t *testing.T) {
	src := &fakeSource{candles: map[string][]domain.Candle{"asset-a": flat(5, 1)}}
	r := NewRunner(RunnerOptions{Source: src})

	res, err := r.RunSignal(context.Background(), domain.Signal{ID: "s", AssetID: "asset-a", CreatedAt: 60}, twoXStrategy(), 240, RunConfig{})
	if err != nil {
		t.Fatalf("RunSignal: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}
	if res.Events[0].Timestamp != 120 {
		t.Errorf("entry at %d, want close of the candle opening at 60", res.Events[0].Timestamp)
	}
}

func TestRunSignal_NoCandlesIsDataGap(t *testing.T) {
	r := NewRunner(RunnerOptions{Source: &fakeSource{}})

	_, err := r.RunSignal(context.Background(), domain.Signal{ID: "s", AssetID: "missing"}, twoXStrategy(), 600, RunConfig{})
	if !errors.Is(err, domain.ErrDataGap) {
		t.Fatalf("expected data gap, got %v", err)
	}
}

func TestRunSignal_RequiresSource(t *testing.T) {
	r := NewRunner(RunnerOptions{})
	if _, err := r.RunSignal(context.Background(), domain.Signal{ID: "s"}, twoXStrategy(), 0, RunConfig{}); err == nil {
		t.Fatal("expected error without a source")
	}
}

func TestRunBatch_CollectsFailures(t *testing.T) {
	src := &fakeSource{candles: map[string][]domain.Candle{
		"asset-a": flat(5, 1),
		"asset-b": flat(5, 2),
	}}
	r := NewRunner(RunnerOptions{Source: src})
	signals := []domain.Signal{
		{ID: "a", AssetID: "asset-a"},
		{ID: "gap", AssetID: "asset-missing"},
		{ID: "b", AssetID: "asset-b"},
	}

	out, err := r.RunBatch(context.Background(), signals, twoXStrategy(), 600, RunConfig{Seed: 3})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if out.Summary.Succeeded != 2 || out.Summary.Skipped != 1 || out.Summary.Failed != 0 {
		t.Errorf("summary = %+v", out.Summary)
	}
	if len(out.Summary.Failures) != 1 || out.Summary.Failures[0].ItemID != "gap" || !out.Summary.Failures[0].Skipped {
		t.Errorf("failures = %+v", out.Summary.Failures)
	}
	if len(out.Results) != 2 || out.Results[0].SignalID != "a" || out.Results[1].SignalID != "b" {
		t.Errorf("results out of order")
	}
}

func TestRunBatch_FailFast(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	r := NewRunner(RunnerOptions{Source: src})
	signals := []domain.Signal{{ID: "a", AssetID: "asset-a"}, {ID: "b", AssetID: "asset-b"}}

	out, err := r.RunBatch(context.Background(), signals, twoXStrategy(), 600, RunConfig{ErrorMode: domain.ErrorModeFailFast})
	if err == nil {
		t.Fatal("expected fail-fast error")
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}
	if out.Summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", out.Summary.Failed)
	}

	src.calls = 0
	out, err = r.RunBatch(context.Background(), signals, twoXStrategy(), 600, RunConfig{ErrorMode: domain.ErrorModeCollect})
	if err != nil {
		t.Fatalf("collect mode returned error: %v", err)
	}
	if out.Summary.Failed != 2 || src.calls != 2 {
		t.Errorf("collect: failed = %d, calls = %d", out.Summary.Failed, src.calls)
	}
}

func TestRunBatch_SeedIndependentOfOrder(t *testing.T) {
	src := &fakeSource{candles: map[string][]domain.Candle{
		"asset-a": risingCandles(20),
		"asset-b": risingCandles(20),
	}}
	r := NewRunner(RunnerOptions{Source: src})
	a := domain.Signal{ID: "a", AssetID: "asset-a"}
	b := domain.Signal{ID: "b", AssetID: "asset-b"}
	cfg := RunConfig{Seed: 9, Lane: domain.LaneConfigRealistic}

	fwd, err := r.RunBatch(context.Background(), []domain.Signal{a, b}, noisyStrategy(), 1200, cfg)
	if err != nil {
		t.Fatal(err)
	}
	rev, err := r.RunBatch(context.Background(), []domain.Signal{b, a}, noisyStrategy(), 1200, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fwd.Results[0], rev.Results[1]) || !reflect.DeepEqual(fwd.Results[1], rev.Results[0]) {
		t.Error("per-signal results depend on batch order")
	}
}

func TestRunBatch_StopsOnCancel(t *testing.T) {
	src := &fakeSource{candles: map[string][]domain.Candle{"asset-a": flat(5, 1)}}
	r := NewRunner(RunnerOptions{Source: src})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunBatch(ctx, []domain.Signal{{ID: "a", AssetID: "asset-a"}}, twoXStrategy(), 600, RunConfig{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if src.calls != 0 {
		t.Errorf("source called after cancel")
	}
}
