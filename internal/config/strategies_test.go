package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"signal-replay-lab/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadStrategies(t *testing.T) {
	path := writeFile(t, "strategies.yaml", `
strategies:
  - id: ladder-a
    type: ladder
    entry: {kind: trailing, retrace_pct: 0.1, max_wait_candles: 30}
    entry_ladder:
      - {trigger_multiple: 0.8, size_fraction: 0.3}
    exit_ladder:
      - {trigger_multiple: 2, size_fraction: 0.5}
      - {trigger_multiple: 4, size_fraction: 0.5}
    stop_loss:
      initial_pct: 0.3
      trailing: {activation_multiple: 2, trail_bps: 2500}
    re_entry: {trailing_reentry_pct: 0.2, max_reentries: 1, size_percent: 50}
    intrabar_policy: OPEN_PROXIMITY
    costs:
      fee_bps: 10
      latency: {p50_ms: 100, p90_ms: 400, p99_ms: 1500}
  - id: tp2
    name: take-profit-2x
    type: overlay
    take_profit_multiple: 2
    stop_loss_pct: 0.25
    max_hold_candles: 240
`)

	got, err := LoadStrategies(path)
	if err != nil {
		t.Fatalf("LoadStrategies: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(got))
	}

	ladder, ok := got[0].Strategy.(*domain.LadderStrategy)
	if !ok {
		t.Fatalf("expected ladder strategy, got %T", got[0].Strategy)
	}
	if ladder.Name != "ladder-a" {
		t.Errorf("name should default to id, got %q", ladder.Name)
	}
	if e, ok := ladder.Entry.(domain.EntryTrailing); !ok || e.RetracePct != 0.1 || e.MaxWaitCandles != 30 {
		t.Errorf("unexpected entry %+v", ladder.Entry)
	}
	if len(ladder.EntryLadder) != 1 || len(ladder.ExitLadder) != 2 || ladder.ExitLadder[1].TriggerMultiple != 4 {
		t.Errorf("unexpected ladders %+v %+v", ladder.EntryLadder, ladder.ExitLadder)
	}
	if ladder.StopLoss.Trailing == nil || ladder.StopLoss.Trailing.TrailBps != 2500 {
		t.Errorf("unexpected trailing stop %+v", ladder.StopLoss.Trailing)
	}
	if ladder.ReEntry == nil || ladder.ReEntry.SizePercent != 50 {
		t.Errorf("unexpected re-entry %+v", ladder.ReEntry)
	}
	if ladder.IntrabarPolicy != domain.IntrabarOpenProximity {
		t.Errorf("unexpected intrabar policy %q", ladder.IntrabarPolicy)
	}
	if ladder.Costs.FeeBps != 10 || ladder.Costs.Latency == nil || ladder.Costs.Latency.P99Ms != 1500 {
		t.Errorf("unexpected costs %+v", ladder.Costs)
	}

	overlay, ok := got[1].Strategy.(*domain.OverlayStrategy)
	if !ok {
		t.Fatalf("expected overlay strategy, got %T", got[1].Strategy)
	}
	if got[1].ID != "tp2" || overlay.Name != "take-profit-2x" {
		t.Errorf("unexpected id/name %s/%s", got[1].ID, overlay.Name)
	}
	if _, ok := overlay.Entry.(domain.EntryImmediate); !ok {
		t.Errorf("entry should default to immediate, got %T", overlay.Entry)
	}
	if overlay.TakeProfitMultiple != 2 || overlay.StopLossPct != 0.25 || overlay.MaxHoldCandles != 240 {
		t.Errorf("unexpected overlay %+v", overlay)
	}
}

func TestLoadStrategies_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", "strategies: []\n"},
		{"missing id", "strategies:\n  - type: overlay\n"},
		{"duplicate id", "strategies:\n  - {id: a, type: overlay}\n  - {id: a, type: overlay}\n"},
		{"unknown type", "strategies:\n  - {id: a, type: grid}\n"},
		{"unknown entry", "strategies:\n  - {id: a, type: overlay, entry: {kind: limit}}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadStrategies(writeFile(t, "s.yaml", tt.content))
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}
