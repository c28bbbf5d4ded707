package features

import (
	"errors"
	"math"
	"testing"

	"signal-replay-lab/internal/domain"
)

func closes(values ...float64) []domain.Candle {
	out := make([]domain.Candle, len(values))
	for i, v := range values {
		out[i] = domain.Candle{Timestamp: int64(i) * 60, Open: v, High: v, Low: v, Close: v, Volume: 1}
	}
	return out
}

func assertColumn(t *testing.T, rows []domain.FeatureRow, col string, want []*float64) {
	t.Helper()
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, w := range want {
		got := rows[i].Values[col]
		switch {
		case w == nil && got != nil:
			t.Errorf("%s[%d]: expected nil, got %v", col, i, *got)
		case w != nil && got == nil:
			t.Errorf("%s[%d]: expected %v, got nil", col, i, *w)
		case w != nil && math.Abs(*w-*got) > 1e-9:
			t.Errorf("%s[%d]: expected %v, got %v", col, i, *w, *got)
		}
	}
}

func TestNormalize(t *testing.T) {
	specs, err := Normalize([]domain.FeatureSpec{
		{Name: domain.FeatureSMA, Window: 5},
		{Name: domain.FeatureLogReturn},
		{Name: domain.FeatureSMA, Window: 5},
		{Name: domain.FeatureATR, Window: 14},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"atr_14", "log_return_1", "sma_5"}
	if len(specs) != len(want) {
		t.Fatalf("expected %v, got %v", want, specs)
	}
	for i, w := range want {
		if Column(specs[i]) != w {
			t.Errorf("column %d: expected %s, got %s", i, w, Column(specs[i]))
		}
	}
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		specs []domain.FeatureSpec
	}{
		{"empty", nil},
		{"unknown", []domain.FeatureSpec{{Name: "rsi", Window: 14}}},
		{"zero window", []domain.FeatureSpec{{Name: domain.FeatureSMA}}},
		{"negative lag", []domain.FeatureSpec{{Name: domain.FeatureLogReturn, Window: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.specs)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestParseList(t *testing.T) {
	got, err := ParseList("sma:20, log_return ,ema:12,sma:20")
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	want := []string{"ema_12", "log_return_1", "sma_20"}
	if len(got) != len(want) {
		t.Fatalf("expected %d features, got %d", len(want), len(got))
	}
	for i, f := range got {
		if Column(f) != want[i] {
			t.Errorf("feature %d: expected %s, got %s", i, want[i], Column(f))
		}
	}

	for _, bad := range []string{"", "sma", "sma:x", "rsi:14"} {
		if _, err := ParseList(bad); !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("ParseList(%q): expected configuration error, got %v", bad, err)
		}
	}
}

func TestCompute_SMAAndEMA(t *testing.T) {
	candles := closes(1, 2, 3, 4, 5)
	specs, _ := Normalize([]domain.FeatureSpec{{Name: domain.FeatureSMA, Window: 3}, {Name: domain.FeatureEMA, Window: 3}})

	rows, err := Compute("a", candles, specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertColumn(t, rows, "sma_3", []*float64{nil, nil, ptr(2), ptr(3), ptr(4)})
	// alpha = 0.5, seeded at 2: 0.5*4+0.5*2 = 3, 0.5*5+0.5*3 = 4
	assertColumn(t, rows, "ema_3", []*float64{nil, nil, ptr(2), ptr(3), ptr(4)})
}

func TestCompute_LogReturnAndVelocity(t *testing.T) {
	candles := closes(1, 2, 4)
	specs, _ := Normalize([]domain.FeatureSpec{{Name: domain.FeatureLogReturn}, {Name: domain.FeaturePriceVelocity, Window: 2}})

	rows, err := Compute("a", candles, specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertColumn(t, rows, "log_return_1", []*float64{nil, ptr(math.Ln2), ptr(math.Ln2)})
	// (4-1)/120 seconds
	assertColumn(t, rows, "price_velocity_2", []*float64{nil, nil, ptr(3.0 / 120)})
}

func TestCompute_ATR(t *testing.T) {
	// True ranges: 2, 4, 5, 1
	candles := []domain.Candle{
		{Timestamp: 0, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1},
		{Timestamp: 60, Open: 10, High: 14, Low: 10, Close: 13, Volume: 1},
		{Timestamp: 120, Open: 13, High: 13, Low: 8, Close: 9, Volume: 1},
		{Timestamp: 180, Open: 9, High: 10, Low: 9, Close: 10, Volume: 1},
	}
	specs, _ := Normalize([]domain.FeatureSpec{{Name: domain.FeatureATR, Window: 2}})

	rows, err := Compute("a", candles, specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// seed (2+4)/2 = 3, then (3+5)/2 = 4, (4+1)/2 = 2.5
	assertColumn(t, rows, "atr_2", []*float64{nil, ptr(3), ptr(4), ptr(2.5)})
}

func TestCompute_VolumeZScore(t *testing.T) {
	candles := closes(1, 1, 1, 1)
	candles[0].Volume, candles[1].Volume, candles[2].Volume, candles[3].Volume = 1, 3, 3, 3

	specs, _ := Normalize([]domain.FeatureSpec{{Name: domain.FeatureVolumeZScore, Window: 2}})
	rows, err := Compute("a", candles, specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// window [1,3]: mean 2, std 1 => z 1; flat windows are undefined
	assertColumn(t, rows, "volume_zscore_2", []*float64{nil, ptr(1), nil, nil})
}

func TestCompute_Causal(t *testing.T) {
	full := closes(1, 3, 2, 5, 4, 6)
	specs, _ := Normalize([]domain.FeatureSpec{
		{Name: domain.FeatureSMA, Window: 2},
		{Name: domain.FeatureEMA, Window: 2},
		{Name: domain.FeatureATR, Window: 2},
		{Name: domain.FeatureLogReturn},
	})

	all, err := Compute("a", full, specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prefix, err := Compute("a", full[:4], specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range prefix {
		for col, v := range prefix[i].Values {
			w := all[i].Values[col]
			if (v == nil) != (w == nil) || (v != nil && *v != *w) {
				t.Errorf("row %d %s changed when later candles were added", i, col)
			}
		}
	}
}

func TestCompute_RejectsUnsorted(t *testing.T) {
	candles := closes(1, 2)
	candles[1].Timestamp = candles[0].Timestamp

	specs, _ := Normalize([]domain.FeatureSpec{{Name: domain.FeatureSMA, Window: 1}})
	if _, err := Compute("a", candles, specs); !errors.Is(err, domain.ErrOrderingViolation) {
		t.Errorf("expected ordering violation, got %v", err)
	}
}
