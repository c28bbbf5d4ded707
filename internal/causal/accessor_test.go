package causal

import (
	"errors"
	"testing"

	"signal-replay-lab/internal/domain"
)

func minuteCandles(start int64, closes ...float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			Timestamp: start + int64(i)*60,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return out
}

func mustSeries(t *testing.T, candles []domain.Candle) *Series {
	t.Helper()
	s, err := NewSeries("asset-a", domain.Interval1m, candles)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return s
}

func TestNewSeries_RejectsUnsorted(t *testing.T) {
	candles := minuteCandles(0, 1, 2, 3)
	candles[1].Timestamp = 0

	_, err := NewSeries("asset-a", domain.Interval1m, candles)
	if !errors.Is(err, domain.ErrDataGap) {
		t.Fatalf("expected ErrDataGap, got %v", err)
	}
	if !errors.Is(err, ErrUnsortedSeries) {
		t.Errorf("expected ErrUnsortedSeries in chain, got %v", err)
	}
}

func TestNewSeries_RejectsInvalidCandle(t *testing.T) {
	candles := minuteCandles(0, 1, 2)
	candles[1].High = 0.5

	_, err := NewSeries("asset-a", domain.Interval1m, candles)
	if !errors.Is(err, ErrInvalidCandle) {
		t.Fatalf("expected ErrInvalidCandle, got %v", err)
	}
}

func TestNewSeries_RejectsUnknownInterval(t *testing.T) {
	_, err := NewSeries("asset-a", domain.Interval("7m"), nil)
	if !errors.Is(err, ErrUnknownInterval) {
		t.Fatalf("expected ErrUnknownInterval, got %v", err)
	}
}

func TestNewSeries_CopiesInput(t *testing.T) {
	candles := minuteCandles(0, 1, 2)
	s := mustSeries(t, candles)
	candles[0].Close = 99

	a := NewAccessor(s, 1000)
	got, err := a.CandlesUpTo(1000)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Close != 1 {
		t.Errorf("series shares memory with caller: close = %f", got[0].Close)
	}
}

func TestCandlesUpTo_OnlyClosedCandles(t *testing.T) {
	s := mustSeries(t, minuteCandles(0, 1, 2, 3, 4))
	a := NewAccessor(s, 150)

	// Candle 0 closes at 60, candle 1 at 120, candle 2 at 180.
	got, err := a.CandlesUpTo(150)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	for _, c := range got {
		if c.CloseTime(domain.Interval1m) > 150 {
			t.Errorf("candle %d closes after decision time", c.Timestamp)
		}
	}
}

func TestCandlesUpTo_LookAheadRejected(t *testing.T) {
	s := mustSeries(t, minuteCandles(0, 1, 2, 3))
	a := NewAccessor(s, 60)

	_, err := a.CandlesUpTo(61)
	if !errors.Is(err, domain.ErrOrderingViolation) {
		t.Fatalf("expected ErrOrderingViolation, got %v", err)
	}
	if !errors.Is(err, ErrLookAhead) {
		t.Errorf("expected ErrLookAhead in chain, got %v", err)
	}
}

func TestCandlesUpTo_ReturnsCopy(t *testing.T) {
	s := mustSeries(t, minuteCandles(0, 1, 2))
	a := NewAccessor(s, 120)

	first, _ := a.CandlesUpTo(120)
	first[0].Close = 42

	second, _ := a.CandlesUpTo(120)
	if second[0].Close != 1 {
		t.Errorf("mutation leaked into series: close = %f", second[0].Close)
	}
}

func TestAdvance_Monotonic(t *testing.T) {
	s := mustSeries(t, minuteCandles(0, 1, 2))
	a := NewAccessor(s, 100)

	if err := a.Advance(100); err != nil {
		t.Errorf("advancing to the same time must succeed: %v", err)
	}
	if err := a.Advance(200); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := a.Advance(150)
	if !errors.Is(err, domain.ErrOrderingViolation) {
		t.Fatalf("expected ErrOrderingViolation, got %v", err)
	}
	if a.Now() != 200 {
		t.Errorf("failed advance changed Now to %d", a.Now())
	}
}

func TestLatestClosedBefore(t *testing.T) {
	s := mustSeries(t, minuteCandles(0, 1, 2, 3))
	a := NewAccessor(s, 500)

	tests := []struct {
		name      string
		t         int64
		wantOK    bool
		wantClose float64
	}{
		{"before any close", 59, false, 0},
		{"exact close", 60, true, 1},
		{"between closes", 150, true, 2},
		{"after last", 500, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok, err := a.LatestClosedBefore(tt.t)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && c.Close != tt.wantClose {
				t.Errorf("close = %f, want %f", c.Close, tt.wantClose)
			}
		})
	}
}

func TestHasDataThrough(t *testing.T) {
	s := mustSeries(t, minuteCandles(0, 1, 2, 3))
	a := NewAccessor(s, 0)

	if !a.HasDataThrough(180) {
		t.Error("expected data through last close")
	}
	if a.HasDataThrough(181) {
		t.Error("expected no data after last close")
	}

	empty := mustSeries(t, nil)
	if NewAccessor(empty, 0).HasDataThrough(0) {
		t.Error("empty series has no data")
	}
}

func TestNextCloseAfter(t *testing.T) {
	s := mustSeries(t, minuteCandles(0, 1, 2, 3))
	a := NewAccessor(s, 0)

	next, ok := a.NextCloseAfter(0)
	if !ok || next != 60 {
		t.Errorf("NextCloseAfter(0) = %d, %v; want 60, true", next, ok)
	}
	next, ok = a.NextCloseAfter(60)
	if !ok || next != 120 {
		t.Errorf("NextCloseAfter(60) = %d, %v; want 120, true", next, ok)
	}
	if _, ok := a.NextCloseAfter(180); ok {
		t.Error("expected no close after the last candle")
	}
}

func TestCandlesUpTo_NoLookAheadAtEveryBoundary(t *testing.T) {
	candles := make([]domain.Candle, 50)
	for i := range candles {
		p := 1 + float64(i%7)/10
		candles[i] = domain.Candle{Timestamp: int64(i) * 300, Open: p, High: p * 1.1, Low: p * 0.9, Close: p, Volume: 10}
	}
	s, err := NewSeries("asset-a", domain.Interval5m, candles)
	if err != nil {
		t.Fatal(err)
	}

	a := NewAccessor(s, 0)
	for i := range candles {
		for _, probe := range []int64{candles[i].Timestamp, candles[i].CloseTime(domain.Interval5m) - 1, candles[i].CloseTime(domain.Interval5m)} {
			if probe < a.Now() {
				continue
			}
			if err := a.Advance(probe); err != nil {
				t.Fatal(err)
			}
			got, err := a.CandlesUpTo(probe)
			if err != nil {
				t.Fatal(err)
			}
			for _, c := range got {
				if c.CloseTime(domain.Interval5m) > probe {
					t.Fatalf("probe %d returned candle closing at %d", probe, c.CloseTime(domain.Interval5m))
				}
			}
			if want := s.countClosedBy(probe); len(got) != want {
				t.Fatalf("probe %d returned %d candles, want %d", probe, len(got), want)
			}
		}
	}
}
