package clock

import (
	"errors"
	"testing"

	"signal-replay-lab/internal/domain"
)

func TestNew_UnknownResolution(t *testing.T) {
	_, err := New(0, Resolution("d"))
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestObserve_Monotonic(t *testing.T) {
	c, err := New(1000, ResolutionSecond)
	if err != nil {
		t.Fatal(err)
	}
	if c.CandleIndex() != -1 {
		t.Errorf("CandleIndex before observe = %d, want -1", c.CandleIndex())
	}

	if err := c.Observe(1060); err != nil {
		t.Fatal(err)
	}
	if err := c.Observe(1060); err != nil {
		t.Errorf("observing the same time twice must succeed: %v", err)
	}
	if err := c.Observe(1000); !errors.Is(err, domain.ErrOrderingViolation) {
		t.Errorf("expected ErrOrderingViolation, got %v", err)
	}
	if c.Now() != 1060 {
		t.Errorf("Now = %d, want 1060", c.Now())
	}
	if c.CandleIndex() != 1 {
		t.Errorf("CandleIndex = %d, want 1", c.CandleIndex())
	}
}

func TestCandlesSince(t *testing.T) {
	c, _ := New(0, ResolutionSecond)
	for i := int64(1); i <= 5; i++ {
		_ = c.Observe(i * 60)
	}
	if got := c.CandlesSince(1); got != 3 {
		t.Errorf("CandlesSince(1) = %d, want 3", got)
	}
}

func TestSince_Resolutions(t *testing.T) {
	tests := []struct {
		res  Resolution
		want int64
	}{
		{ResolutionMillisecond, 7_200_000},
		{ResolutionSecond, 7200},
		{ResolutionMinute, 120},
		{ResolutionHour, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.res), func(t *testing.T) {
			c, err := New(0, tt.res)
			if err != nil {
				t.Fatal(err)
			}
			_ = c.Observe(7200)
			if got := c.Since(0); got != tt.want {
				t.Errorf("Since = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	if r, err := ParseResolution(""); err != nil || r != ResolutionSecond {
		t.Errorf("ParseResolution(\"\") = %q, %v", r, err)
	}
	if r, err := ParseResolution("m"); err != nil || r != ResolutionMinute {
		t.Errorf("ParseResolution(\"m\") = %q, %v", r, err)
	}
	if _, err := ParseResolution("week"); err == nil {
		t.Error("expected error for unknown resolution")
	}
}
