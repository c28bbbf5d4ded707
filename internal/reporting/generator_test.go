package reporting

import (
	"math"
	"strings"
	"testing"
	"time"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/validation"
)

var fixedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testRanked() *validation.RankedChampions {
	cells := []validation.CellResult{
		{CandidateID: "hold", WindowID: "w0", Lane: domain.LaneBaseline, Status: validation.CellSucceeded, Score: 0.30, Trades: 2},
		{CandidateID: "hold", WindowID: "w0", Lane: domain.LaneFeeShock, Status: validation.CellSucceeded, Score: 0.25, Trades: 2},
		{CandidateID: "hold", WindowID: "w1", Lane: domain.LaneBaseline, Status: validation.CellSkipped, Error: "no signals"},
		{CandidateID: "hold", WindowID: "w1", Lane: domain.LaneFeeShock, Status: validation.CellSkipped, Error: "no signals"},
		{CandidateID: "tp", WindowID: "w0", Lane: domain.LaneBaseline, Status: validation.CellSucceeded, Score: 0.20, Trades: 1},
		{CandidateID: "tp", WindowID: "w0", Lane: domain.LaneFeeShock, Status: validation.CellFailed, Error: "boom"},
		{CandidateID: "tp", WindowID: "w1", Lane: domain.LaneBaseline, Status: validation.CellSucceeded, Score: 0.10, Trades: 1},
		{CandidateID: "tp", WindowID: "w1", Lane: domain.LaneFeeShock, Status: validation.CellSkipped},
	}
	champions, unranked := validation.Rank([]string{"hold", "tp", "idle"}, cells)
	return &validation.RankedChampions{Champions: champions, Unranked: unranked, Cells: cells}
}

func testInfo() StudyInfo {
	return StudyInfo{
		Start:      1735689600,
		End:        1735948800,
		Candidates: 3,
		Windows:    2,
		Lanes:      []string{domain.LaneBaseline, domain.LaneFeeShock},
	}
}

func TestGenerate(t *testing.T) {
	r := NewGenerator().WithClock(func() time.Time { return fixedTime }).Generate(testInfo(), testRanked())

	if !r.GeneratedAt.Equal(fixedTime) {
		t.Errorf("GeneratedAt = %v, want %v", r.GeneratedAt, fixedTime)
	}
	want := CellSummary{Total: 8, Succeeded: 4, Failed: 1, Skipped: 3}
	if r.CellSummary != want {
		t.Errorf("CellSummary = %+v, want %+v", r.CellSummary, want)
	}
	if len(r.Failures) != 1 || r.Failures[0].Cell != "tp|w0|fee_shock" {
		t.Errorf("unexpected failures %+v", r.Failures)
	}

	if len(r.Champions) != 1 {
		t.Fatalf("expected 1 champion, got %d", len(r.Champions))
	}
	if r.Champions[0].CandidateID != "hold" || r.Champions[0].Rank != 1 {
		t.Errorf("expected hold first, got %+v", r.Champions[0])
	}
	// tp has a failed cell
	if len(r.Unranked) != 2 || r.Unranked[0] != "idle" || r.Unranked[1] != "tp" {
		t.Errorf("unexpected unranked %v", r.Unranked)
	}
}

func TestGenerate_LaneSensitivity(t *testing.T) {
	r := NewGenerator().Generate(testInfo(), testRanked())

	rows := r.LaneSensitivity
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(rows), rows)
	}

	// Sorted by candidate, lane.
	if rows[0].CandidateID != "hold" || rows[0].Lane != domain.LaneBaseline {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Lane != domain.LaneFeeShock || !rows[1].HasBaseline || math.Abs(rows[1].DeltaMean+0.05) > 1e-9 {
		t.Errorf("row 1 = %+v", rows[1])
	}
	tp := rows[2]
	if tp.CandidateID != "tp" || tp.Cells != 2 || math.Abs(tp.MeanScore-0.15) > 1e-9 || tp.MinScore != 0.10 {
		t.Errorf("row 2 = %+v", tp)
	}
	if !tp.HasBaseline || tp.DeltaMean != 0 {
		t.Errorf("baseline row should have zero delta, got %+v", tp)
	}
}

func TestRenderMarkdown(t *testing.T) {
	r := NewGenerator().WithClock(func() time.Time { return fixedTime }).Generate(testInfo(), testRanked())
	md := RenderMarkdown(r)

	for _, want := range []string{
		"# Validation Study Report",
		"Generated: 2025-06-01T12:00:00Z",
		"Lanes: baseline, fee_shock",
		"| Study Start | 2025-01-01T00:00:00Z |",
		"| Failed | 1 |",
		"| 1 | hold | 0.2500 |",
		"Unranked (failed or unscored cells): idle, tp",
		"| hold | fee_shock | 1 | 0.2500 | 0.2500 | -0.0500 |",
		"- `tp|w0|fee_shock`: boom",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	// Deterministic output
	if md != RenderMarkdown(r) {
		t.Error("markdown rendering is not deterministic")
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	r := NewGenerator().Generate(StudyInfo{}, &validation.RankedChampions{Unranked: []string{"a"}})
	md := RenderMarkdown(r)
	if !strings.Contains(md, "No candidate produced a scored cell.") {
		t.Error("expected empty ranking note")
	}
	if strings.Contains(md, "## Failed Cells") {
		t.Error("failures section should be omitted")
	}
}

func TestRenderCSV(t *testing.T) {
	r := NewGenerator().Generate(testInfo(), testRanked())
	lines := strings.Split(strings.TrimSpace(RenderCSV(r.Champions)), "\n")

	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "rank,candidate_id,maximin_score") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "1,hold,0.250000,0.275000,0.275000,4,2,w0,fee_shock" {
		t.Errorf("unexpected row %q", lines[1])
	}
}
