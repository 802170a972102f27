package analyze

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cognicore/rulemine/pkg/rulemine/annotation"
	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
)

// dailyRecords spreads count[i] records over consecutive days.
func dailyRecords(counts []int) []annotation.Record {
	t0 := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	var records []annotation.Record
	for day, n := range counts {
		for i := 0; i < n; i++ {
			records = append(records, annotation.Record{
				ID:        fmt.Sprintf("d%02d-r%02d", day, i),
				Text:      "daily entry",
				Sentiment: "neutral",
				CreatedAt: t0.AddDate(0, 0, day),
			})
		}
	}
	return records
}

func TestTrendIncreasing(t *testing.T) {
	counts := make([]int, 30)
	for i := range counts {
		counts[i] = i + 1
	}
	cfg := config.Default()
	snap := makeSnap(t, dailyRecords(counts), cfg)

	out, err := (&TrendAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Trend == nil {
		t.Fatal("trend summary missing")
	}
	if out.Trend.Direction != "increasing" {
		t.Errorf("direction = %q, want increasing", out.Trend.Direction)
	}
	if !out.Trend.Significant {
		t.Errorf("clean ramp should be significant, p = %f", out.Trend.PValue)
	}
	if len(out.Trend.Forecast) != 7 {
		t.Errorf("forecast length = %d, want 7", len(out.Trend.Forecast))
	}
	if out.Trend.Weekday == nil {
		t.Error("30-day series should include weekday analysis")
	}

	var found *Candidate
	for i, c := range out.Candidates {
		if c.Kind == CandidateTrend {
			found = &out.Candidates[i]
		}
	}
	if found == nil {
		t.Fatal("significant trend should emit a candidate")
	}
	if found.Consequent != "direction=increasing" {
		t.Errorf("consequent = %q", found.Consequent)
	}
	if found.Support != 30 {
		t.Errorf("support = %d, want 30", found.Support)
	}
}

func TestTrendStable(t *testing.T) {
	// Noise around a constant level: no significant slope.
	counts := []int{5, 6, 5, 4, 5, 6, 4, 5, 5, 6, 4, 5}
	cfg := config.Default()
	snap := makeSnap(t, dailyRecords(counts), cfg)

	out, err := (&TrendAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Trend.Direction != "stable" {
		t.Errorf("direction = %q, want stable", out.Trend.Direction)
	}
	for _, c := range out.Candidates {
		if c.Kind == CandidateTrend {
			t.Error("insignificant trend should not emit a candidate")
		}
	}
	if len(out.Warnings) == 0 {
		t.Error("short series should warn that weekday analysis was skipped")
	}
}

func TestTrendAnomaly(t *testing.T) {
	counts := []int{4, 5, 6, 4, 5, 6, 4, 5, 6, 4, 50, 6, 4, 5}
	cfg := config.Default()
	snap := makeSnap(t, dailyRecords(counts), cfg)

	out, err := (&TrendAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Trend.Anomalies) == 0 {
		t.Fatal("spike day should be flagged")
	}
	spike := out.Trend.Anomalies[0]
	if spike.Value != 50 {
		t.Errorf("anomaly value = %f, want 50", spike.Value)
	}
	if spike.Score <= 0 {
		t.Errorf("anomaly score should be positive, got %f", spike.Score)
	}
}

func TestTrendGapDaysFilled(t *testing.T) {
	t0 := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	records := []annotation.Record{
		{ID: "a", Text: "x", CreatedAt: t0},
		{ID: "b", Text: "x", CreatedAt: t0.AddDate(0, 0, 3)},
	}
	cfg := config.Default()
	snap := makeSnap(t, records, cfg)

	out, err := (&TrendAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Trend.Days) != 4 {
		t.Fatalf("days = %d, want 4 (gaps filled)", len(out.Trend.Days))
	}
	if out.Trend.Counts[1] != 0 || out.Trend.Counts[2] != 0 {
		t.Errorf("gap days should count zero: %v", out.Trend.Counts)
	}
}

func TestTrendInsufficientData(t *testing.T) {
	cfg := config.Default()
	snap := makeSnap(t, dailyRecords([]int{3}), cfg)

	_, err := (&TrendAnalyzer{}).Run(context.Background(), snap, cfg)
	if !errors.Is(err, internalerr.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestForecastNonNegative(t *testing.T) {
	// Steeply decreasing series forecasts below zero without clamping.
	counts := []int{20, 16, 12, 8, 4, 2, 1, 1}
	cfg := config.Default()
	snap := makeSnap(t, dailyRecords(counts), cfg)

	out, err := (&TrendAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, p := range out.Trend.Forecast {
		if p.Value < 0 || p.Lower < 0 {
			t.Errorf("forecast point %d negative: %+v", i, p)
		}
		if p.Upper < p.Lower {
			t.Errorf("forecast point %d band inverted: %+v", i, p)
		}
	}
}
