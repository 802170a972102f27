package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
	"github.com/cognicore/rulemine/pkg/rulemine/stats"
)

// minSeasonalPoints is the series length below which weekday/seasonal
// analysis is skipped for lack of granularity.
const minSeasonalPoints = 30

// forecastHorizon is the number of future points forecast.
const forecastHorizon = 7

// TrendSummary is the trend analyzer's full output.
type TrendSummary struct {
	Days          []string        `json:"days"` // YYYY-MM-DD, ascending
	Counts        []float64       `json:"counts"`
	Direction     string          `json:"direction"` // increasing, decreasing, stable
	Slope         float64         `json:"slope"`
	R2            float64         `json:"r2"`
	PValue        float64         `json:"p_value"`
	Significant   bool            `json:"significant"`
	MovingAverage []float64       `json:"moving_average"`
	Weekday       *WeekdayEffect  `json:"weekday,omitempty"`
	Anomalies     []AnomalyPoint  `json:"anomalies,omitempty"`
	Forecast      []ForecastPoint `json:"forecast"`
}

// WeekdayEffect compares weekday and weekend activity.
type WeekdayEffect struct {
	WeekdayMean float64 `json:"weekday_mean"`
	WeekendMean float64 `json:"weekend_mean"`
	T           float64 `json:"t"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

// AnomalyPoint is one day flagged by the IQR rule.
type AnomalyPoint struct {
	Day   string  `json:"day"`
	Value float64 `json:"value"`
	Score float64 `json:"score"` // normalized distance from the median
}

// ForecastPoint is one forecast step with its 95% band.
type ForecastPoint struct {
	Value float64 `json:"value"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// TrendAnalyzer fits the daily annotation count series: linear trend,
// moving average, weekday effect, IQR anomalies, and a short-horizon
// forecast with a confidence band from the residual variance.
type TrendAnalyzer struct{}

func (a *TrendAnalyzer) Kind() Kind { return KindTrend }

func (a *TrendAnalyzer) Run(ctx context.Context, snap *feature.Snapshot, cfg config.AnalysisConfig) (Output, error) {
	days, counts := dailyCounts(snap)
	if len(days) < 2 {
		return Output{}, fmt.Errorf("%w: %d time points, need 2", internalerr.ErrInsufficientData, len(days))
	}
	if err := ctx.Err(); err != nil {
		return Output{Partial: true, Warnings: []string{internalerr.ErrResourceExhausted.Error()}}, nil
	}

	reg := stats.LinearFit(counts)
	summary := &TrendSummary{
		Days:          days,
		Counts:        counts,
		Slope:         reg.Slope,
		R2:            reg.R2,
		PValue:        reg.PValue,
		Significant:   reg.PValue < 0.05,
		Direction:     direction(reg),
		MovingAverage: stats.MovingAverage(counts, 7),
	}

	out := Output{Trend: summary}

	if len(days) >= minSeasonalPoints {
		summary.Weekday = weekdayEffect(days, counts)
	} else {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("weekday analysis skipped: %d time points below %d", len(days), minSeasonalPoints))
	}

	for _, o := range stats.IQROutliers(counts) {
		summary.Anomalies = append(summary.Anomalies, AnomalyPoint{
			Day:   days[o.Index],
			Value: o.Value,
			Score: o.Score,
		})
	}

	summary.Forecast = forecast(reg, len(counts))

	if summary.Significant {
		conf := summary.R2
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		out.Candidates = append(out.Candidates, Candidate{
			Kind:       CandidateTrend,
			Condition:  "metric=daily_count",
			Consequent: "direction=" + summary.Direction,
			Support:    len(days),
			Confidence: conf,
			Evidence: map[string]string{
				"slope":   fmt.Sprintf("%.4f", summary.Slope),
				"r2":      fmt.Sprintf("%.4f", summary.R2),
				"p_value": fmt.Sprintf("%.6f", summary.PValue),
			},
		})
	}
	return out, nil
}

// dailyCounts aggregates records into a contiguous daily series,
// filling gap days with zero.
func dailyCounts(snap *feature.Snapshot) ([]string, []float64) {
	byDay := make(map[string]float64)
	var min, max time.Time
	for _, r := range snap.Records {
		if r.CreatedAt.IsZero() {
			continue
		}
		day := r.CreatedAt.UTC().Truncate(24 * time.Hour)
		byDay[day.Format("2006-01-02")]++
		if min.IsZero() || day.Before(min) {
			min = day
		}
		if max.IsZero() || day.After(max) {
			max = day
		}
	}
	if len(byDay) == 0 {
		return nil, nil
	}
	var days []string
	var counts []float64
	for d := min; !d.After(max); d = d.Add(24 * time.Hour) {
		key := d.Format("2006-01-02")
		days = append(days, key)
		counts = append(counts, byDay[key])
	}
	return days, counts
}

func direction(reg stats.Regression) string {
	switch {
	case reg.PValue >= 0.05 || reg.Slope == 0:
		return "stable"
	case reg.Slope > 0:
		return "increasing"
	default:
		return "decreasing"
	}
}

func weekdayEffect(days []string, counts []float64) *WeekdayEffect {
	var weekday, weekend []float64
	for i, day := range days {
		t, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		switch t.Weekday() {
		case time.Saturday, time.Sunday:
			weekend = append(weekend, counts[i])
		default:
			weekday = append(weekday, counts[i])
		}
	}
	t, p := stats.WelchT(weekday, weekend)
	return &WeekdayEffect{
		WeekdayMean: stats.Mean(weekday),
		WeekendMean: stats.Mean(weekend),
		T:           t,
		PValue:      p,
		Significant: p < 0.05,
	}
}

// forecast extends the regression line forecastHorizon steps with a
// 95% band from residual variance, clamped to non-negative values.
func forecast(reg stats.Regression, n int) []ForecastPoint {
	band := 1.96 * reg.ResidualStd
	points := make([]ForecastPoint, forecastHorizon)
	for i := 0; i < forecastHorizon; i++ {
		fit := reg.Intercept + reg.Slope*float64(n+i)
		p := ForecastPoint{
			Value: clampNonNeg(fit),
			Lower: clampNonNeg(fit - band),
			Upper: clampNonNeg(fit + band),
		}
		points[i] = p
	}
	return points
}

func clampNonNeg(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}
