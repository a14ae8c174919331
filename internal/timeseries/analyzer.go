// Package timeseries computes the derived statistical summary of a sample
// window: trend, volatility, anomaly points, a short-horizon forecast and a
// seasonality classification. Everything here is a pure computation over the
// inputs; no state, no side effects.
package timeseries

import (
	"math"
	"time"

	"github.com/platformbuilds/fleetwatch-core/internal/config"
	"github.com/platformbuilds/fleetwatch-core/internal/models"
)

const seasonalityMinSamples = 14

// Options tunes the analyzer. Zero values fall back to defaults.
type Options struct {
	// AnomalyMultiplier is the z-score cutoff for outliers (default 2.5).
	AnomalyMultiplier float64
	// ForecastSteps is the extrapolation horizon (default 7).
	ForecastSteps int
	// SeasonalityStrength is the variance-ratio cutoff for classifying a
	// cycle as dominant (default 0.3).
	SeasonalityStrength float64
}

func DefaultOptions() Options {
	return Options{
		AnomalyMultiplier:   2.5,
		ForecastSteps:       7,
		SeasonalityStrength: 0.3,
	}
}

type Analyzer struct {
	opts Options
}

func NewAnalyzer(cfg config.AnalyzerConfig) *Analyzer {
	opts := DefaultOptions()
	if cfg.AnomalyMultiplier > 0 {
		opts.AnomalyMultiplier = cfg.AnomalyMultiplier
	}
	if cfg.ForecastSteps > 0 {
		opts.ForecastSteps = cfg.ForecastSteps
	}
	if cfg.SeasonalityStrength > 0 {
		opts.SeasonalityStrength = cfg.SeasonalityStrength
	}
	return &Analyzer{opts: opts}
}

// Analyze summarises an ordered sample window. values and timestamps are
// parallel slices, oldest first. Degenerate input (short windows, identical
// values) yields neutral results rather than errors.
func (a *Analyzer) Analyze(values []float64, timestamps []time.Time) models.TimeSeriesAnalysis {
	analysis := models.TimeSeriesAnalysis{
		Seasonality: models.SeasonalityInsufficientData,
		SampleCount: len(values),
		Forecast:    []float64{},
		Anomalies:   []float64{},
	}

	if len(values) < 2 {
		return analysis
	}

	analysis.Trend = Slope(values)
	analysis.Volatility = StdDev(values)
	analysis.Anomalies = a.anomalies(values)
	analysis.Forecast = Forecast(values[len(values)-1], analysis.Trend, a.opts.ForecastSteps)
	analysis.Seasonality = a.classifySeasonality(values, timestamps)

	return analysis
}

// anomalies returns the values whose distance from the mean exceeds the
// z-score cutoff. Needs a minimally meaningful window and nonzero spread.
func (a *Analyzer) anomalies(values []float64) []float64 {
	anomalies := []float64{}
	if len(values) < MIN_SAMPLES {
		return anomalies
	}

	mean := Mean(values)
	stddev := StdDev(values)
	if stddev == 0 {
		return anomalies
	}

	cutoff := a.opts.AnomalyMultiplier * stddev
	for _, v := range values {
		if math.Abs(v-mean) > cutoff {
			anomalies = append(anomalies, v)
		}
	}
	return anomalies
}

// Forecast extrapolates the trend line from the last observed value. The
// metrics are percentages, so every step clamps to [0, 100].
func Forecast(lastValue, trend float64, steps int) []float64 {
	if steps <= 0 {
		return []float64{}
	}
	forecast := make([]float64, steps)
	for i := 1; i <= steps; i++ {
		forecast[i-1] = clampPercent(lastValue + trend*float64(i))
	}
	return forecast
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// classifySeasonality buckets the window by hour-of-day and day-of-week and
// compares between-group variance against total variance. The stronger cycle
// wins if it clears the strength cutoff.
func (a *Analyzer) classifySeasonality(values []float64, timestamps []time.Time) models.Seasonality {
	if len(values) < seasonalityMinSamples || len(timestamps) != len(values) {
		return models.SeasonalityInsufficientData
	}

	hourly := groupStrength(values, timestamps, 24, func(ts time.Time) int { return ts.Hour() })
	weekly := groupStrength(values, timestamps, 7, func(ts time.Time) int { return int(ts.Weekday()) })

	switch {
	case hourly > a.opts.SeasonalityStrength:
		return models.SeasonalityDaily
	case weekly > a.opts.SeasonalityStrength:
		return models.SeasonalityWeekly
	default:
		return models.SeasonalityRandom
	}
}

// groupStrength computes between-group variance over total variance for one
// bucketing of the window. A flat window has zero total variance; that is
// zero strength, not a division error.
func groupStrength(values []float64, timestamps []time.Time, buckets int, bucketOf func(time.Time) int) float64 {
	mean := Mean(values)

	var totalVar float64
	for _, v := range values {
		d := v - mean
		totalVar += d * d
	}
	if totalVar == 0 {
		return 0
	}

	sums := make([]float64, buckets)
	counts := make([]int, buckets)
	for i, v := range values {
		b := bucketOf(timestamps[i])
		sums[b] += v
		counts[b]++
	}

	var betweenVar float64
	for b := 0; b < buckets; b++ {
		if counts[b] == 0 {
			continue
		}
		groupMean := sums[b] / float64(counts[b])
		d := groupMean - mean
		betweenVar += float64(counts[b]) * d * d
	}

	return betweenVar / totalVar
}
