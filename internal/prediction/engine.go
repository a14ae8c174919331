// Package prediction turns time-series analyses into forward-looking
// capacity and hardware-risk estimates.
package prediction

import (
	"fmt"
	"math"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/internal/timeseries"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

const (
	// minCapacityTrend is the units/day growth below which capacity
	// exhaustion is not worth predicting.
	minCapacityTrend = 0.5

	// capacityLimit is the utilisation percent treated as exhausted.
	capacityLimit = 95.0

	// riskEmitThreshold is the accumulated score above which a hardware
	// risk is reported; riskHighThreshold promotes it to high severity.
	riskEmitThreshold = 3.0
	riskHighThreshold = 6.0
)

type Engine struct {
	logger logger.Logger
}

func New(log logger.Logger) *Engine {
	return &Engine{logger: log}
}

// PredictCapacity estimates when a resource metric will cross the capacity
// limit, extrapolating the analysis trend from the current value. Returns nil
// when the trend is too shallow or the horizon never reaches the limit.
func (e *Engine) PredictCapacity(metric models.MetricType, analysis models.TimeSeriesAnalysis, currentValue float64) *models.CapacityPrediction {
	if analysis.Trend <= minCapacityTrend {
		return nil
	}

	horizon := len(analysis.Forecast)
	if horizon == 0 {
		return nil
	}
	forecast := timeseries.Forecast(currentValue, analysis.Trend, horizon)

	days := 0
	var predicted float64
	for i, v := range forecast {
		if v >= capacityLimit {
			days = i + 1
			predicted = v
			break
		}
	}
	if days == 0 {
		return nil
	}

	severity := models.SeverityMedium
	recommendation := fmt.Sprintf("%s utilisation is growing %.1f units/day; monitor and plan capacity.", metric, analysis.Trend)
	switch {
	case days < 7:
		severity = models.SeverityCritical
		recommendation = fmt.Sprintf("%s will reach %.0f%% within %d days; free up or expand capacity immediately.", metric, capacityLimit, days)
	case days < 30:
		severity = models.SeverityHigh
		recommendation = fmt.Sprintf("%s is on track to reach %.0f%% in %d days; schedule an expansion within the week.", metric, capacityLimit, days)
	}

	return &models.CapacityPrediction{
		Metric:         metric,
		DaysToCapacity: days,
		PredictedValue: predicted,
		CurrentValue:   currentValue,
		Severity:       severity,
		Confidence:     confidenceFromSamples(analysis.SampleCount),
		Recommendation: recommendation,
	}
}

// PredictHardwareRisk accumulates failure-likelihood indicators across the
// hardware-relevant metrics. Returns nil below the emit threshold.
func (e *Engine) PredictHardwareRisk(analyses map[models.MetricType]models.TimeSeriesAnalysis) *models.HardwareRisk {
	relevant := []models.MetricType{models.MetricCPU, models.MetricMemory, models.MetricDisk, models.MetricTemperature}

	var score float64
	var factors []string

	for _, metric := range relevant {
		analysis, ok := analyses[metric]
		if !ok {
			continue
		}

		if analysis.Volatility > 25 {
			score += analysis.Volatility / 25
			factors = append(factors, fmt.Sprintf("%s volatility %.1f", metric, analysis.Volatility))
		}

		if metric == models.MetricTemperature && analysis.Trend > 1 {
			score += 2
			factors = append(factors, fmt.Sprintf("temperature rising %.1f units/day", analysis.Trend))
		}

		if analysis.SampleCount > 0 && float64(len(analysis.Anomalies)) > 0.1*float64(analysis.SampleCount) {
			score += 1
			factors = append(factors, fmt.Sprintf("%s anomaly rate %d/%d", metric, len(analysis.Anomalies), analysis.SampleCount))
		}
	}

	if score <= riskEmitThreshold {
		return nil
	}

	severity := models.SeverityMedium
	if score > riskHighThreshold {
		severity = models.SeverityHigh
	}

	return &models.HardwareRisk{
		Score:      score,
		Severity:   severity,
		Confidence: math.Min(0.9, score/10),
		Factors:    factors,
	}
}

// confidenceFromSamples grows with window size and caps at 0.95; a fortnight
// of daily samples is treated as full confidence.
func confidenceFromSamples(sampleCount int) float64 {
	return math.Min(0.95, float64(sampleCount)/15)
}
