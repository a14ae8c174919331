// Package insights turns a device's recent telemetry into human-readable
// findings: performance observations, capacity predictions, security-posture
// and hardware-risk warnings and scheduling hints. Generation is budgeted: a
// slow store or a long analysis yields partial results, never a hung sweep.
package insights

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/fleetwatch-core/internal/config"
	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/internal/monitoring"
	"github.com/platformbuilds/fleetwatch-core/internal/prediction"
	"github.com/platformbuilds/fleetwatch-core/internal/storage"
	"github.com/platformbuilds/fleetwatch-core/internal/timeseries"
	"github.com/platformbuilds/fleetwatch-core/pkg/cache"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

const (
	volatilityNoteworthy = 25.0
	volatilitySevere     = 50.0
	trendNoteworthy      = 1.0
	trendElevatedValue   = 75.0
	seasonalityMinSpread = 10.0

	// securityAnomalyShare is the fraction of anomalous network readings that
	// flags suspicious traffic; securityMinSamples keeps tiny windows out.
	securityAnomalyShare = 0.10
	securityMinSamples   = 12

	// healthStressedLevel marks a metric as stressed on its current value;
	// healthMinStressed subsystems at once grade as degraded system health.
	healthStressedLevel = 85.0
	healthMinStressed   = 2
)

// Options tunes generation. Zero values fall back to defaults.
type Options struct {
	// FetchTimeout bounds the store read for a device.
	FetchTimeout time.Duration
	// AnalysisTimeout bounds the per-device analysis loop; metrics not
	// analyzed when it expires are skipped, not failed.
	AnalysisTimeout time.Duration
	// WindowDays is how far back the sample window reaches.
	WindowDays int
	// MoveThresholdPercent is the relative value change that re-emits a
	// deduplicated insight at unchanged severity.
	MoveThresholdPercent float64
	// StateTTL bounds how long dedup state suppresses repeats.
	StateTTL time.Duration
}

func DefaultGeneratorOptions() Options {
	return Options{
		FetchTimeout:         3 * time.Second,
		AnalysisTimeout:      2 * time.Second,
		WindowDays:           7,
		MoveThresholdPercent: 10,
		StateTTL:             24 * time.Hour,
	}
}

func OptionsFromConfig(cfg config.InsightsConfig) Options {
	opts := DefaultGeneratorOptions()
	if cfg.FetchTimeoutMs > 0 {
		opts.FetchTimeout = time.Duration(cfg.FetchTimeoutMs) * time.Millisecond
	}
	if cfg.AnalysisTimeoutMs > 0 {
		opts.AnalysisTimeout = time.Duration(cfg.AnalysisTimeoutMs) * time.Millisecond
	}
	if cfg.WindowDays > 0 {
		opts.WindowDays = cfg.WindowDays
	}
	if cfg.MoveThresholdPercent > 0 {
		opts.MoveThresholdPercent = cfg.MoveThresholdPercent
	}
	return opts
}

// Generator produces per-device insights from stored samples.
type Generator struct {
	store    storage.TelemetryStore
	analyzer *timeseries.Analyzer
	engine   *prediction.Engine
	cache    cache.ValkeyCache // nil disables dedup
	sink     Sink              // nil disables automation dispatch
	logger   logger.Logger
	opts     Options
	nowFn    func() time.Time
}

func NewGenerator(store storage.TelemetryStore, analyzer *timeseries.Analyzer, engine *prediction.Engine, opts Options, log logger.Logger) *Generator {
	def := DefaultGeneratorOptions()
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = def.AnalysisTimeout
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = def.WindowDays
	}
	if opts.MoveThresholdPercent <= 0 {
		opts.MoveThresholdPercent = def.MoveThresholdPercent
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = def.StateTTL
	}
	return &Generator{
		store:    store,
		analyzer: analyzer,
		engine:   engine,
		logger:   log,
		opts:     opts,
		nowFn:    time.Now,
	}
}

// SetCache attaches the dedup state store.
func (g *Generator) SetCache(c cache.ValkeyCache) { g.cache = c }

// SetSink attaches the automation sink for high/critical insights.
func (g *Generator) SetSink(s Sink) { g.sink = s }

// SetNow overrides the generator clock. Tests only.
func (g *Generator) SetNow(nowFn func() time.Time) { g.nowFn = nowFn }

// candidate is an insight before dedup, paired with the observed value its
// dedup comparison uses.
type candidate struct {
	insight models.Insight
	value   float64
}

// GenerateForDevice analyzes one device's recent window and returns the
// insights that survived deduplication. A store failure is an error; an
// analysis deadline yields whatever was computed in time.
func (g *Generator) GenerateForDevice(ctx context.Context, deviceID string) ([]models.Insight, error) {
	fetchStart := g.nowFn()
	fetchCtx, cancelFetch := context.WithTimeout(ctx, g.opts.FetchTimeout)
	samples, err := g.store.GetRecentSamples(fetchCtx, deviceID, storage.MetricAll, g.opts.WindowDays)
	cancelFetch()
	monitoring.RecordAnalysisDuration("fetch", time.Since(fetchStart))
	if err != nil {
		monitoring.RecordStoreOperation("get_recent_samples", "error")
		monitoring.RecordError("insights")
		return nil, fmt.Errorf("fetch samples for device %s: %w", deviceID, err)
	}
	monitoring.RecordStoreOperation("get_recent_samples", "success")
	if len(samples) == 0 {
		return nil, nil
	}

	series := groupByMetric(samples)
	analyses, currentValues := g.analyzeAll(ctx, deviceID, series)

	candidates := g.buildCandidates(deviceID, analyses, currentValues)
	return g.emit(ctx, deviceID, candidates), nil
}

// analyzeAll runs the analyzer per metric under the analysis budget. A panic
// in one metric's analysis is contained; the remaining metrics still run.
func (g *Generator) analyzeAll(ctx context.Context, deviceID string, series map[models.MetricType][]models.MetricSample) (map[models.MetricType]models.TimeSeriesAnalysis, map[models.MetricType]float64) {
	analysisCtx, cancel := context.WithTimeout(ctx, g.opts.AnalysisTimeout)
	defer cancel()

	analyses := make(map[models.MetricType]models.TimeSeriesAnalysis, len(series))
	currentValues := make(map[models.MetricType]float64, len(series))

	start := g.nowFn()
	defer func() {
		monitoring.RecordAnalysisDuration("analysis", time.Since(start))
	}()

	for _, metric := range models.KnownMetrics {
		window, ok := series[metric]
		if !ok {
			continue
		}
		if analysisCtx.Err() != nil {
			monitoring.RecordError("insights")
			g.logger.Warn("analysis budget exhausted; returning partial results",
				"device_id", deviceID, "remaining_metric", metric)
			break
		}

		analysis, err := g.analyzeSeries(window)
		if err != nil {
			monitoring.RecordError("insights")
			g.logger.Error("metric analysis failed; skipping metric",
				"device_id", deviceID, "metric", metric, "error", err)
			continue
		}
		analyses[metric] = analysis
		currentValues[metric] = window[len(window)-1].Value
	}

	return analyses, currentValues
}

func (g *Generator) analyzeSeries(window []models.MetricSample) (analysis models.TimeSeriesAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panic: %v", r)
		}
	}()

	values := make([]float64, len(window))
	timestamps := make([]time.Time, len(window))
	for i, s := range window {
		values[i] = s.Value
		timestamps[i] = s.Timestamp
	}
	return g.analyzer.Analyze(values, timestamps), nil
}

func (g *Generator) buildCandidates(deviceID string, analyses map[models.MetricType]models.TimeSeriesAnalysis, currentValues map[models.MetricType]float64) []candidate {
	var out []candidate

	for _, metric := range models.KnownMetrics {
		analysis, ok := analyses[metric]
		if !ok {
			continue
		}
		current := currentValues[metric]

		if p := g.engine.PredictCapacity(metric, analysis, current); p != nil {
			out = append(out, candidate{
				value: current,
				insight: models.Insight{
					DeviceID:       deviceID,
					Type:           models.InsightPrediction,
					Metric:         metric,
					Severity:       p.Severity,
					Title:          fmt.Sprintf("%s capacity exhaustion in %d days", metric, p.DaysToCapacity),
					Description:    fmt.Sprintf("%s is at %.1f%% and growing %.1f units/day; forecast reaches %.1f%%.", metric, current, analysis.Trend, p.PredictedValue),
					Recommendation: p.Recommendation,
					Confidence:     p.Confidence,
					Metadata: map[string]interface{}{
						"days_to_capacity": p.DaysToCapacity,
						"trend":            analysis.Trend,
						"current_value":    current,
					},
				},
			})
		} else if analysis.Trend > trendNoteworthy {
			severity := models.SeverityLow
			if current > trendElevatedValue {
				severity = models.SeverityMedium
			}
			out = append(out, candidate{
				value: current,
				insight: models.Insight{
					DeviceID:       deviceID,
					Type:           models.InsightPerformance,
					Metric:         metric,
					Severity:       severity,
					Title:          fmt.Sprintf("%s utilisation trending up", metric),
					Description:    fmt.Sprintf("%s has grown %.1f units/day over the window and sits at %.1f%%.", metric, analysis.Trend, current),
					Recommendation: "Review recent workload changes before growth compounds.",
					Confidence:     math.Min(0.9, float64(analysis.SampleCount)/15),
					Metadata:       map[string]interface{}{"trend": analysis.Trend, "current_value": current},
				},
			})
		}

		if analysis.Volatility > volatilityNoteworthy {
			severity := models.SeverityMedium
			if analysis.Volatility > volatilitySevere {
				severity = models.SeverityHigh
			}
			out = append(out, candidate{
				value: analysis.Volatility,
				insight: models.Insight{
					DeviceID:       deviceID,
					Type:           models.InsightPerformance,
					Metric:         metric,
					Severity:       severity,
					Title:          fmt.Sprintf("unstable %s readings", metric),
					Description:    fmt.Sprintf("%s volatility is %.1f over the window, with %d anomalous readings.", metric, analysis.Volatility, len(analysis.Anomalies)),
					Recommendation: "Check for flapping workloads or a failing sensor.",
					Confidence:     math.Min(0.9, float64(analysis.SampleCount)/15),
					Metadata:       map[string]interface{}{"volatility": analysis.Volatility, "anomalies": len(analysis.Anomalies)},
				},
			})
		}

		if (analysis.Seasonality == models.SeasonalityDaily || analysis.Seasonality == models.SeasonalityWeekly) && analysis.Volatility > seasonalityMinSpread {
			out = append(out, candidate{
				value: analysis.Volatility,
				insight: models.Insight{
					DeviceID:       deviceID,
					Type:           models.InsightOptimization,
					Metric:         metric,
					Severity:       models.SeverityInfo,
					Title:          fmt.Sprintf("%s load follows a %s cycle", metric, analysis.Seasonality),
					Description:    fmt.Sprintf("%s utilisation shows a repeating %s pattern.", metric, analysis.Seasonality),
					Recommendation: "Schedule heavy maintenance jobs in the observed low-load windows.",
					Confidence:     0.7,
					Metadata:       map[string]interface{}{"seasonality": string(analysis.Seasonality)},
				},
			})
		}
	}

	// Security posture: a burst of anomalous network readings is the closest
	// signal the telemetry carries to scanning or exfiltration activity.
	if analysis, ok := analyses[models.MetricNetwork]; ok {
		if share := anomalyShare(analysis); analysis.SampleCount >= securityMinSamples && share > securityAnomalyShare {
			severity := models.SeverityMedium
			if share > 2*securityAnomalyShare {
				severity = models.SeverityHigh
			}
			out = append(out, candidate{
				value: share * 100,
				insight: models.Insight{
					DeviceID:       deviceID,
					Type:           models.InsightSecurity,
					Metric:         models.MetricNetwork,
					Severity:       severity,
					Title:          "anomalous network activity",
					Description:    fmt.Sprintf("%d of %d network readings deviate sharply from the device's usual traffic.", len(analysis.Anomalies), analysis.SampleCount),
					Recommendation: "Review the device's network connections for unexpected peers or transfer bursts.",
					Confidence:     math.Min(0.9, float64(analysis.SampleCount)/20),
					Metadata:       map[string]interface{}{"anomalies": len(analysis.Anomalies), "sample_count": analysis.SampleCount},
				},
			})
		}
	}

	// System health: several subsystems under pressure at once grades worse
	// than any one of them alone.
	if stressed := stressedMetrics(analyses, currentValues); len(stressed) >= healthMinStressed {
		severity := models.SeverityMedium
		if len(stressed) > healthMinStressed {
			severity = models.SeverityHigh
		}
		out = append(out, candidate{
			value: float64(len(stressed)),
			insight: models.Insight{
				DeviceID:       deviceID,
				Type:           models.InsightPerformance,
				Severity:       severity,
				Title:          "degraded system health",
				Description:    fmt.Sprintf("%d subsystems are stressed at once: %v.", len(stressed), stressed),
				Recommendation: "Triage the device as a whole; concurrent pressure usually shares a root cause.",
				Confidence:     0.8,
				Metadata:       map[string]interface{}{"stressed_metrics": stressed},
			},
		})
	}

	if risk := g.engine.PredictHardwareRisk(analyses); risk != nil {
		out = append(out, candidate{
			value: risk.Score,
			insight: models.Insight{
				DeviceID:       deviceID,
				Type:           models.InsightMaintenance,
				Severity:       risk.Severity,
				Title:          "elevated hardware failure risk",
				Description:    fmt.Sprintf("Accumulated risk score %.1f from: %v", risk.Score, risk.Factors),
				Recommendation: "Schedule a hardware inspection for this device.",
				Confidence:     risk.Confidence,
				Metadata:       map[string]interface{}{"score": risk.Score, "factors": risk.Factors},
			},
		})
	}

	return out
}

// emit deduplicates candidates against cached state, stamps survivors and
// dispatches high/critical ones to the automation sink.
func (g *Generator) emit(ctx context.Context, deviceID string, candidates []candidate) []models.Insight {
	now := g.nowFn()
	var out []models.Insight

	for _, c := range candidates {
		if g.suppressed(ctx, deviceID, c) {
			g.logger.Debug("insight suppressed by dedup",
				"device_id", deviceID, "type", c.insight.Type, "metric", c.insight.Metric)
			continue
		}

		insight := c.insight
		insight.ID = uuid.NewString()
		insight.CreatedAt = now

		if g.sink != nil && insight.Severity.Rank() >= models.SeverityHigh.Rank() {
			ticket, err := g.sink.Dispatch(ctx, &insight)
			if err != nil {
				monitoring.RecordError("insights")
				g.logger.Error("automation sink dispatch failed",
					"device_id", deviceID, "type", insight.Type, "error", err)
			} else if ticket != "" {
				insight.ExistingTicket = ticket
			}
		}

		g.rememberState(ctx, deviceID, c)
		monitoring.RecordInsight(string(insight.Type), string(insight.Severity))
		out = append(out, insight)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

// suppressed checks dedup state: a repeat is held back unless its severity
// escalates or its value moved beyond the threshold.
func (g *Generator) suppressed(ctx context.Context, deviceID string, c candidate) bool {
	if g.cache == nil {
		return false
	}
	prev, err := g.cache.GetInsightState(ctx, deviceID, c.insight.Type, c.insight.Metric)
	if err != nil || prev == nil {
		return false
	}
	if c.insight.Severity.Escalates(prev.Severity) {
		return false
	}
	if prev.Value == 0 {
		return c.value == 0
	}
	movePercent := math.Abs(c.value-prev.Value) / math.Abs(prev.Value) * 100
	return movePercent <= g.opts.MoveThresholdPercent
}

func (g *Generator) rememberState(ctx context.Context, deviceID string, c candidate) {
	if g.cache == nil {
		return
	}
	state := &cache.InsightState{
		Type:      c.insight.Type,
		Metric:    c.insight.Metric,
		Severity:  c.insight.Severity,
		Value:     c.value,
		EmittedAt: g.nowFn(),
	}
	if err := g.cache.SetInsightState(ctx, deviceID, state, g.opts.StateTTL); err != nil {
		// dedup is best-effort; a failed write means a possible repeat, not a lost insight
		g.logger.Warn("failed to persist insight dedup state",
			"device_id", deviceID, "type", c.insight.Type, "error", err)
	}
}

func anomalyShare(a models.TimeSeriesAnalysis) float64 {
	if a.SampleCount == 0 {
		return 0
	}
	return float64(len(a.Anomalies)) / float64(a.SampleCount)
}

// stressedMetrics lists metrics running hot or behaving erratically, in
// KnownMetrics order.
func stressedMetrics(analyses map[models.MetricType]models.TimeSeriesAnalysis, currentValues map[models.MetricType]float64) []string {
	var out []string
	for _, metric := range models.KnownMetrics {
		analysis, ok := analyses[metric]
		if !ok {
			continue
		}
		if currentValues[metric] >= healthStressedLevel || anomalyShare(analysis) > securityAnomalyShare {
			out = append(out, string(metric))
		}
	}
	return out
}

// groupByMetric splits a newest-first sample batch into per-metric windows,
// reordered oldest-first as the analyzer expects.
func groupByMetric(samples []models.MetricSample) map[models.MetricType][]models.MetricSample {
	series := make(map[models.MetricType][]models.MetricSample)
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		series[s.Metric] = append(series[s.Metric], s)
	}
	return series
}
