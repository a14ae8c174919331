// Package baseline maintains the adaptive per-(device, metric) EWMA
// baselines used as anomaly reference points. State is sharded by key hash
// so concurrent device streams do not contend on one lock.
package baseline

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/platformbuilds/fleetwatch-core/internal/config"
	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

const (
	shardCount = 32

	// ewmaWeight is the blend weight of the newest sample:
	// baseline = baseline*(1-w) + sample*w. Fixed at 0.2 so the baseline
	// follows slow drift while damping single-sample noise.
	ewmaWeight = 0.2
)

// Deviation is the anomaly signal emitted when a sample strays further from
// its baseline than the metric's variance threshold allows.
type Deviation struct {
	Percent  float64
	Severity models.Severity
	Baseline float64
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*models.Baseline
}

// Tracker owns the baseline map. All mutation goes through Update; there is
// no ambient package-level state.
type Tracker struct {
	shards [shardCount]*shard

	mu              sync.RWMutex
	variance        map[models.MetricType]float64
	defaultVariance float64

	logger logger.Logger
	nowFn  func() time.Time
}

func New(cfg config.ThresholdsConfig, log logger.Logger) *Tracker {
	t := &Tracker{
		variance:        make(map[models.MetricType]float64, len(cfg.VarianceThresholds)),
		defaultVariance: cfg.DefaultVarianceThreshold,
		logger:          log,
		nowFn:           time.Now,
	}
	if t.defaultVariance <= 0 {
		t.defaultVariance = 30
	}
	for name, threshold := range cfg.VarianceThresholds {
		t.variance[models.MetricType(name)] = threshold
	}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[string]*models.Baseline)}
	}
	return t
}

// Update folds one sample into the (device, metric) baseline and reports
// whether it deviates anomalously. The first observation seeds the baseline
// and never deviates.
func (t *Tracker) Update(deviceID string, metric models.MetricType, value float64) (models.Baseline, *Deviation) {
	s := t.shardFor(deviceID, metric)
	key := seriesKey(deviceID, metric)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		entry = &models.Baseline{
			DeviceID:          deviceID,
			Metric:            metric,
			Value:             value,
			VarianceThreshold: t.varianceFor(metric),
			SampleCount:       1,
			UpdatedAt:         t.nowFn(),
		}
		s.entries[key] = entry
		return *entry, nil
	}

	deviation := t.classifyDeviation(entry, value)

	entry.Value = entry.Value*(1-ewmaWeight) + value*ewmaWeight
	entry.SampleCount++
	entry.UpdatedAt = t.nowFn()

	return *entry, deviation
}

// Snapshot returns a copy of the current baseline for a series, if one exists.
func (t *Tracker) Snapshot(deviceID string, metric models.MetricType) (models.Baseline, bool) {
	s := t.shardFor(deviceID, metric)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[seriesKey(deviceID, metric)]
	if !ok {
		return models.Baseline{}, false
	}
	return *entry, true
}

// SetVarianceThresholds swaps the per-metric variance thresholds, e.g. on a
// thresholds-file hot reload. Existing baselines pick the new threshold up on
// their next update.
func (t *Tracker) SetVarianceThresholds(thresholds map[string]float64, defaultThreshold float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.variance = make(map[models.MetricType]float64, len(thresholds))
	for name, threshold := range thresholds {
		t.variance[models.MetricType(name)] = threshold
	}
	if defaultThreshold > 0 {
		t.defaultVariance = defaultThreshold
	}
}

// classifyDeviation measures the percent deviation of value against the
// pre-update baseline. Deviations above the variance threshold grade high
// (>50%), medium (>30%) or low.
func (t *Tracker) classifyDeviation(entry *models.Baseline, value float64) *Deviation {
	base := entry.Value

	var percent float64
	switch {
	case base == 0 && value == 0:
		return nil
	case base == 0:
		percent = 100
	default:
		percent = math.Abs(value-base) / math.Abs(base) * 100
	}

	threshold := t.varianceFor(entry.Metric)
	entry.VarianceThreshold = threshold

	if percent <= threshold {
		return nil
	}

	severity := models.SeverityLow
	if percent > 50 {
		severity = models.SeverityHigh
	} else if percent > 30 {
		severity = models.SeverityMedium
	}

	return &Deviation{Percent: percent, Severity: severity, Baseline: base}
}

func (t *Tracker) varianceFor(metric models.MetricType) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if threshold, ok := t.variance[metric]; ok {
		return threshold
	}
	return t.defaultVariance
}

func (t *Tracker) shardFor(deviceID string, metric models.MetricType) *shard {
	h := fnv.New32a()
	h.Write([]byte(seriesKey(deviceID, metric)))
	return t.shards[h.Sum32()%shardCount]
}

func seriesKey(deviceID string, metric models.MetricType) string {
	return deviceID + ":" + string(metric)
}
