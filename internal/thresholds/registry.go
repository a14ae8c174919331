// Package thresholds holds the static severity-threshold registry: an
// ordered band table per metric with pure lookups and a startup validation
// pass. The table is replaceable at runtime for hot reloads.
package thresholds

import (
	"fmt"
	"sync"

	"github.com/platformbuilds/fleetwatch-core/internal/config"
	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

// Band is one severity threshold band. Bands are stored in descending
// threshold order; lookup returns the highest band the value meets.
type Band struct {
	Name      string
	Severity  models.Severity
	Threshold float64
}

// defaultTables returns the built-in band tables. Six ordered bands per
// metric (critical > high > warning > medium > info > low); warning promotes
// to medium severity and the two lowest bands to info so alerts stay on the
// five-valued severity scale.
func defaultTables() map[models.MetricType][]Band {
	build := func(critical, high, warning, medium, info, low float64) []Band {
		return []Band{
			{Name: "critical", Severity: models.SeverityCritical, Threshold: critical},
			{Name: "high", Severity: models.SeverityHigh, Threshold: high},
			{Name: "warning", Severity: models.SeverityMedium, Threshold: warning},
			{Name: "medium", Severity: models.SeverityLow, Threshold: medium},
			{Name: "info", Severity: models.SeverityInfo, Threshold: info},
			{Name: "low", Severity: models.SeverityInfo, Threshold: low},
		}
	}
	return map[models.MetricType][]Band{
		models.MetricCPU:         build(95, 90, 85, 75, 65, 50),
		models.MetricMemory:      build(95, 90, 85, 80, 70, 60),
		models.MetricDisk:        build(98, 95, 90, 85, 75, 65),
		models.MetricNetwork:     build(95, 90, 80, 70, 60, 50),
		models.MetricTemperature: build(90, 85, 80, 75, 70, 60),
	}
}

var severityNames = map[string]models.Severity{
	"critical": models.SeverityCritical,
	"high":     models.SeverityHigh,
	"medium":   models.SeverityMedium,
	"low":      models.SeverityLow,
	"info":     models.SeverityInfo,
}

// Registry is the severity-threshold lookup table. Reads are lock-cheap;
// Replace swaps the whole table for hot reloads.
type Registry struct {
	mu     sync.RWMutex
	tables map[models.MetricType][]Band
	logger logger.Logger
}

// New builds a registry from configuration, falling back to the built-in
// tables for metrics the config does not mention. Tables that are not
// strictly descending are a configuration error and fail startup.
func New(cfg config.ThresholdsConfig, log logger.Logger) (*Registry, error) {
	tables := defaultTables()

	configured, err := bandsFromConfig(cfg.Bands)
	if err != nil {
		return nil, err
	}
	for metric, bands := range configured {
		tables[metric] = bands
	}

	if err := validateTables(tables); err != nil {
		return nil, err
	}

	return &Registry{tables: tables, logger: log}, nil
}

// SeverityFor classifies a value against the metric's bands with a
// descending scan. Returns SeverityNone when the value sits below the lowest
// band, which is what tells the lifecycle manager to resolve.
func (r *Registry) SeverityFor(metric models.MetricType, value float64) models.Severity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, band := range r.tables[metric] {
		if value >= band.Threshold {
			return band.Severity
		}
	}
	return models.SeverityNone
}

// ThresholdFor returns the threshold of the highest band carrying the given
// severity.
func (r *Registry) ThresholdFor(metric models.MetricType, severity models.Severity) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, band := range r.tables[metric] {
		if band.Severity == severity {
			return band.Threshold, true
		}
	}
	return 0, false
}

// LowestThreshold returns the bottom band threshold for a metric; values
// under it carry no severity at all.
func (r *Registry) LowestThreshold(metric models.MetricType) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bands := r.tables[metric]
	if len(bands) == 0 {
		return 0, false
	}
	return bands[len(bands)-1].Threshold, true
}

// Replace swaps in new band tables from a hot-reloaded thresholds file.
// Invalid tables are rejected and the running table stays untouched.
func (r *Registry) Replace(tf *config.ThresholdsFile) error {
	configured, err := bandsFromConfig(tf.Bands)
	if err != nil {
		r.logger.Error("Rejected thresholds reload", "error", err)
		return err
	}

	tables := defaultTables()
	for metric, bands := range configured {
		tables[metric] = bands
	}
	if err := validateTables(tables); err != nil {
		r.logger.Error("Rejected thresholds reload", "error", err)
		return err
	}

	r.mu.Lock()
	r.tables = tables
	r.mu.Unlock()

	r.logger.Info("Threshold tables replaced", "metrics", len(configured))
	return nil
}

func bandsFromConfig(raw map[string][]config.BandConfig) (map[models.MetricType][]Band, error) {
	tables := make(map[models.MetricType][]Band, len(raw))
	for name, bandCfgs := range raw {
		metric := models.MetricType(name)
		if !metric.Valid() {
			return nil, fmt.Errorf("unknown metric in thresholds config: %s", name)
		}
		bands := make([]Band, 0, len(bandCfgs))
		for _, bc := range bandCfgs {
			severity, ok := severityNames[bc.Severity]
			if !ok {
				return nil, fmt.Errorf("unknown severity %q in %s thresholds", bc.Severity, name)
			}
			bands = append(bands, Band{Name: bc.Name, Severity: severity, Threshold: bc.Value})
		}
		tables[metric] = bands
	}
	return tables, nil
}

// validateTables enforces the strictly-descending invariant across each
// metric's bands.
func validateTables(tables map[models.MetricType][]Band) error {
	for metric, bands := range tables {
		if len(bands) == 0 {
			return fmt.Errorf("metric %s has no threshold bands", metric)
		}
		for i := 1; i < len(bands); i++ {
			if bands[i].Threshold >= bands[i-1].Threshold {
				return fmt.Errorf("thresholds for %s are not strictly descending: %s(%.2f) >= %s(%.2f)",
					metric, bands[i].Name, bands[i].Threshold, bands[i-1].Name, bands[i-1].Threshold)
			}
		}
	}
	return nil
}
