// Package pipeline is the ingestion path: a raw sample is validated, folded
// into its baseline, graded against the threshold table and handed to the
// alert lifecycle. One sample in, one lifecycle decision out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/platformbuilds/fleetwatch-core/internal/alerts"
	"github.com/platformbuilds/fleetwatch-core/internal/baseline"
	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/internal/monitoring"
	"github.com/platformbuilds/fleetwatch-core/internal/storage"
	"github.com/platformbuilds/fleetwatch-core/internal/thresholds"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

// ErrInvalidSample marks samples dropped by validation.
var ErrInvalidSample = errors.New("invalid sample")

// Processor runs one telemetry sample through baseline, thresholds and the
// alert lifecycle.
type Processor struct {
	tracker  *baseline.Tracker
	registry *thresholds.Registry
	alerts   *alerts.Manager
	writer   storage.SampleWriter // optional; nil when persistence happens upstream
	logger   logger.Logger
}

func NewProcessor(tracker *baseline.Tracker, registry *thresholds.Registry, manager *alerts.Manager, log logger.Logger) *Processor {
	return &Processor{
		tracker:  tracker,
		registry: registry,
		alerts:   manager,
		logger:   log,
	}
}

// SetWriter attaches a sample buffer so analyses can read what ingestion saw.
func (p *Processor) SetWriter(w storage.SampleWriter) { p.writer = w }

// Process handles one sample. Validation failures return ErrInvalidSample;
// storage hiccups are logged and do not fail the sample.
func (p *Processor) Process(ctx context.Context, sample models.MetricSample) (models.AlertTransition, error) {
	if err := validate(sample); err != nil {
		monitoring.RecordSampleIngested(string(sample.Metric), "invalid")
		p.logger.Debug("dropped invalid sample",
			"device_id", sample.DeviceID, "metric", sample.Metric, "error", err)
		return models.AlertTransition{Action: models.ActionNone, DeviceID: sample.DeviceID, Metric: sample.Metric}, err
	}

	if p.writer != nil {
		if err := p.writer.InsertSample(ctx, sample); err != nil {
			monitoring.RecordStoreOperation("insert_sample", "error")
			monitoring.RecordError("pipeline")
			p.logger.Error("failed to buffer sample",
				"device_id", sample.DeviceID, "metric", sample.Metric, "error", err)
		} else {
			monitoring.RecordStoreOperation("insert_sample", "success")
		}
	}

	_, deviation := p.tracker.Update(sample.DeviceID, sample.Metric, sample.Value)

	severity := p.registry.SeverityFor(sample.Metric, sample.Value)
	if deviation != nil && deviation.Severity.Escalates(severity) {
		// the baseline anomaly outranks the static threshold; alert on it
		severity = deviation.Severity
	}

	transition, err := p.alerts.Reconcile(ctx, sample.DeviceID, sample.Metric, categoryFor(sample.Metric), sample.Value, severity)
	if err != nil {
		// reconcile already logged; the sample itself was buffered and
		// baselined, only the alert decision failed
		monitoring.RecordSampleIngested(string(sample.Metric), "alert_error")
		return transition, nil
	}

	monitoring.RecordSampleIngested(string(sample.Metric), "ok")
	return transition, nil
}

func validate(sample models.MetricSample) error {
	if sample.DeviceID == "" {
		return fmt.Errorf("%w: missing device_id", ErrInvalidSample)
	}
	if !sample.Metric.Valid() {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidSample, sample.Metric)
	}
	if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidSample)
	}
	if sample.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSample)
	}
	return nil
}

func categoryFor(metric models.MetricType) models.AlertCategory {
	if metric == models.MetricDisk {
		return models.CategoryStorage
	}
	return models.CategoryPerformance
}
