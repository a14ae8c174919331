// Package storage defines the narrow persistence contract the analytics
// engine consumes. Real persistence (devices, raw reports, tickets) lives
// outside this core; anything satisfying TelemetryStore can back it.
package storage

import (
	"context"
	"time"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
)

// MetricAll selects every metric in sample queries.
const MetricAll = models.MetricType("")

// TelemetryStore is the storage contract consumed by the engine.
type TelemetryStore interface {
	// GetRecentSamples returns samples for a device within the last
	// sinceDays, newest first. metric == MetricAll returns all metrics.
	GetRecentSamples(ctx context.Context, deviceID string, metric models.MetricType, sinceDays int) ([]models.MetricSample, error)

	// GetActiveAlert returns the single active alert for a (device, metric)
	// pair, or nil when there is none.
	GetActiveAlert(ctx context.Context, deviceID string, metric models.MetricType) (*models.Alert, error)

	// GetActiveAlerts returns every active alert for a device.
	GetActiveAlerts(ctx context.Context, deviceID string) ([]*models.Alert, error)

	// CreateAlert persists a new alert and returns it with its ID set.
	CreateAlert(ctx context.Context, alert *models.Alert) (*models.Alert, error)

	// UpdateAlert applies a patch to an existing alert.
	UpdateAlert(ctx context.Context, id string, patch models.AlertPatch) error

	// ResolveAlert deactivates an alert and stamps resolved_at.
	ResolveAlert(ctx context.Context, id string) error

	// GetRecentlyResolvedAlerts returns alerts of the same
	// (device, category, metric) resolved within the window, for the
	// cool-down check.
	GetRecentlyResolvedAlerts(ctx context.Context, deviceID string, category models.AlertCategory, metric models.MetricType, within time.Duration) ([]*models.Alert, error)

	// ListDeviceIDs returns every device the store has seen samples for,
	// used by the background sweep.
	ListDeviceIDs(ctx context.Context) ([]string, error)
}

// SampleWriter is the optional write side for backends that also buffer raw
// samples (the in-memory store does; a production deployment persists
// samples in the ingestion layer instead).
type SampleWriter interface {
	InsertSample(ctx context.Context, sample models.MetricSample) error
}
