// Package alerts implements the alert lifecycle state machine: at most one
// active alert per (device, metric), with cool-down after resolution and
// hysteresis on updates to keep the alert feed quiet.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/internal/monitoring"
	"github.com/platformbuilds/fleetwatch-core/internal/storage"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

const (
	metaValue        = "value"
	metaUpdatedAt    = "updated_at"
	metaPrevValue    = "previous_value"
	metaUpdateReason = "update_reason"

	reasonCoolDown   = "cool-down"
	reasonHysteresis = "hysteresis"
	reasonDuplicate  = "duplicate"
)

// Options tunes the lifecycle state machine.
type Options struct {
	// CoolDown suppresses re-creation of an alert for the same
	// (device, category, metric) after one was resolved.
	CoolDown time.Duration
	// MinValueDelta is the smallest observed-value change that justifies
	// updating an active alert on its own.
	MinValueDelta float64
	// UpdateInterval forces a refresh of a long-lived active alert even when
	// neither severity nor value moved.
	UpdateInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		CoolDown:       10 * time.Minute,
		MinValueDelta:  3,
		UpdateInterval: 30 * time.Minute,
	}
}

// Notifier receives every non-trivial lifecycle transition; the websocket
// stream hub is the usual implementation.
type Notifier interface {
	NotifyAlertTransition(t models.AlertTransition)
}

// Manager drives alert state transitions against the telemetry store.
type Manager struct {
	store  storage.TelemetryStore
	logger logger.Logger
	opts   Options

	// keyMu serializes reconciles per (device, metric) so concurrent
	// observations cannot race a create against a resolve.
	keyMu sync.Map // string -> *sync.Mutex

	notifier Notifier
	nowFn    func() time.Time
}

func NewManager(store storage.TelemetryStore, opts Options, log logger.Logger) *Manager {
	if opts.CoolDown <= 0 {
		opts.CoolDown = DefaultOptions().CoolDown
	}
	if opts.MinValueDelta <= 0 {
		opts.MinValueDelta = DefaultOptions().MinValueDelta
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = DefaultOptions().UpdateInterval
	}
	return &Manager{
		store:  store,
		logger: log,
		opts:   opts,
		nowFn:  time.Now,
	}
}

// SetNotifier attaches a transition sink. Must be called before reconciles start.
func (m *Manager) SetNotifier(n Notifier) { m.notifier = n }

// SetNow overrides the manager clock. Tests only.
func (m *Manager) SetNow(nowFn func() time.Time) { m.nowFn = nowFn }

// Reconcile applies one observation to the alert state for (deviceID, metric).
// severity == SeverityNone means the observation is not breaching. Storage
// failures are logged and surfaced but never panic the caller; on error the
// returned transition carries ActionNone.
func (m *Manager) Reconcile(ctx context.Context, deviceID string, metric models.MetricType, category models.AlertCategory, value float64, severity models.Severity) (models.AlertTransition, error) {
	mu := m.lockFor(deviceID, metric)
	mu.Lock()
	defer mu.Unlock()

	transition := models.AlertTransition{
		Action:   models.ActionNone,
		DeviceID: deviceID,
		Metric:   metric,
		Value:    value,
		Severity: severity,
	}

	active, err := m.store.GetActiveAlert(ctx, deviceID, metric)
	if err != nil {
		monitoring.RecordStoreOperation("get_active_alert", "error")
		monitoring.RecordError("alerts")
		m.logger.Error("failed to load active alert", "device_id", deviceID, "metric", metric, "error", err)
		return transition, err
	}

	if severity == models.SeverityNone {
		if active == nil {
			return transition, nil
		}
		return m.resolve(ctx, transition, active)
	}

	if active == nil {
		return m.create(ctx, transition, category)
	}
	return m.update(ctx, transition, active)
}

func (m *Manager) resolve(ctx context.Context, t models.AlertTransition, active *models.Alert) (models.AlertTransition, error) {
	if err := m.store.ResolveAlert(ctx, active.ID); err != nil {
		monitoring.RecordStoreOperation("resolve_alert", "error")
		monitoring.RecordError("alerts")
		m.logger.Error("failed to resolve alert", "alert_id", active.ID, "error", err)
		return t, err
	}
	monitoring.RecordStoreOperation("resolve_alert", "success")

	now := m.nowFn()
	active.IsActive = false
	active.ResolvedAt = &now

	t.Action = models.ActionResolved
	t.Alert = active
	t.Reason = "value back under threshold"
	m.emit(t)
	return t, nil
}

func (m *Manager) create(ctx context.Context, t models.AlertTransition, category models.AlertCategory) (models.AlertTransition, error) {
	recent, err := m.store.GetRecentlyResolvedAlerts(ctx, t.DeviceID, category, t.Metric, m.opts.CoolDown)
	if err != nil {
		monitoring.RecordStoreOperation("get_recently_resolved", "error")
		monitoring.RecordError("alerts")
		m.logger.Error("cool-down lookup failed", "device_id", t.DeviceID, "metric", t.Metric, "error", err)
		return t, err
	}
	if len(recent) > 0 {
		t.Action = models.ActionSuppressed
		t.Reason = reasonCoolDown
		monitoring.RecordAlertTransition(string(t.Action), string(t.Severity))
		m.logger.Debug("alert suppressed by cool-down",
			"device_id", t.DeviceID, "metric", t.Metric, "severity", t.Severity)
		return t, nil
	}

	now := m.nowFn()
	created, err := m.store.CreateAlert(ctx, &models.Alert{
		DeviceID:    t.DeviceID,
		Metric:      t.Metric,
		Category:    category,
		Severity:    t.Severity,
		Message:     alertMessage(t.Metric, t.Value, t.Severity),
		TriggeredAt: now,
		Metadata: map[string]interface{}{
			metaValue:     t.Value,
			metaUpdatedAt: now.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		monitoring.RecordStoreOperation("create_alert", "error")
		monitoring.RecordError("alerts")
		m.logger.Error("failed to create alert", "device_id", t.DeviceID, "metric", t.Metric, "error", err)
		return t, err
	}
	monitoring.RecordStoreOperation("create_alert", "success")

	t.Action = models.ActionCreated
	t.Alert = created
	m.emit(t)
	return t, nil
}

func (m *Manager) update(ctx context.Context, t models.AlertTransition, active *models.Alert) (models.AlertTransition, error) {
	now := m.nowFn()

	severityChanged := t.Severity != active.Severity
	lastValue, hasLast := metadataFloat(active.Metadata, metaValue)
	// no recorded value to compare against is treated as moved
	valueMoved := !hasLast || abs(t.Value-lastValue) > m.opts.MinValueDelta
	stale := false
	if updated, ok := metadataTime(active.Metadata, metaUpdatedAt); ok {
		stale = now.Sub(updated) > m.opts.UpdateInterval
	} else {
		stale = now.Sub(active.TriggeredAt) > m.opts.UpdateInterval
	}

	if !severityChanged && !valueMoved && !stale {
		t.Action = models.ActionSuppressed
		t.Reason = reasonHysteresis
		monitoring.RecordAlertTransition(string(t.Action), string(t.Severity))
		return t, nil
	}

	var reason string
	switch {
	case severityChanged:
		reason = "severity changed"
	case valueMoved:
		reason = "value moved"
	default:
		reason = "periodic refresh"
	}

	// previous_value and update_reason record what the last mutation changed;
	// each update overwrites them.
	patch := models.AlertPatch{
		Severity: t.Severity,
		Message:  alertMessage(t.Metric, t.Value, t.Severity),
		Metadata: map[string]interface{}{
			metaValue:        t.Value,
			metaUpdatedAt:    now.Format(time.RFC3339Nano),
			metaUpdateReason: reason,
		},
	}
	if hasLast {
		patch.Metadata[metaPrevValue] = lastValue
	}
	if err := m.store.UpdateAlert(ctx, active.ID, patch); err != nil {
		monitoring.RecordStoreOperation("update_alert", "error")
		monitoring.RecordError("alerts")
		m.logger.Error("failed to update alert", "alert_id", active.ID, "error", err)
		return t, err
	}
	monitoring.RecordStoreOperation("update_alert", "success")

	active.Severity = t.Severity
	active.Message = patch.Message
	if active.Metadata == nil {
		active.Metadata = map[string]interface{}{}
	}
	for k, v := range patch.Metadata {
		active.Metadata[k] = v
	}

	t.Action = models.ActionUpdated
	t.Alert = active
	t.Reason = reason
	m.emit(t)
	return t, nil
}

// CollapseDuplicates resolves all but the most recently triggered active alert
// for every (device, metric) pair. It repairs state left behind by crashes or
// races in external writers; under normal operation it finds nothing.
func (m *Manager) CollapseDuplicates(ctx context.Context, deviceID string) (int, error) {
	active, err := m.store.GetActiveAlerts(ctx, deviceID)
	if err != nil {
		monitoring.RecordStoreOperation("get_active_alerts", "error")
		monitoring.RecordError("alerts")
		return 0, err
	}

	newest := make(map[models.MetricType]*models.Alert)
	var duplicates []*models.Alert
	for _, a := range active {
		cur, ok := newest[a.Metric]
		if !ok {
			newest[a.Metric] = a
			continue
		}
		if a.TriggeredAt.After(cur.TriggeredAt) {
			duplicates = append(duplicates, cur)
			newest[a.Metric] = a
		} else {
			duplicates = append(duplicates, a)
		}
	}

	collapsed := 0
	for _, dup := range duplicates {
		mu := m.lockFor(deviceID, dup.Metric)
		mu.Lock()
		err := m.store.ResolveAlert(ctx, dup.ID)
		mu.Unlock()
		if err != nil {
			monitoring.RecordStoreOperation("resolve_alert", "error")
			monitoring.RecordError("alerts")
			m.logger.Error("failed to collapse duplicate alert", "alert_id", dup.ID, "error", err)
			continue
		}
		monitoring.RecordStoreOperation("resolve_alert", "success")
		collapsed++

		m.emit(models.AlertTransition{
			Action:   models.ActionResolved,
			Alert:    dup,
			Reason:   reasonDuplicate,
			DeviceID: deviceID,
			Metric:   dup.Metric,
			Severity: dup.Severity,
		})
	}

	if collapsed > 0 {
		m.logger.Warn("collapsed duplicate active alerts", "device_id", deviceID, "count", collapsed)
	}
	return collapsed, nil
}

func (m *Manager) emit(t models.AlertTransition) {
	monitoring.RecordAlertTransition(string(t.Action), string(t.Severity))
	if m.notifier != nil {
		m.notifier.NotifyAlertTransition(t)
	}
	m.logger.Info("alert transition",
		"action", t.Action, "device_id", t.DeviceID, "metric", t.Metric,
		"severity", t.Severity, "reason", t.Reason)
}

func (m *Manager) lockFor(deviceID string, metric models.MetricType) *sync.Mutex {
	key := deviceID + "|" + string(metric)
	v, _ := m.keyMu.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func alertMessage(metric models.MetricType, value float64, severity models.Severity) string {
	return fmt.Sprintf("%s at %.1f%% (%s)", metric, value, severity)
}

func metadataFloat(md map[string]interface{}, key string) (float64, bool) {
	if md == nil {
		return 0, false
	}
	switch v := md[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func metadataTime(md map[string]interface{}, key string) (time.Time, bool) {
	if md == nil {
		return time.Time{}, false
	}
	s, ok := md[key].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
