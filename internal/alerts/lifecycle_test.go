package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/internal/storage"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

func newManagerForTest(t *testing.T) (*Manager, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore(0)
	return NewManager(store, DefaultOptions(), logger.NewNop()), store
}

func reconcile(t *testing.T, m *Manager, value float64, severity models.Severity) models.AlertTransition {
	t.Helper()
	tr, err := m.Reconcile(context.Background(), "dev-1", models.MetricCPU, models.CategoryPerformance, value, severity)
	require.NoError(t, err)
	return tr
}

func TestReconcile_CreateUpdateResolve(t *testing.T) {
	m, _ := newManagerForTest(t)

	// 96% critical opens an alert.
	tr := reconcile(t, m, 96, models.SeverityCritical)
	assert.Equal(t, models.ActionCreated, tr.Action)
	require.NotNil(t, tr.Alert)
	assert.True(t, tr.Alert.IsActive)
	alertID := tr.Alert.ID

	// 97% critical: same severity, 1-point move, fresh alert — suppressed.
	tr = reconcile(t, m, 97, models.SeverityCritical)
	assert.Equal(t, models.ActionSuppressed, tr.Action)
	assert.Equal(t, reasonHysteresis, tr.Reason)

	// Severity drop to high forces an update on the same alert.
	tr = reconcile(t, m, 91, models.SeverityHigh)
	assert.Equal(t, models.ActionUpdated, tr.Action)
	require.NotNil(t, tr.Alert)
	assert.Equal(t, alertID, tr.Alert.ID, "updates reuse the active alert")
	assert.Equal(t, models.SeverityHigh, tr.Alert.Severity)

	// Back under threshold resolves.
	tr = reconcile(t, m, 40, models.SeverityNone)
	assert.Equal(t, models.ActionResolved, tr.Action)
	require.NotNil(t, tr.Alert)
	assert.Equal(t, alertID, tr.Alert.ID)

	// Nothing active, nothing breaching.
	tr = reconcile(t, m, 40, models.SeverityNone)
	assert.Equal(t, models.ActionNone, tr.Action)
}

func TestReconcile_ValueDeltaTriggersUpdate(t *testing.T) {
	m, _ := newManagerForTest(t)

	reconcile(t, m, 80, models.SeverityHigh)

	// |85 - 80| > 3 updates even with unchanged severity.
	tr := reconcile(t, m, 85, models.SeverityHigh)
	assert.Equal(t, models.ActionUpdated, tr.Action)
	assert.Equal(t, "value moved", tr.Reason)
}

func TestReconcile_UpdateRecordsPreviousValueAndReason(t *testing.T) {
	m, store := newManagerForTest(t)

	reconcile(t, m, 80, models.SeverityHigh)
	reconcile(t, m, 85, models.SeverityHigh)

	active, err := store.GetActiveAlert(context.Background(), "dev-1", models.MetricCPU)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 85.0, active.Metadata[metaValue])
	assert.Equal(t, 80.0, active.Metadata[metaPrevValue])
	assert.Equal(t, "value moved", active.Metadata[metaUpdateReason])
	assert.Contains(t, active.Metadata, metaUpdatedAt)

	// A severity change overwrites the audit keys with the new mutation.
	reconcile(t, m, 84, models.SeverityMedium)
	active, err = store.GetActiveAlert(context.Background(), "dev-1", models.MetricCPU)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 85.0, active.Metadata[metaPrevValue])
	assert.Equal(t, "severity changed", active.Metadata[metaUpdateReason])
}

func TestReconcile_StaleAlertRefreshes(t *testing.T) {
	m, store := newManagerForTest(t)

	now := time.Now()
	m.SetNow(func() time.Time { return now })
	store.SetNow(func() time.Time { return now })

	reconcile(t, m, 80, models.SeverityHigh)

	later := now.Add(31 * time.Minute)
	m.SetNow(func() time.Time { return later })
	store.SetNow(func() time.Time { return later })

	// No severity change, no value move, but past the update interval.
	tr := reconcile(t, m, 81, models.SeverityHigh)
	assert.Equal(t, models.ActionUpdated, tr.Action)
	assert.Equal(t, "periodic refresh", tr.Reason)
}

func TestReconcile_CoolDownSuppressesRecreation(t *testing.T) {
	m, store := newManagerForTest(t)

	now := time.Now()
	m.SetNow(func() time.Time { return now })
	store.SetNow(func() time.Time { return now })

	reconcile(t, m, 96, models.SeverityCritical)
	reconcile(t, m, 40, models.SeverityNone)

	// Breach again 5 minutes later: inside the 10-minute cool-down.
	soon := now.Add(5 * time.Minute)
	m.SetNow(func() time.Time { return soon })
	store.SetNow(func() time.Time { return soon })

	tr := reconcile(t, m, 96, models.SeverityCritical)
	assert.Equal(t, models.ActionSuppressed, tr.Action)
	assert.Equal(t, reasonCoolDown, tr.Reason)

	// After the window a new alert opens.
	later := now.Add(11 * time.Minute)
	m.SetNow(func() time.Time { return later })
	store.SetNow(func() time.Time { return later })

	tr = reconcile(t, m, 96, models.SeverityCritical)
	assert.Equal(t, models.ActionCreated, tr.Action)
}

func TestReconcile_AtMostOneActivePerPair(t *testing.T) {
	m, store := newManagerForTest(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Reconcile(ctx, "dev-1", models.MetricCPU, models.CategoryPerformance, 96, models.SeverityCritical)
		}()
	}
	wg.Wait()

	active, err := store.GetActiveAlerts(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, active, 1, "concurrent reconciles must not open duplicates")
}

func TestCollapseDuplicates(t *testing.T) {
	m, store := newManagerForTest(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		_, err := store.CreateAlert(ctx, &models.Alert{
			DeviceID:    "dev-1",
			Metric:      models.MetricCPU,
			Category:    models.CategoryPerformance,
			Severity:    models.SeverityHigh,
			TriggeredAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	collapsed, err := m.CollapseDuplicates(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 2, collapsed)

	active, err := store.GetActiveAlerts(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, base.Add(2*time.Minute).Unix(), active[0].TriggeredAt.Unix(), "the newest alert survives")
}

type captureNotifier struct {
	mu          sync.Mutex
	transitions []models.AlertTransition
}

func (c *captureNotifier) NotifyAlertTransition(t models.AlertTransition) {
	c.mu.Lock()
	c.transitions = append(c.transitions, t)
	c.mu.Unlock()
}

func TestReconcile_NotifierReceivesTransitions(t *testing.T) {
	m, _ := newManagerForTest(t)
	sink := &captureNotifier{}
	m.SetNotifier(sink)

	reconcile(t, m, 96, models.SeverityCritical)
	reconcile(t, m, 97, models.SeverityCritical) // suppressed, not notified
	reconcile(t, m, 40, models.SeverityNone)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.transitions, 2)
	assert.Equal(t, models.ActionCreated, sink.transitions[0].Action)
	assert.Equal(t, models.ActionResolved, sink.transitions[1].Action)
}
