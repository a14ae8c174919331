package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/fleetwatch-core/internal/alerts"
	"github.com/platformbuilds/fleetwatch-core/internal/config"
	"github.com/platformbuilds/fleetwatch-core/internal/insights"
	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/internal/prediction"
	"github.com/platformbuilds/fleetwatch-core/internal/storage"
	"github.com/platformbuilds/fleetwatch-core/internal/timeseries"
	"github.com/platformbuilds/fleetwatch-core/pkg/cache"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

func newSchedulerForTest(t *testing.T) (*Scheduler, *storage.MemoryStore) {
	t.Helper()

	log := logger.NewNop()
	store := storage.NewMemoryStore(0)
	generator := insights.NewGenerator(
		store,
		timeseries.NewAnalyzer(config.AnalyzerConfig{}),
		prediction.New(log),
		insights.DefaultGeneratorOptions(),
		log,
	)
	manager := alerts.NewManager(store, alerts.DefaultOptions(), log)

	s := New(config.SchedulerConfig{IntervalSeconds: 60, MaxConcurrentDevices: 4}, store, generator, manager, log)
	return s, store
}

func TestSweep_CollapsesDuplicateAlerts(t *testing.T) {
	s, store := newSchedulerForTest(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 2; i++ {
		_, err := store.CreateAlert(ctx, &models.Alert{
			DeviceID:    "dev-1",
			Metric:      models.MetricCPU,
			Category:    models.CategoryPerformance,
			Severity:    models.SeverityHigh,
			TriggeredAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.InsertSample(ctx, models.MetricSample{
		DeviceID: "dev-1", Metric: models.MetricCPU, Value: 50, Timestamp: base,
	}))

	s.Sweep(ctx)

	active, err := store.GetActiveAlerts(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSweep_NoDevicesIsNoop(t *testing.T) {
	s, _ := newSchedulerForTest(t)
	s.Sweep(context.Background()) // must not panic or block
}

func TestSweep_CacheLockSkipsClaimedDevice(t *testing.T) {
	s, store := newSchedulerForTest(t)
	ctx := context.Background()

	c := cache.NewNoopValkeyCache(logger.NewNop())
	s.SetCache(c)

	base := time.Now()
	for i := 0; i < 2; i++ {
		_, err := store.CreateAlert(ctx, &models.Alert{
			DeviceID:    "dev-1",
			Metric:      models.MetricCPU,
			Category:    models.CategoryPerformance,
			Severity:    models.SeverityHigh,
			TriggeredAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.InsertSample(ctx, models.MetricSample{
		DeviceID: "dev-1", Metric: models.MetricCPU, Value: 50, Timestamp: base,
	}))

	// Another replica holds the device: the sweep must leave it alone.
	held, err := c.AcquireLock(ctx, "sweep:dev-1", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	s.Sweep(ctx)

	active, err := store.GetActiveAlerts(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, active, 2, "locked device is skipped entirely")

	// Lock released: the next sweep repairs the duplicates.
	require.NoError(t, c.ReleaseLock(ctx, "sweep:dev-1"))
	s.Sweep(ctx)

	active, err = store.GetActiveAlerts(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := newSchedulerForTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
