package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
)

func TestMemoryStore_SamplesNewestFirst(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	base := time.Now().Add(-3 * time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertSample(ctx, models.MetricSample{
			DeviceID:  "dev-1",
			Metric:    models.MetricCPU,
			Value:     float64(10 * i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	samples, err := s.GetRecentSamples(ctx, "dev-1", models.MetricCPU, 7)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 20.0, samples[0].Value, "newest sample first")
	assert.Equal(t, 0.0, samples[2].Value)
}

func TestMemoryStore_SampleWindowAndMetricFilter(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, s.InsertSample(ctx, models.MetricSample{
		DeviceID: "dev-1", Metric: models.MetricCPU, Value: 1,
		Timestamp: time.Now().AddDate(0, 0, -10),
	}))
	require.NoError(t, s.InsertSample(ctx, models.MetricSample{
		DeviceID: "dev-1", Metric: models.MetricMemory, Value: 2,
		Timestamp: time.Now(),
	}))

	all, err := s.GetRecentSamples(ctx, "dev-1", MetricAll, 7)
	require.NoError(t, err)
	assert.Len(t, all, 1, "10-day-old sample falls outside a 7-day window")

	cpu, err := s.GetRecentSamples(ctx, "dev-1", models.MetricCPU, 30)
	require.NoError(t, err)
	assert.Len(t, cpu, 1)
	assert.Equal(t, models.MetricCPU, cpu[0].Metric)
}

func TestMemoryStore_SeriesBounded(t *testing.T) {
	s := NewMemoryStore(5)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.InsertSample(ctx, models.MetricSample{
			DeviceID: "dev-1", Metric: models.MetricCPU, Value: float64(i),
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	samples, err := s.GetRecentSamples(ctx, "dev-1", models.MetricCPU, 7)
	require.NoError(t, err)
	assert.Len(t, samples, 5)
	assert.Equal(t, 9.0, samples[0].Value, "oldest samples are evicted")
}

func TestMemoryStore_AlertLifecycle(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	created, err := s.CreateAlert(ctx, &models.Alert{
		DeviceID: "dev-1",
		Metric:   models.MetricCPU,
		Category: models.CategoryPerformance,
		Severity: models.SeverityCritical,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)

	active, err := s.GetActiveAlert(ctx, "dev-1", models.MetricCPU)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, created.ID, active.ID)

	require.NoError(t, s.UpdateAlert(ctx, created.ID, models.AlertPatch{
		Severity: models.SeverityHigh,
		Metadata: map[string]interface{}{"value": 91.0},
	}))
	active, err = s.GetActiveAlert(ctx, "dev-1", models.MetricCPU)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, active.Severity)
	assert.Equal(t, 91.0, active.Metadata["value"])

	require.NoError(t, s.ResolveAlert(ctx, created.ID))
	active, err = s.GetActiveAlert(ctx, "dev-1", models.MetricCPU)
	require.NoError(t, err)
	assert.Nil(t, active)

	assert.ErrorIs(t, s.UpdateAlert(ctx, "missing", models.AlertPatch{}), ErrAlertNotFound)
}

func TestMemoryStore_RecentlyResolvedWindow(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	now := time.Now()
	s.SetNow(func() time.Time { return now })

	created, err := s.CreateAlert(ctx, &models.Alert{
		DeviceID: "dev-1",
		Metric:   models.MetricCPU,
		Category: models.CategoryPerformance,
		Severity: models.SeverityHigh,
	})
	require.NoError(t, err)
	require.NoError(t, s.ResolveAlert(ctx, created.ID))

	recent, err := s.GetRecentlyResolvedAlerts(ctx, "dev-1", models.CategoryPerformance, models.MetricCPU, 10*time.Minute)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	// Different category or metric does not match.
	other, err := s.GetRecentlyResolvedAlerts(ctx, "dev-1", models.CategoryStorage, models.MetricCPU, 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, other)

	// Outside the window the alert no longer suppresses.
	s.SetNow(func() time.Time { return now.Add(11 * time.Minute) })
	later, err := s.GetRecentlyResolvedAlerts(ctx, "dev-1", models.CategoryPerformance, models.MetricCPU, 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, later)
}

func TestMemoryStore_ListDeviceIDs(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	for _, id := range []string{"dev-b", "dev-a"} {
		require.NoError(t, s.InsertSample(ctx, models.MetricSample{
			DeviceID: id, Metric: models.MetricCPU, Value: 1, Timestamp: time.Now(),
		}))
	}

	ids, err := s.ListDeviceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-a", "dev-b"}, ids)
}
