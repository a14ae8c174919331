package cache

import (
	"context"
	"time"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
)

// ValkeyCache is the shared-state layer for the engine: insight dedup state,
// distributed sweep locks, and small hot lookups. Single-node Valkey/Redis
// backs production; the in-memory noop implementation backs development and
// degraded operation.
type ValkeyCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// SetInsightState records the last emitted severity/value for an insight
	// fingerprint so the generator can suppress repeats.
	SetInsightState(ctx context.Context, deviceID string, state *InsightState, ttl time.Duration) error
	GetInsightState(ctx context.Context, deviceID string, insightType models.InsightType, metric models.MetricType) (*InsightState, error)

	// AcquireLock takes a best-effort distributed lock so only one replica
	// analyzes a device per sweep. Returns false on contention.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	HealthCheck(ctx context.Context) error
}

// InsightState is the per-fingerprint dedup record. A repeat insight is
// suppressed unless its severity escalates or its observed value moves by
// more than 10% since this state was written.
type InsightState struct {
	Type      models.InsightType `json:"type"`
	Metric    models.MetricType  `json:"metric,omitempty"`
	Severity  models.Severity    `json:"severity"`
	Value     float64            `json:"value"`
	EmittedAt time.Time          `json:"emitted_at"`
}
