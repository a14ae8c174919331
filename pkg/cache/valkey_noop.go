package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

// noopValkeyCache is a process-local fallback that satisfies ValkeyCache when
// the external cache is unavailable. Best-effort only: insight dedup state is
// not shared across replicas and is lost on restart, and locks never contend.
type noopValkeyCache struct {
	mu     sync.RWMutex
	m      map[string]noopEntry
	logger logger.Logger
	nowFn  func() time.Time
}

type noopEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func NewNoopValkeyCache(log logger.Logger) ValkeyCache {
	log.Warn("Valkey cache unavailable; using in-memory fallback (noop)")
	return &noopValkeyCache{m: make(map[string]noopEntry), logger: log, nowFn: time.Now}
}

func (n *noopValkeyCache) Get(ctx context.Context, key string) ([]byte, error) {
	n.mu.RLock()
	e, ok := n.m[key]
	n.mu.RUnlock()
	if !ok || n.expired(e) {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	return e.data, nil
}

func (n *noopValkeyCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		jb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b = jb
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = n.nowFn().Add(ttl)
	}

	n.mu.Lock()
	n.m[key] = noopEntry{data: b, expiresAt: expiresAt}
	n.mu.Unlock()
	return nil
}

func (n *noopValkeyCache) Delete(ctx context.Context, key string) error {
	n.mu.Lock()
	delete(n.m, key)
	n.mu.Unlock()
	return nil
}

func (n *noopValkeyCache) SetInsightState(ctx context.Context, deviceID string, state *InsightState, ttl time.Duration) error {
	if state.EmittedAt.IsZero() {
		state.EmittedAt = n.nowFn()
	}
	return n.Set(ctx, insightStateKey(deviceID, state.Type, state.Metric), state, ttl)
}

func (n *noopValkeyCache) GetInsightState(ctx context.Context, deviceID string, insightType models.InsightType, metric models.MetricType) (*InsightState, error) {
	b, err := n.Get(ctx, insightStateKey(deviceID, insightType, metric))
	if err != nil {
		return nil, err
	}
	var state InsightState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (n *noopValkeyCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	lockKey := fmt.Sprintf("lock:%s", key)

	n.mu.Lock()
	defer n.mu.Unlock()
	if e, ok := n.m[lockKey]; ok && !n.expired(e) {
		return false, nil
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = n.nowFn().Add(ttl)
	}
	n.m[lockKey] = noopEntry{data: []byte("locked"), expiresAt: expiresAt}
	return true, nil
}

func (n *noopValkeyCache) ReleaseLock(ctx context.Context, key string) error {
	return n.Delete(ctx, fmt.Sprintf("lock:%s", key))
}

// HealthCheck returns an error to indicate no external Valkey connectivity.
func (n *noopValkeyCache) HealthCheck(ctx context.Context) error {
	return fmt.Errorf("valkey noop cache in use (external cache not connected)")
}

func (n *noopValkeyCache) expired(e noopEntry) bool {
	return !e.expiresAt.IsZero() && n.nowFn().After(e.expiresAt)
}
