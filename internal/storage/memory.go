package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
)

const defaultMaxPerSeries = 4096

// MemoryStore is a bounded in-memory TelemetryStore. It backs development
// deployments and tests; fleet-scale persistence stays behind the interface.
type MemoryStore struct {
	mu sync.RWMutex

	// samples per device per metric, oldest first, bounded per series
	samples      map[string]map[models.MetricType][]models.MetricSample
	maxPerSeries int

	alerts map[string]*models.Alert

	nowFn func() time.Time
}

func NewMemoryStore(maxPerSeries int) *MemoryStore {
	if maxPerSeries <= 0 {
		maxPerSeries = defaultMaxPerSeries
	}
	return &MemoryStore{
		samples:      make(map[string]map[models.MetricType][]models.MetricSample),
		maxPerSeries: maxPerSeries,
		alerts:       make(map[string]*models.Alert),
		nowFn:        time.Now,
	}
}

func (s *MemoryStore) InsertSample(ctx context.Context, sample models.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.samples[sample.DeviceID]
	if !ok {
		series = make(map[models.MetricType][]models.MetricSample)
		s.samples[sample.DeviceID] = series
	}

	buf := append(series[sample.Metric], sample)
	if len(buf) > s.maxPerSeries {
		buf = buf[len(buf)-s.maxPerSeries:]
	}
	series[sample.Metric] = buf
	return nil
}

func (s *MemoryStore) GetRecentSamples(ctx context.Context, deviceID string, metric models.MetricType, sinceDays int) ([]models.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.nowFn().AddDate(0, 0, -sinceDays)

	var out []models.MetricSample
	series := s.samples[deviceID]
	for m, buf := range series {
		if metric != MetricAll && m != metric {
			continue
		}
		for _, sample := range buf {
			if sample.Timestamp.After(cutoff) {
				out = append(out, sample)
			}
		}
	}

	// newest first, per the consumed contract
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) GetActiveAlert(ctx context.Context, deviceID string, metric models.MetricType) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, alert := range s.alerts {
		if alert.IsActive && alert.DeviceID == deviceID && alert.Metric == metric {
			return copyAlert(alert), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetActiveAlerts(ctx context.Context, deviceID string) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Alert
	for _, alert := range s.alerts {
		if alert.IsActive && alert.DeviceID == deviceID {
			out = append(out, copyAlert(alert))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggeredAt.Before(out[j].TriggeredAt)
	})
	return out, nil
}

func (s *MemoryStore) CreateAlert(ctx context.Context, alert *models.Alert) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyAlert(alert)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.TriggeredAt.IsZero() {
		stored.TriggeredAt = s.nowFn()
	}
	stored.IsActive = true
	s.alerts[stored.ID] = stored

	return copyAlert(stored), nil
}

func (s *MemoryStore) UpdateAlert(ctx context.Context, id string, patch models.AlertPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}

	if patch.Severity != models.SeverityNone {
		alert.Severity = patch.Severity
	}
	if patch.Message != "" {
		alert.Message = patch.Message
	}
	if patch.Metadata != nil {
		if alert.Metadata == nil {
			alert.Metadata = make(map[string]interface{}, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			alert.Metadata[k] = v
		}
	}
	return nil
}

func (s *MemoryStore) ResolveAlert(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	if !alert.IsActive {
		return nil
	}

	now := s.nowFn()
	alert.IsActive = false
	alert.ResolvedAt = &now
	return nil
}

func (s *MemoryStore) GetRecentlyResolvedAlerts(ctx context.Context, deviceID string, category models.AlertCategory, metric models.MetricType, within time.Duration) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.nowFn().Add(-within)

	var out []*models.Alert
	for _, alert := range s.alerts {
		if alert.IsActive || alert.ResolvedAt == nil {
			continue
		}
		if alert.DeviceID != deviceID || alert.Category != category || alert.Metric != metric {
			continue
		}
		if alert.ResolvedAt.After(cutoff) {
			out = append(out, copyAlert(alert))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListDeviceIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.samples))
	for id := range s.samples {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SetNow overrides the store clock. Tests only.
func (s *MemoryStore) SetNow(nowFn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = nowFn
}

func copyAlert(a *models.Alert) *models.Alert {
	clone := *a
	if a.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(a.Metadata))
		for k, v := range a.Metadata {
			clone.Metadata[k] = v
		}
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		clone.ResolvedAt = &t
	}
	return &clone
}
