// Package scheduler runs the periodic per-device sweep: duplicate-alert
// cleanup followed by insight generation. Sweeps are idempotent and bounded;
// a device is never analyzed twice concurrently, locally or across replicas.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/fleetwatch-core/internal/alerts"
	"github.com/platformbuilds/fleetwatch-core/internal/config"
	"github.com/platformbuilds/fleetwatch-core/internal/insights"
	"github.com/platformbuilds/fleetwatch-core/internal/monitoring"
	"github.com/platformbuilds/fleetwatch-core/internal/storage"
	"github.com/platformbuilds/fleetwatch-core/pkg/cache"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

const (
	defaultInterval      = time.Minute
	defaultMaxConcurrent = 8
)

type Scheduler struct {
	store     storage.TelemetryStore
	generator *insights.Generator
	alerts    *alerts.Manager
	cache     cache.ValkeyCache // nil skips cross-instance locking
	logger    logger.Logger

	interval      time.Duration
	maxConcurrent int

	// inFlight claims a device for the duration of its analysis within this
	// process; the cache lock extends the claim across replicas.
	inFlight sync.Map // deviceID -> struct{}
}

func New(cfg config.SchedulerConfig, store storage.TelemetryStore, generator *insights.Generator, manager *alerts.Manager, log logger.Logger) *Scheduler {
	interval := defaultInterval
	if cfg.IntervalSeconds > 0 {
		interval = time.Duration(cfg.IntervalSeconds) * time.Second
	}
	maxConcurrent := defaultMaxConcurrent
	if cfg.MaxConcurrentDevices > 0 {
		maxConcurrent = cfg.MaxConcurrentDevices
	}
	return &Scheduler{
		store:         store,
		generator:     generator,
		alerts:        manager,
		logger:        log,
		interval:      interval,
		maxConcurrent: maxConcurrent,
	}
}

// SetCache attaches the cross-instance sweep lock store.
func (s *Scheduler) SetCache(c cache.ValkeyCache) { s.cache = c }

// Run executes sweeps until the context is cancelled. Blocking; callers start
// it in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval, "max_concurrent", s.maxConcurrent)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep analyzes every known device once, bounded by maxConcurrent.
func (s *Scheduler) Sweep(ctx context.Context) {
	start := time.Now()

	deviceIDs, err := s.store.ListDeviceIDs(ctx)
	if err != nil {
		monitoring.RecordStoreOperation("list_device_ids", "error")
		monitoring.RecordError("scheduler")
		s.logger.Error("failed to list devices for sweep", "error", err)
		return
	}
	monitoring.RecordStoreOperation("list_device_ids", "success")

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	for _, deviceID := range deviceIDs {
		if ctx.Err() != nil {
			break
		}
		if _, claimed := s.inFlight.LoadOrStore(deviceID, struct{}{}); claimed {
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(deviceID string) {
			defer func() {
				s.inFlight.Delete(deviceID)
				<-sem
				wg.Done()
			}()
			s.analyzeDevice(ctx, deviceID)
		}(deviceID)
	}

	wg.Wait()
	monitoring.RecordAnalysisDuration("sweep", time.Since(start))
}

func (s *Scheduler) analyzeDevice(ctx context.Context, deviceID string) {
	if s.cache != nil {
		ok, err := s.cache.AcquireLock(ctx, "sweep:"+deviceID, s.interval)
		if err != nil {
			s.logger.Warn("sweep lock unavailable; proceeding locally", "device_id", deviceID, "error", err)
		} else if !ok {
			// another replica has this device
			return
		} else {
			defer func() {
				if err := s.cache.ReleaseLock(ctx, "sweep:"+deviceID); err != nil {
					s.logger.Warn("failed to release sweep lock", "device_id", deviceID, "error", err)
				}
			}()
		}
	}

	if _, err := s.alerts.CollapseDuplicates(ctx, deviceID); err != nil {
		s.logger.Error("duplicate cleanup failed", "device_id", deviceID, "error", err)
	}

	generated, err := s.generator.GenerateForDevice(ctx, deviceID)
	if err != nil {
		monitoring.RecordError("scheduler")
		s.logger.Error("insight generation failed", "device_id", deviceID, "error", err)
		return
	}
	if len(generated) > 0 {
		s.logger.Info("sweep generated insights", "device_id", deviceID, "count", len(generated))
	}
}
