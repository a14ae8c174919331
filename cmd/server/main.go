package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platformbuilds/fleetwatch-core/internal/alerts"
	"github.com/platformbuilds/fleetwatch-core/internal/api"
	"github.com/platformbuilds/fleetwatch-core/internal/baseline"
	"github.com/platformbuilds/fleetwatch-core/internal/config"
	"github.com/platformbuilds/fleetwatch-core/internal/insights"
	"github.com/platformbuilds/fleetwatch-core/internal/pipeline"
	"github.com/platformbuilds/fleetwatch-core/internal/prediction"
	"github.com/platformbuilds/fleetwatch-core/internal/scheduler"
	"github.com/platformbuilds/fleetwatch-core/internal/storage"
	"github.com/platformbuilds/fleetwatch-core/internal/thresholds"
	"github.com/platformbuilds/fleetwatch-core/internal/timeseries"
	"github.com/platformbuilds/fleetwatch-core/pkg/cache"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting FLEETWATCH-CORE", "environment", cfg.Environment)

	// Valkey cache for insight dedup state and sweep locks; optional
	var valkeyCache cache.ValkeyCache
	if cfg.Cache.Enabled && len(cfg.Cache.Nodes) > 0 {
		valkeyCache, err = cache.NewValkeySingle(
			cfg.Cache.Nodes[0],
			cfg.Cache.DB,
			cfg.Cache.Password,
			time.Duration(cfg.Cache.TTL)*time.Second,
			logger,
		)
		if err != nil {
			logger.Warn("Valkey unavailable; falling back to in-memory cache", "error", err)
			valkeyCache = cache.NewNoopValkeyCache(logger)
		} else {
			logger.Info("Valkey cache initialized", "addr", cfg.Cache.Nodes[0])
		}
	} else {
		valkeyCache = cache.NewNoopValkeyCache(logger)
	}

	store := storage.NewMemoryStore(cfg.Telemetry.MaxSamplesPerSeries)

	registry, err := thresholds.New(cfg.Thresholds, logger)
	if err != nil {
		logger.Fatal("Invalid threshold configuration", "error", err)
	}
	tracker := baseline.New(cfg.Thresholds, logger)

	manager := alerts.NewManager(store, alerts.Options{
		CoolDown:       time.Duration(cfg.Alerts.CoolDownMinutes) * time.Minute,
		MinValueDelta:  cfg.Alerts.MinValueDelta,
		UpdateInterval: time.Duration(cfg.Alerts.UpdateIntervalMinutes) * time.Minute,
	}, logger)

	processor := pipeline.NewProcessor(tracker, registry, manager, logger)
	processor.SetWriter(store)

	generator := insights.NewGenerator(
		store,
		timeseries.NewAnalyzer(cfg.Analyzer),
		prediction.New(logger),
		insights.OptionsFromConfig(cfg.Insights),
		logger,
	)
	generator.SetCache(valkeyCache)
	generator.SetSink(insights.NewLoggingSink(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Websocket hub streams alert transitions to dashboards.
	hub := api.NewHub(logger)
	go hub.Run(ctx)
	manager.SetNotifier(hub)

	// Thresholds file hot reload.
	if cfg.Thresholds.File != "" {
		watcher := config.NewThresholdsWatcher(cfg.Thresholds.File, logger)
		watcher.RegisterWatcher(func(tf *config.ThresholdsFile) {
			if err := registry.Replace(tf); err != nil {
				// Replace already logged the rejection; keep the old table.
				return
			}
			tracker.SetVarianceThresholds(tf.VarianceThresholds, tf.DefaultVarianceThreshold)
			logger.Info("Thresholds reloaded", "file", cfg.Thresholds.File)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Thresholds watcher failed to start", "error", err)
			}
		}()
	}

	if cfg.Scheduler.Enabled {
		sweep := scheduler.New(cfg.Scheduler, store, generator, manager, logger)
		sweep.SetCache(valkeyCache)
		go sweep.Run(ctx)
	}

	apiServer := api.NewServer(cfg, logger, valkeyCache, store, processor, generator, hub)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := apiServer.Start(ctx); err != nil {
		logger.Fatal("Server failed to start", "error", err)
	}

	logger.Info("FLEETWATCH-CORE shutdown complete")
}
