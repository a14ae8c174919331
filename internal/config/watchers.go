package config

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

// ThresholdsFile is the hot-reloadable threshold document. It mirrors the
// thresholds block of the main config so operators can tune severity bands
// and variance thresholds without restarting the server.
type ThresholdsFile struct {
	Bands                    map[string][]BandConfig `yaml:"bands"`
	VarianceThresholds       map[string]float64      `yaml:"variance_thresholds"`
	DefaultVarianceThreshold float64                 `yaml:"default_variance_threshold"`
}

// LoadThresholdsFile parses a thresholds YAML document from disk.
func LoadThresholdsFile(path string) (*ThresholdsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read thresholds file: %w", err)
	}
	var tf ThresholdsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse thresholds file %s: %w", path, err)
	}
	return &tf, nil
}

// ThresholdsWatcher watches the thresholds file and notifies registered
// callbacks whenever it changes and parses cleanly. A file that fails to
// parse is logged and ignored so a bad edit never takes the running table
// down.
type ThresholdsWatcher struct {
	path     string
	logger   logger.Logger
	mu       sync.Mutex
	watchers []func(*ThresholdsFile)
}

func NewThresholdsWatcher(path string, logger logger.Logger) *ThresholdsWatcher {
	return &ThresholdsWatcher{
		path:     path,
		logger:   logger,
		watchers: make([]func(*ThresholdsFile), 0),
	}
}

// RegisterWatcher adds a callback for threshold changes.
func (w *ThresholdsWatcher) RegisterWatcher(callback func(*ThresholdsFile)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watchers = append(w.watchers, callback)
}

// Start begins watching for threshold file changes. Blocks until ctx is done.
func (w *ThresholdsWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch thresholds file: %w", err)
	}

	w.logger.Info("Thresholds watcher started", "path", w.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Info("Thresholds file changed, reloading", "file", event.Name)

				tf, err := LoadThresholdsFile(w.path)
				if err != nil {
					w.logger.Error("Failed to reload thresholds file", "error", err)
					continue
				}
				w.notifyWatchers(tf)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Thresholds watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Info("Thresholds watcher stopping")
			return nil
		}
	}
}

func (w *ThresholdsWatcher) notifyWatchers(tf *ThresholdsFile) {
	w.mu.Lock()
	callbacks := make([]func(*ThresholdsFile), len(w.watchers))
	copy(callbacks, w.watchers)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(tf)
	}
}
