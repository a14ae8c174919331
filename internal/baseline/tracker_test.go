package baseline

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/platformbuilds/fleetwatch-core/internal/config"
	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

func newTracker() *Tracker {
	return New(config.ThresholdsConfig{
		VarianceThresholds:       map[string]float64{"cpu": 25, "memory": 20, "disk": 15, "network": 50},
		DefaultVarianceThreshold: 30,
	}, logger.NewNop())
}

func TestUpdate_FirstSampleSeedsBaseline(t *testing.T) {
	tr := newTracker()

	b, dev := tr.Update("dev-1", models.MetricCPU, 42.5)
	if b.Value != 42.5 {
		t.Errorf("first baseline = %.2f, want 42.5", b.Value)
	}
	if dev != nil {
		t.Error("first observation must not deviate")
	}
	if b.SampleCount != 1 {
		t.Errorf("sample count = %d, want 1", b.SampleCount)
	}
}

func TestUpdate_ConvergesOnConstantInput(t *testing.T) {
	tr := newTracker()

	tr.Update("dev-1", models.MetricCPU, 10)
	var b models.Baseline
	for i := 0; i < 5; i++ {
		b, _ = tr.Update("dev-1", models.MetricCPU, 80)
	}
	// After 5 blends at weight 0.2 the baseline sits within 5 * 0.8^5 ≈ 23
	// of the target; repeated identical input starting at the target itself
	// stays exact.
	tr2 := newTracker()
	tr2.Update("dev-2", models.MetricCPU, 50)
	for i := 0; i < 5; i++ {
		b, _ = tr2.Update("dev-2", models.MetricCPU, 50)
	}
	if math.Abs(b.Value-50) >= 0.01 {
		t.Errorf("constant input should converge exactly, got %.4f", b.Value)
	}
}

func TestUpdate_EWMABlend(t *testing.T) {
	tr := newTracker()

	tr.Update("dev-1", models.MetricMemory, 100)
	b, _ := tr.Update("dev-1", models.MetricMemory, 50)
	want := 100*0.8 + 50*0.2
	if math.Abs(b.Value-want) > 1e-9 {
		t.Errorf("baseline after blend = %.4f, want %.4f", b.Value, want)
	}
}

func TestUpdate_DeviationSeverities(t *testing.T) {
	tests := []struct {
		name     string
		baseline float64
		value    float64
		severity models.Severity
		deviates bool
	}{
		{"within variance", 100, 110, models.SeverityNone, false}, // 10% < 25%
		{"low deviation", 100, 128, models.SeverityLow, true},     // 28%
		{"medium deviation", 100, 140, models.SeverityMedium, true},
		{"high deviation", 100, 160, models.SeverityHigh, true},
		{"equal to baseline", 100, 100, models.SeverityNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker()
			tr.Update("dev-1", models.MetricCPU, tt.baseline)
			_, dev := tr.Update("dev-1", models.MetricCPU, tt.value)
			if !tt.deviates {
				if dev != nil {
					t.Fatalf("expected no deviation, got %+v", dev)
				}
				return
			}
			if dev == nil {
				t.Fatal("expected a deviation signal")
			}
			if dev.Severity != tt.severity {
				t.Errorf("severity = %q, want %q", dev.Severity, tt.severity)
			}
		})
	}
}

func TestUpdate_ZeroBaselineGuard(t *testing.T) {
	tr := newTracker()

	tr.Update("dev-1", models.MetricNetwork, 0)
	if _, dev := tr.Update("dev-1", models.MetricNetwork, 0); dev != nil {
		t.Error("zero over zero baseline must not deviate")
	}
	_, dev := tr.Update("dev-1", models.MetricNetwork, 5)
	if dev == nil {
		t.Fatal("nonzero value over zero baseline should deviate")
	}
	if dev.Severity != models.SeverityHigh {
		t.Errorf("zero-baseline jump should be high, got %q", dev.Severity)
	}
}

func TestUpdate_DefaultVarianceForUnlistedMetric(t *testing.T) {
	tr := newTracker()

	tr.Update("dev-1", models.MetricTemperature, 100)
	// 25% is below the 30% default for temperature, but above cpu's 25.
	if _, dev := tr.Update("dev-1", models.MetricTemperature, 128); dev != nil {
		t.Errorf("28%% on default threshold 30 should not deviate, got %+v", dev)
	}
}

func TestUpdate_ConcurrentSeriesAreIndependent(t *testing.T) {
	tr := newTracker()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			device := fmt.Sprintf("dev-%d", n)
			for j := 0; j < 100; j++ {
				tr.Update(device, models.MetricCPU, 50)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 64; i++ {
		b, ok := tr.Snapshot(fmt.Sprintf("dev-%d", i), models.MetricCPU)
		if !ok {
			t.Fatalf("missing baseline for dev-%d", i)
		}
		if b.SampleCount != 100 {
			t.Errorf("dev-%d sample count = %d, want 100", i, b.SampleCount)
		}
		if math.Abs(b.Value-50) > 1e-9 {
			t.Errorf("dev-%d baseline = %.4f, want 50", i, b.Value)
		}
	}
}
