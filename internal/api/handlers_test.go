package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/fleetwatch-core/internal/alerts"
	"github.com/platformbuilds/fleetwatch-core/internal/baseline"
	"github.com/platformbuilds/fleetwatch-core/internal/config"
	"github.com/platformbuilds/fleetwatch-core/internal/insights"
	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/internal/pipeline"
	"github.com/platformbuilds/fleetwatch-core/internal/prediction"
	"github.com/platformbuilds/fleetwatch-core/internal/storage"
	"github.com/platformbuilds/fleetwatch-core/internal/thresholds"
	"github.com/platformbuilds/fleetwatch-core/internal/timeseries"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

func newServerForTest(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()

	log := logger.NewNop()
	store := storage.NewMemoryStore(0)

	registry, err := thresholds.New(config.ThresholdsConfig{}, log)
	require.NoError(t, err)

	processor := pipeline.NewProcessor(
		baseline.New(config.ThresholdsConfig{}, log),
		registry,
		alerts.NewManager(store, alerts.DefaultOptions(), log),
		log,
	)
	processor.SetWriter(store)

	generator := insights.NewGenerator(
		store,
		timeseries.NewAnalyzer(config.AnalyzerConfig{}),
		prediction.New(log),
		insights.DefaultGeneratorOptions(),
		log,
	)

	cfg := &config.Config{Environment: "test", Port: 8080}
	return NewServer(cfg, log, nil, store, processor, generator, NewHub(log)), store
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newServerForTest(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIngestSamples(t *testing.T) {
	s, store := newServerForTest(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/samples", map[string]interface{}{
		"samples": []models.MetricSample{
			{DeviceID: "dev-1", Metric: models.MetricCPU, Value: 96, Timestamp: time.Now()},
			{DeviceID: "dev-1", Metric: "gpu", Value: 10, Timestamp: time.Now()},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Rejected)
	require.Len(t, resp.Transitions, 1)
	assert.Equal(t, models.ActionCreated, resp.Transitions[0].Action)

	active, err := store.GetActiveAlerts(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestIngestSamples_BadBody(t *testing.T) {
	s, _ := newServerForTest(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/samples", map[string]interface{}{
		"samples": []models.MetricSample{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/samples", bytes.NewBufferString("{not json"))
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestDeviceAlerts(t *testing.T) {
	s, store := newServerForTest(t)

	_, err := store.CreateAlert(context.Background(), &models.Alert{
		DeviceID: "dev-1",
		Metric:   models.MetricDisk,
		Category: models.CategoryStorage,
		Severity: models.SeverityHigh,
	})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/devices/dev-1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count  int            `json:"count"`
		Alerts []models.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, models.MetricDisk, body.Alerts[0].Metric)
}

func TestDeviceInsights(t *testing.T) {
	s, store := newServerForTest(t)

	base := time.Now().Add(-13 * time.Hour)
	for i := 0; i < 13; i++ {
		require.NoError(t, store.InsertSample(context.Background(), models.MetricSample{
			DeviceID:  "dev-1",
			Metric:    models.MetricDisk,
			Value:     80 + float64(i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/devices/dev-1/insights", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count    int              `json:"count"`
		Insights []models.Insight `json:"insights"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, models.InsightPrediction, body.Insights[0].Type)
	assert.Equal(t, models.SeverityCritical, body.Insights[0].Severity)
}

func TestDeviceInsights_UnknownDeviceIsEmpty(t *testing.T) {
	s, _ := newServerForTest(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/devices/nope/insights", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Count)
}
