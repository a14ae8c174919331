package models

import "time"

// MetricType identifies one of the telemetry channels agents report on.
type MetricType string

const (
	MetricCPU         MetricType = "cpu"
	MetricMemory      MetricType = "memory"
	MetricDisk        MetricType = "disk"
	MetricNetwork     MetricType = "network"
	MetricTemperature MetricType = "temperature"
)

// KnownMetrics lists every metric the engine accepts from the ingestion layer.
var KnownMetrics = []MetricType{MetricCPU, MetricMemory, MetricDisk, MetricNetwork, MetricTemperature}

func (m MetricType) Valid() bool {
	for _, known := range KnownMetrics {
		if m == known {
			return true
		}
	}
	return false
}

// Severity is the ordered alert/insight severity scale.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityInfo:     1,
	SeverityLow:      2,
	SeverityMedium:   3,
	SeverityHigh:     4,
	SeverityCritical: 5,
}

// Rank returns the position of the severity on the ordered scale
// (critical > high > medium > low > info > none).
func (s Severity) Rank() int {
	return severityRank[s]
}

// Escalates reports whether s is strictly more severe than other.
func (s Severity) Escalates(other Severity) bool {
	return s.Rank() > other.Rank()
}

// MetricSample is one observation produced by an endpoint agent.
// Samples are immutable; the engine consumes them read-only.
type MetricSample struct {
	DeviceID  string     `json:"device_id"`
	Metric    MetricType `json:"metric"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"timestamp"`
}

// Baseline is the adaptive expected value for a (device, metric) pair,
// maintained as a fixed-weight EWMA.
type Baseline struct {
	DeviceID          string     `json:"device_id"`
	Metric            MetricType `json:"metric"`
	Value             float64    `json:"value"`
	VarianceThreshold float64    `json:"variance_threshold"` // percent deviation that flags an anomaly
	SampleCount       int64      `json:"sample_count"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Seasonality classifies the dominant repeating cycle in a sample window.
type Seasonality string

const (
	SeasonalityDaily            Seasonality = "daily"
	SeasonalityWeekly           Seasonality = "weekly"
	SeasonalityRandom           Seasonality = "random"
	SeasonalityInsufficientData Seasonality = "insufficient_data"
)

// TimeSeriesAnalysis is the derived statistical summary of a sample window.
// It is recomputed on demand and never persisted.
type TimeSeriesAnalysis struct {
	// Trend is the least-squares slope over the sample index, in units per
	// sample. Call sites treat one sample as roughly one day; with irregular
	// agent reporting intervals this is a known approximation.
	Trend       float64     `json:"trend"`
	Volatility  float64     `json:"volatility"` // population standard deviation
	Anomalies   []float64   `json:"anomalies"`  // values beyond the z-score cutoff
	Forecast    []float64   `json:"forecast"`   // next-N extrapolation, clamped to [0,100]
	Seasonality Seasonality `json:"seasonality"`
	SampleCount int         `json:"sample_count"`
}

// CapacityPrediction estimates when a resource metric will exhaust capacity.
type CapacityPrediction struct {
	Metric         MetricType `json:"metric"`
	DaysToCapacity int        `json:"days_to_capacity"`
	PredictedValue float64    `json:"predicted_value"`
	CurrentValue   float64    `json:"current_value"`
	Severity       Severity   `json:"severity"`
	Confidence     float64    `json:"confidence"`
	Recommendation string     `json:"recommendation"`
}

// HardwareRisk is the accumulated failure-likelihood score across metrics.
type HardwareRisk struct {
	Score      float64  `json:"score"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`
	Factors    []string `json:"factors"`
}

// InsightType categorises generated insights.
type InsightType string

const (
	InsightPerformance  InsightType = "performance"
	InsightSecurity     InsightType = "security"
	InsightMaintenance  InsightType = "maintenance"
	InsightPrediction   InsightType = "prediction"
	InsightOptimization InsightType = "optimization"
)

// Insight is a human-readable finding produced by the insight generator.
// Insights are ephemeral; a downstream automation sink may open a ticket for
// high/critical ones and link it back via ExistingTicket.
type Insight struct {
	ID             string                 `json:"id"`
	DeviceID       string                 `json:"device_id"`
	Type           InsightType            `json:"type"`
	Metric         MetricType             `json:"metric,omitempty"`
	Severity       Severity               `json:"severity"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Recommendation string                 `json:"recommendation"`
	Confidence     float64                `json:"confidence"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	ExistingTicket string                 `json:"existing_ticket,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}
