package config

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds" yaml:"thresholds"`
	Analyzer   AnalyzerConfig   `mapstructure:"analyzer" yaml:"analyzer"`
	Alerts     AlertsConfig     `mapstructure:"alerts" yaml:"alerts"`
	Insights   InsightsConfig   `mapstructure:"insights" yaml:"insights"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
}

// CacheConfig handles Valkey caching configuration. The cache carries insight
// dedup state and cross-instance sweep locks; it is optional and the engine
// degrades to in-process-only behaviour without it.
type CacheConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Nodes    []string `mapstructure:"nodes" yaml:"nodes"`
	TTL      int      `mapstructure:"ttl" yaml:"ttl"` // seconds
	Password string   `mapstructure:"password" yaml:"password"`
	DB       int      `mapstructure:"db" yaml:"db"`
}

// MonitoringConfig handles self-monitoring configuration.
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	MetricsPath string `mapstructure:"metrics_path" yaml:"metrics_path"`
}

// TelemetryConfig bounds the in-memory sample store.
type TelemetryConfig struct {
	// RetentionDays caps how far back analyses may reach (bounded window).
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`
	// MaxSamplesPerSeries bounds the per-(device, metric) buffer.
	MaxSamplesPerSeries int `mapstructure:"max_samples_per_series" yaml:"max_samples_per_series"`
}

// BandConfig is one severity threshold band for a metric.
type BandConfig struct {
	Name     string  `mapstructure:"name" yaml:"name"`
	Severity string  `mapstructure:"severity" yaml:"severity"`
	Value    float64 `mapstructure:"value" yaml:"value"`
}

// ThresholdsConfig configures the threshold registry and the baseline
// tracker's per-metric variance thresholds. Empty maps fall back to the
// built-in defaults.
type ThresholdsConfig struct {
	// File is an optional YAML file watched for hot reloads.
	File string `mapstructure:"file" yaml:"file"`
	// Bands maps metric name to its ordered (descending) severity bands.
	Bands map[string][]BandConfig `mapstructure:"bands" yaml:"bands"`
	// VarianceThresholds maps metric name to the percent deviation from
	// baseline that flags an anomaly.
	VarianceThresholds map[string]float64 `mapstructure:"variance_thresholds" yaml:"variance_thresholds"`
	// DefaultVarianceThreshold applies to metrics missing from the map.
	DefaultVarianceThreshold float64 `mapstructure:"default_variance_threshold" yaml:"default_variance_threshold"`
}

// AnalyzerConfig tunes the time-series analyzer.
type AnalyzerConfig struct {
	AnomalyMultiplier   float64 `mapstructure:"anomaly_multiplier" yaml:"anomaly_multiplier"`
	ForecastSteps       int     `mapstructure:"forecast_steps" yaml:"forecast_steps"`
	SeasonalityStrength float64 `mapstructure:"seasonality_strength" yaml:"seasonality_strength"`
}

// AlertsConfig tunes the alert lifecycle state machine.
type AlertsConfig struct {
	CoolDownMinutes       int     `mapstructure:"cool_down_minutes" yaml:"cool_down_minutes"`
	MinValueDelta         float64 `mapstructure:"min_value_delta" yaml:"min_value_delta"`
	UpdateIntervalMinutes int     `mapstructure:"update_interval_minutes" yaml:"update_interval_minutes"`
}

// InsightsConfig tunes insight generation.
type InsightsConfig struct {
	FetchTimeoutMs       int     `mapstructure:"fetch_timeout_ms" yaml:"fetch_timeout_ms"`
	AnalysisTimeoutMs    int     `mapstructure:"analysis_timeout_ms" yaml:"analysis_timeout_ms"`
	WindowDays           int     `mapstructure:"window_days" yaml:"window_days"`
	MoveThresholdPercent float64 `mapstructure:"move_threshold_percent" yaml:"move_threshold_percent"`
}

// SchedulerConfig tunes the background sweep.
type SchedulerConfig struct {
	Enabled              bool `mapstructure:"enabled" yaml:"enabled"`
	IntervalSeconds      int  `mapstructure:"interval_seconds" yaml:"interval_seconds"`
	MaxConcurrentDevices int  `mapstructure:"max_concurrent_devices" yaml:"max_concurrent_devices"`
}
