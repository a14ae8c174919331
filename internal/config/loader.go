package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from various sources with priority order:
// 1. Environment variables
// 2. Configuration file (config.yaml)
// 3. Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/fleetwatch/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("FLEETWATCH")

	setDefaults(v)

	// Config file is optional; env vars and defaults are enough to run.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets reasonable default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	// Cache defaults (Valkey)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.nodes", []string{"localhost:6379"})
	v.SetDefault("cache.ttl", 300) // 5 minutes
	v.SetDefault("cache.db", 0)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Telemetry window defaults
	v.SetDefault("telemetry.retention_days", 90)
	v.SetDefault("telemetry.max_samples_per_series", 4096)

	// Baseline variance thresholds (percent deviation that flags an anomaly)
	v.SetDefault("thresholds.variance_thresholds", map[string]float64{
		"cpu":     25,
		"memory":  20,
		"disk":    15,
		"network": 50,
	})
	v.SetDefault("thresholds.default_variance_threshold", 30.0)

	// Analyzer defaults
	v.SetDefault("analyzer.anomaly_multiplier", 2.5)
	v.SetDefault("analyzer.forecast_steps", 7)
	v.SetDefault("analyzer.seasonality_strength", 0.3)

	// Alert lifecycle defaults
	v.SetDefault("alerts.cool_down_minutes", 10)
	v.SetDefault("alerts.min_value_delta", 3.0)
	v.SetDefault("alerts.update_interval_minutes", 30)

	// Insight generation defaults
	v.SetDefault("insights.fetch_timeout_ms", 3000)
	v.SetDefault("insights.analysis_timeout_ms", 2000)
	v.SetDefault("insights.window_days", 7)
	v.SetDefault("insights.move_threshold_percent", 10.0)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_seconds", 60)
	v.SetDefault("scheduler.max_concurrent_devices", 8)
}

// overrideWithEnvVars explicitly handles environment variable overrides
func overrideWithEnvVars(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("port", p)
		}
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		v.Set("environment", env)
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		v.Set("log_level", logLevel)
	}

	// Valkey cache nodes
	if cacheNodes := os.Getenv("VALKEY_CACHE_NODES"); cacheNodes != "" {
		nodes := strings.Split(cacheNodes, ",")
		for i, node := range nodes {
			nodes[i] = strings.TrimSpace(node)
		}
		v.Set("cache.nodes", nodes)
		v.Set("cache.enabled", true)
	}

	if cacheTTL := os.Getenv("CACHE_TTL"); cacheTTL != "" {
		if ttl, err := strconv.Atoi(cacheTTL); err == nil {
			v.Set("cache.ttl", ttl)
		}
	}

	if thresholdsFile := os.Getenv("THRESHOLDS_FILE"); thresholdsFile != "" {
		v.Set("thresholds.file", thresholdsFile)
	}

	if interval := os.Getenv("SWEEP_INTERVAL_SECONDS"); interval != "" {
		if s, err := strconv.Atoi(interval); err == nil {
			v.Set("scheduler.interval_seconds", s)
		}
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", config.Port)
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	validEnvironments := []string{"development", "staging", "production", "test"}
	if !contains(validEnvironments, config.Environment) {
		return fmt.Errorf("invalid environment: %s", config.Environment)
	}

	if config.Cache.Enabled && len(config.Cache.Nodes) == 0 {
		return fmt.Errorf("at least one Valkey cache node is required when cache is enabled")
	}

	if config.Cache.TTL < 1 {
		return fmt.Errorf("cache TTL must be at least 1 second")
	}

	for metric, threshold := range config.Thresholds.VarianceThresholds {
		if threshold <= 0 {
			return fmt.Errorf("variance threshold for %s must be positive", metric)
		}
	}
	if config.Thresholds.DefaultVarianceThreshold <= 0 {
		return fmt.Errorf("default variance threshold must be positive")
	}

	if config.Analyzer.AnomalyMultiplier <= 0 {
		return fmt.Errorf("anomaly multiplier must be positive")
	}
	if config.Analyzer.ForecastSteps < 1 {
		return fmt.Errorf("forecast steps must be at least 1")
	}
	if config.Analyzer.SeasonalityStrength <= 0 || config.Analyzer.SeasonalityStrength >= 1 {
		return fmt.Errorf("seasonality strength must be in (0, 1)")
	}

	if config.Alerts.CoolDownMinutes < 0 {
		return fmt.Errorf("alert cool-down must not be negative")
	}

	if config.Insights.WindowDays < 1 || config.Insights.WindowDays > config.Telemetry.RetentionDays {
		return fmt.Errorf("insight window must be between 1 and retention days (%d)", config.Telemetry.RetentionDays)
	}

	if config.Scheduler.Enabled && config.Scheduler.IntervalSeconds < 1 {
		return fmt.Errorf("scheduler interval must be at least 1 second")
	}

	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
