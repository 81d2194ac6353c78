// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat and snake_case so env vars map 1:1 (MATCHLOOP_QUEUE_SIZE -> queue_size).
// - New() returns a Config populated with production defaults.
// - Validate() reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store and cache drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the outcome store: memory or postgres.
	StoreDriver string `koanf:"store_driver"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// CacheDriver selects the derived-view cache: memory or redis.
	CacheDriver string `koanf:"cache_driver"`
	RedisAddr   string `koanf:"redis_addr"`
	RedisDB     int    `koanf:"redis_db"`
	// CacheSize bounds the local cache entry count.
	CacheSize int `koanf:"cache_size"`

	// EventQueueSize bounds the in-memory event bus.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of event dispatch workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the interaction/milestone deduplication set.
	DedupeSize int `koanf:"dedupe_size"`

	// SchedulerEnabled starts the background loops in serve mode.
	SchedulerEnabled bool `koanf:"scheduler_enabled"`

	// Weight learning.
	LearningInterval     time.Duration `koanf:"learning_interval"`
	LearningMinSample    int           `koanf:"learning_min_sample"`
	LearningWindowDays   int           `koanf:"learning_window_days"`
	LearningRate         float64       `koanf:"learning_rate"`
	StabilityFactor      float64       `koanf:"stability_factor"`
	MaxWeightChange      float64       `koanf:"max_weight_change"`
	ConservatismFactor   float64       `koanf:"conservatism_factor"`
	SuccessRateThreshold float64       `koanf:"success_rate_threshold"`
	// LockTTL bounds how long a distributed learning lock is held.
	LockTTL time.Duration `koanf:"lock_ttl"`

	// Performance scoring.
	PerformanceInterval    time.Duration `koanf:"performance_interval"`
	PerformanceWindowDays  int           `koanf:"performance_window_days"`
	PerformanceActiveDays  int           `koanf:"performance_active_days"`
	PerformanceConcurrency int           `koanf:"performance_concurrency"`

	// Proactive optimization.
	OptimizerInterval       time.Duration `koanf:"optimizer_interval"`
	OptimizerRecentDays     int           `koanf:"optimizer_recent_days"`
	OptimizerMinProbability float64       `koanf:"optimizer_min_probability"`
	OptimizerMaxProbability float64       `koanf:"optimizer_max_probability"`
	AutoExecute             bool          `koanf:"auto_execute"`

	// Market intelligence refresh.
	MarketInterval time.Duration `koanf:"market_interval"`

	// Cache TTLs per derived view.
	PatternCacheTTL     time.Duration `koanf:"pattern_cache_ttl"`
	ForecastCacheTTL    time.Duration `koanf:"forecast_cache_ttl"`
	OptimizeCacheTTL    time.Duration `koanf:"optimize_cache_ttl"`
	PerformanceCacheTTL time.Duration `koanf:"performance_cache_ttl"`
	RecommendCacheTTL   time.Duration `koanf:"recommend_cache_ttl"`

	// MaxRecommendationLimit caps the recommendation list length.
	MaxRecommendationLimit int `koanf:"max_recommendation_limit"`
	// MaxLeaderboardLimit caps GET /v1/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":9080",

		StoreDriver: DriverMemory,
		CacheDriver: DriverMemory,
		RedisAddr:   "localhost:6379",
		CacheSize:   50_000,

		EventQueueSize: 10_000,
		WorkerCount:    runtime.NumCPU(),
		DedupeSize:     500_000,

		SchedulerEnabled: true,

		LearningInterval:     6 * time.Hour,
		LearningMinSample:    15,
		LearningWindowDays:   180,
		LearningRate:         0.1,
		StabilityFactor:      0.85,
		MaxWeightChange:      0.3,
		ConservatismFactor:   0.9,
		SuccessRateThreshold: 0.7,
		LockTTL:              10 * time.Minute,

		PerformanceInterval:    6 * time.Hour,
		PerformanceWindowDays:  90,
		PerformanceActiveDays:  30,
		PerformanceConcurrency: 8,

		OptimizerInterval:       4 * time.Hour,
		OptimizerRecentDays:     7,
		OptimizerMinProbability: 0.4,
		OptimizerMaxProbability: 0.9,
		AutoExecute:             true,

		MarketInterval: 12 * time.Hour,

		PatternCacheTTL:     10 * time.Minute,
		ForecastCacheTTL:    15 * time.Minute,
		OptimizeCacheTTL:    5 * time.Minute,
		PerformanceCacheTTL: 30 * time.Minute,
		RecommendCacheTTL:   30 * time.Minute,

		MaxRecommendationLimit: 50,
		MaxLeaderboardLimit:    100,
	}
}

// Validate checks the config and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		add("addr must not be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		add("log_format must be text or json, got %q", c.LogFormat)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			add("postgres_dsn is required when store_driver=postgres")
		}
	default:
		add("store_driver must be memory or postgres, got %q", c.StoreDriver)
	}
	switch c.CacheDriver {
	case DriverMemory:
		if c.CacheSize <= 0 {
			add("cache_size must be positive")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			add("redis_addr is required when cache_driver=redis")
		}
	default:
		add("cache_driver must be memory or redis, got %q", c.CacheDriver)
	}
	if c.EventQueueSize <= 0 {
		add("queue_size must be positive")
	}
	if c.WorkerCount <= 0 {
		add("worker_count must be positive")
	}
	if c.LearningMinSample < 2 {
		add("learning_min_sample must be at least 2")
	}
	if c.LearningWindowDays <= 0 || c.PerformanceWindowDays <= 0 || c.PerformanceActiveDays <= 0 || c.OptimizerRecentDays <= 0 {
		add("window days must be positive")
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		add("learning_rate must be in (0,1]")
	}
	if c.StabilityFactor <= 0 || c.StabilityFactor > 1 {
		add("stability_factor must be in (0,1]")
	}
	if c.MaxWeightChange <= 0 || c.MaxWeightChange >= 1 {
		add("max_weight_change must be in (0,1)")
	}
	if c.ConservatismFactor <= 0 || c.ConservatismFactor > 1 {
		add("conservatism_factor must be in (0,1]")
	}
	if c.SuccessRateThreshold < 0 || c.SuccessRateThreshold > 1 {
		add("success_rate_threshold must be in [0,1]")
	}
	if c.OptimizerMinProbability < 0 || c.OptimizerMaxProbability > 1 || c.OptimizerMinProbability > c.OptimizerMaxProbability {
		add("optimizer probability window must satisfy 0 <= min <= max <= 1")
	}
	if c.PerformanceConcurrency <= 0 {
		add("performance_concurrency must be positive")
	}
	for name, d := range map[string]time.Duration{
		"learning_interval":    c.LearningInterval,
		"performance_interval": c.PerformanceInterval,
		"optimizer_interval":   c.OptimizerInterval,
		"market_interval":      c.MarketInterval,
		"lock_ttl":             c.LockTTL,
	} {
		if d <= 0 {
			add("%s must be positive", name)
		}
	}
	if c.MaxRecommendationLimit <= 0 || c.MaxLeaderboardLimit <= 0 {
		add("result limits must be positive")
	}
	return errors.Join(errs...)
}
