// Package metrics provides Prometheus metrics for the matchloop engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector used by the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scoring and recommendations
	scoresComputed        prometheus.Counter
	scoringLatency        prometheus.Histogram
	recommendationsServed prometheus.Counter

	// Learning loop
	learningCycles    *prometheus.CounterVec
	weightUpdates     *prometheus.CounterVec
	factorWeight      *prometheus.GaugeVec
	factorCorrelation *prometheus.GaugeVec

	// Facts flowing in
	outcomesRecorded      prometheus.Counter
	interactionsAppended  prometheus.Counter
	interactionsDuplicate prometheus.Counter
	milestonesAppended    prometheus.Counter

	// Derived views
	performanceScored    *prometheus.CounterVec
	opportunitiesFound   *prometheus.CounterVec
	interventionsRun     *prometheus.CounterVec
	leaderboardProviders prometheus.Gauge
	forecastsComputed    prometheus.Counter

	// Caches
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec

	// Scheduler
	scheduledRuns     *prometheus.CounterVec
	scheduledSkips    *prometheus.CounterVec
	scheduledDuration *prometheus.HistogramVec

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Event bus
	eventsPublished         *prometheus.CounterVec
	eventsDropped           prometheus.Counter
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueUtilization        prometheus.Gauge
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry served on /healthz

var globalManager = NewManager(WithPrometheusRegistry(customRegistry)) //nolint:gochecknoglobals // singleton recorders

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "matchloop",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// Enabled reports whether recorders write to collectors.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often gauge sampling loops should run.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.scoresComputed = m.counter("scores_computed_total", "Total number of provider/client pairs scored")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "Latency of a single pair score in milliseconds", m.histogramBuckets)
	m.recommendationsServed = m.counter("recommendations_served_total", "Total number of ranked recommendation lists produced")

	m.learningCycles = m.counterVec("learning_cycles_total", "Weight learning cycles by final status", "status")
	m.weightUpdates = m.counterVec("weight_updates_total", "Persisted factor weight changes", "factor")
	m.factorWeight = m.gaugeVec("factor_weight", "Current learned weight per factor", "factor")
	m.factorCorrelation = m.gaugeVec("factor_success_correlation", "Last computed success correlation per factor", "factor")

	m.outcomesRecorded = m.counter("outcomes_recorded_total", "Match outcomes recorded (upserts)")
	m.interactionsAppended = m.counter("interactions_appended_total", "Engagement interactions appended")
	m.interactionsDuplicate = m.counter("interactions_duplicate_total", "Duplicate interaction or milestone appends ignored")
	m.milestonesAppended = m.counter("milestones_appended_total", "Engagement milestones appended")

	m.performanceScored = m.counterVec("performance_scored_total", "Provider performance scoring attempts by status", "status")
	m.opportunitiesFound = m.counterVec("opportunities_total", "Optimization opportunities detected by type", "type")
	m.interventionsRun = m.counterVec("interventions_executed_total", "Automatically executed interventions by strategy", "strategy")
	m.leaderboardProviders = m.gauge("leaderboard_providers", "Providers currently ranked on the performance leaderboard")
	m.forecastsComputed = m.counter("forecasts_computed_total", "Revenue forecasts computed (cache misses)")

	m.cacheHits = m.counterVec("cache_hits_total", "Cache hits by cache name", "cache")
	m.cacheMisses = m.counterVec("cache_misses_total", "Cache misses by cache name", "cache")
	m.cacheInvalidations = m.counterVec("cache_invalidations_total", "Entries removed by prefix invalidation", "cache")

	m.scheduledRuns = m.counterVec("scheduled_runs_total", "Scheduled task runs by task and status", "task", "status")
	m.scheduledSkips = m.counterVec("scheduled_skips_total", "Ticks skipped because the previous run was still in flight", "task")
	m.scheduledDuration = m.histogramVec("scheduled_duration_milliseconds", "Scheduled task duration in milliseconds", "task")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Outcome store operation latency in milliseconds", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Outcome store errors by operation", "op")

	m.eventsPublished = m.counterVec("events_published_total", "Domain events published by type", "type")
	m.eventsDropped = m.counter("events_dropped_total", "Domain events dropped because the queue was full or closed")
	m.queueSize = m.gauge("queue_size", "Current size of the event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum event queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Event queue utilization ratio (size / capacity)")
	m.workerCount = m.gauge("worker_count", "Event dispatch workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Event dispatch latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Event handler failures")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and kind", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// RecordScore counts a scored pair and its latency.
func RecordScore(latency time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.scoresComputed.Inc()
	globalManager.scoringLatency.Observe(ms(latency))
}

// RecordRecommendation counts a produced recommendation list.
func RecordRecommendation() {
	if !globalManager.enabled {
		return
	}
	globalManager.recommendationsServed.Inc()
}

// RecordLearningCycle counts a learning cycle by status.
func RecordLearningCycle(status string) {
	if !globalManager.enabled {
		return
	}
	globalManager.learningCycles.WithLabelValues(status).Inc()
}

// RecordWeightUpdate counts a persisted weight change and publishes the new value.
func RecordWeightUpdate(factor string, weight float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.weightUpdates.WithLabelValues(factor).Inc()
	globalManager.factorWeight.WithLabelValues(factor).Set(weight)
}

// UpdateFactorWeight publishes the current weight of a factor.
func UpdateFactorWeight(factor string, weight float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.factorWeight.WithLabelValues(factor).Set(weight)
}

// UpdateFactorCorrelation publishes the last computed correlation of a factor.
func UpdateFactorCorrelation(factor string, correlation float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.factorCorrelation.WithLabelValues(factor).Set(correlation)
}

// RecordOutcome counts a recorded outcome.
func RecordOutcome() {
	if !globalManager.enabled {
		return
	}
	globalManager.outcomesRecorded.Inc()
}

// RecordInteraction counts an appended interaction.
func RecordInteraction() {
	if !globalManager.enabled {
		return
	}
	globalManager.interactionsAppended.Inc()
}

// RecordMilestone counts an appended milestone.
func RecordMilestone() {
	if !globalManager.enabled {
		return
	}
	globalManager.milestonesAppended.Inc()
}

// RecordDuplicateAppend counts an ignored duplicate append.
func RecordDuplicateAppend() {
	if !globalManager.enabled {
		return
	}
	globalManager.interactionsDuplicate.Inc()
}

// RecordPerformanceScored counts a provider scoring attempt by status.
func RecordPerformanceScored(status string) {
	if !globalManager.enabled {
		return
	}
	globalManager.performanceScored.WithLabelValues(status).Inc()
}

// RecordOpportunity counts a detected optimization opportunity.
func RecordOpportunity(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.opportunitiesFound.WithLabelValues(kind).Inc()
}

// RecordIntervention counts an automatically executed intervention.
func RecordIntervention(strategy string) {
	if !globalManager.enabled {
		return
	}
	globalManager.interventionsRun.WithLabelValues(strategy).Inc()
}

// UpdateLeaderboardProviders sets the number of ranked providers.
func UpdateLeaderboardProviders(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.leaderboardProviders.Set(float64(count))
}

// RecordForecast counts a computed forecast.
func RecordForecast() {
	if !globalManager.enabled {
		return
	}
	globalManager.forecastsComputed.Inc()
}

// RecordCacheHit counts a cache hit.
func RecordCacheHit(cache string) {
	if !globalManager.enabled {
		return
	}
	globalManager.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss counts a cache miss.
func RecordCacheMiss(cache string) {
	if !globalManager.enabled {
		return
	}
	globalManager.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordCacheInvalidation counts entries removed by a prefix invalidation.
func RecordCacheInvalidation(cache string, removed int) {
	if !globalManager.enabled || removed <= 0 {
		return
	}
	globalManager.cacheInvalidations.WithLabelValues(cache).Add(float64(removed))
}

// RecordScheduledRun counts a finished scheduled run and its duration.
func RecordScheduledRun(task, status string, took time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.scheduledRuns.WithLabelValues(task, status).Inc()
	globalManager.scheduledDuration.WithLabelValues(task).Observe(ms(took))
}

// RecordScheduledSkip counts a tick skipped because a run was in flight.
func RecordScheduledSkip(task string) {
	if !globalManager.enabled {
		return
	}
	globalManager.scheduledSkips.WithLabelValues(task).Inc()
}

// RecordStoreLatency records a store operation latency.
func RecordStoreLatency(op string, took time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeLatency.WithLabelValues(op).Observe(ms(took))
}

// RecordStoreError counts a store failure.
func RecordStoreError(op string) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// RecordEventPublished counts a published domain event.
func RecordEventPublished(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.eventsPublished.WithLabelValues(kind).Inc()
}

// RecordEventDropped counts a dropped domain event.
func RecordEventDropped() {
	if !globalManager.enabled {
		return
	}
	globalManager.eventsDropped.Inc()
}

// UpdateQueue sets the queue size, capacity and utilization gauges.
func UpdateQueue(size, capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
	globalManager.queueCapacity.Set(float64(capacity))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// UpdateWorkerCount sets the number of dispatch workers.
func UpdateWorkerCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records the time to dispatch one event.
func RecordWorkerProcessingLatency(took time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerProcessingLatency.Observe(ms(took))
}

// RecordWorkerError counts a failed event handler.
func RecordWorkerError() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, took time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms(took))
}

// RecordErrorByComponent counts an error with component and kind labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// SetEnabled toggles the global recorders.
func SetEnabled(enabled bool) {
	globalManager.enabled = enabled
}

// GetRegistry returns the registry served on the metrics endpoint.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
