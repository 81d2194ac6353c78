package main

import (
	"context"
	"runtime"
	"time"

	service "github.com/okian/matchloop/internal/app"
	"github.com/okian/matchloop/pkg/logger"
	"github.com/okian/matchloop/pkg/metrics"
)

const (
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// startSystemMetricsUpdater refreshes runtime gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes engine gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	st, err := svc.Stats(ctx)
	if err != nil {
		logger.Get().Debug(ctx, "service stats unavailable", logger.Error(err))
		return
	}
	metrics.UpdateQueue(st.QueueDepth, st.QueueCapacity)
	metrics.UpdateWorkerCount(st.Workers)
	metrics.UpdateLeaderboardProviders(st.RankedProviders)
	for factor, w := range st.Weights {
		metrics.UpdateFactorWeight(factor, w)
	}
}
