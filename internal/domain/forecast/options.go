package forecast

import (
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/pkg/logger"
)

// Option configures a Forecaster.
type Option func(*Forecaster)

// WithTrendSource sets where the market multiplier comes from.
func WithTrendSource(t TrendSource) Option {
	return func(f *Forecaster) { f.trend = t }
}

// WithScenarios replaces the scenario spread.
func WithScenarios(s []Scenario) Option {
	return func(f *Forecaster) {
		if len(s) > 0 {
			f.scenarios = append([]Scenario(nil), s...)
		}
	}
}

// WithCache enables result caching for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(f *Forecaster) {
		f.cache = c
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(f *Forecaster) {
		if now != nil {
			f.now = now
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(f *Forecaster) {
		if l != nil {
			f.logger = l
		}
	}
}
