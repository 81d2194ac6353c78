package recommend

import (
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/pkg/logger"
)

// Option configures a Recommender.
type Option func(*Recommender)

// WithDemand sets the market demand source.
func WithDemand(d DemandSource) Option {
	return func(r *Recommender) { r.demand = d }
}

// WithCache enables ranked-list caching for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(r *Recommender) {
		r.cache = c
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(r *Recommender) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(r *Recommender) {
		if l != nil {
			r.logger = l
		}
	}
}
