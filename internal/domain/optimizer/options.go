package optimizer

import (
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/pkg/logger"
)

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithExecutor replaces the event-publishing executor.
func WithExecutor(e Executor) Option {
	return func(o *Optimizer) { o.executor = e }
}

func WithPublisher(p Publisher) Option {
	return func(o *Optimizer) { o.publisher = p }
}

// WithCache enables plan caching for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *Optimizer) {
		o.cache = c
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithCandidateWindow sets which predictions Batch considers: probability
// within [minProb, maxProb] and updated within recency.
func WithCandidateWindow(minProb, maxProb float64, recency time.Duration) Option {
	return func(o *Optimizer) {
		if minProb >= 0 && maxProb >= minProb {
			o.minProb, o.maxProb = minProb, maxProb
		}
		if recency > 0 {
			o.recency = recency
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(o *Optimizer) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}
