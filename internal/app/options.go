package service

import (
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/adapters/lock"
	"github.com/okian/matchloop/internal/adapters/repository"
	"github.com/okian/matchloop/internal/scheduler"
	"github.com/okian/matchloop/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects the outcome store instead of building one from config.
// An injected store is not closed by Stop.
func WithStore(st repository.Store) Option {
	return func(s *Service) { s.store, s.ownsStore = st, false }
}

// WithCache injects the derived-view cache.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache, s.ownsCache = c, false }
}

// WithLocker injects the learning lock.
func WithLocker(lk lock.Locker) Option {
	return func(s *Service) { s.locker = lk }
}

// WithClock drives the scheduler and engine clocks.
func WithClock(c scheduler.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for workers to drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}
