package learning

import (
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/adapters/lock"
	"github.com/okian/matchloop/pkg/logger"
)

// Option configures a Learner.
type Option func(*Learner)

// WithTunables replaces the default tunables.
func WithTunables(t Tunables) Option {
	return func(l *Learner) { l.tunables = t }
}

// WithDomainBounds replaces the domain bounds table.
func WithDomainBounds(b map[string]Bounds) Option {
	return func(l *Learner) {
		if b != nil {
			l.domain = b
		}
	}
}

// WithCache sets the cache whose recommendation entries are dropped after
// weights change.
func WithCache(c cache.Cache) Option {
	return func(l *Learner) { l.cache = c }
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(l *Learner) { l.publisher = p }
}

// WithLocker guards cycles with a lock held for at most ttl.
func WithLocker(lk lock.Locker, ttl time.Duration) Option {
	return func(l *Learner) {
		l.locker = lk
		if ttl > 0 {
			l.lockTTL = ttl
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(l *Learner) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Learner) {
		if lg != nil {
			l.logger = lg
		}
	}
}
