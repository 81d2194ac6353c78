package scheduler

import "github.com/okian/matchloop/pkg/logger"

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock, typically with a FakeClock.
func WithClock(c Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets the loop logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}
