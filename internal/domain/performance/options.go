package performance

import (
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/pkg/logger"
)

// Option configures a Scorer.
type Option func(*Scorer)

// WithBoard shares a leaderboard with other readers.
func WithBoard(b Board) Option {
	return func(s *Scorer) { s.board = b }
}

// WithCache enables result caching for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Scorer) {
		s.cache = c
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Scorer) { s.publisher = p }
}

// WithActiveDays sets how recent an outcome must be for a provider to be
// batch-scored and kept on the board.
func WithActiveDays(days int) Option {
	return func(s *Scorer) {
		if days > 0 {
			s.activeDays = days
		}
	}
}

// WithConcurrency bounds parallel scoring in Batch.
func WithConcurrency(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}
