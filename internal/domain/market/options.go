package market

import (
	"time"

	"github.com/okian/matchloop/pkg/logger"
)

// Option configures an Intelligence.
type Option func(*Intelligence)

// WithWindow sets how far back outcomes are considered.
func WithWindow(d time.Duration) Option {
	return func(m *Intelligence) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithMinIndustryOutcomes sets the sample an industry needs before its
// index departs from 1.
func WithMinIndustryOutcomes(n int) Option {
	return func(m *Intelligence) {
		if n > 0 {
			m.minIndustry = n
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(m *Intelligence) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(m *Intelligence) {
		if l != nil {
			m.logger = l
		}
	}
}
