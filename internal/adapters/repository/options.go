package repository

import (
	"time"

	"github.com/okian/matchloop/pkg/logger"
)

type storeOptions struct {
	now    func() time.Time
	logger logger.Logger
}

func defaultStoreOptions() storeOptions {
	return storeOptions{now: time.Now, logger: logger.Nop()}
}

// Option applies a configuration option to a Store implementation.
type Option func(*storeOptions)

// WithNow overrides the clock used to stamp CreatedAt/UpdatedAt.
func WithNow(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for store diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(o *storeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
