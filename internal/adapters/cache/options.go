package cache

import (
	"time"

	"github.com/okian/matchloop/pkg/logger"
)

const (
	defaultSize      = 50_000
	defaultMaxTTL    = time.Hour
	defaultNamespace = "matchloop"
)

type options struct {
	size      int
	maxTTL    time.Duration
	namespace string
	now       func() time.Time
	logger    logger.Logger
}

func defaultOptions() options {
	return options{
		size:      defaultSize,
		maxTTL:    defaultMaxTTL,
		namespace: defaultNamespace,
		now:       time.Now,
		logger:    logger.Nop(),
	}
}

// Option configures a cache.
type Option func(*options)

// WithSize bounds the number of entries in the local cache.
func WithSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithMaxTTL caps every entry's lifetime in the local cache.
func WithMaxTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxTTL = d
		}
	}
}

// WithNamespace prefixes every Redis key.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

// WithNow overrides the clock used for local expiry.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
