package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/okian/matchloop/pkg/metrics"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Local is an in-process Cache on a size-bounded expirable LRU. Entries carry
// their own deadline; the LRU's TTL is the upper bound for all of them.
type Local struct {
	opts   options
	lru    *expirable.LRU[string, entry]
	closed atomic.Bool
}

var _ Cache = (*Local)(nil)

// NewLocal builds a local cache.
func NewLocal(opts ...Option) *Local {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Local{
		opts: o,
		lru:  expirable.NewLRU[string, entry](o.size, nil, o.maxTTL),
	}
}

func (c *Local) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrClosed
	}
	e, ok := c.lru.Get(key)
	if ok && !c.opts.now().Before(e.expires) {
		c.lru.Remove(key)
		ok = false
	}
	if !ok {
		metrics.RecordCacheMiss(kindOf(key))
		return nil, false, nil
	}
	metrics.RecordCacheHit(kindOf(key))
	return append([]byte(nil), e.value...), true, nil
}

func (c *Local) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if ttl <= 0 || ttl > c.opts.maxTTL {
		ttl = c.opts.maxTTL
	}
	c.lru.Add(key, entry{value: append([]byte(nil), value...), expires: c.opts.now().Add(ttl)})
	return nil
}

func (c *Local) Invalidate(_ context.Context, prefix string) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	removed := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) && c.lru.Remove(k) {
			removed++
		}
	}
	metrics.RecordCacheInvalidation(kindOf(prefix), removed)
	return removed, nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Local) Len() int { return c.lru.Len() }

func (c *Local) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.lru.Purge()
	}
	return nil
}
