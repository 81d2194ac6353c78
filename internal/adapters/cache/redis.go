package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/matchloop/pkg/logger"
	"github.com/okian/matchloop/pkg/metrics"
)

const scanBatch = 200

// globEscaper quotes the characters SCAN MATCH treats as pattern syntax so
// ids are matched literally.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// Redis is a Cache shared between engine instances.
type Redis struct {
	opts   options
	client redis.UniversalClient
}

var _ Cache = (*Redis)(nil)

// NewRedis wraps an existing client. Keys are stored as "{namespace}:{key}".
func NewRedis(client redis.UniversalClient, opts ...Option) *Redis {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis{opts: o, client: client}
}

func (c *Redis) key(k string) string { return c.opts.namespace + ":" + k }

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss(kindOf(key))
		return nil, false, nil
	}
	if err != nil {
		metrics.RecordErrorByComponent("cache", "get")
		return nil, false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	metrics.RecordCacheHit(kindOf(key))
	return raw, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.opts.maxTTL
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		metrics.RecordErrorByComponent("cache", "set")
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

// Invalidate uses SCAN + DEL so the server is never blocked by KEYS. The
// prefix is literal, as in Local.
func (c *Redis) Invalidate(ctx context.Context, prefix string) (int, error) {
	full := c.key(prefix)
	pattern := globEscaper.Replace(full) + "*"
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()

	var batch []string
	removed := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis DEL: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		if !strings.HasPrefix(iter.Val(), full) {
			continue
		}
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis SCAN %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return removed, err
	}

	metrics.RecordCacheInvalidation(kindOf(prefix), removed)
	c.opts.logger.Debug(ctx, "cache invalidated", logger.String("prefix", prefix), logger.Int("removed", removed))
	return removed, nil
}

func (c *Redis) Close() error {
	return c.client.Close()
}
