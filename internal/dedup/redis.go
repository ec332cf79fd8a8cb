package dedup

import (
	"context"
	"log/slog"
	"time"

	"salesbot/internal/cache"
)

// RedisDeduper backs the dedup window with a shared Redis store so multiple
// instances agree on what was already processed. Redis failures err on the
// side of processing the message rather than dropping it.
type RedisDeduper struct {
	cache  *cache.Redis
	logger *slog.Logger
	prefix string
}

// NewRedisDeduper returns a Redis-backed dedup window.
func NewRedisDeduper(c *cache.Redis, logger *slog.Logger) *RedisDeduper {
	return &RedisDeduper{
		cache:  c,
		logger: logger.With("component", "dedup"),
		prefix: "dedup:",
	}
}

// SeenRecently reports whether the key exists in Redis.
func (d *RedisDeduper) SeenRecently(ctx context.Context, key string) bool {
	ok, err := d.cache.Exists(ctx, d.prefix+key)
	if err != nil {
		d.logger.Warn("dedup lookup failed, treating as unseen", "error", err, "key", key)
		return false
	}
	return ok
}

// Remember writes the key with the window TTL.
func (d *RedisDeduper) Remember(ctx context.Context, key string, ttl time.Duration) {
	if _, err := d.cache.SetNX(ctx, d.prefix+key, 1, ttl); err != nil {
		d.logger.Warn("dedup remember failed", "error", err, "key", key)
	}
}
