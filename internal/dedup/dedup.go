// Package dedup provides the ephemeral TTL-keyed membership test used to
// suppress at-least-once webhook redelivery, and the cancellable delayed
// callbacks used for advisory section-close timers. Both are injectable so
// single-instance deployments can run in-process while multi-instance
// deployments share a Redis-backed window.
package dedup

import (
	"context"
	"time"
)

// Deduper is the ephemeral membership test for recently seen message keys.
// Callers must not assume process affinity.
type Deduper interface {
	// SeenRecently reports whether the key is inside the dedup window.
	SeenRecently(ctx context.Context, key string) bool
	// Remember adds the key to the window for ttl.
	Remember(ctx context.Context, key string, ttl time.Duration)
}

// Scheduler runs a single cancellable delayed callback per key. Timers are
// advisory: correctness never depends on the callback firing.
type Scheduler interface {
	ScheduleOnce(key string, delay time.Duration, fn func())
	Cancel(key string)
}
