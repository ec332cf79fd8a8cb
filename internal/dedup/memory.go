package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryDeduper keeps the dedup window in a process-local map. Adequate for
// a single-instance deployment; horizontal scaling needs RedisDeduper.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper returns an in-memory dedup window.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// SeenRecently reports whether key is still inside its window. Expired
// entries are purged lazily on access.
func (d *MemoryDeduper) SeenRecently(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	expiry, ok := d.seen[key]
	if !ok {
		return false
	}
	if d.now().After(expiry) {
		delete(d.seen, key)
		return false
	}
	return true
}

// Remember adds key to the window for ttl and sweeps expired entries.
func (d *MemoryDeduper) Remember(_ context.Context, key string, ttl time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.seen[key] = now.Add(ttl)

	for k, expiry := range d.seen {
		if now.After(expiry) {
			delete(d.seen, k)
		}
	}
}

// TimerScheduler registers one cancellable time.AfterFunc per key.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerScheduler returns a process-local scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

// ScheduleOnce replaces any pending callback for key with a new one.
func (s *TimerScheduler) ScheduleOnce(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops the pending callback for key, if any.
func (s *TimerScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}
