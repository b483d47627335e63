package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	maxEntries      = 10000
	cleanupInterval = time.Minute
	entryTTL        = 5 * time.Minute
)

type entry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// MemoryLimiter keeps counters in process memory. Used when no Redis URL
// is configured.
type MemoryLimiter struct {
	mu          sync.Mutex
	store       map[string]*entry
	lastCleanup time.Time
	now         func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		store:       make(map[string]*entry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *MemoryLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < cleanupInterval {
		return
	}
	l.lastCleanup = now

	for key, e := range l.store {
		if now.Sub(e.lastAccess) > entryTTL {
			delete(l.store, key)
		}
	}

	if len(l.store) > maxEntries {
		evict := len(l.store) / 5
		for key := range l.store {
			if evict == 0 {
				break
			}
			delete(l.store, key)
			evict--
		}
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	e, ok := l.store[key]
	if !ok {
		e = &entry{}
		l.store[key] = e
	}
	e.lastAccess = now

	windowStart := now.Add(-window)
	filtered := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}
	e.timestamps = filtered

	if len(e.timestamps) >= limit {
		return false, e.timestamps[0].Add(window)
	}

	e.timestamps = append(e.timestamps, now)
	return true, e.timestamps[0].Add(window)
}
