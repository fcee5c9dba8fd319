package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps per-identity counters in process memory. Counters are
// sharded behind a read lock; each counter has its own mutex so concurrent
// calls for distinct identities do not serialize.
type MemoryLimiter struct {
	mu       sync.RWMutex
	counters map[string]*memoryCounter

	now func() time.Time
}

type memoryCounter struct {
	mu sync.Mutex

	// sliding window state: admission timestamps inside the trailing period.
	stamps []time.Time

	// fixed window state.
	windowStart time.Time
	count       int

	lastSeen time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryCounter),
		now:      time.Now,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, identity string, policy Policy) (bool, error) {
	if policy.Requests <= 0 || policy.Period <= 0 {
		return true, nil
	}

	counter := l.counter(identity)
	counter.mu.Lock()
	defer counter.mu.Unlock()

	now := l.now()
	counter.lastSeen = now

	if policy.Strategy == StrategyFixed {
		return counter.allowFixed(now, policy), nil
	}
	return counter.allowSliding(now, policy), nil
}

// counter returns the counter for an identity, creating it on first use.
func (l *MemoryLimiter) counter(identity string) *memoryCounter {
	l.mu.RLock()
	counter, ok := l.counters[identity]
	l.mu.RUnlock()
	if ok {
		return counter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if counter, ok = l.counters[identity]; ok {
		return counter
	}
	counter = &memoryCounter{}
	l.counters[identity] = counter
	return counter
}

// allowSliding admits the call when fewer than policy.Requests admissions
// happened in the trailing period. The admission is recorded in the same
// critical section, so a racing call can never sneak past the budget.
func (c *memoryCounter) allowSliding(now time.Time, policy Policy) bool {
	cutoff := now.Add(-policy.Period)
	kept := c.stamps[:0]
	for _, stamp := range c.stamps {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	c.stamps = kept

	if len(c.stamps) >= policy.Requests {
		return false
	}
	c.stamps = append(c.stamps, now)
	return true
}

// allowFixed admits the call inside aligned windows of policy.Period.
func (c *memoryCounter) allowFixed(now time.Time, policy Policy) bool {
	windowStart := now.Truncate(policy.Period)
	if !windowStart.Equal(c.windowStart) {
		c.windowStart = windowStart
		c.count = 0
	}

	if c.count >= policy.Requests {
		return false
	}
	c.count++
	return true
}

// Prune drops counters idle for longer than maxIdle. Callers run it from a
// janitor goroutine; the limiter itself never blocks admissions to clean up.
func (l *MemoryLimiter) Prune(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identity, counter := range l.counters {
		counter.mu.Lock()
		idle := counter.lastSeen.Before(cutoff)
		counter.mu.Unlock()
		if idle {
			delete(l.counters, identity)
			removed++
		}
	}
	return removed
}
