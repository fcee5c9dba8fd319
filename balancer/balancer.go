// Package balancer selects a healthy backend instance for tools that proxy
// to external services, and tracks per-backend health and load.
package balancer

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laisky/errors/v2"
)

// Strategy names a backend selection algorithm.
type Strategy string

const (
	StrategyRoundRobin         Strategy = "round-robin"
	StrategyWeightedRoundRobin Strategy = "weighted-round-robin"
	StrategyLeastConnections   Strategy = "least-connections"
	StrategyRandom             Strategy = "random"
)

// Backend is an externally-proxied service instance. Counters are atomic so
// concurrent request accounting never loses updates.
type Backend struct {
	Id     string `json:"id"`
	URL    string `json:"url"`
	Weight int    `json:"weight"`

	healthy           atomic.Bool
	activeConnections atomic.Int64
	totalRequests     atomic.Int64
	totalErrors       atomic.Int64

	// lastHealthCheck is a unix-nano timestamp; zero means never checked.
	lastHealthCheck atomic.Int64
}

// Healthy reports whether the backend is in rotation.
func (b *Backend) Healthy() bool { return b.healthy.Load() }

// ActiveConnections returns the in-flight request count.
func (b *Backend) ActiveConnections() int64 { return b.activeConnections.Load() }

// TotalRequests returns the lifetime request count.
func (b *Backend) TotalRequests() int64 { return b.totalRequests.Load() }

// TotalErrors returns the lifetime error count.
func (b *Backend) TotalErrors() int64 { return b.totalErrors.Load() }

// LastHealthCheck returns the time of the last active health check, zero if
// none ran yet.
func (b *Backend) LastHealthCheck() time.Time {
	nano := b.lastHealthCheck.Load()
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}

// Balancer routes requests across a mutable backend set using a configured
// strategy. Only backends currently marked healthy are eligible.
type Balancer struct {
	mu       sync.RWMutex
	backends map[string]*Backend
	// order preserves insertion order so rotation and tie-breaks are
	// deterministic rather than map-iteration dependent.
	order []string
	// weightedPool repeats each backend id Weight times; rebuilt whenever
	// the backend set or any weight changes.
	weightedPool []string

	strategy Strategy
	rrIndex  atomic.Uint64

	// errorThreshold is the minimum error count before automatic health
	// demotion; demotion additionally requires an error rate above 1/2.
	errorThreshold int64
}

// New creates a balancer with the given strategy. threshold <= 0 falls back
// to the default of 3 errors.
func New(strategy Strategy, threshold int) *Balancer {
	if threshold <= 0 {
		threshold = 3
	}
	return &Balancer{
		backends:       make(map[string]*Backend),
		strategy:       strategy,
		errorThreshold: int64(threshold),
	}
}

// AddBackend registers a backend and marks it healthy. Weight below 1 is
// clamped to 1 so the weighted pool always carries every backend.
func (b *Balancer) AddBackend(id, url string, weight int) error {
	if id == "" {
		return errors.New("backend id is required")
	}
	if weight < 1 {
		weight = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.backends[id]; ok {
		return errors.Errorf("backend %q already registered", id)
	}
	backend := &Backend{Id: id, URL: url, Weight: weight}
	backend.healthy.Store(true)
	b.backends[id] = backend
	b.order = append(b.order, id)
	b.rebuildWeightedPoolLocked()
	return nil
}

// RemoveBackend drops a backend from rotation. No-op when absent.
func (b *Balancer) RemoveBackend(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.backends[id]; !ok {
		return
	}
	delete(b.backends, id)
	for i, candidate := range b.order {
		if candidate == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.rebuildWeightedPoolLocked()
}

// SetWeight updates a backend's weight and rebuilds the weighted pool.
func (b *Balancer) SetWeight(id string, weight int) error {
	if weight < 1 {
		weight = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	backend, ok := b.backends[id]
	if !ok {
		return errors.Errorf("backend %q not found", id)
	}
	backend.Weight = weight
	b.rebuildWeightedPoolLocked()
	return nil
}

// SetHealth flips a backend's health explicitly. Marking healthy resets the
// error counter so recovery is immediate, not gradual.
func (b *Balancer) SetHealth(id string, healthy bool) {
	b.mu.RLock()
	backend, ok := b.backends[id]
	b.mu.RUnlock()
	if !ok {
		return
	}
	backend.healthy.Store(healthy)
	if healthy {
		backend.totalErrors.Store(0)
	}
}

// GetBackend returns the backend registered under id.
func (b *Balancer) GetBackend(id string) (*Backend, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	backend, ok := b.backends[id]
	return backend, ok
}

// Backends returns every backend in insertion order.
func (b *Balancer) Backends() []*Backend {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]*Backend, 0, len(b.order))
	for _, id := range b.order {
		result = append(result, b.backends[id])
	}
	return result
}

// rebuildWeightedPoolLocked recomputes the weighted rotation pool. Caller
// holds the write lock.
func (b *Balancer) rebuildWeightedPoolLocked() {
	pool := make([]string, 0, len(b.order))
	for _, id := range b.order {
		backend := b.backends[id]
		for i := 0; i < backend.Weight; i++ {
			pool = append(pool, id)
		}
	}
	b.weightedPool = pool
}

// SelectBackend picks a healthy backend per the configured strategy. It
// returns nil when no backend is healthy; callers must treat that as "no
// route available", not a crash condition.
func (b *Balancer) SelectBackend() *Backend {
	b.mu.RLock()
	defer b.mu.RUnlock()

	healthy := make([]*Backend, 0, len(b.order))
	for _, id := range b.order {
		if backend := b.backends[id]; backend.Healthy() {
			healthy = append(healthy, backend)
		}
	}
	if len(healthy) == 0 {
		return nil
	}

	switch b.strategy {
	case StrategyWeightedRoundRobin:
		return b.selectWeightedLocked(healthy)
	case StrategyLeastConnections:
		return selectLeastConnections(healthy)
	case StrategyRandom:
		return healthy[rand.Intn(len(healthy))]
	default:
		// Round-robin over the healthy set, recomputed each call since the
		// set can shrink between calls.
		index := b.rrIndex.Add(1) - 1
		return healthy[index%uint64(len(healthy))]
	}
}

// selectWeightedLocked walks the weighted pool, skipping entries whose
// backend has since become unhealthy. Caller holds at least the read lock.
func (b *Balancer) selectWeightedLocked(healthy []*Backend) *Backend {
	if len(b.weightedPool) == 0 {
		return nil
	}
	for range b.weightedPool {
		index := b.rrIndex.Add(1) - 1
		id := b.weightedPool[index%uint64(len(b.weightedPool))]
		if backend, ok := b.backends[id]; ok && backend.Healthy() {
			return backend
		}
	}
	// Every pool entry is unhealthy but the healthy slice is non-empty;
	// fall back to its first member.
	return healthy[0]
}

// selectLeastConnections picks the backend with the fewest in-flight
// requests; ties break to the first found in insertion order.
func selectLeastConnections(healthy []*Backend) *Backend {
	best := healthy[0]
	bestActive := best.ActiveConnections()
	for _, candidate := range healthy[1:] {
		if active := candidate.ActiveConnections(); active < bestActive {
			best = candidate
			bestActive = active
		}
	}
	return best
}

// RecordRequestStart accounts a request being routed to the backend.
func (b *Balancer) RecordRequestStart(id string) {
	backend, ok := b.GetBackend(id)
	if !ok {
		return
	}
	backend.activeConnections.Add(1)
	backend.totalRequests.Add(1)
}

// RecordRequestEnd accounts a request finishing successfully. The active
// connection count floors at zero.
func (b *Balancer) RecordRequestEnd(id string) {
	backend, ok := b.GetBackend(id)
	if !ok {
		return
	}
	decrementFloorZero(&backend.activeConnections)
}

// RecordRequestError accounts a failed request and demotes the backend once
// errors reach the threshold AND the error rate exceeds half of its total
// traffic. A backend with occasional errors among many successes stays in
// rotation; one failing most of its traffic is removed without operator
// intervention.
func (b *Balancer) RecordRequestError(id string) {
	backend, ok := b.GetBackend(id)
	if !ok {
		return
	}
	decrementFloorZero(&backend.activeConnections)
	errorCount := backend.totalErrors.Add(1)
	total := backend.totalRequests.Load()

	if errorCount >= b.errorThreshold && total > 0 && float64(errorCount)/float64(total) > 0.5 {
		backend.healthy.Store(false)
	}
}

// decrementFloorZero decrements the counter without letting it go negative,
// even under concurrent decrements.
func decrementFloorZero(counter *atomic.Int64) {
	for {
		current := counter.Load()
		if current <= 0 {
			return
		}
		if counter.CompareAndSwap(current, current-1) {
			return
		}
	}
}
