package balancer

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/twinmcp/gateway/common/metrics"
)

// CheckFunc probes one backend. A non-nil error, a panic, or exceeding the
// configured timeout all mark the backend unhealthy.
type CheckFunc func(ctx context.Context, backend *Backend) error

// HealthChecker actively probes every backend on a timer.
type HealthChecker struct {
	balancer *Balancer
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	logger   glog.Logger
	metrics  metrics.Recorder
}

// NewHealthChecker wires an active checker to a balancer.
func NewHealthChecker(b *Balancer, check CheckFunc, interval, timeout time.Duration, logger glog.Logger) *HealthChecker {
	return &HealthChecker{
		balancer: b,
		check:    check,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		metrics:  &metrics.NoOpRecorder{},
	}
}

// SetMetrics installs a recorder for backend health transitions. Call
// before Start.
func (h *HealthChecker) SetMetrics(rec metrics.Recorder) {
	if rec != nil {
		h.metrics = rec
	}
}

// Start runs the check loop until ctx is done. Each sweep probes backends
// concurrently so one slow backend cannot starve the others' checks.
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

// sweep probes every backend once.
func (h *HealthChecker) sweep(ctx context.Context) {
	for _, backend := range h.balancer.Backends() {
		go h.probe(ctx, backend)
	}
}

// probe runs one health check with a timeout race. A timeout is treated
// identically to a check failure. A successful check marks the backend
// healthy and resets its error counter, so recovery is immediate on one
// success.
func (h *HealthChecker) probe(ctx context.Context, backend *Backend) {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := h.runCheck(checkCtx, backend)
	backend.lastHealthCheck.Store(time.Now().UnixNano())

	wasHealthy := backend.Healthy()
	if err != nil {
		h.balancer.SetHealth(backend.Id, false)
		h.metrics.UpdateBackendHealth(backend.Id, false)
		if wasHealthy {
			h.logger.Warn("backend failed health check",
				zap.String("backend_id", backend.Id),
				zap.String("url", backend.URL),
				zap.Error(err))
		}
		return
	}

	h.balancer.SetHealth(backend.Id, true)
	h.metrics.UpdateBackendHealth(backend.Id, true)
	if !wasHealthy {
		h.logger.Info("backend recovered",
			zap.String("backend_id", backend.Id),
			zap.String("url", backend.URL))
	}
}

// runCheck executes the check function, converting panics and the timeout
// race into errors.
func (h *HealthChecker) runCheck(ctx context.Context, backend *Backend) (err error) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- errors.Errorf("health check panicked: %v", recovered)
			}
		}()
		done <- h.check(ctx, backend)
	}()

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
