package balancer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) glog.Logger {
	t.Helper()
	logger, err := glog.NewConsoleWithName("balancer-test", glog.LevelInfo)
	require.NoError(t, err)
	return logger
}

func TestHealthChecker_FailingCheckDemotes(t *testing.T) {
	b := newTestBalancer(t, StrategyRoundRobin, "a")
	check := func(_ context.Context, _ *Backend) error {
		return errors.New("connection refused")
	}
	checker := NewHealthChecker(b, check, 10*time.Millisecond, time.Second, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go checker.Start(ctx)

	require.Eventually(t, func() bool {
		backend, _ := b.GetBackend("a")
		return !backend.Healthy()
	}, time.Second, 5*time.Millisecond)

	backend, _ := b.GetBackend("a")
	require.False(t, backend.LastHealthCheck().IsZero())
}

func TestHealthChecker_TimeoutTreatedAsFailure(t *testing.T) {
	b := newTestBalancer(t, StrategyRoundRobin, "a")
	check := func(ctx context.Context, _ *Backend) error {
		<-ctx.Done()
		return ctx.Err()
	}
	checker := NewHealthChecker(b, check, 10*time.Millisecond, 5*time.Millisecond, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go checker.Start(ctx)

	require.Eventually(t, func() bool {
		backend, _ := b.GetBackend("a")
		return !backend.Healthy()
	}, time.Second, 5*time.Millisecond)
}

func TestHealthChecker_SuccessRecoversImmediately(t *testing.T) {
	b := newTestBalancer(t, StrategyRoundRobin, "a")
	b.SetHealth("a", false)

	var failing atomic.Bool
	check := func(_ context.Context, _ *Backend) error {
		if failing.Load() {
			return errors.New("still down")
		}
		return nil
	}
	checker := NewHealthChecker(b, check, 10*time.Millisecond, time.Second, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go checker.Start(ctx)

	require.Eventually(t, func() bool {
		backend, _ := b.GetBackend("a")
		return backend.Healthy()
	}, time.Second, 5*time.Millisecond, "one passing check restores rotation")
}

func TestHealthChecker_PanickingCheckDemotes(t *testing.T) {
	b := newTestBalancer(t, StrategyRoundRobin, "a")
	check := func(_ context.Context, _ *Backend) error {
		panic("boom")
	}
	checker := NewHealthChecker(b, check, 10*time.Millisecond, time.Second, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go checker.Start(ctx)

	require.Eventually(t, func() bool {
		backend, _ := b.GetBackend("a")
		return !backend.Healthy()
	}, time.Second, 5*time.Millisecond)
}
