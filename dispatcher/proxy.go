package dispatcher

import (
	"context"

	"github.com/Laisky/errors/v2"

	"github.com/twinmcp/gateway/balancer"
	"github.com/twinmcp/gateway/common/metrics"
	"github.com/twinmcp/gateway/registry"
)

// ErrNoHealthyBackend is returned when a proxied tool has no backend to
// route to. Callers handle the empty case explicitly.
var ErrNoHealthyBackend = errors.New("no healthy backend available")

// BackendCall performs the proxied request against a selected backend.
type BackendCall func(ctx context.Context, backend *balancer.Backend, args map[string]any) (any, error)

// NewProxyExecutor builds an Executor for externally-proxied tools. Each
// invocation selects a backend, tracks its connection and error counters,
// and feeds backend metrics.
func NewProxyExecutor(lb *balancer.Balancer, call BackendCall, rec metrics.Recorder) registry.Executor {
	if rec == nil {
		rec = &metrics.NoOpRecorder{}
	}
	return registry.ExecutorFunc(func(ctx context.Context, args map[string]any) (any, error) {
		backend := lb.SelectBackend()
		if backend == nil {
			return nil, errors.WithStack(ErrNoHealthyBackend)
		}

		lb.RecordRequestStart(backend.Id)

		// The connection slot is released exactly once: RecordRequestError
		// decrements as part of the error accounting, RecordRequestEnd
		// covers every other exit including a panicking call.
		var callErr error
		defer func() {
			if callErr == nil {
				lb.RecordRequestEnd(backend.Id)
			}
		}()

		result, callErr := call(ctx, backend, args)
		if callErr != nil {
			lb.RecordRequestError(backend.Id)
			rec.RecordBackendRequest(backend.Id, false)
			return nil, errors.Wrapf(callErr, "backend %q", backend.Id)
		}
		rec.RecordBackendRequest(backend.Id, true)
		return result, nil
	})
}
