package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/twinmcp/gateway/auth"
	"github.com/twinmcp/gateway/common/metrics"
	"github.com/twinmcp/gateway/queue"
	"github.com/twinmcp/gateway/ratelimit"
	"github.com/twinmcp/gateway/registry"
	"github.com/twinmcp/gateway/transform"
)

// captureRecorder records invocation events for assertions.
type captureRecorder struct {
	metrics.NoOpRecorder
	mu            sync.Mutex
	events        []*metrics.InvocationEvent
	rateLimitHits int
}

func (c *captureRecorder) RecordToolInvocation(event *metrics.InvocationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureRecorder) RecordRateLimitHit(identity, toolId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimitHits++
}

func (c *captureRecorder) snapshot() []*metrics.InvocationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*metrics.InvocationEvent(nil), c.events...)
}

type fixture struct {
	dispatcher *Dispatcher
	registry   *registry.Registry
	auth       *auth.Service
	recorder   *captureRecorder
	apiKey     string
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()

	reg := registry.New()
	authSvc := auth.NewService("test-secret", "tmk_")
	require.NoError(t, authSvc.AddUser(&auth.User{
		Id:       "u1",
		Name:     "tester",
		IsActive: true,
		Permissions: []auth.Permission{
			{Resource: auth.ResourceGlobal, Actions: []auth.Action{auth.ActionRead, auth.ActionWrite, auth.ActionExecute}},
		},
	}))
	key, err := authSvc.GenerateAPIKey("u1", "test", nil)
	require.NoError(t, err)

	recorder := &captureRecorder{}
	cfg := Config{
		Registry:     reg,
		Auth:         authSvc,
		Limiter:      ratelimit.NewMemoryLimiter(),
		Metrics:      recorder,
		QueueWorkers: 2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	d, err := New(cfg)
	require.NoError(t, err)
	d.queue.Start(testContext(t))
	return &fixture{dispatcher: d, registry: reg, auth: authSvc, recorder: recorder, apiKey: key}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func keyRequest(key string) auth.Request {
	return &auth.StaticRequest{Headers: map[string]string{auth.HeaderAPIKey: key}}
}

func anonymousRequest() auth.Request {
	return &auth.StaticRequest{}
}

// openSchema accepts any object, for tools whose tests do not exercise
// argument validation.
var openSchema = json.RawMessage(`{"type": "object"}`)

func echoTool(caps registry.Capabilities, cache *registry.CachePolicy) *registry.Tool {
	var calls atomic.Int64
	return &registry.Tool{
		Id:          "echo",
		Name:        "Echo",
		Version:     "1.0.0",
		Category:    registry.CategoryDevelopment,
		Caps:        caps,
		Cache:       cache,
		InputSchema: openSchema,
		Executor: registry.ExecutorFunc(func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"echoed": args["msg"], "call": calls.Add(1)}, nil
		}),
	}
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err))
}

func TestDispatchUnknownTool(t *testing.T) {
	f := newFixture(t)
	_, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId:  "missing",
		Request: keyRequest(f.apiKey),
	})
	requireKind(t, err, KindNotFound)
}

func TestDispatchInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register(echoTool(registry.Capabilities{}, nil)))

	_, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId:  "echo",
		Request: keyRequest("tmk_bogus"),
	})
	requireKind(t, err, KindUnauthorized)
}

func TestAnonymousReadWithinCostCap(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register(echoTool(registry.Capabilities{}, nil)))

	result, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId:        "echo",
		Action:        auth.ActionRead,
		EstimatedCost: 0.0005,
		Args:          map[string]any{"msg": "hi"},
		Request:       anonymousRequest(),
	})
	require.NoError(t, err)
	require.False(t, result.Meta.Authenticated)
	require.Equal(t, string(auth.MethodNone), result.Meta.AuthMethod)

	_, err = f.dispatcher.Dispatch(context.Background(), Call{
		ToolId:        "echo",
		Action:        auth.ActionWrite,
		EstimatedCost: 0.0005,
		Request:       anonymousRequest(),
	})
	requireKind(t, err, KindForbidden)
}

func TestDispatchSchemaValidation(t *testing.T) {
	f := newFixture(t)
	tool := echoTool(registry.Capabilities{}, nil)
	tool.InputSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"msg": {"type": "string"}},
		"required": ["msg"]
	}`)
	require.NoError(t, f.registry.Register(tool))

	_, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId:  "echo",
		Args:    map[string]any{"msg": 42},
		Request: keyRequest(f.apiKey),
	})
	requireKind(t, err, KindBadRequest)

	var de *Error
	require.True(t, errors.As(err, &de))
	require.NotEmpty(t, de.Fields)
	require.Contains(t, de.Fields, "/msg")

	result, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId:  "echo",
		Args:    map[string]any{"msg": "ok"},
		Request: keyRequest(f.apiKey),
	})
	require.NoError(t, err)
	require.Equal(t, "completed", result.Status)
}

func TestDispatchRateLimited(t *testing.T) {
	f := newFixture(t)
	tool := echoTool(registry.Capabilities{}, nil)
	tool.RateLimit = &ratelimit.Policy{Requests: 1, Period: time.Hour, Strategy: ratelimit.StrategySliding}
	require.NoError(t, f.registry.Register(tool))

	_, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId: "echo", Args: map[string]any{"msg": "a"}, Request: keyRequest(f.apiKey),
	})
	require.NoError(t, err)

	_, err = f.dispatcher.Dispatch(context.Background(), Call{
		ToolId: "echo", Args: map[string]any{"msg": "b"}, Request: keyRequest(f.apiKey),
	})
	requireKind(t, err, KindRateLimited)
	require.Equal(t, 1, f.recorder.rateLimitHits)
}

func TestDispatchCacheHitOnSecondCall(t *testing.T) {
	f := newFixture(t)
	tool := echoTool(registry.Capabilities{}, &registry.CachePolicy{Enabled: true, TTL: 60})
	require.NoError(t, f.registry.Register(tool))

	call := Call{ToolId: "echo", Args: map[string]any{"msg": "same"}, Request: keyRequest(f.apiKey)}

	first, err := f.dispatcher.Dispatch(context.Background(), call)
	require.NoError(t, err)
	require.False(t, first.Meta.CacheHit)
	require.Equal(t, 1, first.Meta.ApiCallsCount)

	second, err := f.dispatcher.Dispatch(context.Background(), call)
	require.NoError(t, err)
	require.True(t, second.Meta.CacheHit)
	require.Equal(t, 0, second.Meta.ApiCallsCount)
	require.Equal(t, first.Result, second.Result)

	// Different arguments miss the cache.
	third, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId: "echo", Args: map[string]any{"msg": "different"}, Request: keyRequest(f.apiKey),
	})
	require.NoError(t, err)
	require.False(t, third.Meta.CacheHit)

	events := f.recorder.snapshot()
	require.Len(t, events, 3)
	require.False(t, events[0].CacheHit)
	require.True(t, events[1].CacheHit)
	require.False(t, events[2].CacheHit)
}

func TestDispatchEmitsExactlyOneEventPerCall(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register(echoTool(registry.Capabilities{}, nil)))

	_, _ = f.dispatcher.Dispatch(context.Background(), Call{ToolId: "missing", Request: keyRequest(f.apiKey)})
	_, _ = f.dispatcher.Dispatch(context.Background(), Call{ToolId: "echo", Request: keyRequest("tmk_bogus")})
	_, _ = f.dispatcher.Dispatch(context.Background(), Call{ToolId: "echo", Request: keyRequest(f.apiKey)})

	events := f.recorder.snapshot()
	require.Len(t, events, 3)
	require.False(t, events[0].Success)
	require.Equal(t, string(KindNotFound), events[0].ErrorType)
	require.False(t, events[1].Success)
	require.Equal(t, string(KindUnauthorized), events[1].ErrorType)
	require.True(t, events[2].Success)
	require.Equal(t, "u1", events[2].UserId)
}

func TestDispatchPanickingTool(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register(&registry.Tool{
		Id:          "explode",
		Name:        "Explode",
		Category:    registry.CategoryDevelopment,
		InputSchema: openSchema,
		Executor: registry.ExecutorFunc(func(ctx context.Context, args map[string]any) (any, error) {
			panic("boom")
		}),
	}))

	_, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId: "explode", Request: keyRequest(f.apiKey),
	})
	requireKind(t, err, KindInternal)
	require.Contains(t, err.Error(), "boom")
}

func TestDispatchResponseTransforms(t *testing.T) {
	pipeline := transform.NewDefaultPipeline("v1", func() string { return "req-1" })
	f := newFixture(t, func(cfg *Config) { cfg.Pipeline = pipeline })

	require.NoError(t, f.registry.Register(&registry.Tool{
		Id:          "leaky",
		Name:        "Leaky",
		Category:    registry.CategoryDevelopment,
		InputSchema: openSchema,
		Executor: registry.ExecutorFunc(func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"ok": true, "token": "hunter2"}, nil
		}),
	}))

	result, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId: "leaky", Request: keyRequest(f.apiKey),
	})
	require.NoError(t, err)

	env, ok := result.Result.(transform.Envelope)
	require.True(t, ok)
	require.True(t, env.Success)
	data := env.Data.(map[string]any)
	require.Equal(t, transform.RedactionMarker, data["token"])
	require.Equal(t, true, data["ok"])
}

func TestAsyncRequiresToolCapability(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register(echoTool(registry.Capabilities{}, nil)))

	result, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId: "echo", Async: true, Args: map[string]any{"msg": "hi"}, Request: keyRequest(f.apiKey),
	})
	require.NoError(t, err)
	require.Empty(t, result.JobId)
	require.Equal(t, "completed", result.Status)
}

func TestAsyncDispatchAndJobLifecycle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register(echoTool(registry.Capabilities{Async: true}, nil)))

	result, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId: "echo", Async: true, Args: map[string]any{"msg": "later"}, Request: keyRequest(f.apiKey),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.JobId)
	require.Equal(t, string(queue.StatusQueued), result.Status)

	require.Eventually(t, func() bool {
		job, jerr := f.dispatcher.JobStatus(result.JobId, "u1")
		return jerr == nil && job.Status == queue.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	// Ownership is enforced at the dispatcher boundary.
	_, err = f.dispatcher.JobStatus(result.JobId, "u2")
	requireKind(t, err, KindForbidden)
	_, err = f.dispatcher.JobStatus("missing", "u1")
	requireKind(t, err, KindNotFound)
}

func TestAsyncRetriesThenFails(t *testing.T) {
	f := newFixture(t)
	var attempts atomic.Int64
	require.NoError(t, f.registry.Register(&registry.Tool{
		Id:          "broken",
		Name:        "Broken",
		Category:    registry.CategoryDevelopment,
		Caps:        registry.Capabilities{Async: true},
		InputSchema: openSchema,
		Executor: registry.ExecutorFunc(func(ctx context.Context, args map[string]any) (any, error) {
			attempts.Add(1)
			return nil, errors.New("always broken")
		}),
	}))

	result, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId: "broken", Async: true, MaxRetries: 2, Request: keyRequest(f.apiKey),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, jerr := f.dispatcher.JobStatus(result.JobId, "u1")
		return jerr == nil && job.Status == queue.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	require.EqualValues(t, 3, attempts.Load())
}

func TestCancelJobTaxonomy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register(echoTool(registry.Capabilities{Async: true}, nil)))

	result, err := f.dispatcher.Dispatch(context.Background(), Call{
		ToolId: "echo", Async: true, Request: keyRequest(f.apiKey),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, jerr := f.dispatcher.JobStatus(result.JobId, "u1")
		return jerr == nil && job.Status == queue.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	requireKind(t, f.dispatcher.CancelJob("missing", "u1"), KindNotFound)
	requireKind(t, f.dispatcher.CancelJob(result.JobId, "u2"), KindForbidden)
	requireKind(t, f.dispatcher.CancelJob(result.JobId, "u1"), KindBadRequest)
}

func TestQueueFullSurfacesAsRateLimited(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.QueueMaxDepth = 1
		cfg.QueueWorkers = 1
	})
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	require.NoError(t, f.registry.Register(&registry.Tool{
		Id:          "slow",
		Name:        "Slow",
		Category:    registry.CategoryDevelopment,
		Caps:        registry.Capabilities{Async: true},
		InputSchema: openSchema,
		Executor: registry.ExecutorFunc(func(ctx context.Context, args map[string]any) (any, error) {
			<-block
			return nil, nil
		}),
	}))

	submit := func() error {
		_, err := f.dispatcher.Dispatch(context.Background(), Call{
			ToolId: "slow", Async: true, Request: keyRequest(f.apiKey),
		})
		return err
	}

	require.NoError(t, submit())
	// Saturate: one job may already be running, the next fills the queue,
	// and one more must be rejected.
	var rejected bool
	for i := 0; i < 3; i++ {
		if err := submit(); err != nil {
			requireKind(t, err, KindRateLimited)
			rejected = true
			break
		}
	}
	require.True(t, rejected)
}
