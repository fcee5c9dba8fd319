// Package dispatcher binds the gateway's parts into the per-call dispatch
// pipeline: authenticate, look up, authorize, validate, admit, then execute
// synchronously or enqueue. Every step short-circuits on failure and every
// call emits exactly one invocation event.
package dispatcher

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/twinmcp/gateway/auth"
	"github.com/twinmcp/gateway/common/metrics"
	"github.com/twinmcp/gateway/queue"
	"github.com/twinmcp/gateway/ratelimit"
	"github.com/twinmcp/gateway/registry"
	"github.com/twinmcp/gateway/transform"
)

const defaultCacheTTL = 5 * time.Minute

// Call is one inbound tool invocation, already decoded by the transport
// adapter.
type Call struct {
	ToolId string
	Args   map[string]any

	// Action defaults to execute when empty.
	Action auth.Action
	// EstimatedCost feeds authorization cost caps and metrics.
	EstimatedCost float64

	// Async requests queued execution. The tool must also declare the
	// async capability, otherwise the call runs synchronously.
	Async      bool
	Priority   int
	MaxRetries int

	// Path is matched against transform rule patterns. When empty it
	// defaults to the canonical execute path for the tool.
	Path string

	// Request carries the credentials view used for authentication.
	Request auth.Request
}

// Metadata describes how a call was served.
type Metadata struct {
	ExecutionTime time.Duration `json:"executionTime"`
	CacheHit      bool          `json:"cacheHit"`
	ApiCallsCount int           `json:"apiCallsCount"`
	Cost          float64       `json:"cost"`
	Authenticated bool          `json:"authenticated"`
	AuthMethod    string        `json:"authMethod"`
	QueueTime     time.Duration `json:"queueTime,omitempty"`
}

// Result is the outcome of a dispatched call: a synchronous result or a
// queued-job handle.
type Result struct {
	Result any      `json:"result,omitempty"`
	JobId  string   `json:"jobId,omitempty"`
	Status string   `json:"status"`
	Async  bool     `json:"-"`
	Meta   Metadata `json:"metadata"`
}

// Config wires a Dispatcher. Registry, Auth, and Limiter are required.
type Config struct {
	Registry *registry.Registry
	Auth     *auth.Service
	Limiter  ratelimit.Limiter
	Pipeline *transform.Pipeline
	Cache    ResultCache
	Metrics  metrics.Recorder
	Logger   glog.Logger

	QueueWorkers  int
	QueueMaxDepth int
	JobRetention  time.Duration
}

// Dispatcher orchestrates the dispatch pipeline. All collaborators are
// explicit constructor dependencies so independent gateway instances can
// coexist in one process.
type Dispatcher struct {
	registry  *registry.Registry
	auth      *auth.Service
	limiter   ratelimit.Limiter
	pipeline  *transform.Pipeline
	cache     ResultCache
	metrics   metrics.Recorder
	logger    glog.Logger
	queue     *queue.Queue
	validator *validator

	now func() time.Time
}

// New builds a Dispatcher and its job queue.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("auth service is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}

	d := &Dispatcher{
		registry:  cfg.Registry,
		auth:      cfg.Auth,
		limiter:   cfg.Limiter,
		pipeline:  cfg.Pipeline,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		validator: newValidator(),
		now:       time.Now,
	}
	if d.cache == nil {
		d.cache = NewMemoryCache(defaultCacheTTL)
	}
	if d.metrics == nil {
		d.metrics = &metrics.NoOpRecorder{}
	}

	queueOpts := []queue.Option{queue.WithMetrics(d.metrics)}
	if cfg.QueueWorkers > 0 {
		queueOpts = append(queueOpts, queue.WithWorkers(cfg.QueueWorkers))
	}
	if cfg.QueueMaxDepth > 0 {
		queueOpts = append(queueOpts, queue.WithMaxDepth(cfg.QueueMaxDepth))
	}
	if cfg.JobRetention > 0 {
		queueOpts = append(queueOpts, queue.WithRetention(cfg.JobRetention))
	}
	if cfg.Logger != nil {
		queueOpts = append(queueOpts, queue.WithLogger(cfg.Logger))
	}
	d.queue = queue.New(d.runJob, queueOpts...)
	return d, nil
}

// Start launches the job queue workers. They stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// QueueStats reports the current job census.
func (d *Dispatcher) QueueStats() queue.Stats {
	return d.queue.GetStats()
}

// Dispatch runs one call through the full pipeline in its fixed order:
// authenticate, look up, authorize, validate, admit, then execute or
// enqueue. It returns a typed *Error on every failure path.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (result *Result, err error) {
	start := d.now()
	event := &metrics.InvocationEvent{
		ToolId:        call.ToolId,
		Timestamp:     start,
		EstimatedCost: call.EstimatedCost,
	}
	defer func() {
		event.ExecutionTime = d.now().Sub(start)
		event.Success = err == nil
		if err != nil {
			event.ErrorType = string(KindOf(err))
		}
		d.metrics.RecordToolInvocation(event)
	}()

	authCtx, aerr := d.auth.Authenticate(call.Request)
	if aerr != nil {
		d.metrics.RecordAuth(authFailureMethod(aerr), false)
		return nil, newError(KindUnauthorized, aerr, "authentication failed")
	}
	event.UserId = authCtx.UserId
	d.metrics.RecordAuth(string(authCtx.Method), true)

	tool, ok := d.registry.Get(call.ToolId)
	if !ok {
		return nil, newErrorf(KindNotFound, nil, "tool %q not found", call.ToolId)
	}

	action := call.Action
	if action == "" {
		action = auth.ActionExecute
	}
	if zerr := d.auth.Authorize(authCtx, tool.Id, action, call.EstimatedCost); zerr != nil {
		kind := KindForbidden
		if errors.Is(zerr, auth.ErrUnauthorized) {
			kind = KindUnauthorized
		}
		return nil, newErrorf(kind, zerr, "action %s on %q denied", action, tool.Id)
	}

	if verr := d.validator.Validate(tool, call.Args); verr != nil {
		var fieldErr *ValidationError
		if errors.As(verr, &fieldErr) {
			return nil, &Error{
				Kind:    KindBadRequest,
				Message: "argument validation failed",
				Fields:  fieldErr.Fields,
				cause:   verr,
			}
		}
		return nil, newError(KindInternal, verr, "schema validation")
	}

	identity := ratelimit.Identity(authCtx.UserId, tool.Id)
	policy := authCtx.RateLimit
	if policy.IsZero() && tool.RateLimit != nil {
		policy = *tool.RateLimit
	}
	allowed, lerr := d.limiter.Allow(ctx, identity, policy)
	if lerr != nil {
		// Admission infrastructure failures admit the call rather than
		// turning a limiter outage into a full outage.
		if d.logger != nil {
			d.logger.Warn("rate limiter unavailable, admitting call",
				zap.String("identity", identity), zap.Error(lerr))
		}
	} else if !allowed {
		d.metrics.RecordRateLimitHit(identity, tool.Id)
		return nil, newErrorf(KindRateLimited, nil,
			"rate limit exceeded for %q, retry within %s", tool.Id, policy.Period)
	}

	if call.Async && tool.Caps.Async {
		return d.enqueue(start, authCtx, tool, call)
	}
	return d.executeSync(ctx, start, event, authCtx, tool, call)
}

func (d *Dispatcher) enqueue(start time.Time, authCtx *auth.Context, tool *registry.Tool, call Call) (*Result, error) {
	enqueueStart := d.now()
	jobId, err := d.queue.Enqueue(queue.EnqueueRequest{
		ToolId:     tool.Id,
		Args:       call.Args,
		UserId:     authCtx.UserId,
		Priority:   call.Priority,
		MaxRetries: call.MaxRetries,
	})
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			return nil, newError(KindRateLimited, err, "job queue is full")
		}
		return nil, newError(KindInternal, err, "enqueue job")
	}

	now := d.now()
	return &Result{
		JobId:  jobId,
		Status: string(queue.StatusQueued),
		Async:  true,
		Meta: Metadata{
			ExecutionTime: now.Sub(start),
			QueueTime:     now.Sub(enqueueStart),
			Cost:          call.EstimatedCost,
			Authenticated: authCtx.IsAuthenticated,
			AuthMethod:    string(authCtx.Method),
		},
	}, nil
}

func (d *Dispatcher) executeSync(ctx context.Context, start time.Time, event *metrics.InvocationEvent, authCtx *auth.Context, tool *registry.Tool, call Call) (*Result, error) {
	cacheKey, cacheTTL, cacheable := cachePlan(tool, call.Args)

	var value any
	hit := false
	if cacheable {
		value, hit = d.cache.Get(ctx, cacheKey)
	}
	event.CacheHit = hit

	if !hit {
		var xerr error
		value, xerr = d.execute(ctx, tool, call.Args)
		event.ApiCallsCount = 1
		if xerr != nil {
			return nil, newErrorf(KindInternal, xerr, "tool %q execution failed", tool.Id)
		}
		if cacheable {
			d.cache.Set(ctx, cacheKey, value, cacheTTL)
		}
	}

	body := value
	if d.pipeline != nil {
		var terr error
		body, _, terr = d.pipeline.ApplyResponse(d.callPath(call, tool), value, 200)
		if terr != nil {
			return nil, newError(KindInternal, terr, "response transform")
		}
	}

	return &Result{
		Result: body,
		Status: "completed",
		Meta: Metadata{
			ExecutionTime: d.now().Sub(start),
			CacheHit:      hit,
			ApiCallsCount: event.ApiCallsCount,
			Cost:          call.EstimatedCost,
			Authenticated: authCtx.IsAuthenticated,
			AuthMethod:    string(authCtx.Method),
		},
	}, nil
}

// execute runs the tool body, converting panics into errors so one broken
// tool never destabilizes the dispatch loop.
func (d *Dispatcher) execute(ctx context.Context, tool *registry.Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("tool %q panicked: %v", tool.Id, r)
		}
	}()
	return tool.Executor.Execute(ctx, args)
}

// runJob is the queue's runner: async jobs resolve their tool at execution
// time so a tool unregistered mid-flight fails cleanly.
func (d *Dispatcher) runJob(ctx context.Context, job *queue.Job) (any, error) {
	tool, ok := d.registry.Get(job.ToolId)
	if !ok {
		return nil, errors.Errorf("tool %q no longer registered", job.ToolId)
	}
	return d.execute(ctx, tool, job.Args)
}

// JobStatus returns a job visible to its owner. Unknown jobs are
// not-found; someone else's jobs are forbidden.
func (d *Dispatcher) JobStatus(jobId, userId string) (*queue.Job, error) {
	job, ok := d.queue.GetStatus(jobId)
	if !ok {
		return nil, newErrorf(KindNotFound, nil, "job %q not found", jobId)
	}
	if job.UserId != userId {
		return nil, newErrorf(KindForbidden, nil, "job %q access denied", jobId)
	}
	return job, nil
}

// CancelJob cancels a job on behalf of its owner.
func (d *Dispatcher) CancelJob(jobId, userId string) error {
	job, ok := d.queue.GetStatus(jobId)
	if !ok {
		return newErrorf(KindNotFound, nil, "job %q not found", jobId)
	}
	if job.UserId != userId {
		return newErrorf(KindForbidden, nil, "job %q access denied", jobId)
	}
	if !d.queue.Cancel(jobId, userId) {
		return newErrorf(KindBadRequest, nil, "job %q is already in state %s", jobId, job.Status)
	}
	return nil
}

func (d *Dispatcher) callPath(call Call, tool *registry.Tool) string {
	if call.Path != "" {
		return call.Path
	}
	return "/api/tools/" + tool.Id + "/execute"
}

// cachePlan resolves whether and how a call's result is cached.
func cachePlan(tool *registry.Tool, args map[string]any) (key string, ttl time.Duration, ok bool) {
	if tool.Cache == nil || !tool.Cache.Enabled {
		return "", 0, false
	}
	if tool.Cache.Key != nil {
		key = tool.Cache.Key(args)
	} else {
		key = defaultCacheKey(tool.Id, args)
	}
	ttl = time.Duration(tool.Cache.TTL) * time.Second
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return key, ttl, true
}

// authFailureMethod classifies which credential type failed, for metrics
// only.
func authFailureMethod(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidAPIKey):
		return string(auth.MethodAPIKey)
	case errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrInvalidToken):
		return string(auth.MethodJWT)
	default:
		return "unknown"
	}
}
