package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/uuid"

	"github.com/twinmcp/gateway/common/metrics"
)

// ErrQueueFull is returned by Enqueue when the queue is bounded and the
// number of queued jobs already sits at the configured limit.
var ErrQueueFull = errors.New("job queue is full")

// Runner executes one job. The context is cancelled when the job is
// cancelled or the queue shuts down; runners are expected to observe it at
// their own suspension points.
type Runner func(ctx context.Context, job *Job) (any, error)

// EnqueueRequest describes a job to admit.
type EnqueueRequest struct {
	ToolId     string
	Args       map[string]any
	UserId     string
	Priority   int
	MaxRetries int
}

// Stats is a point-in-time census of the job table.
type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the worker pool size. Values below one are clamped.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithMaxDepth bounds the number of queued jobs. Zero means unbounded.
func WithMaxDepth(n int) Option {
	return func(q *Queue) { q.maxDepth = n }
}

// WithRetention sets how long terminal jobs stay visible before the
// janitor prunes them.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retention = d
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(q *Queue) {
		if rec != nil {
			q.metrics = rec
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l glog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// Queue schedules asynchronous jobs over a fixed worker pool. Higher
// priority jobs dispatch first; equal priorities run in enqueue order.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	pending pendingHeap
	cancels map[string]context.CancelFunc
	nextSeq uint64

	// queuedCount tracks StatusQueued jobs, including those waiting out a
	// retry backoff that are not yet back on the heap.
	queuedCount int

	wake chan struct{}
	run  Runner

	workers   int
	maxDepth  int
	retention time.Duration

	metrics metrics.Recorder
	logger  glog.Logger

	now     func() time.Time
	backoff func(retries int) time.Duration
}

// New creates a job queue. The runner executes every job this queue
// dispatches.
func New(run Runner, opts ...Option) *Queue {
	q := &Queue{
		jobs:      make(map[string]*Job),
		cancels:   make(map[string]context.CancelFunc),
		wake:      make(chan struct{}, 1),
		run:       run,
		workers:   4,
		retention: time.Hour,
		metrics:   &metrics.NoOpRecorder{},
		now:       time.Now,
		backoff:   retryBackoff,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker pool and the retention janitor. Workers run
// until ctx is cancelled; in-flight jobs receive the cancellation through
// their job contexts.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		go q.workerLoop(ctx)
	}
	go q.janitorLoop(ctx)
}

// Enqueue admits a job and returns its id immediately. It never blocks on
// execution; the only admission failure is a bounded queue at capacity.
func (q *Queue) Enqueue(req EnqueueRequest) (string, error) {
	if req.ToolId == "" {
		return "", errors.New("tool id is required")
	}
	if req.MaxRetries < 0 {
		return "", errors.Errorf("max retries must be non-negative, got %d", req.MaxRetries)
	}

	job := &Job{
		Id:         uuid.NewString(),
		ToolId:     req.ToolId,
		Args:       req.Args,
		UserId:     req.UserId,
		Priority:   req.Priority,
		Status:     StatusQueued,
		MaxRetries: req.MaxRetries,
		CreatedAt:  q.now(),
	}

	q.mu.Lock()
	if q.maxDepth > 0 && q.queuedCount >= q.maxDepth {
		q.mu.Unlock()
		return "", errors.Wrapf(ErrQueueFull, "queued jobs at limit %d", q.maxDepth)
	}
	q.jobs[job.Id] = job
	q.queuedCount++
	q.pushLocked(job)
	depth := q.queuedCount
	q.mu.Unlock()

	q.metrics.RecordJobTransition(string(StatusQueued))
	q.metrics.UpdateQueueDepth(depth)
	return job.Id, nil
}

// GetStatus returns a snapshot of the job, or false when it is unknown.
// Ownership checks belong to the caller; the queue has no notion of the
// current user.
func (q *Queue) GetStatus(jobId string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobId]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// Cancel moves a job owned by userId to cancelled. It returns false when
// the job is absent, owned by someone else, or already terminal. A running
// job's cancellation is advisory: its context is cancelled and the runner
// is expected to exit early.
func (q *Queue) Cancel(jobId, userId string) bool {
	q.mu.Lock()
	job, ok := q.jobs[jobId]
	if !ok || job.UserId != userId || job.Status.IsTerminal() {
		q.mu.Unlock()
		return false
	}

	prev := job.Status
	if prev == StatusQueued {
		q.queuedCount--
	}
	job.Status = StatusCancelled
	now := q.now()
	job.CompletedAt = &now
	cancel := q.cancels[jobId]
	delete(q.cancels, jobId)
	depth := q.queuedCount
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.metrics.RecordJobTransition(string(StatusCancelled))
	q.metrics.UpdateQueueDepth(depth)
	if q.logger != nil {
		q.logger.Debug("job cancelled",
			zap.String("job_id", jobId),
			zap.String("previous_status", string(prev)))
	}
	return true
}

// GetStats counts jobs per status at this instant.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s Stats
	for _, job := range q.jobs {
		switch job.Status {
		case StatusQueued:
			s.Queued++
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// pushLocked puts a job on the dispatch heap and wakes a worker. Callers
// hold q.mu.
func (q *Queue) pushLocked(job *Job) {
	q.nextSeq++
	heap.Push(&q.pending, pendingEntry{jobId: job.Id, priority: job.Priority, seq: q.nextSeq})
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) workerLoop(ctx context.Context) {
	for {
		job, jobCtx := q.take(ctx)
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		q.execute(jobCtx, job)
	}
}

// take pops the highest-priority queued job and marks it running. Heap
// entries whose job was cancelled while waiting are skipped.
func (q *Queue) take(parent context.Context) (*Job, context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.pending.Len() > 0 {
		entry := heap.Pop(&q.pending).(pendingEntry)
		job, ok := q.jobs[entry.jobId]
		if !ok || job.Status != StatusQueued {
			continue
		}

		job.Status = StatusRunning
		now := q.now()
		job.StartedAt = &now
		q.queuedCount--

		jobCtx, cancel := context.WithCancel(parent)
		q.cancels[job.Id] = cancel

		q.metrics.RecordJobTransition(string(StatusRunning))
		q.metrics.UpdateQueueDepth(q.queuedCount)
		return job, jobCtx
	}
	return nil, nil
}

// execute runs the job body and applies the resulting transition. A
// cancellation that landed mid-flight wins over whatever the runner
// returned: terminal states are frozen.
func (q *Queue) execute(ctx context.Context, job *Job) {
	result, err := q.runSafely(ctx, job)

	q.mu.Lock()
	cancel := q.cancels[job.Id]
	delete(q.cancels, job.Id)

	if job.Status != StatusRunning {
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}

	var transition Status
	switch {
	case err == nil:
		job.Status = StatusCompleted
		job.Result = result
		job.Error = ""
		now := q.now()
		job.CompletedAt = &now
		transition = StatusCompleted

	case job.Retries < job.MaxRetries:
		job.Retries++
		job.Status = StatusQueued
		job.Error = err.Error()
		q.queuedCount++
		transition = StatusQueued
		q.scheduleRetryLocked(job)

	default:
		job.Status = StatusFailed
		job.Error = err.Error()
		now := q.now()
		job.CompletedAt = &now
		transition = StatusFailed
	}
	depth := q.queuedCount
	retries := job.Retries
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.metrics.RecordJobTransition(string(transition))
	q.metrics.UpdateQueueDepth(depth)

	if q.logger != nil && err != nil {
		q.logger.Warn("job execution failed",
			zap.String("job_id", job.Id),
			zap.String("tool_id", job.ToolId),
			zap.String("status", string(transition)),
			zap.Int("retries", retries),
			zap.Error(err))
	}
}

// scheduleRetryLocked arms the backoff timer that puts a retried job back
// on the dispatch heap. Callers hold q.mu; the timer re-acquires it and
// verifies the job was not cancelled during the wait.
func (q *Queue) scheduleRetryLocked(job *Job) {
	delay := q.backoff(job.Retries)
	id := job.Id
	time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		j, ok := q.jobs[id]
		if !ok || j.Status != StatusQueued {
			return
		}
		q.pushLocked(j)
	})
}

// runSafely invokes the runner, converting panics into errors so a broken
// tool body burns one retry instead of the worker.
func (q *Queue) runSafely(ctx context.Context, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job handler panicked: %v", r)
		}
	}()
	return q.run(ctx, job.clone())
}

func (q *Queue) janitorLoop(ctx context.Context) {
	ticker := time.NewTicker(q.retention / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := q.pruneTerminal()
			if pruned > 0 && q.logger != nil {
				q.logger.Debug("pruned terminal jobs", zap.Int("count", pruned))
			}
		}
	}
}

// pruneTerminal drops terminal jobs whose completion time fell outside the
// retention window.
func (q *Queue) pruneTerminal() int {
	cutoff := q.now().Add(-q.retention)
	q.mu.Lock()
	defer q.mu.Unlock()

	pruned := 0
	for id, job := range q.jobs {
		if job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			pruned++
		}
	}
	return pruned
}
