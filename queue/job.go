// Package queue implements the asynchronous job queue: priority scheduling
// over a fixed worker pool, bounded retries with exponential backoff, and
// cooperative cancellation.
package queue

import (
	"time"
)

// Status is a job's position in its lifecycle state machine.
type Status string

const (
	// StatusQueued means the job waits for a worker (including retry waits).
	StatusQueued Status = "queued"
	// StatusRunning means a worker is executing the job.
	StatusRunning Status = "running"
	// StatusCompleted is terminal success.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal failure after the retry budget is spent.
	StatusFailed Status = "failed"
	// StatusCancelled is terminal cancellation by the owning user.
	StatusCancelled Status = "cancelled"
)

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further transition may leave this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job is one unit of asynchronous tool execution.
type Job struct {
	Id         string         `json:"id"`
	ToolId     string         `json:"toolId"`
	Args       map[string]any `json:"args"`
	UserId     string         `json:"userId"`
	Priority   int            `json:"priority"`
	Status     Status         `json:"status"`
	Retries    int            `json:"retries"`
	MaxRetries int            `json:"maxRetries"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// clone returns a copy safe to hand to callers while workers keep mutating
// the original under the queue lock.
func (j *Job) clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// pendingEntry is a heap element. Higher priority pops first, ties break by
// enqueue sequence so equal-priority jobs run in FIFO order.
type pendingEntry struct {
	jobId    string
	priority int
	seq      uint64
}

type pendingHeap []pendingEntry

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(pendingEntry)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
