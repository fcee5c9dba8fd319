package metrics

import (
	"time"
)

// InvocationEvent is the immutable fact record emitted once per dispatched
// call, success or failure. It is never mutated after emission.
type InvocationEvent struct {
	ToolId        string
	UserId        string
	Timestamp     time.Time
	ExecutionTime time.Duration
	CacheHit      bool
	Success       bool
	ErrorType     string
	ApiCallsCount int
	EstimatedCost float64
}

// Recorder defines the interface for recording gateway metrics.
type Recorder interface {
	// HTTP metrics
	RecordHTTPRequest(startTime time.Time, path, method, statusCode string)

	// Dispatch metrics
	RecordToolInvocation(event *InvocationEvent)

	// Rate limit metrics
	RecordRateLimitHit(identity, toolId string)

	// Authentication metrics
	RecordAuth(method string, success bool)

	// Backend metrics
	RecordBackendRequest(backendId string, success bool)
	UpdateBackendHealth(backendId string, healthy bool)

	// Job queue metrics
	RecordJobTransition(status string)
	UpdateQueueDepth(depth int)
}

// NoOpRecorder is a no-operation implementation for when metrics are disabled.
type NoOpRecorder struct{}

// RecordHTTPRequest implements Recorder.RecordHTTPRequest without collecting any data.
func (n *NoOpRecorder) RecordHTTPRequest(startTime time.Time, path, method, statusCode string) {}

// RecordToolInvocation implements Recorder.RecordToolInvocation without collecting any data.
func (n *NoOpRecorder) RecordToolInvocation(event *InvocationEvent) {}

// RecordRateLimitHit implements Recorder.RecordRateLimitHit without collecting any data.
func (n *NoOpRecorder) RecordRateLimitHit(identity, toolId string) {}

// RecordAuth implements Recorder.RecordAuth without collecting any data.
func (n *NoOpRecorder) RecordAuth(method string, success bool) {}

// RecordBackendRequest implements Recorder.RecordBackendRequest without collecting any data.
func (n *NoOpRecorder) RecordBackendRequest(backendId string, success bool) {}

// UpdateBackendHealth implements Recorder.UpdateBackendHealth without collecting any data.
func (n *NoOpRecorder) UpdateBackendHealth(backendId string, healthy bool) {}

// RecordJobTransition implements Recorder.RecordJobTransition without collecting any data.
func (n *NoOpRecorder) RecordJobTransition(status string) {}

// UpdateQueueDepth implements Recorder.UpdateQueueDepth without collecting any data.
func (n *NoOpRecorder) UpdateQueueDepth(depth int) {}

// MultiRecorder fans out to multiple Recorder implementations.
type MultiRecorder struct {
	Recorders []Recorder
}

// RecordHTTPRequest implements Recorder.RecordHTTPRequest.
func (m *MultiRecorder) RecordHTTPRequest(startTime time.Time, path, method, statusCode string) {
	for _, r := range m.Recorders {
		r.RecordHTTPRequest(startTime, path, method, statusCode)
	}
}

// RecordToolInvocation implements Recorder.RecordToolInvocation.
func (m *MultiRecorder) RecordToolInvocation(event *InvocationEvent) {
	for _, r := range m.Recorders {
		r.RecordToolInvocation(event)
	}
}

// RecordRateLimitHit implements Recorder.RecordRateLimitHit.
func (m *MultiRecorder) RecordRateLimitHit(identity, toolId string) {
	for _, r := range m.Recorders {
		r.RecordRateLimitHit(identity, toolId)
	}
}

// RecordAuth implements Recorder.RecordAuth.
func (m *MultiRecorder) RecordAuth(method string, success bool) {
	for _, r := range m.Recorders {
		r.RecordAuth(method, success)
	}
}

// RecordBackendRequest implements Recorder.RecordBackendRequest.
func (m *MultiRecorder) RecordBackendRequest(backendId string, success bool) {
	for _, r := range m.Recorders {
		r.RecordBackendRequest(backendId, success)
	}
}

// UpdateBackendHealth implements Recorder.UpdateBackendHealth.
func (m *MultiRecorder) UpdateBackendHealth(backendId string, healthy bool) {
	for _, r := range m.Recorders {
		r.UpdateBackendHealth(backendId, healthy)
	}
}

// RecordJobTransition implements Recorder.RecordJobTransition.
func (m *MultiRecorder) RecordJobTransition(status string) {
	for _, r := range m.Recorders {
		r.RecordJobTransition(status)
	}
}

// UpdateQueueDepth implements Recorder.UpdateQueueDepth.
func (m *MultiRecorder) UpdateQueueDepth(depth int) {
	for _, r := range m.Recorders {
		r.UpdateQueueDepth(depth)
	}
}
