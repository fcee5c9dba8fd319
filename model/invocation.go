package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/twinmcp/gateway/common/metrics"
)

// InvocationRecord is one row of the append-only invocation event log.
// Rows are written once and never updated.
type InvocationRecord struct {
	Id            int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ToolId        string    `json:"tool_id" gorm:"index;type:varchar(64);not null"`
	UserId        string    `json:"user_id" gorm:"index;type:varchar(64)"`
	Timestamp     time.Time `json:"timestamp" gorm:"index"`
	ExecutionMs   int64     `json:"execution_ms"`
	CacheHit      bool      `json:"cache_hit"`
	Success       bool      `json:"success"`
	ErrorType     string    `json:"error_type,omitempty" gorm:"type:varchar(32)"`
	ApiCallsCount int       `json:"api_calls_count"`
	EstimatedCost float64   `json:"estimated_cost"`
}

// InsertInvocation appends one event row.
func (s *Store) InsertInvocation(event *metrics.InvocationEvent) error {
	record := &InvocationRecord{
		ToolId:        event.ToolId,
		UserId:        event.UserId,
		Timestamp:     event.Timestamp,
		ExecutionMs:   event.ExecutionTime.Milliseconds(),
		CacheHit:      event.CacheHit,
		Success:       event.Success,
		ErrorType:     event.ErrorType,
		ApiCallsCount: event.ApiCallsCount,
		EstimatedCost: event.EstimatedCost,
	}
	return errors.Wrap(s.db.Create(record).Error, "insert invocation record")
}

// CountInvocations returns total event rows, optionally scoped to a tool.
func (s *Store) CountInvocations(toolId string) (int64, error) {
	query := s.db.Model(&InvocationRecord{})
	if toolId != "" {
		query = query.Where("tool_id = ?", toolId)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "count invocation records")
	}
	return count, nil
}

// storeRecorder adapts the store into a metrics sink. Only invocation
// events persist; the rest of the Recorder surface stays no-op.
type storeRecorder struct {
	metrics.NoOpRecorder
	store  *Store
	logger glog.Logger
}

// Recorder returns a metrics.Recorder that appends invocation events to
// the event log. Insert failures are logged and dropped so a database
// hiccup never fails a dispatch.
func (s *Store) Recorder(logger glog.Logger) metrics.Recorder {
	return &storeRecorder{store: s, logger: logger}
}

// RecordToolInvocation implements metrics.Recorder.
func (r *storeRecorder) RecordToolInvocation(event *metrics.InvocationEvent) {
	if err := r.store.InsertInvocation(event); err != nil && r.logger != nil {
		r.logger.Warn("persist invocation event",
			zap.String("tool_id", event.ToolId), zap.Error(err))
	}
}
