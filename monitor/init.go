// Package monitor assembles the metrics recorders the rest of the gateway
// reports into.
package monitor

import (
	glog "github.com/Laisky/go-utils/v6/log"

	"github.com/twinmcp/gateway/common/config"
	"github.com/twinmcp/gateway/common/metrics"
	"github.com/twinmcp/gateway/model"
	"github.com/twinmcp/gateway/monitor/prometheus"
)

// InitMonitoring builds the process recorder: Prometheus when enabled,
// plus the durable invocation log when a store is configured. With nothing
// enabled the recorder is a no-op.
func InitMonitoring(store *model.Store, logger glog.Logger) metrics.Recorder {
	var recorders []metrics.Recorder

	if config.EnablePrometheusMetrics {
		recorders = append(recorders, &prometheus.PrometheusRecorder{})
	}
	if store != nil {
		recorders = append(recorders, store.Recorder(logger))
	}

	switch len(recorders) {
	case 0:
		return &metrics.NoOpRecorder{}
	case 1:
		return recorders[0]
	default:
		return &metrics.MultiRecorder{Recorders: recorders}
	}
}
