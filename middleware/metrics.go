package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/twinmcp/gateway/common/metrics"
)

// HTTPMetrics reports request durations and counts to the recorder. The
// route template is used as the path label, not the raw URL, to keep label
// cardinality bounded.
func HTTPMetrics(rec metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		rec.RecordHTTPRequest(start, path, c.Request.Method, strconv.Itoa(c.Writer.Status()))
	}
}
