package controller

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Health reports service liveness and uptime.
func (s *Server) Health(c *gin.Context) {
	respond(c, gin.H{
		"status":     "ok",
		"version":    s.APIVersion,
		"uptime":     time.Since(s.StartTime).Round(time.Second).String(),
		"tool_count": s.Registry.GetStats().TotalTools,
	})
}
