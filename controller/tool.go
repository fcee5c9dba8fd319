package controller

import (
	"net/http"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/twinmcp/gateway/auth"
	"github.com/twinmcp/gateway/common"
	"github.com/twinmcp/gateway/dispatcher"
	"github.com/twinmcp/gateway/middleware"
	"github.com/twinmcp/gateway/registry"
)

// toolView is the wire shape of a tool listing entry. The executor and
// other internals never leave the process.
type toolView struct {
	Id          string                `json:"id"`
	Name        string                `json:"name"`
	Version     string                `json:"version,omitempty"`
	Category    registry.Category     `json:"category"`
	Description string                `json:"description,omitempty"`
	Tags        []string              `json:"tags,omitempty"`
	Caps        registry.Capabilities `json:"capabilities"`
	HasSchema   bool                  `json:"has_schema"`
}

func viewOf(tool *registry.Tool) toolView {
	return toolView{
		Id:          tool.Id,
		Name:        tool.Name,
		Version:     tool.Version,
		Category:    tool.Category,
		Description: tool.Description,
		Tags:        tool.Tags,
		Caps:        tool.Caps,
		HasSchema:   len(tool.InputSchema) > 0,
	}
}

// ListTools returns the catalog, optionally narrowed by `q` and
// `category` query parameters.
func (s *Server) ListTools(c *gin.Context) {
	query := c.Query("q")
	category := c.Query("category")

	var tools []*registry.Tool
	switch {
	case query == "" && category == "":
		tools = s.Registry.GetAll()
	default:
		var filter *registry.SearchFilter
		if category != "" {
			filter = &registry.SearchFilter{Category: registry.Category(category)}
		}
		tools = s.Registry.Search(query, filter)
	}

	views := make([]toolView, 0, len(tools))
	for _, tool := range tools {
		views = append(views, viewOf(tool))
	}
	respond(c, gin.H{"tools": views, "total": len(views)})
}

// GetTool returns one tool, including its input schema.
func (s *Server) GetTool(c *gin.Context) {
	tool, ok := s.Registry.Get(c.Param("id"))
	if !ok {
		respondError(c, &dispatcher.Error{Kind: dispatcher.KindNotFound, Message: "tool not found"})
		return
	}

	view := viewOf(tool)
	payload := gin.H{"tool": view}
	if len(tool.InputSchema) > 0 {
		payload["input_schema"] = tool.InputSchema
	}
	respond(c, payload)
}

// executeRequest is the execute endpoint's body.
type executeRequest struct {
	Args          map[string]any `json:"args"`
	Action        string         `json:"action"`
	Async         bool           `json:"async"`
	Priority      int            `json:"priority"`
	MaxRetries    int            `json:"max_retries"`
	EstimatedCost float64        `json:"estimated_cost"`
}

// ExecuteTool dispatches a tool call, synchronously or queued.
func (s *Server) ExecuteTool(c *gin.Context) {
	var req executeRequest
	if err := common.UnmarshalBodyReusable(c, &req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, err)
		return
	}

	call := dispatcher.Call{
		ToolId:        c.Param("id"),
		Args:          req.Args,
		Action:        auth.Action(req.Action),
		EstimatedCost: req.EstimatedCost,
		Async:         req.Async,
		Priority:      req.Priority,
		MaxRetries:    req.MaxRetries,
		Path:          c.FullPath(),
		Request:       ginRequest{c: c},
	}

	result, err := s.Dispatcher.Dispatch(gmw.Ctx(c), call)
	if err != nil {
		gmw.GetLogger(c).Debug("dispatch rejected",
			zap.String("tool_id", call.ToolId),
			zap.String("kind", string(dispatcher.KindOf(err))))
		respondError(c, err)
		return
	}

	if result.Async {
		respond(c, gin.H{
			"jobId":  result.JobId,
			"status": result.Status,
			"metadata": gin.H{
				"executionTime": result.Meta.ExecutionTime.String(),
				"queueTime":     result.Meta.QueueTime.String(),
			},
		})
		return
	}

	respond(c, gin.H{
		"result":     result.Result,
		"apiVersion": s.APIVersion,
		"metadata": gin.H{
			"executionTime": result.Meta.ExecutionTime.String(),
			"cacheHit":      result.Meta.CacheHit,
			"apiCallsCount": result.Meta.ApiCallsCount,
			"cost":          result.Meta.Cost,
			"authenticated": result.Meta.Authenticated,
			"authMethod":    result.Meta.AuthMethod,
		},
	})
}

// Stats reports catalog and queue statistics.
func (s *Server) Stats(c *gin.Context) {
	respond(c, gin.H{
		"registry": s.Registry.GetStats(),
		"queue":    s.Dispatcher.QueueStats(),
		"uptime":   time.Since(s.StartTime).Round(time.Second).String(),
	})
}
