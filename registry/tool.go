// Package registry maintains the catalog of tools and plugins the gateway
// can dispatch to. It answers existence, lookup and search queries and keeps
// the per-category index consistent with the live tool set.
package registry

import (
	"context"
	"encoding/json"

	"github.com/twinmcp/gateway/ratelimit"
)

// Category classifies a tool. Registration fails outside the closed set.
type Category string

const (
	CategoryCommunication Category = "communication"
	CategoryProductivity  Category = "productivity"
	CategoryDevelopment   Category = "development"
	CategoryData          Category = "data"
)

// Categories enumerates the closed category set in declaration order.
var Categories = []Category{
	CategoryCommunication,
	CategoryProductivity,
	CategoryDevelopment,
	CategoryData,
}

// IsValid reports whether the category belongs to the closed set.
func (c Category) IsValid() bool {
	switch c {
	case CategoryCommunication, CategoryProductivity, CategoryDevelopment, CategoryData:
		return true
	default:
		return false
	}
}

// Capabilities declares how a tool may be invoked.
type Capabilities struct {
	Async     bool `json:"async"`
	Batch     bool `json:"batch"`
	Streaming bool `json:"streaming"`
	Webhook   bool `json:"webhook"`
}

// CachePolicy controls result caching for a tool's synchronous path.
type CachePolicy struct {
	Enabled  bool   `json:"enabled"`
	TTL      int64  `json:"ttl_seconds"`
	Strategy string `json:"strategy,omitempty"`
	// Key derives the cache key from call arguments. When nil the
	// dispatcher falls back to hashing the canonical argument encoding.
	Key func(args map[string]any) string `json:"-"`
}

// Executor is the execution body of a tool. Implementations must observe
// ctx cancellation at their own suspension points.
type Executor interface {
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, args map[string]any) (any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Tool is a registered capability. Its Id is immutable for its lifetime.
type Tool struct {
	Id          string       `json:"id"`
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Category    Category     `json:"category"`
	Description string       `json:"description"`
	Tags        []string     `json:"tags,omitempty"`
	Caps        Capabilities `json:"capabilities"`

	// InputSchema is an opaque JSON schema. The registry stores it without
	// interpreting it; the dispatcher compiles and enforces it per call.
	InputSchema json.RawMessage `json:"input_schema"`

	// RateLimit is the default admission policy for callers of this tool.
	RateLimit *ratelimit.Policy `json:"rate_limit,omitempty"`
	Cache     *CachePolicy      `json:"cache,omitempty"`

	// Executor runs the tool body. Required at registration time.
	Executor Executor `json:"-"`
}

// HasTag reports whether the tool carries the given tag.
func (t *Tool) HasTag(tag string) bool {
	for _, candidate := range t.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}
