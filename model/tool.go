package model

import (
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/twinmcp/gateway/registry"
)

// ToolDefinition is the durable record for tools registered through the
// API rather than compiled in, typically proxy tools whose execution body
// is rebuilt from configuration at startup.
type ToolDefinition struct {
	Id          string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name        string          `json:"name" gorm:"type:varchar(128);not null"`
	Version     string          `json:"version" gorm:"type:varchar(32)"`
	Category    string          `json:"category" gorm:"index;type:varchar(32);not null"`
	Description string          `json:"description" gorm:"type:text"`
	Tags        JSONStringSlice `json:"tags" gorm:"type:text"`

	CapAsync     bool `json:"cap_async" gorm:"default:false"`
	CapBatch     bool `json:"cap_batch" gorm:"default:false"`
	CapStreaming bool `json:"cap_streaming" gorm:"default:false"`
	CapWebhook   bool `json:"cap_webhook" gorm:"default:false"`

	InputSchema string `json:"input_schema" gorm:"type:text"`

	RateLimitRequests int    `json:"rate_limit_requests" gorm:"default:0"`
	RateLimitPeriod   int64  `json:"rate_limit_period_seconds" gorm:"default:0"`
	RateLimitStrategy string `json:"rate_limit_strategy" gorm:"type:varchar(16)"`

	CacheEnabled    bool  `json:"cache_enabled" gorm:"default:false"`
	CacheTTLSeconds int64 `json:"cache_ttl_seconds" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateToolDefinition persists a tool definition.
func (s *Store) CreateToolDefinition(def *ToolDefinition) error {
	if def == nil {
		return errors.New("tool definition is nil")
	}
	if def.Id == "" {
		return errors.New("tool definition id is required")
	}
	if !registry.Category(def.Category).IsValid() {
		return errors.Errorf("tool definition category %q is invalid", def.Category)
	}
	if err := s.db.Create(def).Error; err != nil {
		return errors.Wrapf(err, "create tool definition %q", def.Id)
	}
	return nil
}

// GetToolDefinition fetches a tool definition by id.
func (s *Store) GetToolDefinition(id string) (*ToolDefinition, error) {
	if id == "" {
		return nil, errors.New("tool definition id is required")
	}
	var def ToolDefinition
	if err := s.db.First(&def, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get tool definition %q", id)
	}
	return &def, nil
}

// ListToolDefinitions returns every stored tool definition.
func (s *Store) ListToolDefinitions() ([]*ToolDefinition, error) {
	var defs []*ToolDefinition
	if err := s.db.Order("id asc").Find(&defs).Error; err != nil {
		return nil, errors.Wrap(err, "list tool definitions")
	}
	return defs, nil
}

// DeleteToolDefinition removes a tool definition by id.
func (s *Store) DeleteToolDefinition(id string) error {
	if id == "" {
		return errors.New("tool definition id is required")
	}
	err := s.db.Delete(&ToolDefinition{}, "id = ?", id).Error
	return errors.Wrapf(err, "delete tool definition %q", id)
}

// toRegistryTool rebuilds the in-memory tool, attaching the executor the
// caller resolved for this definition.
func (d *ToolDefinition) toRegistryTool(executor registry.Executor) *registry.Tool {
	tool := &registry.Tool{
		Id:          d.Id,
		Name:        d.Name,
		Version:     d.Version,
		Category:    registry.Category(d.Category),
		Description: d.Description,
		Tags:        []string(d.Tags),
		Caps: registry.Capabilities{
			Async:     d.CapAsync,
			Batch:     d.CapBatch,
			Streaming: d.CapStreaming,
			Webhook:   d.CapWebhook,
		},
		Executor: executor,
	}
	if d.InputSchema != "" {
		tool.InputSchema = json.RawMessage(d.InputSchema)
	}
	if policy := rateLimitPolicy(d.RateLimitRequests, d.RateLimitPeriod, d.RateLimitStrategy); !policy.IsZero() {
		tool.RateLimit = &policy
	}
	if d.CacheEnabled {
		tool.Cache = &registry.CachePolicy{Enabled: true, TTL: d.CacheTTLSeconds}
	}
	return tool
}

// ExecutorResolver binds a stored tool definition to an execution body.
// Definitions the resolver returns nil for are skipped.
type ExecutorResolver func(def *ToolDefinition) registry.Executor

// HydrateRegistry registers every stored tool definition whose executor
// the resolver can rebuild. Called once at startup when a database is
// configured.
func (s *Store) HydrateRegistry(reg *registry.Registry, resolve ExecutorResolver) error {
	defs, err := s.ListToolDefinitions()
	if err != nil {
		return err
	}
	for _, def := range defs {
		executor := resolve(def)
		if executor == nil {
			continue
		}
		if err := reg.Register(def.toRegistryTool(executor)); err != nil {
			return errors.Wrapf(err, "hydrate tool %q", def.Id)
		}
	}
	return nil
}
