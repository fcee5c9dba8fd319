package registry

import (
	"sort"
	"sync"

	"github.com/Laisky/errors/v2"
)

// Registry is a concurrency-safe catalog of tools and plugins. Enumeration
// order is registration order; the sequence number is the documented
// tie-break key so ordering never depends on map iteration.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]*toolEntry
	byCategory map[Category]map[string]struct{}
	plugins    map[string]*Plugin
	nextSeq    uint64
}

type toolEntry struct {
	tool *Tool
	seq  uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools:      make(map[string]*toolEntry),
		byCategory: make(map[Category]map[string]struct{}),
		plugins:    make(map[string]*Plugin),
	}
}

// Register adds a tool to the catalog and indexes it by category.
// It fails with ErrDuplicateTool when the id is taken and ErrInvalidTool
// when required fields are missing or the category is outside the closed set.
func (r *Registry) Register(tool *Tool) error {
	if err := validateTool(tool); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(tool)
}

// registerLocked inserts a validated tool. Caller holds the write lock.
func (r *Registry) registerLocked(tool *Tool) error {
	if _, ok := r.tools[tool.Id]; ok {
		return errors.Wrapf(ErrDuplicateTool, "tool %q already registered", tool.Id)
	}

	r.nextSeq++
	r.tools[tool.Id] = &toolEntry{tool: tool, seq: r.nextSeq}

	ids, ok := r.byCategory[tool.Category]
	if !ok {
		ids = make(map[string]struct{})
		r.byCategory[tool.Category] = ids
	}
	ids[tool.Id] = struct{}{}
	return nil
}

// validateTool enforces the required field set at registration time.
func validateTool(tool *Tool) error {
	switch {
	case tool == nil:
		return errors.Wrap(ErrInvalidTool, "tool is nil")
	case tool.Id == "":
		return errors.Wrap(ErrInvalidTool, "tool id is required")
	case tool.Name == "":
		return errors.Wrapf(ErrInvalidTool, "tool %q: name is required", tool.Id)
	case len(tool.InputSchema) == 0:
		return errors.Wrapf(ErrInvalidTool, "tool %q: input schema is required", tool.Id)
	case tool.Executor == nil:
		return errors.Wrapf(ErrInvalidTool, "tool %q: executor is required", tool.Id)
	case !tool.Category.IsValid():
		return errors.Wrapf(ErrInvalidTool, "tool %q: unknown category %q", tool.Id, tool.Category)
	}
	return nil
}

// Unregister removes a tool. It is an idempotent no-op when the id is absent.
// An emptied category index entry is removed to keep enumeration clean.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(id)
}

// unregisterLocked removes a tool. Caller holds the write lock.
func (r *Registry) unregisterLocked(id string) {
	entry, ok := r.tools[id]
	if !ok {
		return
	}
	delete(r.tools, id)

	if ids, ok := r.byCategory[entry.tool.Category]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byCategory, entry.tool.Category)
		}
	}
}

// Get returns the tool registered under id.
func (r *Registry) Get(id string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[id]
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

// GetAll returns every registered tool in registration order.
func (r *Registry) GetAll() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(nil)
}

// GetByCategory returns the tools in a category in registration order.
func (r *Registry) GetByCategory(category Category) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.byCategory[category]
	if !ok {
		return nil
	}
	return r.collectLocked(func(entry *toolEntry) bool {
		_, member := ids[entry.tool.Id]
		return member
	})
}

// collectLocked gathers entries passing the filter sorted by registration
// sequence. Caller holds at least the read lock.
func (r *Registry) collectLocked(keep func(*toolEntry) bool) []*Tool {
	entries := make([]*toolEntry, 0, len(r.tools))
	for _, entry := range r.tools {
		if keep != nil && !keep(entry) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	tools := make([]*Tool, 0, len(entries))
	for _, entry := range entries {
		tools = append(tools, entry.tool)
	}
	return tools
}

// Stats aggregates catalog counts. Everything is computed freshly from the
// current tool set so the numbers cannot drift from incremental counters.
type Stats struct {
	TotalTools    int              `json:"total_tools"`
	ByCategory    map[Category]int `json:"by_category"`
	WithRateLimit int              `json:"with_rate_limit"`
	WithCache     int              `json:"with_cache"`
	WithWebhook   int              `json:"with_webhook"`
	AsyncCapable  int              `json:"async_capable"`
	Streaming     int              `json:"streaming"`
	Plugins       int              `json:"plugins"`
}

// GetStats computes aggregate catalog counts from current state.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalTools: len(r.tools),
		ByCategory: make(map[Category]int, len(r.byCategory)),
		Plugins:    len(r.plugins),
	}
	for category, ids := range r.byCategory {
		stats.ByCategory[category] = len(ids)
	}
	for _, entry := range r.tools {
		tool := entry.tool
		if tool.RateLimit != nil {
			stats.WithRateLimit++
		}
		if tool.Cache != nil && tool.Cache.Enabled {
			stats.WithCache++
		}
		if tool.Caps.Webhook {
			stats.WithWebhook++
		}
		if tool.Caps.Async {
			stats.AsyncCapable++
		}
		if tool.Caps.Streaming {
			stats.Streaming++
		}
	}
	return stats
}
