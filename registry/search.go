package registry

import (
	"strings"
)

// SearchFilter narrows a search. Nil pointer fields mean "no constraint";
// each capability flag set on Caps must match exactly.
type SearchFilter struct {
	Category Category
	// Tags matches tools carrying at least one of the listed tags.
	Tags []string
	// Caps pins individual capability flags. Only flags listed in CapsSet
	// are compared.
	Caps    Capabilities
	CapsSet []string

	HasRateLimit *bool
	HasCache     *bool
}

// Search matches query case-insensitively against name, description and
// tags (substring match), then applies the filter. An empty query with no
// filter returns every tool in registration order.
func (r *Registry) Search(query string, filter *SearchFilter) []*Tool {
	needle := strings.ToLower(strings.TrimSpace(query))

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collectLocked(func(entry *toolEntry) bool {
		tool := entry.tool
		if needle != "" && !matchesQuery(tool, needle) {
			return false
		}
		return matchesFilter(tool, filter)
	})
}

// matchesQuery reports whether a tool matches the lowered query substring.
func matchesQuery(tool *Tool, needle string) bool {
	if strings.Contains(strings.ToLower(tool.Name), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(tool.Description), needle) {
		return true
	}
	for _, tag := range tool.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// matchesFilter applies every populated filter dimension.
func matchesFilter(tool *Tool, filter *SearchFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Category != "" && tool.Category != filter.Category {
		return false
	}
	if len(filter.Tags) > 0 {
		anyTag := false
		for _, tag := range filter.Tags {
			if tool.HasTag(tag) {
				anyTag = true
				break
			}
		}
		if !anyTag {
			return false
		}
	}
	for _, flag := range filter.CapsSet {
		if !capabilityMatches(tool.Caps, filter.Caps, flag) {
			return false
		}
	}
	if filter.HasRateLimit != nil && (tool.RateLimit != nil) != *filter.HasRateLimit {
		return false
	}
	if filter.HasCache != nil && (tool.Cache != nil) != *filter.HasCache {
		return false
	}
	return true
}

// capabilityMatches compares one named capability flag exactly.
func capabilityMatches(have, want Capabilities, flag string) bool {
	switch flag {
	case "async":
		return have.Async == want.Async
	case "batch":
		return have.Batch == want.Batch
	case "streaming":
		return have.Streaming == want.Streaming
	case "webhook":
		return have.Webhook == want.Webhook
	default:
		return true
	}
}
