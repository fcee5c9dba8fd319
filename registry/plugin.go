package registry

import (
	"github.com/Laisky/errors/v2"
)

// Plugin is a named, versioned bundle of tools with declared dependencies on
// other plugins. A plugin loads atomically: either every tool registers or
// none do.
type Plugin struct {
	Id           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies,omitempty"`
	Tools        []*Tool  `json:"tools"`
}

// LoadPlugin registers every tool in the plugin and records it. It fails
// with ErrDuplicatePlugin when already loaded and ErrMissingDependency
// naming the first unmet dependency. Any tool registration failure rolls
// back tools already registered by this load.
func (r *Registry) LoadPlugin(plugin *Plugin) error {
	if plugin == nil || plugin.Id == "" {
		return errors.Wrap(ErrInvalidTool, "plugin id is required")
	}

	// Validate outside the lock so a malformed bundle never holds it.
	for _, tool := range plugin.Tools {
		if err := validateTool(tool); err != nil {
			return errors.Wrapf(err, "plugin %q", plugin.Id)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[plugin.Id]; ok {
		return errors.Wrapf(ErrDuplicatePlugin, "plugin %q already loaded", plugin.Id)
	}
	for _, dep := range plugin.Dependencies {
		if _, ok := r.plugins[dep]; !ok {
			return errors.Wrapf(ErrMissingDependency, "plugin %q requires %q", plugin.Id, dep)
		}
	}

	registered := make([]string, 0, len(plugin.Tools))
	for _, tool := range plugin.Tools {
		if err := r.registerLocked(tool); err != nil {
			for _, id := range registered {
				r.unregisterLocked(id)
			}
			return errors.Wrapf(err, "plugin %q failed to load", plugin.Id)
		}
		registered = append(registered, tool.Id)
	}

	r.plugins[plugin.Id] = plugin
	return nil
}

// UnloadPlugin unregisters every tool owned by the plugin, then removes the
// plugin record. It is a no-op when the plugin is absent.
func (r *Registry) UnloadPlugin(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	plugin, ok := r.plugins[id]
	if !ok {
		return
	}
	for _, tool := range plugin.Tools {
		r.unregisterLocked(tool.Id)
	}
	delete(r.plugins, id)
}

// GetPlugin returns a loaded plugin by id.
func (r *Registry) GetPlugin(id string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plugin, ok := r.plugins[id]
	return plugin, ok
}
