package flow

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"deskbot/internal/domain"
)

// Registry holds the currently loaded flow definitions. Definitions
// are read-mostly: the engine reads them on every turn while reloads
// replace the whole set atomically. A briefly stale set is acceptable;
// the engine never mutates a definition mid-traversal.
type Registry struct {
	mu          sync.RWMutex
	byName      map[string]*domain.FlowDefinition
	defaultName string
	logger      *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byName: make(map[string]*domain.FlowDefinition),
		logger: logger,
	}
}

// Replace swaps the full definition set.
func (r *Registry) Replace(flows []domain.FlowDefinition) {
	byName := make(map[string]*domain.FlowDefinition, len(flows))
	defaultName := ""
	for i := range flows {
		def := flows[i]
		byName[def.Name] = &def
		if def.Default {
			defaultName = def.Name
		}
	}

	r.mu.Lock()
	r.byName = byName
	r.defaultName = defaultName
	r.mu.Unlock()

	r.logger.Debug("flow registry replaced", "flows", len(flows), "default", defaultName)
}

// Get returns the definition with the given name, or nil.
func (r *Registry) Get(name string) *domain.FlowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// MatchTrigger returns the active flow whose start trigger equals the
// text (case-insensitive), or nil. Inactive flows never start sessions.
func (r *Registry) MatchTrigger(text string) *domain.FlowDefinition {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Deterministic selection when several flows share a trigger.
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := r.byName[name]
		if def.Active && def.Trigger != "" && strings.ToLower(def.Trigger) == needle {
			return def
		}
	}
	return nil
}

// Default returns the active default flow, or nil.
func (r *Registry) Default() *domain.FlowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def := r.byName[r.defaultName]
	if def == nil || !def.Active {
		return nil
	}
	return def
}

// All returns a snapshot of every loaded definition, sorted by name.
func (r *Registry) All() []domain.FlowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.FlowDefinition, 0, len(r.byName))
	for _, def := range r.byName {
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
