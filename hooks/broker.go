package hooks

import (
	"sync"

	"github.com/example/walker_sim/core"
)

// PluginCategory represents the high-level role of a plugin.
type PluginCategory string

const (
	// PluginCategoryViewer covers surfaces that push state to viewers.
	PluginCategoryViewer PluginCategory = "viewer"
	// PluginCategoryPersistence covers checkpointing of results.
	PluginCategoryPersistence PluginCategory = "persistence"
	// PluginCategoryInstrumentation covers metrics, tracing, and diagnostics.
	PluginCategoryInstrumentation PluginCategory = "instrumentation"
)

// PluginDescriptor describes a plugin registered with the broker.
type PluginDescriptor struct {
	Name        string
	Category    PluginCategory
	Description string
}

// TransitionKind names the state change that triggered a publish.
type TransitionKind string

const (
	TransitionReplication TransitionKind = "replication"
	TransitionWalker      TransitionKind = "walker"
	TransitionView        TransitionKind = "view"
	TransitionFinished    TransitionKind = "finished"
)

// TransitionContext carries the headline fields of the snapshot that was just
// published. Hooks that need the grids read them back from the coordinator.
type TransitionContext struct {
	Kind         TransitionKind
	CurrentRep   int
	Replications int
	Walker       core.Position
	Mode         int32
	SummaryView  int32
	Finished     bool
}

// TransitionHook handles one transition. Hooks run outside the coordinator lock and
// must not block for long.
type TransitionHook func(ctx *TransitionContext) error

// HookBundle groups multiple hook handlers that belong to one plugin.
type HookBundle struct {
	Replication []TransitionHook
	Walker      []TransitionHook
	View        []TransitionHook
	Finished    []TransitionHook
}

// PluginBroker coordinates hook registration and triggering.
type PluginBroker struct {
	mu sync.RWMutex

	hooks map[TransitionKind][]TransitionHook

	pluginCatalog map[PluginCategory][]PluginDescriptor
	pluginIndex   map[string]PluginDescriptor
}

// NewPluginBroker creates an empty broker instance.
func NewPluginBroker() *PluginBroker {
	return &PluginBroker{
		hooks:         make(map[TransitionKind][]TransitionHook),
		pluginCatalog: make(map[PluginCategory][]PluginDescriptor),
		pluginIndex:   make(map[string]PluginDescriptor),
	}
}

// Register adds a hook for one transition kind.
func (p *PluginBroker) Register(kind TransitionKind, h TransitionHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks[kind] = append(p.hooks[kind], h)
}

// Emit triggers the hooks registered for ctx.Kind, stopping at the first error.
func (p *PluginBroker) Emit(ctx *TransitionContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]TransitionHook, len(p.hooks[ctx.Kind]))
	copy(handlers, p.hooks[ctx.Kind])
	p.mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RegisterBundle registers a plugin descriptor together with all hook handlers.
func (p *PluginBroker) RegisterBundle(desc PluginDescriptor, bundle HookBundle) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.registerDescriptorLocked(desc)

	p.appendLocked(TransitionReplication, bundle.Replication)
	p.appendLocked(TransitionWalker, bundle.Walker)
	p.appendLocked(TransitionView, bundle.View)
	p.appendLocked(TransitionFinished, bundle.Finished)
}

func (p *PluginBroker) appendLocked(kind TransitionKind, hs []TransitionHook) {
	for _, h := range hs {
		if h != nil {
			p.hooks[kind] = append(p.hooks[kind], h)
		}
	}
}

// RegisterPluginMetadata stores plugin metadata without registering hooks.
func (p *PluginBroker) RegisterPluginMetadata(desc PluginDescriptor) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerDescriptorLocked(desc)
}

// ListPlugins returns descriptors for plugins in the requested category.
func (p *PluginBroker) ListPlugins(category PluginCategory) []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	catalog := p.pluginCatalog[category]
	if len(catalog) == 0 {
		return nil
	}
	out := make([]PluginDescriptor, len(catalog))
	copy(out, catalog)
	return out
}

// ListAllPlugins returns descriptors of every registered plugin.
func (p *PluginBroker) ListAllPlugins() []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]PluginDescriptor, 0, len(p.pluginIndex))
	for _, desc := range p.pluginIndex {
		out = append(out, desc)
	}
	return out
}

func (p *PluginBroker) registerDescriptorLocked(desc PluginDescriptor) {
	if desc.Name == "" {
		return
	}
	if _, exists := p.pluginIndex[desc.Name]; exists {
		return
	}
	p.pluginIndex[desc.Name] = desc
	category := desc.Category
	p.pluginCatalog[category] = append(p.pluginCatalog[category], desc)
}
