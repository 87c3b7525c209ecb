// Package registry provides the explicit tool registry injected into the
// planner and executor. It stores definition/implementation pairs plus two
// opaque sub-registries for named resources and prompt templates. There is no
// module-level singleton; construct one registry at process start and pass it
// by reference.
package registry

import (
	"fmt"

	"sync"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/internal/util"
	"github.com/quickrewind/agentcore/logging"
	"github.com/quickrewind/agentcore/tool"
)

// validParamTypes is the closed set of parameter types a definition may declare.
var validParamTypes = map[string]bool{
	"string": true, "number": true, "integer": true,
	"boolean": true, "array": true, "object": true,
}

// Registry holds named tools, resources and prompt templates. Registrations
// happen at process initialization (or via an explicit serialized
// administrative action); lookups happen continuously afterwards, so access is
// guarded by a read-write lock with registration as the rare writer.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]tool.Tool
	resources map[string]any
	templates map[string]string
	logger    logging.Logger
}

// Options configure a Registry.
type Options struct {
	Logger logging.Logger
}

// New creates an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		tools:     map[string]tool.Tool{},
		resources: map[string]any{},
		templates: map[string]string{},
		logger:    opts.Logger,
	}
}

// Register stores a tool under its definition name. Re-registering an
// identical definition is a no-op; a different definition under an existing
// name fails with core.ErrDuplicateTool. Use RegisterOverride to replace.
func (r *Registry) Register(t tool.Tool) error {
	return r.register(t, false)
}

// RegisterOverride stores a tool, replacing any existing registration under
// the same name.
func (r *Registry) RegisterOverride(t tool.Tool) error {
	return r.register(t, true)
}

func (r *Registry) register(t tool.Tool, override bool) error {
	def := t.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool definition has empty name")
	}
	for _, p := range def.Parameters {
		if !validParamTypes[p.Type] {
			return fmt.Errorf("tool %q: invalid parameter type %q for %q", def.Name, p.Type, p.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tools[def.Name]; ok && !override {
		if existing.Definition().Equal(def) {
			return nil // identical re-registration is a no-op
		}
		return fmt.Errorf("register %q: %w", def.Name, core.ErrDuplicateTool)
	}
	r.tools[def.Name] = t
	r.logger.Info("tool registered", "tool", def.Name, "override", override)
	return nil
}

// Lookup returns the tool registered under name or a ToolNotFoundError.
func (r *Registry) Lookup(name string) (tool.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, core.NewToolNotFoundError(name)
	}
	return t, nil
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns the definitions of all registered tools (metadata only). The
// planner embeds this list into its prompt context.
func (r *Registry) List() []core.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]core.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// RegisterResource stores an opaque named value (service handle, client,
// static blob) for later lookup by tools.
func (r *Registry) RegisterResource(name string, resource any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[name] = resource
	r.logger.Info("resource registered", "resource", name)
}

// Resource returns the named resource and whether it exists.
func (r *Registry) Resource(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.resources[name]
	return v, ok
}

// RegisterPromptTemplate stores a template string with recognized
// placeholders under name.
func (r *Registry) RegisterPromptTemplate(name, template string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = template
	r.logger.Info("prompt template registered", "template", name)
}

// PromptTemplate returns the raw template and whether it exists.
func (r *Registry) PromptTemplate(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// RenderPromptTemplate renders the named template with vars.
func (r *Registry) RenderPromptTemplate(name string, vars map[string]any) (string, error) {
	t, ok := r.PromptTemplate(name)
	if !ok {
		return "", fmt.Errorf("prompt template %q not registered", name)
	}
	return util.RenderTemplate(t, vars)
}
