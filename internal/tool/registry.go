package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Registry holds the available tools. Registration replaces silently so a
// later registration can override a default tool. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	log   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		tools: make(map[string]Tool),
		log:   log,
	}
}

// Register adds a tool under its definition name, replacing any existing
// tool with the same name.
func (r *Registry) Register(t Tool) {
	name := t.Definition().Name
	r.mu.Lock()
	if _, exists := r.tools[name]; exists {
		r.log.Debug("replacing registered tool", "tool", name)
	}
	r.tools[name] = t
	r.mu.Unlock()
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all tool definitions sorted by name, for inclusion in
// the selection prompt.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke validates params against the tool's schema and executes it. All
// failures surface as NotFoundError, ParameterError, or ExecutionError; a
// panicking tool is recovered and reported as an ExecutionError.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (result any, err error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Tool: name}
	}

	def := t.Definition()
	if def.Parameters != nil {
		if perr := validateParams(name, def.Parameters, params); perr != nil {
			return nil, perr
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("tool panicked", "tool", name, "panic", rec)
			result = nil
			err = &ExecutionError{Tool: name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	out, execErr := t.Execute(ctx, params)
	if execErr != nil {
		return nil, &ExecutionError{Tool: name, Err: execErr}
	}
	return out, nil
}

// validateParams checks params against the tool's JSON Schema.
func validateParams(name string, schema, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return &ParameterError{Tool: name, Reason: fmt.Sprintf("schema validation unavailable: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	first := result.Errors()[0]
	return &ParameterError{
		Tool:   name,
		Field:  first.Field(),
		Reason: first.Description(),
	}
}
