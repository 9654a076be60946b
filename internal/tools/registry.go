package tools

import (
	"context"
	"regexp"
	"sync"
)

var toolNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidName reports whether name is a legal tool name.
func ValidName(name string) bool {
	return toolNameRE.MatchString(name)
}

// Registry maps tool names to handlers with thread-safe registration,
// lookup, and schema-validated invocation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool. It fails when the name is already taken, does
// not match [a-z0-9_]+, or the schema is inconsistent.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if !ValidName(name) {
		return &InvalidParameterError{Tool: name, Field: "name", Reason: "must match [a-z0-9_]+"}
	}
	if err := tool.Schema().Validate(); err != nil {
		return &InvalidParameterError{Tool: name, Field: "schema", Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return &InvalidParameterError{Tool: name, Field: "name", Reason: "already registered"}
	}
	r.tools[name] = tool
	return nil
}

// Unregister removes a tool by name. Removing an absent name is a
// no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Invoke validates args against the tool's schema and runs it.
// Validation failures surface as MissingRequiredError or
// InvalidParameterError; failures inside the tool as ExecutionError.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]string) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", &NotFoundError{Name: name}
	}

	schema := tool.Schema()
	for _, required := range schema.Required {
		if _, present := args[required]; !present {
			return "", &MissingRequiredError{Tool: name, Field: required}
		}
	}
	for field, value := range args {
		prop, declared := schema.Properties[field]
		if !declared || len(prop.Enum) == 0 {
			continue
		}
		if !containsString(prop.Enum, value) {
			return "", &InvalidParameterError{
				Tool:   name,
				Field:  field,
				Reason: "value not in enum",
			}
		}
	}

	result, err := tool.Invoke(ctx, args)
	if err != nil {
		return "", &ExecutionError{Tool: name, Err: err}
	}
	return result, nil
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
