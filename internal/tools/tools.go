// Package tools defines the tool contract and the registry that maps
// tool names to handlers.
//
// Tool arguments cross the boundary as strings because a model emits
// text; individual tools coerce values per their schema.
package tools

import (
	"context"
	"fmt"
)

// Risk is advisory metadata for UI gating. The registry does not
// enforce it.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// PropertyType enumerates the JSON schema types a tool argument may
// declare.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeInteger PropertyType = "integer"
	TypeNumber  PropertyType = "number"
	TypeBoolean PropertyType = "boolean"
	TypeArray   PropertyType = "array"
	TypeObject  PropertyType = "object"
)

// Property describes a single tool argument.
type Property struct {
	Type        PropertyType `json:"type"`
	Description string       `json:"description,omitempty"`
	Enum        []string     `json:"enum,omitempty"`
}

// Schema describes a tool's arguments. Every name in Required must be
// a key of Properties.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Validate checks internal consistency of the schema itself.
func (s Schema) Validate() error {
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return fmt.Errorf("required argument %q not declared in properties", name)
		}
	}
	return nil
}

// Tool is a named capability the agent can invoke.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	RiskLevel() Risk
	Invoke(ctx context.Context, args map[string]string) (string, error)
}

// MemoryMutator marks tools whose invocation mutates core memory; the
// agent loop commits a snapshot after each such call.
type MemoryMutator interface {
	MutatesMemory() bool
}

// MutatesMemory reports whether the tool declares itself
// memory-mutating.
func MutatesMemory(t Tool) bool {
	m, ok := t.(MemoryMutator)
	return ok && m.MutatesMemory()
}
