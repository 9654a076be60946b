// Package provider implements the unified chat-completion interface
// over multiple local and remote LLM backends, with auto-detection of
// a reachable backend when none is configured explicitly.
package provider

import (
	"context"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation sent to a backend.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Options tunes a single Generate call. Zero values defer to provider
// defaults.
type Options struct {
	// Provider targets a specific backend by name; empty means
	// auto-detect.
	Provider string

	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// Result is a completed generation.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Provider answers chat-completion requests for one backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []Message, opts *Options) (*Result, error)
}

// DefaultTimeout bounds a single generation request.
const DefaultTimeout = 120 * time.Second

// DefaultMaxTokens is the completion budget when the caller does not
// specify one.
const DefaultMaxTokens = 4096
