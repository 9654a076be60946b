package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/valetd/valet/internal/tools"
)

// BridgeName builds the registry name for a server's tool:
// mcp_<server>_<tool>, with both parts sanitized.
func BridgeName(server, tool string) string {
	return "mcp_" + Sanitize(server) + "_" + Sanitize(tool)
}

// Sanitize lowercases a name and replaces every byte outside
// [a-z0-9_] with an underscore. Sanitizing twice is a no-op.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Bridge projects the tools of connected servers into a registry so
// the agent loop can dispatch to them like any local tool.
type Bridge struct {
	manager  *Manager
	registry *tools.Registry
	logger   *slog.Logger

	mu         sync.Mutex
	registered map[string][]string
}

// NewBridge creates a bridge over a manager and a registry.
func NewBridge(manager *Manager, registry *tools.Registry, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		manager:    manager,
		registry:   registry,
		logger:     logger.With("component", "mcp_bridge"),
		registered: make(map[string][]string),
	}
}

// Sync registers the tools of every connected server and removes
// registrations for servers that are gone. Call it after connects and
// disconnects.
func (b *Bridge) Sync() {
	infos := b.manager.Tools()
	byServer := make(map[string][]ToolInfo)
	for _, info := range infos {
		byServer[info.Server] = append(byServer[info.Server], info)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for server, names := range b.registered {
		if _, ok := byServer[server]; !ok {
			for _, name := range names {
				b.registry.Unregister(name)
			}
			delete(b.registered, server)
			b.logger.Info("unregistered server tools", "server", server, "count", len(names))
		}
	}

	for server, serverTools := range byServer {
		if _, ok := b.registered[server]; ok {
			continue
		}
		var names []string
		for _, info := range serverTools {
			tool := &bridgeTool{bridge: b, info: info}
			if err := b.registry.Register(tool); err != nil {
				b.logger.Warn("skipping tool", "server", server, "tool", info.Name, "error", err)
				continue
			}
			names = append(names, tool.Name())
		}
		b.registered[server] = names
		b.logger.Info("registered server tools", "server", server, "count", len(names))
	}
}

// bridgeTool adapts one remote tool to the registry's Tool interface.
type bridgeTool struct {
	bridge *Bridge
	info   ToolInfo
}

func (t *bridgeTool) Name() string {
	return BridgeName(t.info.Server, t.info.Name)
}

func (t *bridgeTool) Description() string {
	desc := t.info.Description
	if desc == "" {
		desc = "Tool " + t.info.Name
	}
	return fmt.Sprintf("%s (via %s)", desc, t.info.Server)
}

// Schema converts the remote input schema into the registry's shape.
// Unsupported property types degrade to string; the server still
// receives coerced values per its own schema.
func (t *bridgeTool) Schema() tools.Schema {
	schema := tools.Schema{Properties: map[string]tools.Property{}}
	if len(t.info.InputSchema) == 0 {
		return schema
	}
	var raw struct {
		Properties map[string]struct {
			Type        string   `json:"type"`
			Description string   `json:"description"`
			Enum        []string `json:"enum"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(t.info.InputSchema, &raw); err != nil {
		return schema
	}
	for name, prop := range raw.Properties {
		p := tools.Property{Description: prop.Description, Enum: prop.Enum}
		switch prop.Type {
		case "integer":
			p.Type = tools.TypeInteger
		case "number":
			p.Type = tools.TypeNumber
		case "boolean":
			p.Type = tools.TypeBoolean
		case "array":
			p.Type = tools.TypeArray
		case "object":
			p.Type = tools.TypeObject
		default:
			p.Type = tools.TypeString
		}
		schema.Properties[name] = p
	}
	schema.Required = raw.Required
	return schema
}

func (t *bridgeTool) RiskLevel() tools.Risk { return tools.RiskMedium }

func (t *bridgeTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	return t.bridge.manager.CallTool(ctx, t.info.Server, t.info.Name, args)
}
