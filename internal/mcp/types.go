// Package mcp hosts third-party tool servers as child processes
// speaking JSON-RPC 2.0 over newline-delimited stdio, and surfaces
// their tools inside the tool registry.
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ProtocolVersion is the MCP revision this client speaks.
const ProtocolVersion = "2024-11-05"

// ServerConfig describes one configured tool server.
type ServerConfig struct {
	Name    string            `json:"-"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Validate checks the configuration.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("server name is required")
	}
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("command is required for server %q", c.Name)
	}
	return nil
}

// ServersFile is the on-disk shape of mcp_servers.json.
type ServersFile struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// Configs returns the entries sorted by name, with Name populated
// from the map keys.
func (f *ServersFile) Configs() []ServerConfig {
	out := make([]ServerConfig, 0, len(f.MCPServers))
	for name, cfg := range f.MCPServers {
		cfg.Name = name
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadServersFile reads an mcp_servers.json. A missing file yields an
// empty configuration, not an error.
func LoadServersFile(path string) (*ServersFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ServersFile{MCPServers: map[string]ServerConfig{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f ServersFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.MCPServers == nil {
		f.MCPServers = map[string]ServerConfig{}
	}
	for name, cfg := range f.MCPServers {
		cfg.Name = name
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return &f, nil
}

// ToolInfo describes one tool discovered on a server.
type ToolInfo struct {
	Server      string          `json:"server"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// JSON-RPC 2.0 wire types.

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object returned by a server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp: server error %d: %s", e.Code, e.Message)
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	} `json:"tools"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type contentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	URI      string `json:"uri,omitempty"`
	Resource *struct {
		URI string `json:"uri"`
	} `json:"resource,omitempty"`
}

type callToolResult struct {
	Content []contentBlock `json:"content"`
	Text    string         `json:"text,omitempty"`
	IsError bool           `json:"isError,omitempty"`
}
