package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Client is one connected server: a transport plus the tool inventory
// discovered during the handshake.
type Client struct {
	config    ServerConfig
	transport *transport
	logger    *slog.Logger

	serverName    string
	serverVersion string
	tools         []ToolInfo
	schemas       map[string]*jsonschema.Schema
}

// connect spawns the process and runs the initialize handshake. On
// any handshake failure the child is terminated before returning.
func connect(ctx context.Context, cfg ServerConfig, logger *slog.Logger) (*Client, error) {
	t, err := spawn(cfg, logger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:    cfg,
		transport: t,
		logger:    logger.With("server", cfg.Name),
		schemas:   make(map[string]*jsonschema.Schema),
	}
	if err := c.handshake(ctx); err != nil {
		t.close()
		return nil, &InitializeError{Server: cfg.Name, Err: err}
	}
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	raw, err := c.transport.call(ctx, "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: "valet", Version: "1.0"},
	})
	if err != nil {
		return err
	}

	var init initializeResult
	if err := json.Unmarshal(raw, &init); err != nil {
		return fmt.Errorf("%w: initialize result: %v", ErrInvalidResponse, err)
	}
	if init.ProtocolVersion == "" {
		return fmt.Errorf("%w: initialize result missing protocolVersion", ErrInvalidResponse)
	}
	c.serverName = init.ServerInfo.Name
	c.serverVersion = init.ServerInfo.Version

	if err := c.transport.notify("notifications/initialized", nil); err != nil {
		return err
	}

	rawTools, err := c.transport.call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	var list listToolsResult
	if err := json.Unmarshal(rawTools, &list); err != nil {
		return fmt.Errorf("%w: tools/list result: %v", ErrInvalidResponse, err)
	}

	c.tools = make([]ToolInfo, 0, len(list.Tools))
	for _, tool := range list.Tools {
		info := ToolInfo{
			Server:      c.config.Name,
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}
		c.tools = append(c.tools, info)
		if schema, err := compileSchema(tool.InputSchema); err == nil {
			c.schemas[tool.Name] = schema
		} else {
			c.logger.Warn("tool schema does not compile, skipping validation",
				"tool", tool.Name, "error", err)
		}
	}

	c.logger.Info("server ready",
		"name", c.serverName, "version", c.serverVersion, "tools", len(c.tools))
	return nil
}

func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

// Tools returns the tools discovered during the handshake.
func (c *Client) Tools() []ToolInfo {
	out := make([]ToolInfo, len(c.tools))
	copy(out, c.tools)
	return out
}

// ServerInfo returns the name and version the server reported.
func (c *Client) ServerInfo() (name, version string) {
	return c.serverName, c.serverVersion
}

// CallTool invokes one tool. String arguments from the agent are
// coerced to the types the tool's input schema declares before the
// call goes out.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]string) (string, error) {
	var info *ToolInfo
	for i := range c.tools {
		if c.tools[i].Name == tool {
			info = &c.tools[i]
			break
		}
	}
	if info == nil {
		return "", fmt.Errorf("mcp: server %s has no tool %q", c.config.Name, tool)
	}

	arguments := coerceArguments(args, info.InputSchema)
	if schema := c.schemas[tool]; schema != nil {
		if err := schema.Validate(toValidatable(arguments)); err != nil {
			return "", fmt.Errorf("mcp: arguments for %s rejected by schema: %w", tool, err)
		}
	}

	raw, err := c.transport.call(ctx, "tools/call", callToolParams{
		Name:      tool,
		Arguments: arguments,
	})
	if err != nil {
		return "", err
	}

	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("%w: tools/call result: %v", ErrInvalidResponse, err)
	}

	text := formatContent(result, raw)
	if result.IsError {
		return "", fmt.Errorf("mcp: tool %s reported an error: %s", tool, text)
	}
	return text, nil
}

// close terminates the child process.
func (c *Client) close() {
	c.transport.close()
}

// coerceArguments converts the agent's flat string arguments into the
// types declared by the tool's input schema. Values that fail to
// parse as their declared type are passed through as strings.
func coerceArguments(args map[string]string, rawSchema json.RawMessage) map[string]any {
	types := propertyTypes(rawSchema)
	out := make(map[string]any, len(args))
	for key, val := range args {
		switch types[key] {
		case "integer":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				out[key] = n
				continue
			}
		case "number":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				out[key] = f
				continue
			}
		case "boolean":
			if b, err := strconv.ParseBool(val); err == nil {
				out[key] = b
				continue
			}
		case "array", "object":
			var v any
			if err := json.Unmarshal([]byte(val), &v); err == nil {
				out[key] = v
				continue
			}
		}
		out[key] = val
	}
	return out
}

func propertyTypes(rawSchema json.RawMessage) map[string]string {
	if len(rawSchema) == 0 {
		return nil
	}
	var schema struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return nil
	}
	types := make(map[string]string, len(schema.Properties))
	for name, prop := range schema.Properties {
		types[name] = prop.Type
	}
	return types
}

// toValidatable round-trips through JSON so the validator sees the
// generic types it expects (float64 numbers, map[string]any objects).
func toValidatable(arguments map[string]any) any {
	data, err := json.Marshal(arguments)
	if err != nil {
		return arguments
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return arguments
	}
	return v
}

// formatContent renders a tools/call result as text: text blocks are
// concatenated, binary blocks become placeholders, unknown block types
// are skipped. Results without a content array fall back to the legacy
// text field, then to the raw result JSON.
func formatContent(result callToolResult, raw json.RawMessage) string {
	if len(result.Content) == 0 {
		if result.Text != "" {
			return result.Text
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err == nil {
			return pretty.String()
		}
		return string(raw)
	}

	parts := make([]string, 0, len(result.Content))
	for _, block := range result.Content {
		switch block.Type {
		case "text":
			parts = append(parts, block.Text)
		case "image":
			parts = append(parts, "[image data]")
		case "resource":
			uri := block.URI
			if uri == "" && block.Resource != nil {
				uri = block.Resource.URI
			}
			parts = append(parts, fmt.Sprintf("[resource: %s]", uri))
		}
	}
	return strings.Join(parts, "\n")
}
