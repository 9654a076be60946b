// Package files provides the filesystem tools: read_file, write_file,
// and list_dir, all scoped to a workspace root.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/valetd/valet/internal/tools"
)

const maxReadBytes = 256 << 10

// Resolver maps tool-supplied paths onto the workspace and rejects
// escapes above the root.
type Resolver struct {
	Root string
}

// Resolve returns the absolute path for a workspace-relative input.
func (r Resolver) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	root := r.Root
	if root == "" {
		root = "."
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, path)
	}
	abs = filepath.Clean(abs)

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if abs != rootAbs && !strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return abs, nil
}

// ReadTool reads a file from the workspace.
type ReadTool struct {
	resolver Resolver
}

// NewReadTool creates a read_file tool scoped to workspace.
func NewReadTool(workspace string) *ReadTool {
	return &ReadTool{resolver: Resolver{Root: workspace}}
}

func (t *ReadTool) Name() string        { return "read_file" }
func (t *ReadTool) Description() string { return "Read a text file from the workspace." }
func (t *ReadTool) RiskLevel() tools.Risk {
	return tools.RiskLow
}

func (t *ReadTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"path": {Type: tools.TypeString, Description: "Path relative to the workspace root."},
		},
		Required: []string{"path"},
	}
}

func (t *ReadTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	path, err := t.resolver.Resolve(args["path"])
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n[truncated]", nil
	}
	return string(data), nil
}

// WriteTool writes a file into the workspace.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write_file tool scoped to workspace.
func NewWriteTool(workspace string) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: workspace}}
}

func (t *WriteTool) Name() string        { return "write_file" }
func (t *WriteTool) Description() string { return "Write content to a file in the workspace." }
func (t *WriteTool) RiskLevel() tools.Risk {
	return tools.RiskMedium
}

func (t *WriteTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"path":    {Type: tools.TypeString, Description: "Path relative to the workspace root."},
			"content": {Type: tools.TypeString, Description: "File content to write."},
			"append":  {Type: tools.TypeBoolean, Description: "Append instead of overwrite."},
		},
		Required: []string{"path", "content"},
	}
}

func (t *WriteTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	path, err := t.resolver.Resolve(args["path"])
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	doAppend, _ := strconv.ParseBool(args["append"])
	content := args["content"]
	if doAppend {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return "", err
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return "", err
		}
	} else {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), args["path"]), nil
}

// ListTool lists a workspace directory.
type ListTool struct {
	resolver Resolver
}

// NewListTool creates a list_dir tool scoped to workspace.
func NewListTool(workspace string) *ListTool {
	return &ListTool{resolver: Resolver{Root: workspace}}
}

func (t *ListTool) Name() string        { return "list_dir" }
func (t *ListTool) Description() string { return "List entries of a workspace directory." }
func (t *ListTool) RiskLevel() tools.Risk {
	return tools.RiskLow
}

func (t *ListTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"path": {Type: tools.TypeString, Description: "Directory path; defaults to the workspace root."},
		},
	}
}

func (t *ListTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	path := args["path"]
	if path == "" {
		path = "."
	}
	abs, err := t.resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "(empty)", nil
	}
	return strings.Join(names, "\n"), nil
}
