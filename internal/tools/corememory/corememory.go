// Package corememory exposes the agent-callable memory operations as
// registry tools. All of them are memory mutators except the snapshot
// inspection tools.
package corememory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/valetd/valet/internal/memory"
	"github.com/valetd/valet/internal/tools"
)

// RegisterAll registers every core-memory tool on the registry.
func RegisterAll(reg *tools.Registry, mem *memory.Memory) error {
	all := []tools.Tool{
		&AppendTool{mem: mem},
		&ReplaceTool{mem: mem},
		&ClearTool{mem: mem},
		&CreateTool{mem: mem},
		&LogTool{mem: mem},
		&DiffTool{mem: mem},
		&RollbackTool{mem: mem},
	}
	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// AppendTool appends content to a memory block.
type AppendTool struct {
	mem *memory.Memory
}

func (t *AppendTool) Name() string { return "core_memory_append" }
func (t *AppendTool) Description() string {
	return "Append a line of content to a core memory block."
}
func (t *AppendTool) RiskLevel() tools.Risk { return tools.RiskLow }
func (t *AppendTool) MutatesMemory() bool   { return true }

func (t *AppendTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"label":   {Type: tools.TypeString, Description: "Block label, e.g. persona or human."},
			"content": {Type: tools.TypeString, Description: "Content to append."},
		},
		Required: []string{"label", "content"},
	}
}

func (t *AppendTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	if err := t.mem.Append(args["label"], args["content"]); err != nil {
		return "", err
	}
	return fmt.Sprintf("appended to %s", args["label"]), nil
}

// ReplaceTool substitutes text inside a memory block.
type ReplaceTool struct {
	mem *memory.Memory
}

func (t *ReplaceTool) Name() string { return "core_memory_replace" }
func (t *ReplaceTool) Description() string {
	return "Replace occurrences of a substring in a core memory block."
}
func (t *ReplaceTool) RiskLevel() tools.Risk { return tools.RiskLow }
func (t *ReplaceTool) MutatesMemory() bool   { return true }

func (t *ReplaceTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"label": {Type: tools.TypeString, Description: "Block label."},
			"old":   {Type: tools.TypeString, Description: "Substring to find."},
			"new":   {Type: tools.TypeString, Description: "Replacement text."},
		},
		Required: []string{"label", "old", "new"},
	}
}

func (t *ReplaceTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	if err := t.mem.Replace(args["label"], args["old"], args["new"]); err != nil {
		return "", err
	}
	return fmt.Sprintf("updated %s", args["label"]), nil
}

// ClearTool empties a memory block.
type ClearTool struct {
	mem *memory.Memory
}

func (t *ClearTool) Name() string          { return "core_memory_clear" }
func (t *ClearTool) Description() string   { return "Clear a core memory block." }
func (t *ClearTool) RiskLevel() tools.Risk { return tools.RiskMedium }
func (t *ClearTool) MutatesMemory() bool   { return true }

func (t *ClearTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"label": {Type: tools.TypeString, Description: "Block label."},
		},
		Required: []string{"label"},
	}
}

func (t *ClearTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	if err := t.mem.Clear(args["label"]); err != nil {
		return "", err
	}
	return fmt.Sprintf("cleared %s", args["label"]), nil
}

// CreateTool adds a new memory block.
type CreateTool struct {
	mem *memory.Memory
}

func (t *CreateTool) Name() string { return "core_memory_create" }
func (t *CreateTool) Description() string {
	return "Create a new core memory block. Existing labels are left untouched."
}
func (t *CreateTool) RiskLevel() tools.Risk { return tools.RiskLow }
func (t *CreateTool) MutatesMemory() bool   { return true }

func (t *CreateTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"label":       {Type: tools.TypeString, Description: "New block label."},
			"value":       {Type: tools.TypeString, Description: "Initial content."},
			"limit":       {Type: tools.TypeInteger, Description: "Character cap (default 2000)."},
			"description": {Type: tools.TypeString, Description: "What the block is for."},
		},
		Required: []string{"label"},
	}
}

func (t *CreateTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	limit := 0
	if raw := args["limit"]; raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return "", fmt.Errorf("limit must be an integer: %q", raw)
		}
		limit = parsed
	}
	if err := t.mem.Create(args["label"], args["value"], limit, args["description"]); err != nil {
		return "", err
	}
	return fmt.Sprintf("created %s", args["label"]), nil
}

// LogTool lists recent memory versions.
type LogTool struct {
	mem *memory.Memory
}

func (t *LogTool) Name() string          { return "memory_log" }
func (t *LogTool) Description() string   { return "List recent core memory snapshots, newest first." }
func (t *LogTool) RiskLevel() tools.Risk { return tools.RiskLow }

func (t *LogTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"limit": {Type: tools.TypeInteger, Description: "Maximum entries (default 20)."},
		},
	}
}

func (t *LogTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	limit := 0
	if raw := args["limit"]; raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return "", fmt.Errorf("limit must be an integer: %q", raw)
		}
		limit = parsed
	}
	versions := t.mem.Versions().Log(limit)
	if len(versions) == 0 {
		return "no snapshots yet", nil
	}
	var b strings.Builder
	for _, v := range versions {
		fmt.Fprintf(&b, "%s  %s  %s\n", v.ID[:16], v.Timestamp.Format("2006-01-02 15:04:05"), v.Message)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// DiffTool compares two memory versions.
type DiffTool struct {
	mem *memory.Memory
}

func (t *DiffTool) Name() string          { return "memory_diff" }
func (t *DiffTool) Description() string   { return "Show per-block differences between two snapshots." }
func (t *DiffTool) RiskLevel() tools.Risk { return tools.RiskLow }

func (t *DiffTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"from": {Type: tools.TypeString, Description: "Older snapshot id prefix."},
			"to":   {Type: tools.TypeString, Description: "Newer snapshot id prefix."},
		},
		Required: []string{"from", "to"},
	}
}

func (t *DiffTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	entries, err := t.mem.Versions().Diff(args["from"], args["to"])
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "no differences", nil
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Label, e.Change)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// RollbackTool restores blocks from a snapshot.
type RollbackTool struct {
	mem *memory.Memory
}

func (t *RollbackTool) Name() string { return "memory_rollback" }
func (t *RollbackTool) Description() string {
	return "Restore core memory blocks from a snapshot by id prefix."
}
func (t *RollbackTool) RiskLevel() tools.Risk { return tools.RiskHigh }
func (t *RollbackTool) MutatesMemory() bool   { return true }

func (t *RollbackTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"id": {Type: tools.TypeString, Description: "Snapshot id prefix."},
		},
		Required: []string{"id"},
	}
}

func (t *RollbackTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	snapshot, err := t.mem.Versions().Rollback(args["id"])
	if err != nil {
		return "", err
	}
	t.mem.Restore(snapshot)
	return fmt.Sprintf("restored %d blocks from %s", len(snapshot), args["id"]), nil
}
