package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/valetd/valet/internal/memory"
	"github.com/valetd/valet/internal/session"
	"github.com/valetd/valet/internal/tools"
)

// SubagentTool delegates a task to a subordinate agent: a fresh loop
// with its own short-term memory that inherits the parent's durable
// blocks read-only. The subordinate cannot delegate further.
type SubagentTool struct {
	StateDir string
	Gen      Generator
	Parent   *Loop
	Logger   *slog.Logger
}

func (t *SubagentTool) Name() string { return "call_subordinate" }

func (t *SubagentTool) Description() string {
	return "Delegate a self-contained task to a subordinate agent and return its answer. " +
		"Give it complete instructions; it does not see this conversation."
}

func (t *SubagentTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"message": {Type: tools.TypeString, Description: "Full task instructions for the subordinate"},
			"role":    {Type: tools.TypeString, Description: "Optional role the subordinate should adopt"},
		},
		Required: []string{"message"},
	}
}

func (t *SubagentTool) RiskLevel() tools.Risk { return tools.RiskMedium }

func (t *SubagentTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	subMemory, err := memory.Open(t.StateDir, "subordinate", t.Logger)
	if err != nil {
		return "", fmt.Errorf("open subordinate memory: %w", err)
	}
	defer subMemory.Flush()
	subMemory.InheritFrom(t.Parent.Memory())

	// Same tool set minus delegation, so depth stays at one.
	subRegistry := tools.NewRegistry()
	for _, tool := range t.Parent.Registry().List() {
		if tool.Name() == t.Name() {
			continue
		}
		if err := subRegistry.Register(tool); err != nil {
			return "", fmt.Errorf("build subordinate registry: %w", err)
		}
	}

	description := "You are a subordinate agent completing one delegated task."
	if role := args["role"]; role != "" {
		description = fmt.Sprintf("You are a subordinate agent acting as %s, completing one delegated task.", role)
	}

	sub := New(Config{
		Name:        "subordinate",
		Description: description,
		MaxSteps:    t.Parent.cfg.MaxSteps,
		Options:     t.Parent.cfg.Options,
	}, t.Gen, subRegistry, subMemory, t.Logger)

	answer, err := sub.Run(ctx, session.New("subordinate"), args["message"])
	if err != nil {
		return "", fmt.Errorf("subordinate failed: %w", err)
	}
	return answer, nil
}
