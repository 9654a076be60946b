// Package shell provides the shell tool: run a command line with a
// timeout and capture its combined output.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/valetd/valet/internal/tools"
)

const (
	defaultTimeout = 60 * time.Second
	maxTimeout     = 10 * time.Minute
	maxOutputBytes = 64 << 10
)

// Tool runs shell commands in the workspace directory.
type Tool struct {
	workspace string
}

// New creates a shell tool rooted at workspace.
func New(workspace string) *Tool {
	return &Tool{workspace: workspace}
}

func (t *Tool) Name() string        { return "shell" }
func (t *Tool) Description() string { return "Run a shell command and return its output." }
func (t *Tool) RiskLevel() tools.Risk {
	return tools.RiskHigh
}

func (t *Tool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"command": {Type: tools.TypeString, Description: "Command line passed to sh -c."},
			"timeout": {Type: tools.TypeInteger, Description: "Timeout in seconds (default 60)."},
		},
		Required: []string{"command"},
	}
}

func (t *Tool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	command := strings.TrimSpace(args["command"])
	if command == "" {
		return "", fmt.Errorf("command is empty")
	}

	timeout := defaultTimeout
	if raw := args["timeout"]; raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			return "", fmt.Errorf("timeout must be an integer: %q", raw)
		}
		timeout = time.Duration(secs) * time.Second
		if timeout <= 0 || timeout > maxTimeout {
			timeout = defaultTimeout
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.workspace

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Round(time.Millisecond)

	output := out.String()
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes] + "\n[truncated]"
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %v", timeout)
	}
	if err != nil {
		if output == "" {
			return "", err
		}
		return fmt.Sprintf("%s\n(exit error: %v, %v)", output, err, elapsed), nil
	}
	if output == "" {
		return fmt.Sprintf("(no output, %v)", elapsed), nil
	}
	return output, nil
}
