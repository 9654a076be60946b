// Package main is the CLI entry point for valet, a local personal
// agent runtime.
//
// Basic usage:
//
//	valet chat                     # interactive chat
//	valet chat -m "do the thing"   # one-shot turn
//	valet serve                    # run the always-on daemon
//	valet mcp list                 # show configured MCP servers
//	valet memory show              # inspect core memory
//
// Configuration lives in <state dir>/config.yaml; API keys can come
// from OPENAI_API_KEY, ANTHROPIC_API_KEY, and GROQ_API_KEY.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:           "valet",
		Short:         "A local, always-on personal agent",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		buildChatCmd(),
		buildServeCmd(),
		buildMcpCmd(),
		buildMemoryCmd(),
		buildSessionsCmd(),
		buildConfigCmd(),
		buildServiceCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
