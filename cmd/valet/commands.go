// commands.go defines the cobra commands; the run* handlers live in
// handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

func buildChatCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
		message    string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the agent",
		Long: `Talk to the agent. With --message, runs a single turn and prints
the answer; otherwise starts an interactive session on the terminal.`,
		Example: `  valet chat
  valet chat -m "what's on my plate today?"
  valet chat --session 6f1f3c2a`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), configPath, sessionID, message, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Resume an existing session id")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Run one turn with this message and exit")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the always-on daemon",
		Long: `Run the daemon: connects configured MCP servers, watches
mcp_servers.json for changes, and serves chat, health, and metrics on
a localhost address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildMcpCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage MCP tool servers",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")

	list := &cobra.Command{
		Use:   "list",
		Short: "List configured servers and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMcpList(cmd.Context(), configPath)
		},
	}
	toolsCmd := &cobra.Command{
		Use:   "tools [server]",
		Short: "List tools, connecting servers as needed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server := ""
			if len(args) == 1 {
				server = args[0]
			}
			return runMcpTools(cmd.Context(), configPath, server)
		},
	}
	call := &cobra.Command{
		Use:   "call <server> <tool> [key=value...]",
		Short: "Invoke one tool directly",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMcpCall(cmd.Context(), configPath, args[0], args[1], args[2:])
		},
	}
	cmd.AddCommand(list, toolsCmd, call)
	return cmd
}

func buildMemoryCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage core memory",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print all memory blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemoryShow(configPath)
		},
	}
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Show the snapshot history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemoryLog(configPath)
		},
	}
	diff := &cobra.Command{
		Use:   "diff <from> <to>",
		Short: "Diff two snapshots by id prefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemoryDiff(configPath, args[0], args[1])
		},
	}
	rollback := &cobra.Command{
		Use:   "rollback <id>",
		Short: "Restore memory to a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemoryRollback(configPath, args[0])
		},
	}
	cmd.AddCommand(show, logCmd, diff, rollback)
	return cmd
}

func buildSessionsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversations",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(configPath)
		},
	}
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsDelete(configPath, args[0])
		},
	}
	cmd.AddCommand(list, del)
	return cmd
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema for config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}
	path := &cobra.Command{
		Use:   "path",
		Short: "Print the default config path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigPath(cmd)
		},
	}
	cmd.AddCommand(schema, path)
	return cmd
}
