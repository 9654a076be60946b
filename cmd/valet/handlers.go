// handlers.go wires the runtime shared by every command: config,
// logging, memory, tools, providers, MCP, and session storage.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valetd/valet/internal/agent"
	"github.com/valetd/valet/internal/config"
	"github.com/valetd/valet/internal/mcp"
	"github.com/valetd/valet/internal/memory"
	"github.com/valetd/valet/internal/provider"
	"github.com/valetd/valet/internal/session"
	"github.com/valetd/valet/internal/tools"
	"github.com/valetd/valet/internal/tools/corememory"
	"github.com/valetd/valet/internal/tools/fetch"
	"github.com/valetd/valet/internal/tools/files"
	"github.com/valetd/valet/internal/tools/shell"
)

// runtime bundles everything a command needs.
type runtime struct {
	cfg      *config.Config
	stateDir string
	logger   *slog.Logger
	memory   *memory.Memory
	registry *tools.Registry
	router   *provider.Router
	manager  *mcp.Manager
	bridge   *mcp.Bridge
	sessions session.Store
	loop     *agent.Loop
}

// buildRuntime loads config and assembles the full runtime. Callers
// must defer rt.close().
func buildRuntime(configPath string, debug bool) (*runtime, error) {
	if configPath == "" {
		var err error
		configPath, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	stateDir, err := cfg.ResolveStateDir()
	if err != nil {
		return nil, err
	}

	logger := buildLogger(cfg.Log, debug)
	slog.SetDefault(logger)

	mem, err := memory.Open(stateDir, cfg.Agent.Name, logger)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	workspace, err := os.Getwd()
	if err != nil {
		workspace = stateDir
	}
	for _, tool := range []tools.Tool{
		files.NewReadTool(workspace),
		files.NewWriteTool(workspace),
		files.NewListTool(workspace),
		shell.New(workspace),
		fetch.New(),
	} {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	if err := corememory.RegisterAll(registry, mem); err != nil {
		return nil, err
	}

	router := provider.NewRouter(provider.RouterConfig{
		OllamaBaseURL:   cfg.Provider.OllamaBaseURL,
		LlamaServerPort: cfg.Provider.LlamaServerPort,
		OpenAIKey:       cfg.Provider.OpenAIKey,
		OpenAIModel:     cfg.Provider.Model,
		AnthropicKey:    cfg.Provider.AnthropicKey,
		AnthropicModel:  cfg.Provider.Model,
		GroqKey:         cfg.Provider.GroqKey,
		GroqModel:       cfg.Provider.Model,
	}, logger)

	manager := mcp.NewManager(logger)
	bridge := mcp.NewBridge(manager, registry, logger)
	serversFile, err := mcp.LoadServersFile(filepath.Join(stateDir, "mcp_servers.json"))
	if err != nil {
		return nil, err
	}
	for _, serverCfg := range serversFile.Configs() {
		if err := manager.AddServer(serverCfg); err != nil {
			return nil, err
		}
	}

	var sessions session.Store
	switch cfg.Session.Backend {
	case "sqlite":
		sessions, err = session.NewSQLiteStore(stateDir)
	default:
		sessions, err = session.NewJSONStore(stateDir)
	}
	if err != nil {
		return nil, err
	}

	loop := agent.New(agent.Config{
		Name:          cfg.Agent.Name,
		Description:   cfg.Agent.Description,
		MaxSteps:      cfg.Agent.MaxSteps,
		HistoryBudget: cfg.Agent.HistoryBudget,
		Options: provider.Options{
			Provider:    cfg.Provider.Default,
			Model:       cfg.Provider.Model,
			Temperature: cfg.Provider.Temperature,
			MaxTokens:   cfg.Provider.MaxTokens,
		},
	}, router, registry, mem, logger)

	if err := registry.Register(&agent.SubagentTool{
		StateDir: stateDir,
		Gen:      router,
		Parent:   loop,
		Logger:   logger,
	}); err != nil {
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		stateDir: stateDir,
		logger:   logger,
		memory:   mem,
		registry: registry,
		router:   router,
		manager:  manager,
		bridge:   bridge,
		sessions: sessions,
		loop:     loop,
	}, nil
}

func (rt *runtime) close() {
	rt.manager.Shutdown()
	rt.memory.Flush()
	if err := rt.sessions.Close(); err != nil {
		rt.logger.Warn("close session store", "error", err)
	}
}

func buildLogger(cfg config.Log, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func runConfigSchema(cmd *cobra.Command) error {
	data, err := config.Schema()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigPath(cmd *cobra.Command) error {
	path, err := config.DefaultPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
