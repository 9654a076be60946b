// Package config loads the runtime configuration: a YAML file with
// environment-variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valetd/valet/internal/store"
)

// Config is the full runtime configuration.
type Config struct {
	// StateDir overrides where sessions, memory, and logs live.
	StateDir string `yaml:"state_dir,omitempty" json:"state_dir,omitempty" jsonschema:"description=Override for the state directory"`

	Agent    Agent    `yaml:"agent" json:"agent"`
	Provider Provider `yaml:"provider" json:"provider"`
	Session  Session  `yaml:"session" json:"session"`
	Daemon   Daemon   `yaml:"daemon" json:"daemon"`
	Log      Log      `yaml:"log" json:"log"`
}

// Agent shapes the main agent loop.
type Agent struct {
	Name          string `yaml:"name" json:"name" jsonschema:"description=Agent name,default=valet"`
	Description   string `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"description=System persona prepended to every prompt"`
	MaxSteps      int    `yaml:"max_steps,omitempty" json:"max_steps,omitempty" jsonschema:"description=Reasoning step budget per turn,default=12"`
	HistoryBudget int    `yaml:"history_budget,omitempty" json:"history_budget,omitempty" jsonschema:"description=Transcript character budget per generation"`
}

// Provider selects and configures model backends.
type Provider struct {
	Default     string  `yaml:"default,omitempty" json:"default,omitempty" jsonschema:"description=Force a backend instead of auto-detecting,enum=ollama,enum=llama-server,enum=openai,enum=anthropic,enum=groq"`
	Model       string  `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"description=Model name passed to the backend"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	OllamaBaseURL   string `yaml:"ollama_base_url,omitempty" json:"ollama_base_url,omitempty" jsonschema:"description=Ollama daemon URL,default=http://localhost:11434"`
	LlamaServerPort int    `yaml:"llama_server_port,omitempty" json:"llama_server_port,omitempty" jsonschema:"description=Local llama-server port,default=8080"`

	OpenAIKey    string `yaml:"openai_api_key,omitempty" json:"openai_api_key,omitempty" jsonschema:"description=OpenAI API key; OPENAI_API_KEY overrides"`
	AnthropicKey string `yaml:"anthropic_api_key,omitempty" json:"anthropic_api_key,omitempty" jsonschema:"description=Anthropic API key; ANTHROPIC_API_KEY overrides"`
	GroqKey      string `yaml:"groq_api_key,omitempty" json:"groq_api_key,omitempty" jsonschema:"description=Groq API key; GROQ_API_KEY overrides"`
}

// Session selects the transcript backend.
type Session struct {
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"description=Transcript storage backend,enum=json,enum=sqlite,default=json"`
}

// Daemon configures the background server.
type Daemon struct {
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty" jsonschema:"description=Local listen address for health and metrics,default=127.0.0.1:8321"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"description=Log level,enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"description=Log output format,enum=text,enum=json,default=text"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Agent: Agent{
			Name:     "valet",
			MaxSteps: 12,
		},
		Provider: Provider{
			OllamaBaseURL:   "http://localhost:11434",
			LlamaServerPort: 8080,
		},
		Session: Session{Backend: "json"},
		Daemon:  Daemon{Listen: "127.0.0.1:8321"},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// DefaultPath returns <state dir>/config.yaml.
func DefaultPath() (string, error) {
	dir, err := store.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads a config file over the defaults and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Provider.OpenAIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Provider.AnthropicKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.Provider.GroqKey = v
	}
	if v := os.Getenv(store.EnvStateDir); v != "" {
		cfg.StateDir = v
	}
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "", "json", "sqlite":
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	switch c.Provider.Default {
	case "", "ollama", "llama-server", "openai", "anthropic", "groq":
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider.Default)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	if c.Agent.MaxSteps < 0 {
		return fmt.Errorf("config: max_steps must be positive")
	}
	return nil
}

// ResolveStateDir returns the configured state directory, falling
// back to the platform default, and creates it.
func (c *Config) ResolveStateDir() (string, error) {
	dir := c.StateDir
	if dir == "" {
		var err error
		dir, err = store.StateDir()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}
