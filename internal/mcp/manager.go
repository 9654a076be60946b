package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/valetd/valet/internal/metrics"
)

// ConnectTimeout bounds an on-demand reconnect triggered by a tool
// invocation against a disconnected server.
const ConnectTimeout = 5 * time.Second

// State is a server's lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
)

// ServerStatus is a point-in-time view of one configured server.
type ServerStatus struct {
	Name    string `json:"name"`
	State   State  `json:"state"`
	Command string `json:"command"`
	Tools   int    `json:"tools"`
}

// Manager owns the configured servers and their connections. All
// state transitions happen under its lock; the actual spawn and
// handshake run outside it, with concurrent connects for the same
// server coalesced onto the first one's outcome.
type Manager struct {
	logger *slog.Logger

	mu         sync.Mutex
	configs    map[string]ServerConfig
	clients    map[string]*Client
	connecting map[string]chan struct{}
}

// NewManager creates a manager with no configured servers.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:     logger.With("component", "mcp"),
		configs:    make(map[string]ServerConfig),
		clients:    make(map[string]*Client),
		connecting: make(map[string]chan struct{}),
	}
}

// AddServer registers a server configuration. Adding a name that is
// already connected replaces the config without touching the
// connection; the new config takes effect on the next connect.
func (m *Manager) AddServer(cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.Name] = cfg
	return nil
}

// RemoveServer disconnects (if needed) and forgets a server.
func (m *Manager) RemoveServer(name string) error {
	if err := m.Disconnect(name); err != nil && !errors.Is(err, ErrServerNotFound) {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	delete(m.configs, name)
	return nil
}

// Connect launches a configured server and completes its handshake.
// A second Connect while the first is in flight waits for the first
// one's outcome instead of spawning a second process.
func (m *Manager) Connect(ctx context.Context, name string) error {
	for {
		m.mu.Lock()
		cfg, ok := m.configs[name]
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrServerNotFound, name)
		}
		if _, ok := m.clients[name]; ok {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyConnected, name)
		}
		if wait, ok := m.connecting[name]; ok {
			m.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return ctx.Err()
			}
			m.mu.Lock()
			_, connected := m.clients[name]
			m.mu.Unlock()
			if connected {
				return nil
			}
			// The coalesced attempt failed; try again from scratch.
			continue
		}
		done := make(chan struct{})
		m.connecting[name] = done
		m.mu.Unlock()

		client, err := connect(ctx, cfg, m.logger)

		m.mu.Lock()
		delete(m.connecting, name)
		if err == nil {
			m.clients[name] = client
			metrics.MCPServersConnected.Inc()
		}
		m.mu.Unlock()
		close(done)

		if err != nil {
			m.logger.Warn("connect failed", "server", name, "error", err)
			return err
		}
		return nil
	}
}

// Disconnect terminates a server's process. In-flight requests fail
// with a disconnect error.
func (m *Manager) Disconnect(name string) error {
	m.mu.Lock()
	client, ok := m.clients[name]
	if ok {
		delete(m.clients, name)
	}
	_, configured := m.configs[name]
	m.mu.Unlock()

	if !ok {
		if !configured {
			return fmt.Errorf("%w: %s", ErrServerNotFound, name)
		}
		return nil
	}
	client.close()
	metrics.MCPServersConnected.Dec()
	m.logger.Info("server disconnected", "server", name)
	return nil
}

// ConnectAll connects every configured server, continuing past
// individual failures. It returns the first error encountered.
func (m *Manager) ConnectAll(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Strings(names)

	var firstErr error
	for _, name := range names {
		if err := m.Connect(ctx, name); err != nil && !errors.Is(err, ErrAlreadyConnected) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Shutdown disconnects every connected server.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	clients := make(map[string]*Client, len(m.clients))
	for name, c := range m.clients {
		clients[name] = c
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for name, c := range clients {
		c.close()
		metrics.MCPServersConnected.Dec()
		m.logger.Info("server disconnected", "server", name)
	}
}

// IsConnected reports whether a server currently has a live client.
func (m *Manager) IsConnected(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.clients[name]
	return ok
}

// Status reports every configured server with its state, sorted by
// name.
func (m *Manager) Status() []ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ServerStatus, 0, len(m.configs))
	for name, cfg := range m.configs {
		status := ServerStatus{Name: name, State: StateDisconnected, Command: cfg.Command}
		if client, ok := m.clients[name]; ok {
			status.State = StateReady
			status.Tools = len(client.tools)
		} else if _, ok := m.connecting[name]; ok {
			status.State = StateConnecting
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tools lists the tools of every connected server.
func (m *Manager) Tools() []ToolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ToolInfo
	for _, client := range m.clients {
		out = append(out, client.Tools()...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return out[i].Server < out[j].Server
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CallTool invokes a tool on a server, reconnecting on demand when
// the server is configured but not connected.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]string) (string, error) {
	m.mu.Lock()
	client, connected := m.clients[server]
	_, configured := m.configs[server]
	m.mu.Unlock()

	if !connected {
		if !configured {
			return "", fmt.Errorf("%w: %s", ErrServerNotFound, server)
		}
		connectCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
		err := m.Connect(connectCtx, server)
		cancel()
		if err != nil && !errors.Is(err, ErrAlreadyConnected) {
			return "", fmt.Errorf("mcp: reconnect %s: %w", server, err)
		}
		m.mu.Lock()
		client, connected = m.clients[server]
		m.mu.Unlock()
		if !connected {
			return "", fmt.Errorf("%w: %s", ErrServerDisconnected, server)
		}
	}
	return client.CallTool(ctx, tool, args)
}
