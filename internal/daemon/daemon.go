// Package daemon runs the always-on runtime: connected MCP servers,
// a localhost HTTP surface for chat, health, and metrics, and hot
// reload of the MCP server list.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valetd/valet/internal/agent"
	"github.com/valetd/valet/internal/config"
	"github.com/valetd/valet/internal/mcp"
	"github.com/valetd/valet/internal/session"
)

// Daemon hosts one agent loop behind a localhost HTTP API.
type Daemon struct {
	cfg      *config.Config
	stateDir string
	loop     *agent.Loop
	sessions session.Store
	manager  *mcp.Manager
	bridge   *mcp.Bridge
	logger   *slog.Logger

	// One turn at a time: the loop and its session are not safe for
	// concurrent Run calls.
	turnMu sync.Mutex
}

// New assembles a daemon. The loop, stores, and MCP manager are built
// by the caller so the CLI can share the wiring.
func New(cfg *config.Config, stateDir string, loop *agent.Loop, sessions session.Store, manager *mcp.Manager, bridge *mcp.Bridge, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		cfg:      cfg,
		stateDir: stateDir,
		loop:     loop,
		sessions: sessions,
		manager:  manager,
		bridge:   bridge,
		logger:   logger.With("component", "daemon"),
	}
}

// Run serves until ctx is cancelled, then shuts down cleanly: HTTP
// first, then MCP children, then pending state flushes.
func (d *Daemon) Run(ctx context.Context) error {
	serversPath := filepath.Join(d.stateDir, "mcp_servers.json")
	if err := d.loadServers(serversPath); err != nil {
		return err
	}
	if err := d.manager.ConnectAll(ctx); err != nil {
		// Individual servers may be down; the daemon still serves.
		d.logger.Warn("some MCP servers failed to connect", "error", err)
	}
	d.bridge.Sync()

	if err := config.WatchFile(ctx, serversPath, func() {
		if err := d.reloadServers(serversPath); err != nil {
			d.logger.Warn("reload mcp servers failed", "error", err)
		}
	}, d.logger); err != nil {
		d.logger.Warn("mcp_servers.json watch unavailable", "error", err)
	}

	server := &http.Server{
		Addr:              d.cfg.Daemon.Listen,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("daemon listen %s: %w", server.Addr, err)
	}
	d.logger.Info("daemon listening", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		d.shutdown()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	d.shutdown()
	return nil
}

// Handler returns the daemon's HTTP surface.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", d.handleStatus)
	mux.HandleFunc("/v1/chat", d.handleChat)
	return mux
}

func (d *Daemon) shutdown() {
	d.manager.Shutdown()
	d.bridge.Sync()
	d.loop.Memory().Flush()
	if err := d.sessions.Close(); err != nil {
		d.logger.Warn("close session store", "error", err)
	}
	d.logger.Info("daemon stopped")
}

// loadServers registers every server from mcp_servers.json.
func (d *Daemon) loadServers(path string) error {
	file, err := mcp.LoadServersFile(path)
	if err != nil {
		return err
	}
	for _, cfg := range file.Configs() {
		if err := d.manager.AddServer(cfg); err != nil {
			return err
		}
	}
	return nil
}

// reloadServers reconciles a changed mcp_servers.json: new servers
// are added and connected, removed ones are disconnected and
// forgotten, existing ones keep their connection.
func (d *Daemon) reloadServers(path string) error {
	file, err := mcp.LoadServersFile(path)
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(file.MCPServers))
	for _, cfg := range file.Configs() {
		want[cfg.Name] = true
		if err := d.manager.AddServer(cfg); err != nil {
			return err
		}
	}
	for _, status := range d.manager.Status() {
		if !want[status.Name] {
			if err := d.manager.RemoveServer(status.Name); err != nil {
				d.logger.Warn("remove server failed", "server", status.Name, "error", err)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.manager.ConnectAll(ctx); err != nil {
		d.logger.Warn("some MCP servers failed to connect", "error", err)
	}
	d.bridge.Sync()
	d.logger.Info("mcp servers reloaded", "configured", len(want))
	return nil
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":       d.cfg.Agent.Name,
		"mcp_servers": d.manager.Status(),
		"tools":       len(d.loop.Registry().List()),
	})
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

func (d *Daemon) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	var sess *session.Session
	if req.SessionID != "" {
		var err error
		sess, err = d.sessions.Load(req.SessionID)
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	} else {
		sess = session.New(d.cfg.Agent.Name)
	}

	d.turnMu.Lock()
	reply, err := d.loop.Run(r.Context(), sess, req.Message)
	d.turnMu.Unlock()
	if err != nil {
		d.logger.Warn("turn failed", "session", sess.ID, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if err := d.sessions.Save(sess); err != nil {
		d.logger.Warn("save session failed", "session", sess.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, chatResponse{SessionID: sess.ID, Reply: reply})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
