// Package store provides durable JSON persistence for runtime state.
//
// All writes are atomic (write-to-temp then rename) and live under a
// single application state directory so that every subsystem shares one
// on-disk layout.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// EnvStateDir overrides the computed state directory when set.
const EnvStateDir = "VALET_STATE_DIR"

// StateDir returns the root directory for durable state, creating it if
// needed. Resolution order: $VALET_STATE_DIR, then the platform
// application-support directory, then $XDG_DATA_HOME/valet, then
// ~/.local/share/valet.
func StateDir() (string, error) {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return ensureDir(dir)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	var dir string
	switch runtime.GOOS {
	case "darwin":
		dir = filepath.Join(home, "Library", "Application Support", "valet")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "valet")
		} else {
			dir = filepath.Join(home, ".local", "share", "valet")
		}
	}
	return ensureDir(dir)
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return dir, nil
}
