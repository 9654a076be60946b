package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ServiceLabel names the user-level service on both platforms.
const ServiceLabel = "com.valetd.valet"

const launchdPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>serve</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>%s</string>
	<key>StandardErrorPath</key>
	<string>%s</string>
</dict>
</plist>
`

const systemdUnit = `[Unit]
Description=valet personal agent daemon

[Service]
ExecStart=%s serve
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

// ServiceManager installs the daemon as a user-level service:
// launchd on macOS, a systemd user unit on Linux.
type ServiceManager struct {
	// Binary overrides the executable path; defaults to the running
	// binary.
	Binary string
}

func (m *ServiceManager) binary() (string, error) {
	if m.Binary != "" {
		return m.Binary, nil
	}
	return os.Executable()
}

// UnitPath returns where the service definition lives.
func (m *ServiceManager) UnitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", ServiceLabel+".plist"), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", "valet.service"), nil
	default:
		return "", fmt.Errorf("service install not supported on %s", runtime.GOOS)
	}
}

// Render produces the service definition without installing it.
func (m *ServiceManager) Render(logDir string) (string, error) {
	bin, err := m.binary()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		out := filepath.Join(logDir, "valet.log")
		return fmt.Sprintf(launchdPlist, ServiceLabel, bin, out, out), nil
	case "linux":
		return fmt.Sprintf(systemdUnit, bin), nil
	default:
		return "", fmt.Errorf("service install not supported on %s", runtime.GOOS)
	}
}

// Install writes the service definition and loads it.
func (m *ServiceManager) Install(logDir string) (string, error) {
	path, err := m.UnitPath()
	if err != nil {
		return "", err
	}
	content, err := m.Render(logDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}

	if err := m.load(path); err != nil {
		return path, fmt.Errorf("service file written but load failed: %w", err)
	}
	return path, nil
}

// Uninstall unloads the service and removes its definition.
func (m *ServiceManager) Uninstall() error {
	path, err := m.UnitPath()
	if err != nil {
		return err
	}
	m.unload(path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Installed reports whether the service definition exists.
func (m *ServiceManager) Installed() (bool, error) {
	path, err := m.UnitPath()
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return statErr == nil, statErr
}

func (m *ServiceManager) load(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return runCommand("launchctl", "load", "-w", path)
	case "linux":
		if err := runCommand("systemctl", "--user", "daemon-reload"); err != nil {
			return err
		}
		return runCommand("systemctl", "--user", "enable", "--now", "valet.service")
	}
	return nil
}

func (m *ServiceManager) unload(path string) {
	switch runtime.GOOS {
	case "darwin":
		runCommand("launchctl", "unload", path)
	case "linux":
		runCommand("systemctl", "--user", "disable", "--now", "valet.service")
	}
}

func runCommand(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %v: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
