package daemon

import (
	"runtime"
	"strings"
	"testing"
)

func TestRenderServiceDefinition(t *testing.T) {
	if runtime.GOOS != "darwin" && runtime.GOOS != "linux" {
		t.Skip("service install unsupported on this platform")
	}
	m := &ServiceManager{Binary: "/usr/local/bin/valet"}
	content, err := m.Render(t.TempDir())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(content, "/usr/local/bin/valet") {
		t.Error("definition missing binary path")
	}
	if !strings.Contains(content, "serve") {
		t.Error("definition missing serve argument")
	}
	switch runtime.GOOS {
	case "darwin":
		if !strings.Contains(content, ServiceLabel) {
			t.Error("plist missing label")
		}
	case "linux":
		if !strings.Contains(content, "Restart=on-failure") {
			t.Error("unit missing restart policy")
		}
	}
}

func TestUnitPathPerPlatform(t *testing.T) {
	m := &ServiceManager{Binary: "/bin/valet"}
	path, err := m.UnitPath()
	switch runtime.GOOS {
	case "darwin":
		if err != nil || !strings.Contains(path, "LaunchAgents") {
			t.Errorf("path = %q, err = %v", path, err)
		}
	case "linux":
		if err != nil || !strings.Contains(path, "systemd/user") {
			t.Errorf("path = %q, err = %v", path, err)
		}
	default:
		if err == nil {
			t.Error("want error on unsupported platform")
		}
	}
}
