package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.Plugins.AutoActivate {
		t.Error("AutoActivate = false, want true")
	}
	if !cfg.Plugins.ResolveDependencies {
		t.Error("ResolveDependencies = false, want true")
	}
	if cfg.Plugins.StrictDependencies {
		t.Error("StrictDependencies = true, want false")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	content := `
[plugins]
paths = ["/opt/plugins", "/srv/plugins"]
auto_activate = false
strict_dependencies = true
disabled = ["legacy-reports"]

[settings]
path = "/var/lib/plugstorm/settings.json"

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Plugins.Paths) != 2 || cfg.Plugins.Paths[0] != "/opt/plugins" {
		t.Errorf("Paths = %v", cfg.Plugins.Paths)
	}
	if cfg.Plugins.AutoActivate {
		t.Error("AutoActivate = true, want false")
	}
	if !cfg.Plugins.StrictDependencies {
		t.Error("StrictDependencies = false, want true")
	}
	if len(cfg.Plugins.Disabled) != 1 || cfg.Plugins.Disabled[0] != "legacy-reports" {
		t.Errorf("Disabled = %v", cfg.Plugins.Disabled)
	}
	if cfg.Settings.Path != "/var/lib/plugstorm/settings.json" {
		t.Errorf("Settings.Path = %q", cfg.Settings.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for a missing file", err)
	}
	if !cfg.Plugins.AutoActivate {
		t.Error("missing file should yield the defaults")
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"error\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want error", cfg.Logging.Level)
	}

	// Sections the file omits keep their defaults.
	if !cfg.Plugins.AutoActivate || !cfg.Plugins.ResolveDependencies {
		t.Error("plugin defaults were lost")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(path, []byte("[plugins\nbroken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestManagerConfig(t *testing.T) {
	cfg := Default()
	cfg.Plugins.AutoActivate = false
	cfg.Plugins.StrictDependencies = true

	mc := cfg.ManagerConfig()
	if mc.AutoActivate {
		t.Error("AutoActivate = true, want false")
	}
	if !mc.ResolveDependencies {
		t.Error("ResolveDependencies = false, want true")
	}
	if !mc.StrictDependencies {
		t.Error("StrictDependencies = false, want true")
	}
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	if path == "" {
		t.Fatal("DefaultPath() returned empty string")
	}
	if !strings.HasSuffix(path, ".toml") {
		t.Errorf("DefaultPath() = %q, want a .toml file", path)
	}
}
