package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSettings(t *testing.T) {
	s := NewSettings()

	if _, ok := s.PluginConfig("alpha", "volume"); ok {
		t.Error("empty store reported a value")
	}
	if got := string(s.Document()); got != "{}" {
		t.Errorf("Document() = %q, want {}", got)
	}
}

func TestSettings_SetGet(t *testing.T) {
	s := NewSettings()

	if err := s.SetPluginConfig("alpha", "volume", 11); err != nil {
		t.Fatalf("SetPluginConfig() error = %v", err)
	}

	value, ok := s.PluginConfig("alpha", "volume")
	if !ok {
		t.Fatal("PluginConfig() ok = false, want true")
	}
	if value != float64(11) {
		t.Errorf("value = %v (%T), want 11", value, value)
	}
}

func TestSettings_NestedKeys(t *testing.T) {
	s := NewSettings()

	if err := s.SetPluginConfig("alpha", "display.theme", "dark"); err != nil {
		t.Fatalf("SetPluginConfig() error = %v", err)
	}
	if err := s.SetPluginConfig("alpha", "display.columns", 3); err != nil {
		t.Fatalf("SetPluginConfig() error = %v", err)
	}

	theme, ok := s.PluginConfig("alpha", "display.theme")
	if !ok || theme != "dark" {
		t.Errorf("display.theme = %v, %v, want dark, true", theme, ok)
	}

	display, ok := s.PluginConfig("alpha", "display")
	if !ok {
		t.Fatal("display object not found")
	}
	obj, ok := display.(map[string]any)
	if !ok {
		t.Fatalf("display = %T, want map", display)
	}
	if obj["columns"] != float64(3) {
		t.Errorf("display.columns = %v, want 3", obj["columns"])
	}
}

func TestSettings_UnknownKey(t *testing.T) {
	s := NewSettings()
	_ = s.SetPluginConfig("alpha", "volume", 11)

	if _, ok := s.PluginConfig("alpha", "missing"); ok {
		t.Error("unknown key reported a value")
	}
	if _, ok := s.PluginConfig("ghost", "volume"); ok {
		t.Error("unknown plugin reported a value")
	}
}

func TestSettings_PluginIsolation(t *testing.T) {
	s := NewSettings()
	_ = s.SetPluginConfig("alpha", "volume", 1)
	_ = s.SetPluginConfig("beta", "volume", 2)

	a, _ := s.PluginConfig("alpha", "volume")
	b, _ := s.PluginConfig("beta", "volume")
	if a != float64(1) || b != float64(2) {
		t.Errorf("alpha=%v beta=%v, want 1 and 2", a, b)
	}
}

func TestSettings_Reset(t *testing.T) {
	s := NewSettings()
	_ = s.SetPluginConfig("alpha", "volume", 1)
	_ = s.SetPluginConfig("beta", "volume", 2)

	if err := s.ResetPluginConfig("alpha"); err != nil {
		t.Fatalf("ResetPluginConfig() error = %v", err)
	}

	if _, ok := s.PluginConfig("alpha", "volume"); ok {
		t.Error("alpha settings survived the reset")
	}
	if _, ok := s.PluginConfig("beta", "volume"); !ok {
		t.Error("beta settings were lost")
	}
}

func TestSettings_ResetUnknown(t *testing.T) {
	s := NewSettings()
	if err := s.ResetPluginConfig("ghost"); err != nil {
		t.Errorf("ResetPluginConfig() error = %v, want nil", err)
	}
}

func TestSettings_Seed(t *testing.T) {
	s := NewSettings()
	_ = s.SetPluginConfig("alpha", "volume", 7)

	err := s.Seed("alpha", map[string]any{
		"volume": 1,
		"theme":  "dark",
	})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	// Existing values win; absent keys are filled in.
	volume, _ := s.PluginConfig("alpha", "volume")
	if volume != float64(7) {
		t.Errorf("volume = %v, want the existing 7", volume)
	}
	theme, ok := s.PluginConfig("alpha", "theme")
	if !ok || theme != "dark" {
		t.Errorf("theme = %v, %v, want dark, true", theme, ok)
	}
}

func TestSettings_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "settings.json")

	s, err := OpenSettings(path)
	if err != nil {
		t.Fatalf("OpenSettings() error = %v", err)
	}
	if err := s.SetPluginConfig("alpha", "volume", 11); err != nil {
		t.Fatalf("SetPluginConfig() error = %v", err)
	}

	// The write landed on disk.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("settings file was not created: %v", err)
	}

	reopened, err := OpenSettings(path)
	if err != nil {
		t.Fatalf("OpenSettings() reopen error = %v", err)
	}
	value, ok := reopened.PluginConfig("alpha", "volume")
	if !ok || value != float64(11) {
		t.Errorf("reopened value = %v, %v, want 11, true", value, ok)
	}
}

func TestOpenSettings_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "settings.json")

	s, err := OpenSettings(path)
	if err != nil {
		t.Fatalf("OpenSettings() error = %v", err)
	}
	if err := s.SetPluginConfig("alpha", "volume", 1); err != nil {
		t.Fatalf("SetPluginConfig() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("settings file was not created: %v", err)
	}
}

func TestOpenSettings_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenSettings(path); err == nil {
		t.Error("OpenSettings() error = nil, want invalid JSON error")
	}
}

func TestOpenSettings_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	s, err := OpenSettings(path)
	if err != nil {
		t.Fatalf("OpenSettings() error = %v", err)
	}
	if _, ok := s.PluginConfig("alpha", "volume"); ok {
		t.Error("empty file produced values")
	}
}

func TestSettings_DocumentCopy(t *testing.T) {
	s := NewSettings()
	_ = s.SetPluginConfig("alpha", "volume", 1)

	doc := s.Document()
	if !strings.Contains(string(doc), "alpha") {
		t.Fatalf("Document() = %s", doc)
	}

	// Mutating the copy leaves the store untouched.
	doc[0] = 'X'
	if _, ok := s.PluginConfig("alpha", "volume"); !ok {
		t.Error("store was corrupted through the returned document")
	}
}
