package config

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, level string) {
	t.Helper()
	content := "[logging]\nlevel = \"" + level + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatch_ReloadOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	writeConfigFile(t, path, "info")

	var mu sync.Mutex
	var lastLevel string
	var reloads atomic.Int32

	w, err := Watch(path, func(cfg *Config) {
		mu.Lock()
		lastLevel = cfg.Logging.Level
		mu.Unlock()
		reloads.Add(1)
	}, WithDebounce(30*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	writeConfigFile(t, path, "debug")

	if !waitFor(t, 3*time.Second, func() bool { return reloads.Load() > 0 }) {
		t.Fatal("did not receive a reload")
	}

	mu.Lock()
	defer mu.Unlock()
	if lastLevel != "debug" {
		t.Errorf("reloaded level = %q, want debug", lastLevel)
	}
}

func TestWatch_RecreatedFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	writeConfigFile(t, path, "info")

	var reloads atomic.Int32
	w, err := Watch(path, func(cfg *Config) {
		reloads.Add(1)
	}, WithDebounce(30*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	// Editors often replace the file rather than writing in place.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	writeConfigFile(t, path, "warn")

	if !waitFor(t, 3*time.Second, func() bool { return reloads.Load() > 0 }) {
		t.Error("did not receive a reload after the file was recreated")
	}
}

func TestWatch_IgnoresSiblingFiles(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	writeConfigFile(t, path, "info")

	var reloads atomic.Int32
	w, err := Watch(path, func(cfg *Config) {
		reloads.Add(1)
	}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	sibling := filepath.Join(tmpDir, "other.toml")
	if err := os.WriteFile(sibling, []byte("x = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(250 * time.Millisecond)
	if got := reloads.Load(); got != 0 {
		t.Errorf("reloads = %d, want 0 for a sibling file change", got)
	}
}

func TestWatch_DebouncedBurst(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	writeConfigFile(t, path, "info")

	var reloads atomic.Int32
	w, err := Watch(path, func(cfg *Config) {
		reloads.Add(1)
	}, WithDebounce(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		writeConfigFile(t, path, "debug")
		time.Sleep(5 * time.Millisecond)
	}

	if !waitFor(t, 3*time.Second, func() bool { return reloads.Load() > 0 }) {
		t.Fatal("did not receive a reload")
	}
	time.Sleep(200 * time.Millisecond)

	if got := reloads.Load(); got >= 5 {
		t.Errorf("reloads = %d, want the burst collapsed", got)
	}
}

func TestWatcher_Path(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	writeConfigFile(t, path, "info")

	w, err := Watch(path, nil)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	if !filepath.IsAbs(w.Path()) {
		t.Errorf("Path() = %q, want an absolute path", w.Path())
	}
}

func TestWatcher_Close(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	writeConfigFile(t, path, "info")

	var reloads atomic.Int32
	w, err := Watch(path, func(cfg *Config) {
		reloads.Add(1)
	}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// Changes after close are dropped.
	writeConfigFile(t, path, "debug")
	time.Sleep(150 * time.Millisecond)
	if got := reloads.Load(); got != 0 {
		t.Errorf("reloads = %d after Close(), want 0", got)
	}
}
