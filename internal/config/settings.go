package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/plugstorm/internal/app"
)

// Settings persists per-plugin settings as a single JSON document, keyed
// by plugin id. Keys within a plugin may be dotted paths, addressing
// nested values. Settings implements the plugin config provider.
type Settings struct {
	mu   sync.RWMutex
	path string
	doc  []byte
	log  *app.Logger
}

// NewSettings creates an in-memory settings store.
func NewSettings() *Settings {
	return &Settings{
		doc: []byte("{}"),
		log: app.GetLogger().WithComponent("config.settings"),
	}
}

// OpenSettings loads a settings store backed by a JSON file. A missing
// file starts an empty store; it is created on first write.
func OpenSettings(path string) (*Settings, error) {
	s := NewSettings()
	s.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if len(data) == 0 {
		return s, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("settings file %s: invalid JSON", path)
	}

	s.doc = data
	return s, nil
}

// PluginConfig returns one of a plugin's settings.
func (s *Settings) PluginConfig(pluginID, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := gjson.GetBytes(s.doc, pluginID+"."+key)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// SetPluginConfig stores one of a plugin's settings and saves the store.
func (s *Settings) SetPluginConfig(pluginID, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.SetBytes(s.doc, pluginID+"."+key, value)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", pluginID, key, err)
	}
	s.doc = doc
	return s.save()
}

// ResetPluginConfig removes all of a plugin's settings and saves the
// store.
func (s *Settings) ResetPluginConfig(pluginID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !gjson.GetBytes(s.doc, pluginID).Exists() {
		return nil
	}

	doc, err := sjson.DeleteBytes(s.doc, pluginID)
	if err != nil {
		return fmt.Errorf("reset %s: %w", pluginID, err)
	}
	s.doc = doc
	return s.save()
}

// Seed stores defaults for keys a plugin does not have yet. Existing
// values always win.
func (s *Settings) Seed(pluginID string, defaults map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for key, value := range defaults {
		if gjson.GetBytes(s.doc, pluginID+"."+key).Exists() {
			continue
		}
		doc, err := sjson.SetBytes(s.doc, pluginID+"."+key, value)
		if err != nil {
			return fmt.Errorf("seed %s.%s: %w", pluginID, key, err)
		}
		s.doc = doc
		changed = true
	}

	if !changed {
		return nil
	}
	return s.save()
}

// Document returns a copy of the raw settings JSON.
func (s *Settings) Document() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.doc...)
}

// save writes the document to disk. In-memory stores skip it. Caller
// must hold mu.
func (s *Settings) save() error {
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, s.doc, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
