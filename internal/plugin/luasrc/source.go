// Package luasrc loads plugins written as Lua scripts.
//
// A Lua plugin is a directory containing an optional plugin.json
// manifest and an entry point (init.lua by default), or a bare
// name.lua file. The script may define global setup(settings),
// activate(), and deactivate() functions and talks to the host through
// the global storm table installed before it runs.
package luasrc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dshills/plugstorm/internal/app"
	"github.com/dshills/plugstorm/internal/plugin"
)

// Source discovers Lua plugins in a list of search paths and yields
// them for registration. When the same plugin id appears in several
// paths, the first path wins.
type Source struct {
	paths       []string
	log         *app.Logger
	callTimeout time.Duration
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithPaths sets the plugin search paths.
func WithPaths(paths ...string) SourceOption {
	return func(s *Source) {
		s.paths = paths
	}
}

// WithLogger sets the source's logger.
func WithLogger(log *app.Logger) SourceOption {
	return func(s *Source) {
		s.log = log
	}
}

// WithCallTimeout bounds each call into a plugin script. Zero disables
// the limit.
func WithCallTimeout(d time.Duration) SourceOption {
	return func(s *Source) {
		s.callTimeout = d
	}
}

// NewSource creates a Lua plugin source.
func NewSource(opts ...SourceOption) *Source {
	s := &Source{
		paths:       DefaultPluginPaths(),
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = app.GetLogger()
	}
	s.log = s.log.WithComponent("plugin.luasrc")
	return s
}

// DefaultPluginPaths returns the default plugin search paths.
func DefaultPluginPaths() []string {
	paths := make([]string, 0, 3)

	// User plugins: ~/.config/plugstorm/plugins/
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "plugstorm", "plugins"))
	}

	// User data plugins: ~/.local/share/plugstorm/plugins/
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".local", "share", "plugstorm", "plugins"))
	}

	// Project plugins: .plugstorm/plugins/
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".plugstorm", "plugins"))
	}

	return paths
}

// Paths returns the configured search paths.
func (s *Source) Paths() []string {
	return s.paths
}

// Name identifies the source in logs.
func (s *Source) Name() string {
	return "lua"
}

// LoadAll discovers every Lua plugin in the search paths and prepares
// it for registration. A broken plugin yields a LoadResult carrying its
// error; it never blocks the others.
func (s *Source) LoadAll() []plugin.LoadResult {
	manifests, broken := s.discover()

	results := make([]plugin.LoadResult, 0, len(manifests)+len(broken))
	for _, m := range manifests {
		run := newRunner(m, s.log, s.callTimeout)
		results = append(results, plugin.LoadResult{
			Metadata:       m.Metadata(),
			Implementation: run.implementation(),
		})
	}
	results = append(results, broken...)

	sort.Slice(results, func(i, j int) bool {
		return results[i].Metadata.ID < results[j].Metadata.ID
	})
	return results
}

// discover walks the search paths and collects manifests. Returns the
// valid manifests plus load results for plugins that failed to load.
func (s *Source) discover() ([]*Manifest, []plugin.LoadResult) {
	found := make(map[string]*Manifest)
	var broken []plugin.LoadResult

	for _, basePath := range s.paths {
		entries, err := os.ReadDir(basePath)
		if err != nil {
			// Missing paths are not errors
			if !os.IsNotExist(err) {
				s.log.Warn("cannot read plugin path %s: %v", basePath, err)
			}
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				// Single-file plugins (name.lua)
				if filepath.Ext(entry.Name()) == ".lua" {
					id := strings.TrimSuffix(entry.Name(), ".lua")
					if _, exists := found[id]; exists {
						continue
					}
					m := NewManifestMinimal(id, basePath)
					m.Main = entry.Name()
					found[id] = m
				}
				continue
			}

			dir := filepath.Join(basePath, entry.Name())
			m, err := s.inspect(entry.Name(), dir)
			if err != nil {
				s.log.Error("plugin at %s: %v", dir, err)
				broken = append(broken, plugin.LoadResult{
					Metadata: plugin.Metadata{ID: entry.Name()},
					Err:      fmt.Errorf("plugin at %s: %w", dir, err),
				})
				continue
			}
			if _, exists := found[m.ID]; exists {
				continue
			}
			found[m.ID] = m
		}
	}

	manifests := make([]*Manifest, 0, len(found))
	for _, m := range found {
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].ID < manifests[j].ID
	})
	return manifests, broken
}

// inspect examines a plugin directory and returns its manifest.
func (s *Source) inspect(name, dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, "plugin.json")
	if _, err := os.Stat(manifestPath); err == nil {
		m, err := LoadManifest(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("invalid manifest: %w", err)
		}
		return m, nil
	}

	// No manifest - check for init.lua
	if _, err := os.Stat(filepath.Join(dir, "init.lua")); err == nil {
		return NewManifestMinimal(name, dir), nil
	}

	// Check for plugin.lua (alternative entry point)
	if _, err := os.Stat(filepath.Join(dir, "plugin.lua")); err == nil {
		m := NewManifestMinimal(name, dir)
		m.Main = "plugin.lua"
		return m, nil
	}

	return nil, ErrNoEntryPoint
}
