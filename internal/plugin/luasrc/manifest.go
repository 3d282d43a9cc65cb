package luasrc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/dshills/plugstorm/internal/plugin"
)

// Manifest describes a Lua plugin on disk. It lives in a plugin.json
// file next to the plugin's entry point.
type Manifest struct {
	// Identity
	ID          string `json:"id"`          // Unique identifier (e.g., "user-admin")
	Name        string `json:"name"`        // Human-readable name
	Version     string `json:"version"`     // Semver (e.g., "1.2.0")
	Description string `json:"description"` // Short description
	Author      string `json:"author"`      // Author name or org

	// Entry point
	Main string `json:"main"` // Relative path to main Lua file (default: "init.lua")

	// Registry metadata
	Dependencies []string       `json:"dependencies"` // Required plugin ids
	Enabled      *bool          `json:"enabled"`      // Defaults to true when absent
	Tags         []string       `json:"tags"`         // Free-form labels
	Settings     map[string]any `json:"settings"`     // Initial plugin settings

	// Internal: path to the plugin directory
	dir string
}

// Validation errors.
var (
	ErrMissingID      = errors.New("manifest: id is required")
	ErrInvalidVersion = errors.New("manifest: version must be valid semver")
	ErrInvalidMain    = errors.New("manifest: main must be a .lua file")
	ErrNoEntryPoint   = errors.New("manifest: no entry point found")
)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// LoadManifest loads and validates a plugin manifest from a file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.dir = filepath.Dir(path)
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// LoadManifestFromDir loads a manifest from a plugin directory.
// Looks for plugin.json in the directory.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, "plugin.json"))
}

// NewManifestMinimal creates a minimal manifest for plugins without a
// plugin.json.
func NewManifestMinimal(id, dir string) *Manifest {
	return &Manifest{
		ID:      id,
		Name:    id,
		Version: "0.0.0",
		Main:    "init.lua",
		dir:     dir,
	}
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = "init.lua"
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
	if m.Name == "" {
		m.Name = m.ID
	}
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}
	if m.Main != "" && filepath.Ext(m.Main) != ".lua" {
		return fmt.Errorf("%w: %s", ErrInvalidMain, m.Main)
	}
	return nil
}

// Dir returns the path to the plugin directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// MainPath returns the full path to the main Lua file.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.dir, m.Main)
}

// Metadata converts the manifest into registry metadata. A manifest
// without an enabled field yields an enabled plugin.
func (m *Manifest) Metadata() plugin.Metadata {
	md := plugin.NewMetadata(m.ID, m.Name)
	md.Version = m.Version
	md.Description = m.Description
	md.Author = m.Author
	md.Dependencies = append([]string(nil), m.Dependencies...)
	md.Tags = append([]string(nil), m.Tags...)
	if m.Enabled != nil {
		md.Enabled = *m.Enabled
	}
	if len(m.Settings) > 0 {
		md.Settings = make(map[string]any, len(m.Settings))
		for k, v := range m.Settings {
			md.Settings[k] = v
		}
	}
	return md
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	return fmt.Sprintf("%s v%s", m.ID, m.Version)
}
