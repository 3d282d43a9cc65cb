package plugin

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/dshills/plugstorm/internal/plugin/api"
)

// idPattern validates plugin ids: lowercase alphanumeric with hyphens.
var idPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

// Metadata describes a plugin. It is supplied by the plugin author and is
// immutable after registration except through Manager.UpdateMetadata.
type Metadata struct {
	// ID uniquely identifies the plugin. Primary key of the registry.
	ID string `json:"id"`

	// Name is the human-readable plugin name.
	Name string `json:"name"`

	// Version is the plugin version.
	Version string `json:"version,omitempty"`

	// Description is a short summary of what the plugin does.
	Description string `json:"description,omitempty"`

	// Author identifies the plugin developer.
	Author string `json:"author,omitempty"`

	// Dependencies lists ids of plugins that must activate first,
	// in declaration order.
	Dependencies []string `json:"dependencies,omitempty"`

	// Enabled controls whether the plugin participates in auto-activation.
	Enabled bool `json:"enabled"`

	// Tags categorize the plugin.
	Tags []string `json:"tags,omitempty"`

	// Settings holds author-defined default settings.
	Settings map[string]any `json:"settings,omitempty"`
}

// NewMetadata creates enabled metadata with the given id and name.
func NewMetadata(id, name string) Metadata {
	return Metadata{
		ID:      id,
		Name:    name,
		Enabled: true,
	}
}

// Validate checks that the metadata identifies a registrable plugin.
func (md *Metadata) Validate() error {
	if md.ID == "" {
		return ErrInvalidPluginID
	}
	if !idPattern.MatchString(md.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidPluginID, md.ID)
	}
	return nil
}

// MetadataUpdate is a partial metadata change. Nil fields are left untouched.
type MetadataUpdate struct {
	Name         *string
	Version      *string
	Description  *string
	Author       *string
	Dependencies *[]string
	Enabled      *bool
	Tags         *[]string
	Settings     map[string]any
}

// SetupFunc runs once in a plugin's lifetime. It receives a capability
// context scoped to the plugin and is expected to register what the plugin
// contributes to the host.
type SetupFunc func(ctx context.Context, pc *api.Context) error

// LifecycleFunc runs on every activation or deactivation.
type LifecycleFunc func(ctx context.Context) error

// Implementation holds a plugin's optional lifecycle callbacks.
// Any of them may be nil. The manager always waits for a callback to
// return before continuing the transition.
type Implementation struct {
	// Setup runs at most once, before the first activation.
	Setup SetupFunc

	// Activate runs on every activation, after dependencies are active.
	Activate LifecycleFunc

	// Deactivate runs on every deactivation.
	Deactivate LifecycleFunc

	// Dispose releases plugin resources during unregistration.
	Dispose func() error
}

// Status is the run state of a registered plugin, owned by the Manager.
type Status struct {
	// Loaded marks that Setup has executed.
	Loaded bool

	// Active marks that the plugin is currently activated.
	Active bool

	// InstalledAt is when the plugin was registered.
	InstalledAt time.Time

	// ActivatedAt is when the plugin last activated.
	ActivatedAt *time.Time

	// UpdatedAt is when metadata or activation state last changed.
	UpdatedAt *time.Time
}

// Capabilities records what a plugin registered with the host, appended by
// the plugin's context during setup. Used for inspection and cleanup.
type Capabilities struct {
	Components []string
	Routes     []api.Route
	MenuItems  []api.MenuItem
}

// Record is one plugin registered with the manager.
type Record struct {
	Metadata       Metadata
	Implementation Implementation
	Status         Status
	Capabilities   Capabilities
}

// ID returns the plugin id.
func (r *Record) ID() string {
	return r.Metadata.ID
}

// State derives the lifecycle state from the status flags.
func (r *Record) State() State {
	switch {
	case r.Status.Active:
		return StateActive
	case r.Status.Loaded:
		return StateLoaded
	default:
		return StateRegistered
	}
}
