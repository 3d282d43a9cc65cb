// Package api defines the capability surface handed to plugins during
// setup, and the host collaborator interfaces it delegates to.
package api

import "errors"

// ErrNoProvider is returned when a capability call has no backing provider.
var ErrNoProvider = errors.New("api: provider not configured")

// Route describes a route contributed by a plugin.
type Route struct {
	// Name uniquely identifies the route within the host router.
	Name string `json:"name"`

	// Path is the route path.
	Path string `json:"path"`

	// Component names the component rendered for the route.
	Component string `json:"component,omitempty"`

	// Meta carries arbitrary route metadata.
	Meta map[string]any `json:"meta,omitempty"`
}

// MenuItem describes a navigation entry contributed by a plugin.
type MenuItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Icon  string `json:"icon,omitempty"`
	Path  string `json:"path,omitempty"`
	Order int    `json:"order,omitempty"`
}

// Permission describes an access grant contributed by a plugin.
type Permission struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// ComponentProvider registers components with the host.
type ComponentProvider interface {
	RegisterComponent(name string, component any) error
}

// RouteProvider manages routes in the host router.
type RouteProvider interface {
	AddRoute(route Route) error
	RemoveRoute(name string) error
}

// LocaleProvider merges translation messages into the host locale tables.
type LocaleProvider interface {
	MergeLocaleMessages(locale string, messages map[string]any) error
}

// PermissionProvider registers permissions with the host.
type PermissionProvider interface {
	RegisterPermission(perm Permission) error
}

// StoreProvider registers data stores with the host.
type StoreProvider interface {
	RegisterStore(name string, store any) error
}

// ConfigProvider persists per-plugin settings. Keys are dotted paths within
// the plugin's own settings object.
type ConfigProvider interface {
	PluginConfig(pluginID, key string) (any, bool)
	SetPluginConfig(pluginID, key string, value any) error
	ResetPluginConfig(pluginID string) error
}

// Providers bundles the host collaborators consumed by plugin contexts.
// Individual providers may be nil; the corresponding capability calls then
// fail with ErrNoProvider.
type Providers struct {
	Components  ComponentProvider
	Routes      RouteProvider
	Locales     LocaleProvider
	Permissions PermissionProvider
	Stores      StoreProvider
	Config      ConfigProvider
}
