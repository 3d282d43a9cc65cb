// Package host provides in-memory host collaborators for the plugin
// registry: component, route, locale, permission, and store registries.
//
// A real deployment would put a UI framework or HTTP router behind
// these interfaces; the in-memory registry stands in for them and keeps
// everything queryable for display and tests.
package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/language"

	"github.com/dshills/plugstorm/internal/app"
	"github.com/dshills/plugstorm/internal/plugin/api"
)

// Registry errors.
var (
	ErrEmptyName     = errors.New("host: name is required")
	ErrRouteNotFound = errors.New("host: route not found")
)

// Registry is an in-memory implementation of the host provider
// interfaces. Safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	components  map[string]any
	routes      map[string]api.Route
	routeOrder  []string
	locales     map[string]map[string]any
	permissions map[string]api.Permission
	stores      map[string]any

	log *app.Logger
}

// NewRegistry creates an empty host registry.
func NewRegistry() *Registry {
	return &Registry{
		components:  make(map[string]any),
		routes:      make(map[string]api.Route),
		locales:     make(map[string]map[string]any),
		permissions: make(map[string]api.Permission),
		stores:      make(map[string]any),
		log:         app.GetLogger().WithComponent("host"),
	}
}

// Providers bundles the registry with a config provider into the
// provider set handed to the plugin manager.
func (r *Registry) Providers(cfg api.ConfigProvider) api.Providers {
	return api.Providers{
		Components:  r,
		Routes:      r,
		Locales:     r,
		Permissions: r,
		Stores:      r,
		Config:      cfg,
	}
}

// RegisterComponent registers a named component. Registering a name
// again replaces the previous component.
func (r *Registry) RegisterComponent(name string, component any) error {
	if name == "" {
		return fmt.Errorf("register component: %w", ErrEmptyName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[name]; exists {
		r.log.Warn("component %q replaced", name)
	}
	r.components[name] = component
	return nil
}

// Component returns a registered component.
func (r *Registry) Component(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.components[name]
	return c, ok
}

// ComponentNames returns all registered component names, sorted.
func (r *Registry) ComponentNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddRoute adds a route. Adding a name again replaces the route and
// keeps its original position.
func (r *Registry) AddRoute(route api.Route) error {
	if route.Name == "" {
		return fmt.Errorf("add route: %w", ErrEmptyName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[route.Name]; exists {
		r.log.Warn("route %q replaced", route.Name)
	} else {
		r.routeOrder = append(r.routeOrder, route.Name)
	}
	r.routes[route.Name] = route
	return nil
}

// RemoveRoute removes a route by name.
func (r *Registry) RemoveRoute(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[name]; !exists {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, name)
	}
	delete(r.routes, name)
	for i, n := range r.routeOrder {
		if n == name {
			r.routeOrder = append(r.routeOrder[:i], r.routeOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Route returns a route by name.
func (r *Registry) Route(name string) (api.Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[name]
	return route, ok
}

// Routes returns all routes in the order they were added.
func (r *Registry) Routes() []api.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]api.Route, 0, len(r.routeOrder))
	for _, name := range r.routeOrder {
		if route, ok := r.routes[name]; ok {
			routes = append(routes, route)
		}
	}
	return routes
}

// AccessibleRoutes returns the routes the checker grants access to, in
// the order they were added. A route declares its requirement under
// Meta["permission"]; routes without one are public.
func (r *Registry) AccessibleRoutes(access *AccessChecker) []api.Route {
	routes := r.Routes()

	accessible := make([]api.Route, 0, len(routes))
	for _, route := range routes {
		required, _ := route.Meta["permission"].(string)
		if required != "" && !access.Has(required) {
			continue
		}
		accessible = append(accessible, route)
	}
	return accessible
}

// MergeLocaleMessages deep-merges messages into a locale's table. The
// locale must be a well-formed BCP 47 tag; it is stored canonicalized,
// so "en_US" and "en-US" land in the same table.
func (r *Registry) MergeLocaleMessages(locale string, messages map[string]any) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	canonical := tag.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.locales[canonical]
	if !ok {
		existing = make(map[string]any)
		r.locales[canonical] = existing
	}
	deepMerge(existing, messages)
	return nil
}

// LocaleMessages returns a copy of a locale's message table.
func (r *Registry) LocaleMessages(locale string) (map[string]any, bool) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	messages, ok := r.locales[tag.String()]
	if !ok {
		return nil, false
	}
	return copyMap(messages), true
}

// Locales returns all locales with messages, sorted.
func (r *Registry) Locales() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	locales := make([]string, 0, len(r.locales))
	for locale := range r.locales {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	return locales
}

// RegisterPermission registers a permission. Registering an id again
// replaces the previous permission.
func (r *Registry) RegisterPermission(perm api.Permission) error {
	if perm.ID == "" {
		return fmt.Errorf("register permission: %w", ErrEmptyName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.permissions[perm.ID]; exists {
		r.log.Warn("permission %q replaced", perm.ID)
	}
	r.permissions[perm.ID] = perm
	return nil
}

// Permissions returns all permissions, sorted by id.
func (r *Registry) Permissions() []api.Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perms := make([]api.Permission, 0, len(r.permissions))
	for _, perm := range r.permissions {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms
}

// RegisterStore registers a named data store. Registering a name again
// replaces the previous store.
func (r *Registry) RegisterStore(name string, store any) error {
	if name == "" {
		return fmt.Errorf("register store: %w", ErrEmptyName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[name]; exists {
		r.log.Warn("store %q replaced", name)
	}
	r.stores[name] = store
	return nil
}

// Store returns a registered data store.
func (r *Registry) Store(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stores[name]
	return s, ok
}

// StoreNames returns all registered store names, sorted.
func (r *Registry) StoreNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// deepMerge merges src into dst. Nested maps merge recursively; every
// other value in src replaces the one in dst.
func deepMerge(dst, src map[string]any) {
	for key, srcVal := range src {
		if srcMap, srcOK := srcVal.(map[string]any); srcOK {
			if dstMap, dstOK := dst[key].(map[string]any); dstOK {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}

// copyMap returns a deep copy of a message table.
func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for key, val := range src {
		if m, ok := val.(map[string]any); ok {
			dst[key] = copyMap(m)
			continue
		}
		dst[key] = val
	}
	return dst
}

// Interface checks.
var (
	_ api.ComponentProvider  = (*Registry)(nil)
	_ api.RouteProvider      = (*Registry)(nil)
	_ api.LocaleProvider     = (*Registry)(nil)
	_ api.PermissionProvider = (*Registry)(nil)
	_ api.StoreProvider      = (*Registry)(nil)
)
