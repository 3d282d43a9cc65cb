package api

import (
	"fmt"

	"github.com/dshills/plugstorm/internal/app"
	"github.com/dshills/plugstorm/internal/plugin/hook"
	pstate "github.com/dshills/plugstorm/internal/plugin/state"
)

// Recorder tracks what a plugin registered. The manager implements it so
// registrations land on the owning plugin's record. Defined here to avoid
// an import cycle with the manager package.
type Recorder interface {
	RecordComponent(pluginID, name string)
	RecordRoute(pluginID string, route Route)
	RecordMenuItem(pluginID string, item MenuItem)
}

// Context is the capability object handed to a plugin's setup callback.
//
// One Context is built per plugin when its setup runs, closing over the
// plugin id. Every registration made through it is attributed to that
// plugin: delegated to the host provider, recorded on the plugin's record,
// and announced on the hook bus.
type Context struct {
	pluginID  string
	providers Providers
	recorder  Recorder
	bus       *hook.Bus
	state     *pstate.Store
	log       *app.Logger
}

// NewContext builds the capability context for one plugin.
func NewContext(pluginID string, providers Providers, recorder Recorder, bus *hook.Bus, state *pstate.Store, log *app.Logger) *Context {
	if log == nil {
		log = app.GetLogger()
	}
	return &Context{
		pluginID:  pluginID,
		providers: providers,
		recorder:  recorder,
		bus:       bus,
		state:     state,
		log:       log.WithComponent("plugin.api").WithField("plugin", pluginID),
	}
}

// PluginID returns the id of the plugin this context belongs to.
func (c *Context) PluginID() string {
	return c.pluginID
}

// Logger returns a logger scoped to the plugin.
func (c *Context) Logger() *app.Logger {
	return c.log
}

// RegisterComponent registers a named component with the host.
func (c *Context) RegisterComponent(name string, component any) error {
	if c.providers.Components == nil {
		return fmt.Errorf("register component %q: %w", name, ErrNoProvider)
	}
	if err := c.providers.Components.RegisterComponent(name, component); err != nil {
		return fmt.Errorf("register component %q: %w", name, err)
	}

	if c.recorder != nil {
		c.recorder.RecordComponent(c.pluginID, name)
	}
	c.emit(hook.Event{Type: hook.ComponentRegistered, PluginID: c.pluginID, Name: name})
	return nil
}

// RegisterRoute adds a route to the host router.
func (c *Context) RegisterRoute(route Route) error {
	if c.providers.Routes == nil {
		return fmt.Errorf("register route %q: %w", route.Name, ErrNoProvider)
	}
	if err := c.providers.Routes.AddRoute(route); err != nil {
		return fmt.Errorf("register route %q: %w", route.Name, err)
	}

	if c.recorder != nil {
		c.recorder.RecordRoute(c.pluginID, route)
	}
	c.emit(hook.Event{
		Type:     hook.RouteRegistered,
		PluginID: c.pluginID,
		Name:     route.Name,
		Data:     map[string]any{"path": route.Path},
	})
	return nil
}

// RegisterMenuItem records a navigation entry for the plugin.
func (c *Context) RegisterMenuItem(item MenuItem) error {
	if item.ID == "" {
		return fmt.Errorf("register menu item: id is required")
	}
	if c.recorder != nil {
		c.recorder.RecordMenuItem(c.pluginID, item)
	}
	return nil
}

// RegisterLocale merges translation messages into the host locale tables.
func (c *Context) RegisterLocale(locale string, messages map[string]any) error {
	if c.providers.Locales == nil {
		return fmt.Errorf("register locale %q: %w", locale, ErrNoProvider)
	}
	if err := c.providers.Locales.MergeLocaleMessages(locale, messages); err != nil {
		return fmt.Errorf("register locale %q: %w", locale, err)
	}
	return nil
}

// RegisterPermission registers a permission with the host.
func (c *Context) RegisterPermission(perm Permission) error {
	if c.providers.Permissions == nil {
		return fmt.Errorf("register permission %q: %w", perm.ID, ErrNoProvider)
	}
	if err := c.providers.Permissions.RegisterPermission(perm); err != nil {
		return fmt.Errorf("register permission %q: %w", perm.ID, err)
	}
	return nil
}

// RegisterStore registers a named data store with the host.
func (c *Context) RegisterStore(name string, store any) error {
	if c.providers.Stores == nil {
		return fmt.Errorf("register store %q: %w", name, ErrNoProvider)
	}
	if err := c.providers.Stores.RegisterStore(name, store); err != nil {
		return fmt.Errorf("register store %q: %w", name, err)
	}
	return nil
}

// RegisterState creates a shared state entry owned by the plugin and
// returns the stored value. If the namespace already exists, the existing
// value is returned and the new one is discarded.
func (c *Context) RegisterState(namespace string, value any) any {
	current, created := c.state.Register(c.pluginID, namespace, value)
	if created {
		c.emit(hook.Event{Type: hook.StateRegistered, PluginID: c.pluginID, Name: namespace})
	}
	return current
}

// PluginState returns the shared state of any plugin.
func (c *Context) PluginState(pluginID, namespace string) (any, bool) {
	return c.state.Get(pluginID, namespace)
}

// HasPluginState reports whether a shared state entry exists.
func (c *Context) HasPluginState(pluginID, namespace string) bool {
	return c.state.Has(pluginID, namespace)
}

// SetState replaces one of the plugin's own state values and notifies
// subscribers. Only the owning plugin can write through its context.
func (c *Context) SetState(namespace string, value any) bool {
	return c.state.Set(c.pluginID, namespace, value)
}

// SubscribeToState watches any plugin's state entry for changes. The
// listener receives (newValue, oldValue) on every update. The returned
// function unsubscribes; calling it twice is safe.
func (c *Context) SubscribeToState(pluginID, namespace string, listener pstate.Listener) (func(), bool) {
	return c.state.Subscribe(pluginID, namespace, listener)
}

// Config returns one of the plugin's persisted settings.
func (c *Context) Config(key string) (any, bool) {
	if c.providers.Config == nil {
		return nil, false
	}
	return c.providers.Config.PluginConfig(c.pluginID, key)
}

// SetConfig stores one of the plugin's persisted settings.
func (c *Context) SetConfig(key string, value any) error {
	if c.providers.Config == nil {
		return fmt.Errorf("set config %q: %w", key, ErrNoProvider)
	}
	return c.providers.Config.SetPluginConfig(c.pluginID, key, value)
}

// ResetConfig removes all of the plugin's persisted settings.
func (c *Context) ResetConfig() error {
	if c.providers.Config == nil {
		return fmt.Errorf("reset config: %w", ErrNoProvider)
	}
	return c.providers.Config.ResetPluginConfig(c.pluginID)
}

func (c *Context) emit(event hook.Event) {
	if c.bus != nil {
		c.bus.Emit(event)
	}
}
