package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/plugstorm/internal/app"
	"github.com/dshills/plugstorm/internal/plugin/api"
	"github.com/dshills/plugstorm/internal/plugin/hook"
	pstate "github.com/dshills/plugstorm/internal/plugin/state"
)

// Manager owns the plugin registry and drives every plugin through its
// lifecycle. It is safe for concurrent use: operations on the same plugin
// id are serialized, and registry access never overlaps a plugin callback.
type Manager struct {
	mu sync.RWMutex

	// Registered plugins by id
	plugins map[string]*Record

	// Registration order (for deterministic iteration)
	order []string

	// In-flight lifecycle operations by plugin id (protected by mu)
	claims map[string]chan struct{}

	// Configuration
	config ManagerConfig

	// Host collaborators handed to plugin contexts
	providers    api.Providers
	providersSet bool

	bus     *hook.Bus
	state   *pstate.Store
	log     *app.Logger
	metrics *app.Metrics
}

// ManagerConfig configures the plugin manager.
type ManagerConfig struct {
	// AutoActivate activates plugins as part of registration.
	AutoActivate bool

	// ResolveDependencies activates declared dependencies before their
	// dependents.
	ResolveDependencies bool

	// StrictDependencies fails activation on missing dependencies and
	// blocks deactivation of plugins with registered dependents.
	StrictDependencies bool
}

// DefaultManagerConfig returns sensible default configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		AutoActivate:        true,
		ResolveDependencies: true,
		StrictDependencies:  false,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithProviders supplies the host collaborators. Activation fails until
// providers are set, either here or via SetProviders.
func WithProviders(p api.Providers) Option {
	return func(m *Manager) {
		m.providers = p
		m.providersSet = true
	}
}

// WithLogger sets the manager's logger.
func WithLogger(log *app.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates a new plugin manager.
func NewManager(config ManagerConfig, opts ...Option) *Manager {
	m := &Manager{
		plugins: make(map[string]*Record),
		order:   make([]string, 0),
		claims:  make(map[string]chan struct{}),
		config:  config,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = app.GetLogger()
	}
	m.log = m.log.WithComponent("plugin.manager")
	m.metrics = app.GetMetrics()
	m.bus = hook.NewBus(m.log)
	m.state = pstate.NewStore(m.log)
	return m
}

// SetProviders supplies the host collaborators after construction.
func (m *Manager) SetProviders(p api.Providers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = p
	m.providersSet = true
}

// Hooks returns the lifecycle event bus.
func (m *Manager) Hooks() *hook.Bus {
	return m.bus
}

// State returns the shared plugin state store.
func (m *Manager) State() *pstate.Store {
	return m.state
}

// Metrics returns the lifecycle metrics tracker.
func (m *Manager) Metrics() *app.Metrics {
	return m.metrics
}

// Register adds a plugin to the registry.
//
// Registering an id that already exists is not an error: a warning is
// logged and the existing record is returned unchanged. An empty or
// malformed id fails with ErrInvalidPluginID. When AutoActivate is
// configured and the metadata is enabled, activation is attempted
// immediately; an activation failure does not undo the registration.
func (m *Manager) Register(ctx context.Context, md Metadata, impl Implementation) (*Record, error) {
	if err := md.Validate(); err != nil {
		m.log.Error("register rejected: %v", err)
		return nil, err
	}

	m.mu.Lock()
	if existing, exists := m.plugins[md.ID]; exists {
		m.mu.Unlock()
		m.log.Warn("plugin %q already registered, keeping existing record", md.ID)
		return existing, nil
	}

	rec := &Record{
		Metadata:       md,
		Implementation: impl,
		Status:         Status{InstalledAt: time.Now()},
	}
	m.plugins[md.ID] = rec
	m.order = append(m.order, md.ID)
	m.mu.Unlock()

	m.log.Info("registered plugin %q (version %s)", md.ID, md.Version)

	if m.config.AutoActivate && md.Enabled {
		if !m.Activate(ctx, md.ID) {
			m.log.Warn("auto-activation of plugin %q failed", md.ID)
		}
	}

	return rec, nil
}

// RegisterMany registers a batch of plugins, then restores global
// activation order. A failed registration is logged and skipped; it does
// not block the rest of the batch.
//
// When ResolveDependencies is configured, every plugin activated by the
// batch is deactivated and reactivated following a dependency sort over
// the entire registry, so edges introduced by the batch take effect even
// for plugins that registered before their dependencies.
func (m *Manager) RegisterMany(ctx context.Context, defs []Definition) []*Record {
	records := make([]*Record, 0, len(defs))
	batch := make(map[string]bool, len(defs))
	for _, def := range defs {
		rec, err := m.Register(ctx, def.Metadata, def.Implementation)
		if err != nil {
			continue
		}
		records = append(records, rec)
		batch[rec.ID()] = true
	}

	if !m.config.ResolveDependencies || len(records) == 0 {
		return records
	}

	sorted, err := m.SortedByDependencies()
	if err != nil {
		m.log.Error("batch reorder skipped: %v", err)
		return records
	}

	// Reactivation targets: batch members that are active now, plus
	// enabled ones whose auto-activation may have failed on a dependency
	// that arrived later in the batch.
	reactivate := make(map[string]bool)
	for _, rec := range sorted {
		id := rec.ID()
		if !batch[id] {
			continue
		}
		st, enabled, _ := m.statusOf(id)
		if st.Active || (m.config.AutoActivate && enabled) {
			reactivate[id] = true
		}
	}

	for i := len(sorted) - 1; i >= 0; i-- {
		id := sorted[i].ID()
		if !batch[id] {
			continue
		}
		if st, _, _ := m.statusOf(id); st.Active {
			m.Deactivate(ctx, id)
		}
	}
	for _, rec := range sorted {
		if reactivate[rec.ID()] {
			m.Activate(ctx, rec.ID())
		}
	}

	return records
}

// RegisterFromSource registers every plugin a source yields. A load error
// for one plugin is logged and does not block registering the others.
func (m *Manager) RegisterFromSource(ctx context.Context, src Source) []*Record {
	results := src.LoadAll()
	records := make([]*Record, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			m.log.Error("source %q: %v", src.Name(), res.Err)
			continue
		}
		rec, err := m.Register(ctx, res.Metadata, res.Implementation)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// Activate drives a plugin to the active state.
//
// Setup runs first if it has not run yet; with ResolveDependencies
// configured, declared dependencies are activated before the plugin's own
// activate callback. Failures are logged and reported by the boolean
// return; they never propagate as panics or affect other plugins.
func (m *Manager) Activate(ctx context.Context, id string) bool {
	timer := app.StartTimer()
	ok := m.activate(ctx, id)
	m.metrics.RecordActivation(timer.Elapsed(), ok)
	return ok
}

func (m *Manager) activate(ctx context.Context, id string) bool {
	if !m.ready() {
		m.log.Error("activate %q: %v", id, ErrProvidersNotReady)
		return false
	}

	claimIDs := []string{id}
	if m.config.ResolveDependencies {
		snapshot, exists := m.snapshotFor(id)
		if !exists {
			m.log.Error("activate %q: %v", id, ErrPluginNotFound)
			return false
		}
		chain, err := ResolveDependencies(snapshot, id, m.config.StrictDependencies)
		if err != nil {
			m.log.Error("activate %q: %v", id, err)
			return false
		}
		for _, rec := range chain {
			claimIDs = append(claimIDs, rec.ID())
		}
	}

	release := m.claim(claimIDs)
	defer release()

	return m.doActivate(ctx, id, make(map[string]bool))
}

// doActivate performs the activation sequence for one plugin. The caller
// must hold the claim covering id and its dependency closure. seen guards
// against revisiting a plugin within one activation chain.
func (m *Manager) doActivate(ctx context.Context, id string, seen map[string]bool) bool {
	if seen[id] {
		m.log.Error("activate %q: %v", id, &CycleError{PluginID: id})
		return false
	}
	seen[id] = true

	m.mu.RLock()
	rec, exists := m.plugins[id]
	var active, loaded bool
	var deps []string
	if exists {
		active = rec.Status.Active
		loaded = rec.Status.Loaded
		deps = append([]string(nil), rec.Metadata.Dependencies...)
	}
	m.mu.RUnlock()
	if !exists {
		m.log.Error("activate %q: %v", id, ErrPluginNotFound)
		return false
	}
	if active {
		return true
	}

	m.bus.Emit(hook.Event{Type: hook.BeforeActivate, PluginID: id})

	if !loaded {
		if !m.runSetup(ctx, rec) {
			return false
		}
	}

	if m.config.ResolveDependencies {
		for _, dep := range deps {
			depStatus, _, depExists := m.statusOf(dep)

			if !depExists {
				if m.config.StrictDependencies {
					err := &MissingDependencyError{Dependency: dep, RequiredBy: id}
					m.log.Error("activate %q: %v", id, err)
					return false
				}
				m.log.Debug("plugin %q: skipping missing dependency %q", id, dep)
				continue
			}
			if depStatus.Active {
				continue
			}
			if !m.doActivate(ctx, dep, seen) {
				m.log.Error("activate %q: dependency %q failed", id, dep)
				return false
			}
		}
	}

	if rec.Implementation.Activate != nil {
		if err := m.callback(ctx, rec.Implementation.Activate); err != nil {
			m.log.Error("%v", &CallbackError{PluginID: id, Phase: "activate", Err: err})
			return false
		}
	}

	m.mu.Lock()
	now := time.Now()
	rec.Status.Active = true
	rec.Status.ActivatedAt = &now
	rec.Status.UpdatedAt = &now
	m.mu.Unlock()

	m.bus.Emit(hook.Event{Type: hook.AfterActivate, PluginID: id})
	m.log.Info("activated plugin %q", id)
	return true
}

// runSetup executes the plugin's setup callback once and marks the record
// loaded. The plugin's capability context is created here, bound to its id.
func (m *Manager) runSetup(ctx context.Context, rec *Record) bool {
	id := rec.ID()
	timer := app.StartTimer()
	m.bus.Emit(hook.Event{Type: hook.BeforeSetup, PluginID: id})

	if rec.Implementation.Setup != nil {
		pc := api.NewContext(id, m.providers, m, m.bus, m.state, m.log)
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return rec.Implementation.Setup(ctx, pc)
		}()
		if err != nil {
			m.log.Error("%v", &CallbackError{PluginID: id, Phase: "setup", Err: err})
			return false
		}
	}

	m.mu.Lock()
	rec.Status.Loaded = true
	m.mu.Unlock()

	m.bus.Emit(hook.Event{Type: hook.AfterSetup, PluginID: id})
	m.metrics.RecordSetup(timer.Elapsed())
	return true
}

// Deactivate transitions an active plugin back to loaded.
//
// Under StrictDependencies, deactivation is denied while any registered
// plugin declares a dependency on id, whether or not that dependent is
// active. Callback failures leave the plugin active.
func (m *Manager) Deactivate(ctx context.Context, id string) bool {
	timer := app.StartTimer()

	release := m.claim([]string{id})
	ok := m.doDeactivate(ctx, id)
	release()

	m.metrics.RecordDeactivation(timer.Elapsed(), ok)
	return ok
}

// doDeactivate performs the deactivation sequence. The caller must hold
// the claim for id.
func (m *Manager) doDeactivate(ctx context.Context, id string) bool {
	m.mu.RLock()
	rec, exists := m.plugins[id]
	var active bool
	if exists {
		active = rec.Status.Active
	}
	m.mu.RUnlock()
	if !exists {
		m.log.Error("deactivate %q: %v", id, ErrPluginNotFound)
		return false
	}
	if !active {
		return true
	}

	if m.config.StrictDependencies {
		dependents := DependentsOf(id, m.snapshot(), false)
		if len(dependents) > 0 {
			m.log.Error("deactivate %q: %v: %v", id, ErrHasDependents, dependents)
			return false
		}
	}

	m.bus.Emit(hook.Event{Type: hook.BeforeDeactivate, PluginID: id})

	if rec.Implementation.Deactivate != nil {
		if err := m.callback(ctx, rec.Implementation.Deactivate); err != nil {
			m.log.Error("%v", &CallbackError{PluginID: id, Phase: "deactivate", Err: err})
			return false
		}
	}

	m.mu.Lock()
	now := time.Now()
	rec.Status.Active = false
	rec.Status.UpdatedAt = &now
	m.mu.Unlock()

	m.bus.Emit(hook.Event{Type: hook.AfterDeactivate, PluginID: id})
	m.log.Info("deactivated plugin %q", id)
	return true
}

// Unregister removes a plugin from the registry. An active plugin is
// deactivated first; if that fails, the plugin stays registered. Routes
// the plugin registered are removed from the host, its shared state is
// dropped, and its dispose callback runs.
func (m *Manager) Unregister(ctx context.Context, id string) bool {
	release := m.claim([]string{id})
	defer release()

	m.mu.RLock()
	rec, exists := m.plugins[id]
	var active bool
	var routes []api.Route
	if exists {
		active = rec.Status.Active
		routes = append([]api.Route(nil), rec.Capabilities.Routes...)
	}
	m.mu.RUnlock()
	if !exists {
		m.log.Error("unregister %q: %v", id, ErrPluginNotFound)
		return false
	}

	if active {
		if !m.doDeactivate(ctx, id) {
			m.log.Error("unregister %q: deactivation failed, keeping plugin", id)
			return false
		}
	}

	if m.providers.Routes != nil {
		for _, route := range routes {
			if err := m.providers.Routes.RemoveRoute(route.Name); err != nil {
				m.log.Warn("unregister %q: remove route %q: %v", id, route.Name, err)
			}
		}
	}

	for _, namespace := range m.state.RemovePlugin(id) {
		m.bus.Emit(hook.Event{Type: hook.StateRemoved, PluginID: id, Name: namespace})
	}

	if rec.Implementation.Dispose != nil {
		if err := m.callback(ctx, func(context.Context) error { return rec.Implementation.Dispose() }); err != nil {
			m.log.Warn("%v", &CallbackError{PluginID: id, Phase: "dispose", Err: err})
		}
	}

	m.mu.Lock()
	delete(m.plugins, id)
	m.removeFromOrder(id)
	m.mu.Unlock()

	m.log.Info("unregistered plugin %q", id)
	return true
}

// UpdateMetadata merges a partial metadata change into a plugin. Toggling
// Enabled triggers the matching activation or deactivation, and the result
// of that transition becomes the return value.
func (m *Manager) UpdateMetadata(ctx context.Context, id string, upd MetadataUpdate) bool {
	m.mu.Lock()
	rec, exists := m.plugins[id]
	if !exists {
		m.mu.Unlock()
		m.log.Error("update %q: %v", id, ErrPluginNotFound)
		return false
	}

	md := &rec.Metadata
	wasEnabled := md.Enabled
	if upd.Name != nil {
		md.Name = *upd.Name
	}
	if upd.Version != nil {
		md.Version = *upd.Version
	}
	if upd.Description != nil {
		md.Description = *upd.Description
	}
	if upd.Author != nil {
		md.Author = *upd.Author
	}
	if upd.Dependencies != nil {
		md.Dependencies = append([]string(nil), (*upd.Dependencies)...)
	}
	if upd.Enabled != nil {
		md.Enabled = *upd.Enabled
	}
	if upd.Tags != nil {
		md.Tags = append([]string(nil), (*upd.Tags)...)
	}
	if len(upd.Settings) > 0 {
		if md.Settings == nil {
			md.Settings = make(map[string]any, len(upd.Settings))
		}
		for k, v := range upd.Settings {
			md.Settings[k] = v
		}
	}
	now := time.Now()
	rec.Status.UpdatedAt = &now
	nowEnabled := md.Enabled
	m.mu.Unlock()

	if wasEnabled != nowEnabled {
		if nowEnabled {
			return m.Activate(ctx, id)
		}
		return m.Deactivate(ctx, id)
	}
	return true
}

// ActivateAll activates every enabled plugin in dependency order.
func (m *Manager) ActivateAll(ctx context.Context) error {
	sorted, err := m.SortedByDependencies()
	if err != nil {
		return err
	}

	var activateErrors []error
	for _, rec := range sorted {
		id := rec.ID()
		st, enabled, exists := m.statusOf(id)
		if !exists || !enabled || st.Active {
			continue
		}
		if !m.Activate(ctx, id) {
			activateErrors = append(activateErrors, fmt.Errorf("plugin %q: %w", id, ErrCallbackFailed))
		}
	}

	if len(activateErrors) > 0 {
		return fmt.Errorf("failed to activate %d plugins: %w", len(activateErrors), errors.Join(activateErrors...))
	}
	return nil
}

// DeactivateAll deactivates every active plugin in reverse dependency
// order, so dependents go down before their dependencies.
func (m *Manager) DeactivateAll(ctx context.Context) error {
	sorted, err := m.SortedByDependencies()
	if err != nil {
		return err
	}

	var deactivateErrors []error
	for i := len(sorted) - 1; i >= 0; i-- {
		id := sorted[i].ID()
		st, _, exists := m.statusOf(id)
		if !exists || !st.Active {
			continue
		}
		if !m.Deactivate(ctx, id) {
			deactivateErrors = append(deactivateErrors, fmt.Errorf("plugin %q: %w", id, ErrCallbackFailed))
		}
	}

	if len(deactivateErrors) > 0 {
		return fmt.Errorf("failed to deactivate %d plugins: %w", len(deactivateErrors), errors.Join(deactivateErrors...))
	}
	return nil
}

// Plugin returns a registered plugin by id.
func (m *Manager) Plugin(id string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.plugins[id]
	return rec, exists
}

// Plugins returns all registered plugins in registration order.
func (m *Manager) Plugins() []*Record {
	return m.snapshot()
}

// ActivePlugins returns all active plugins in registration order.
func (m *Manager) ActivePlugins() []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Record, 0)
	for _, id := range m.order {
		if rec, exists := m.plugins[id]; exists && rec.Status.Active {
			result = append(result, rec)
		}
	}
	return result
}

// Count returns the number of registered plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// CountActive returns the number of active plugins.
func (m *Manager) CountActive() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, rec := range m.plugins {
		if rec.Status.Active {
			count++
		}
	}
	return count
}

// SortedByDependencies returns the registry dependency-sorted under the
// manager's strictness setting.
func (m *Manager) SortedByDependencies() ([]*Record, error) {
	return SortByDependencies(m.snapshot(), m.config.StrictDependencies)
}

// DependenciesOf returns the declared or transitive dependency ids of a
// plugin.
func (m *Manager) DependenciesOf(id string, recursive bool) ([]string, bool) {
	m.mu.RLock()
	rec, exists := m.plugins[id]
	m.mu.RUnlock()
	if !exists {
		return nil, false
	}
	return DependenciesOf(rec, m.snapshot(), recursive), true
}

// DependentsOf returns the ids of plugins depending on id, directly or
// transitively.
func (m *Manager) DependentsOf(id string, recursive bool) []string {
	return DependentsOf(id, m.snapshot(), recursive)
}

// RecordComponent attributes a component registration to a plugin.
func (m *Manager) RecordComponent(pluginID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, exists := m.plugins[pluginID]; exists {
		rec.Capabilities.Components = append(rec.Capabilities.Components, name)
	}
}

// RecordRoute attributes a route registration to a plugin.
func (m *Manager) RecordRoute(pluginID string, route api.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, exists := m.plugins[pluginID]; exists {
		rec.Capabilities.Routes = append(rec.Capabilities.Routes, route)
	}
}

// RecordMenuItem attributes a menu item registration to a plugin.
func (m *Manager) RecordMenuItem(pluginID string, item api.MenuItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, exists := m.plugins[pluginID]; exists {
		rec.Capabilities.MenuItems = append(rec.Capabilities.MenuItems, item)
	}
}

// callback invokes a plugin lifecycle function, converting panics to
// errors so a misbehaving plugin cannot take down the manager.
func (m *Manager) callback(ctx context.Context, fn LifecycleFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (m *Manager) ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providersSet
}

// statusOf returns a copy of a plugin's status and its enabled flag.
func (m *Manager) statusOf(id string) (Status, bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.plugins[id]
	if !exists {
		return Status{}, false, false
	}
	return rec.Status, rec.Metadata.Enabled, true
}

// snapshot returns the records in registration order.
func (m *Manager) snapshot() []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Record, 0, len(m.order))
	for _, id := range m.order {
		if rec, exists := m.plugins[id]; exists {
			result = append(result, rec)
		}
	}
	return result
}

// snapshotFor returns the registry snapshot and whether id is registered.
func (m *Manager) snapshotFor(id string) ([]*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.plugins[id]
	result := make([]*Record, 0, len(m.order))
	for _, recID := range m.order {
		if rec, ok := m.plugins[recID]; ok {
			result = append(result, rec)
		}
	}
	return result, exists
}

// claim marks a set of plugin ids as having a lifecycle operation in
// flight and returns the release function. If any id is already claimed,
// claim waits for that operation to finish and retries, holding nothing
// while it waits, so overlapping operations on related plugins serialize
// without lock-order deadlocks.
func (m *Manager) claim(ids []string) func() {
	for {
		m.mu.Lock()
		var busy chan struct{}
		for _, id := range ids {
			if ch, exists := m.claims[id]; exists {
				busy = ch
				break
			}
		}
		if busy == nil {
			done := make(chan struct{})
			for _, id := range ids {
				m.claims[id] = done
			}
			m.mu.Unlock()

			return func() {
				m.mu.Lock()
				for _, id := range ids {
					if m.claims[id] == done {
						delete(m.claims, id)
					}
				}
				m.mu.Unlock()
				close(done)
			}
		}
		m.mu.Unlock()
		<-busy
	}
}

// removeFromOrder removes an id from the registration order slice.
// Must be called with mu held.
func (m *Manager) removeFromOrder(id string) {
	for i, n := range m.order {
		if n == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
