// Package plugin provides the plugin registry and lifecycle engine for
// Plugstorm.
//
// Plugins extend a host application with components, routes, menu items,
// locale messages, permissions, stores, and shared state. Each plugin
// declares metadata (id, version, dependencies) and supplies lifecycle
// callbacks; the manager drives every plugin through a fixed state
// machine and keeps dependents and dependencies ordered.
//
// # Quick Start
//
//	cfg := plugin.DefaultManagerConfig()
//	mgr := plugin.NewManager(cfg, plugin.WithProviders(providers))
//
//	mgr.Register(ctx, plugin.NewMetadata("greeter", "Greeter"), plugin.Implementation{
//	    Setup: func(ctx context.Context, pc *api.Context) error {
//	        return pc.RegisterComponent("GreeterWidget", widget)
//	    },
//	    Activate: func(ctx context.Context) error {
//	        return nil
//	    },
//	})
//
// # Plugin Lifecycle
//
// Plugins move through three states:
//
//	registered -> Activate() -> [setup once] -> loaded -> active
//	active -> Deactivate() -> loaded
//	any -> Unregister() -> gone
//
// Setup runs exactly once per plugin, the first time it is activated. A
// deactivated plugin keeps its loaded state, so reactivation skips setup.
// A plugin is never active without being loaded.
//
// # Dependencies
//
// Metadata declares dependencies by plugin id. With ResolveDependencies
// configured, activating a plugin first activates its declared
// dependencies, depth first. Dependency cycles always fail activation;
// missing dependencies fail only under StrictDependencies, otherwise they
// are skipped. StrictDependencies also refuses to deactivate a plugin
// while another registered plugin declares a dependency on it.
//
// # Lifecycle Hooks
//
// The manager emits events on an internal bus around every transition
// (hook.BeforeSetup, hook.AfterActivate, ...) and when plugins register
// components, routes, or shared state. Handlers run synchronously in
// subscription order; a panicking handler is logged and skipped. Handlers
// must not call back into the Manager.
//
// # Failure Model
//
// Lifecycle operations return bool. A plugin whose callback returns an
// error or panics fails its own transition; the error is logged and no
// other plugin is affected. Registry queries and the dependency sort
// return errors instead.
//
// # Architecture
//
//   - Manager: registry plus lifecycle engine
//   - resolver: dependency sort, closures, dependents
//   - hook: lifecycle event bus
//   - state: cross-plugin shared state store
//   - api: per-plugin capability context and host provider interfaces
//   - luasrc: plugin Source backed by Lua scripts
package plugin
