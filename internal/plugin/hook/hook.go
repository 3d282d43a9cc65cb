// Package hook provides the lifecycle event bus for the plugin system.
//
// The bus carries a fixed vocabulary of lifecycle events. Observers
// subscribe with On and receive events synchronously, in subscription
// order, on the emitting goroutine. A panicking handler is isolated:
// the panic is recovered and logged, and remaining handlers still run.
package hook

// Type identifies a lifecycle event.
type Type int

// Lifecycle events. The vocabulary is fixed; the manager and plugin
// contexts are the only emitters.
const (
	// BeforeSetup fires before a plugin's setup callback runs.
	BeforeSetup Type = iota
	// AfterSetup fires after setup completes successfully.
	AfterSetup
	// BeforeActivate fires when activation of a plugin begins.
	BeforeActivate
	// AfterActivate fires after a plugin becomes active.
	AfterActivate
	// BeforeDeactivate fires when deactivation of a plugin begins.
	BeforeDeactivate
	// AfterDeactivate fires after a plugin becomes inactive.
	AfterDeactivate
	// ComponentRegistered fires when a plugin registers a component.
	ComponentRegistered
	// RouteRegistered fires when a plugin registers a route.
	RouteRegistered
	// StateRegistered fires when a plugin creates a shared state entry.
	StateRegistered
	// StateRemoved fires when a shared state entry is dropped.
	StateRemoved
)

// String returns the event name.
func (t Type) String() string {
	switch t {
	case BeforeSetup:
		return "beforeSetup"
	case AfterSetup:
		return "afterSetup"
	case BeforeActivate:
		return "beforeActivate"
	case AfterActivate:
		return "afterActivate"
	case BeforeDeactivate:
		return "beforeDeactivate"
	case AfterDeactivate:
		return "afterDeactivate"
	case ComponentRegistered:
		return "componentRegistered"
	case RouteRegistered:
		return "routeRegistered"
	case StateRegistered:
		return "stateRegistered"
	case StateRemoved:
		return "stateRemoved"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification.
//
// PluginID is always set. Name carries the component name for
// ComponentRegistered, the route name for RouteRegistered, and the state
// namespace for StateRegistered and StateRemoved. Data carries any further
// payload, such as the route path under "path".
type Event struct {
	Type     Type
	PluginID string
	Name     string
	Data     map[string]any
}

// Handler receives events. Handlers must not block; they run on the
// emitting goroutine.
type Handler func(Event)
