package plugin

// State represents the lifecycle state of a plugin.
type State int

// Plugin states.
const (
	// StateUnregistered - Plugin is not known to the manager.
	StateUnregistered State = iota

	// StateRegistered - Plugin is registered but setup has not run.
	StateRegistered

	// StateLoaded - Setup has run but the plugin is not active.
	StateLoaded

	// StateActive - Plugin is active.
	StateActive
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateLoaded:
		return "loaded"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// IsUsable returns true if the plugin has completed setup (loaded or active).
func (s State) IsUsable() bool {
	return s == StateLoaded || s == StateActive
}
