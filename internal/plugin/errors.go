package plugin

import (
	"errors"
	"fmt"
)

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when a plugin cannot be located.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrInvalidPluginID is returned when a plugin id is empty or malformed.
	ErrInvalidPluginID = errors.New("invalid plugin id")

	// ErrCyclicDependency is returned when plugins have circular dependencies.
	ErrCyclicDependency = errors.New("cyclic plugin dependency detected")

	// ErrMissingDependency is returned when a required dependency is absent
	// from the registry and strict mode is enabled.
	ErrMissingDependency = errors.New("plugin dependency not found")

	// ErrProvidersNotReady is returned when activation is attempted before
	// host providers were supplied to the manager.
	ErrProvidersNotReady = errors.New("host providers not configured")

	// ErrHasDependents is returned when strict mode blocks deactivation of a
	// plugin that other registered plugins depend on.
	ErrHasDependents = errors.New("plugin has registered dependents")

	// ErrCallbackFailed is returned when a plugin's own lifecycle callback
	// fails or panics.
	ErrCallbackFailed = errors.New("plugin callback failed")
)

// CycleError reports a dependency cycle detected during sorting.
// It identifies the plugin at which the cycle was entered.
type CycleError struct {
	PluginID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic plugin dependency detected at %q", e.PluginID)
}

// Is reports whether target matches ErrCyclicDependency.
func (e *CycleError) Is(target error) bool {
	return target == ErrCyclicDependency
}

// MissingDependencyError reports an absent dependency under strict mode.
type MissingDependencyError struct {
	Dependency string
	RequiredBy string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("plugin dependency %q required by %q not found", e.Dependency, e.RequiredBy)
}

// Is reports whether target matches ErrMissingDependency.
func (e *MissingDependencyError) Is(target error) bool {
	return target == ErrMissingDependency
}

// CallbackError wraps a failure from a plugin's setup, activate, deactivate,
// or dispose callback.
type CallbackError struct {
	PluginID string
	Phase    string
	Err      error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("plugin %q: %s failed: %v", e.PluginID, e.Phase, e.Err)
}

// Unwrap returns the underlying callback error.
func (e *CallbackError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches ErrCallbackFailed.
func (e *CallbackError) Is(target error) bool {
	return target == ErrCallbackFailed
}
