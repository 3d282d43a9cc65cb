// Package state implements the shared plugin state store: values keyed by
// (plugin id, namespace) with synchronous change notification.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/dshills/plugstorm/internal/app"
)

// Listener receives the new and previous value after a state change.
type Listener func(newValue, oldValue any)

type key struct {
	pluginID  string
	namespace string
}

type entry struct {
	value     any
	listeners map[uint64]Listener
}

// Store holds shared state for all plugins. Mutation happens only through
// Set; every Set fans out synchronously to the entry's listeners with the
// new and old values.
type Store struct {
	mu      sync.RWMutex
	entries map[key]*entry
	nextID  atomic.Uint64
	log     *app.Logger
}

// NewStore creates an empty store. A nil logger falls back to the
// application logger.
func NewStore(log *app.Logger) *Store {
	if log == nil {
		log = app.GetLogger()
	}
	return &Store{
		entries: make(map[key]*entry),
		log:     log.WithComponent("plugin.state"),
	}
}

// Register creates a state entry for (pluginID, namespace). If the entry
// already exists, the existing value is returned unchanged and created is
// false; the caller's value is discarded with a logged warning.
func (s *Store) Register(pluginID, namespace string, value any) (current any, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{pluginID: pluginID, namespace: namespace}
	if existing, exists := s.entries[k]; exists {
		s.log.Warn("state %s/%s already registered, keeping existing value", pluginID, namespace)
		return existing.value, false
	}

	s.entries[k] = &entry{
		value:     value,
		listeners: make(map[uint64]Listener),
	}
	return value, true
}

// Get returns the value for (pluginID, namespace).
func (s *Store) Get(pluginID, namespace string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[key{pluginID: pluginID, namespace: namespace}]
	if !exists {
		return nil, false
	}
	return e.value, true
}

// Has reports whether (pluginID, namespace) exists.
func (s *Store) Has(pluginID, namespace string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.entries[key{pluginID: pluginID, namespace: namespace}]
	return exists
}

// Set replaces the value for an existing entry and notifies its listeners
// synchronously with (newValue, oldValue). Setting an unregistered key
// returns false without creating it.
func (s *Store) Set(pluginID, namespace string, value any) bool {
	s.mu.Lock()
	k := key{pluginID: pluginID, namespace: namespace}
	e, exists := s.entries[k]
	if !exists {
		s.mu.Unlock()
		return false
	}

	oldValue := e.value
	e.value = value

	// Snapshot listeners so delivery happens outside the lock.
	listeners := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		s.notify(l, pluginID, namespace, value, oldValue)
	}
	return true
}

// notify calls one listener with panic recovery.
func (s *Store) notify(l Listener, pluginID, namespace string, newValue, oldValue any) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("state listener panic on %s/%s: %v", pluginID, namespace, r)
		}
	}()
	l(newValue, oldValue)
}

// Subscribe registers a change listener for (pluginID, namespace) and
// returns its unsubscribe function. Calling the returned function twice is
// a no-op the second time. Subscribing to an unregistered key returns
// false.
func (s *Store) Subscribe(pluginID, namespace string, listener Listener) (func(), bool) {
	if listener == nil {
		return func() {}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{pluginID: pluginID, namespace: namespace}
	e, exists := s.entries[k]
	if !exists {
		return func() {}, false
	}

	id := s.nextID.Add(1)
	e.listeners[id] = listener

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if e, exists := s.entries[k]; exists {
			delete(e.listeners, id)
		}
	}, true
}

// RemovePlugin drops every entry owned by pluginID and returns the removed
// namespaces in no particular order.
func (s *Store) RemovePlugin(pluginID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for k := range s.entries {
		if k.pluginID == pluginID {
			removed = append(removed, k.namespace)
			delete(s.entries, k)
		}
	}
	return removed
}

// Namespaces returns the registered namespaces for pluginID.
func (s *Store) Namespaces(pluginID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var namespaces []string
	for k := range s.entries {
		if k.pluginID == pluginID {
			namespaces = append(namespaces, k.namespace)
		}
	}
	return namespaces
}

// Len returns the number of state entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
