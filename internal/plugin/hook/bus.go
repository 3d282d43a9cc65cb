package hook

import (
	"sync"

	"github.com/dshills/plugstorm/internal/app"
)

// Bus dispatches lifecycle events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	log      *app.Logger
	metrics  *app.Metrics
}

// NewBus creates an event bus. A nil logger falls back to the
// application logger.
func NewBus(log *app.Logger) *Bus {
	if log == nil {
		log = app.GetLogger()
	}
	return &Bus{
		handlers: make(map[Type][]Handler),
		log:      log.WithComponent("plugin.hook"),
		metrics:  app.GetMetrics(),
	}
}

// On registers a handler for an event and returns its unsubscribe
// function. Calling the returned function more than once is a no-op after
// the first call.
func (b *Bus) On(t Type, handler Handler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], handler)
	index := len(b.handlers[t]) - 1
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// Set to nil instead of removing to keep indices stable.
		if index < len(b.handlers[t]) {
			b.handlers[t][index] = nil
		}
	}
}

// Emit delivers an event to every handler registered for its type, in
// subscription order, synchronously on the calling goroutine.
//
// The handler list is snapshotted when the emit starts: handlers added
// during delivery do not run until the next emit, and unsubscribing during
// delivery does not stop a handler already in the snapshot.
func (b *Bus) Emit(event Event) {
	b.metrics.RecordHookEmit()

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		b.safeCall(handler, event)
	}
}

// safeCall invokes a handler, recovering and logging any panic so one
// failing observer cannot block the rest.
func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordHandlerPanic()
			b.log.Error("handler panic on %s for plugin %q: %v", event.Type, event.PluginID, r)
		}
	}()
	handler(event)
}

// HandlerCount returns the number of live handlers for an event.
func (b *Bus) HandlerCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, handler := range b.handlers[t] {
		if handler != nil {
			count++
		}
	}
	return count
}
