package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(FrameExportedEvent{...})
func (b *Bus) Publish(ev Event) {
	// Use type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case SessionStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case FrameExportedEvent:
		event.Publish(b.dispatcher, e)
	case SessionErrorEvent:
		event.Publish(b.dispatcher, e)
	case BufferPoolEvent:
		event.Publish(b.dispatcher, e)
	case PortalSessionEvent:
		event.Publish(b.dispatcher, e)
	case ConfigReloadedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives (type inference)
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e FrameExportedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SessionStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameExportedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BufferPoolEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PortalSessionEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConfigReloadedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
