package awsiot

import (
	"sync"
)

// EventListeners is a registry of connection lifecycle listeners.
// Connection implementations embed it to satisfy AddEventListener.
type EventListeners struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]EventHandler
}

// AddEventListener registers a handler and returns a function removing it.
func (l *EventListeners) AddEventListener(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	l.mu.Lock()
	if l.handlers == nil {
		l.handlers = make(map[uint64]EventHandler)
	}
	l.nextID++
	id := l.nextID
	l.handlers[id] = handler
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.handlers, id)
			l.mu.Unlock()
		})
	}
}

// Emit delivers an event to every registered handler.
// Handlers are called outside the registry lock.
func (l *EventListeners) Emit(event error) {
	l.mu.RLock()
	handlers := make([]EventHandler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Len returns the number of registered handlers.
func (l *EventListeners) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}
