package events

import (
	"sync"
)

// Handler receives dispatched events. Handlers run inline with the receive
// loop and must hand long work off to their own goroutine.
type Handler func(Event)

// Registry maps event kinds to subscribers. Each concrete kind has at most
// one handler, plus a single wildcard handler registered under [KindAny]
// that sees every event.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]subscription
	nextID   uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[Kind]subscription{}}
}

// Subscribe registers handler for kind, replacing any previous handler for
// the same kind. The returned function removes the subscription; it does
// nothing if the handler has since been replaced.
func (r *Registry) Subscribe(kind Kind, handler Handler) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	if previous, ok := r.handlers[kind]; ok {
		logger.Warn("replacing event handler", "kind", string(kind), "previous_subscription", previous.id)
	}
	r.handlers[kind] = subscription{id: id, handler: handler}
	r.mu.Unlock()

	once := sync.Once{}
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if current, ok := r.handlers[kind]; ok && current.id == id {
				delete(r.handlers, kind)
			}
		})
	}
}

// HasHandler reports whether a handler is registered for exactly kind.
func (r *Registry) HasHandler(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

// Dispatch invokes the wildcard handler and then the handler registered for
// the event's kind, both before returning.
func (r *Registry) Dispatch(event Event) {
	r.mu.RLock()
	wildcard, hasWildcard := r.handlers[KindAny]
	specific, hasSpecific := r.handlers[event.Type]
	r.mu.RUnlock()

	if hasWildcard {
		wildcard.handler(event)
	}
	if hasSpecific && event.Type != KindAny {
		specific.handler(event)
	}
}
