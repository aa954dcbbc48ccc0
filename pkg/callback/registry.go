package callback

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Callback handles the payload of a dispatched event.
type Callback func(data json.RawMessage)

// Registry maps event names to ordered callback registrations.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Callback

	spawner Spawner
	log     zerolog.Logger
}

// NewRegistry creates an empty registry. A nil spawner defaults to GoSpawner.
func NewRegistry(spawner Spawner, logger zerolog.Logger) *Registry {
	if spawner == nil {
		spawner = GoSpawner{}
	}
	return &Registry{
		handlers: make(map[string][]Callback),
		spawner:  spawner,
		log:      logger,
	}
}

// Bind appends cb to the registrations for event. Earlier registrations for
// the same event are kept.
func (r *Registry) Bind(event string, cb Callback) {
	if cb == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], cb)
}

// Dispatch schedules every callback bound to event, in registration order,
// and returns how many were scheduled. An event with no registrations is
// logged and ignored.
func (r *Registry) Dispatch(event string, data json.RawMessage) int {
	r.mu.RLock()
	bound := r.handlers[event]
	callbacks := make([]Callback, len(bound))
	copy(callbacks, bound)
	r.mu.RUnlock()

	if len(callbacks) == 0 {
		r.log.Debug().Str("event", event).Msg("Unhandled event")
		return 0
	}

	for i, cb := range callbacks {
		r.spawner.Spawn(r.isolate(event, i, cb, data))
	}
	return len(callbacks)
}

// Count returns the number of callbacks bound to event.
func (r *Registry) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// Events returns the bound event names in sorted order.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]string, 0, len(r.handlers))
	for event := range r.handlers {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// isolate wraps a callback so a panic is logged instead of crashing the process.
func (r *Registry) isolate(event string, index int, cb Callback, data json.RawMessage) func() {
	return func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().
					Str("event", event).
					Int("callback", index).
					Interface("panic", rec).
					Msg("Event callback panicked")
			}
		}()
		cb(data)
	}
}
