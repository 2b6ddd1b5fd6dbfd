package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Handler receives the raw payload of one inbound event.
type Handler func(payload json.RawMessage)

// Handle identifies one registered handler so it can be removed later.
type Handle struct {
	Event string
	id    uuid.UUID
}

func (h Handle) Valid() bool { return h.id != uuid.Nil }

type subscription struct {
	id uuid.UUID
	fn Handler
}

// Registry maps event names to their subscribed handlers.
// Replace is the normal way in: a name holds the most recent registration only.
type Registry struct {
	mu   sync.RWMutex
	subs map[string][]subscription
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string][]subscription)}
}

// Replace drops every handler registered for event and registers fn.
func (r *Registry) Replace(event string, fn Handler) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := subscription{id: uuid.New(), fn: fn}
	r.subs[event] = []subscription{sub}
	return Handle{Event: event, id: sub.id}
}

// Remove unregisters the given handles for event, or all of them when none are given.
// It returns how many handlers were removed.
func (r *Registry) Remove(event string, handles ...Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.subs[event]
	if !ok {
		return 0
	}
	if len(handles) == 0 {
		delete(r.subs, event)
		return len(current)
	}

	kept := current[:0:0]
	removed := 0
	for _, sub := range current {
		if containsHandle(handles, event, sub.id) {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	if len(kept) == 0 {
		delete(r.subs, event)
	} else {
		r.subs[event] = kept
	}
	return removed
}

func containsHandle(handles []Handle, event string, id uuid.UUID) bool {
	for _, h := range handles {
		if h.Event == event && h.id == id {
			return true
		}
	}
	return false
}

// Clear removes every subscription.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string][]subscription)
}

// Handlers returns a snapshot of the handlers for event, in registration order.
func (r *Registry) Handlers(event string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current := r.subs[event]
	fns := make([]Handler, len(current))
	for i, sub := range current {
		fns[i] = sub.fn
	}
	return fns
}

// Events returns every event name with at least one handler.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	return keys
}
