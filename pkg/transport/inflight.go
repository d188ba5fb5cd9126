package transport

import (
	"context"
	"sync"
)

// InFlightRegistry enforces one in-flight turn per conversation. It maps
// conversation IDs to the cancel function of the running turn, so shutdown
// can abandon generation that is still in progress.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Acquire claims the slot for id. It returns false without registering
// anything when the slot is already held.
func (r *InFlightRegistry) Acquire(id string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.entries[id]; held {
		return false
	}
	r.entries[id] = cancel
	return true
}

// Active reports whether a turn is in flight for id.
func (r *InFlightRegistry) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Cancel calls the cancel function registered for id. The slot stays held
// until Release; the running turn still has to settle.
// Returns false if nothing is registered for id.
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[id]
	if !ok {
		return false
	}
	cancel()
	return true
}

// CancelAll cancels every registered turn and returns how many there were.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.entries {
		cancel()
	}
	return len(r.entries)
}

// Release frees the slot for id without cancelling. Called when a turn
// settles.
func (r *InFlightRegistry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of conversations with a turn in flight.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
