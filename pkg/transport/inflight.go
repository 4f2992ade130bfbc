package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks streams that are still being relayed so that a
// client can cancel one explicitly. Each stream is registered under its
// server-issued ID together with the owner that started it; only the same
// owner can cancel it.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]inFlightStream
}

type inFlightStream struct {
	owner  string
	cancel context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]inFlightStream),
	}
}

// Register adds a stream started by owner ("" when unauthenticated). It
// returns false and leaves the registry unchanged if id is already taken.
func (r *InFlightRegistry) Register(id, owner string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.entries[id]; taken {
		return false
	}
	r.entries[id] = inFlightStream{owner: owner, cancel: cancel}
	return true
}

// Cancel cancels the stream id on behalf of owner. It returns false if no
// such stream is registered or it belongs to another owner; in both cases
// the stream keeps running.
func (r *InFlightRegistry) Cancel(id, owner string) bool {
	r.mu.Lock()
	s, ok := r.entries[id]
	if ok && s.owner != owner {
		ok = false
	}
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if ok {
		s.cancel()
	}
	return ok
}

// Remove drops a stream from the registry without cancelling it.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of registered streams.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CancelAll cancels every registered stream regardless of owner. Used
// during shutdown.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]inFlightStream)
	r.mu.Unlock()

	for _, s := range entries {
		s.cancel()
	}
	return len(entries)
}
