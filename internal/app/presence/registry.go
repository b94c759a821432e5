/*
Package presence tracks which users currently hold a live realtime connection.

The Registry maps a user id to at most one connection handle. It is purely in-memory,
rebuilt from nothing on every process start, and safe for concurrent use: lifecycle
mutations and delivery lookups may come from different goroutines.
*/
package presence

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Handle is a live, writable endpoint to one connected client.
type Handle interface {
	// Push queues an encoded frame for the client without blocking.
	Push(frame []byte) error

	// Close terminates the connection, sending reason to the client when possible.
	Close(reason string)
}

// Registry is the authoritative table of connected users.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Handle
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Handle)}
}

// Register installs h as the connection of userID, replacing any previous entry.
// The superseded handle, if any, is returned untouched.
func (r *Registry) Register(userID string, h Handle) (previous Handle, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced = r.entries[userID]
	r.entries[userID] = h

	return previous, replaced
}

// Unregister removes the entry of userID. Absent ids are ignored.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, userID)
}

// Release removes the entry of userID only while it still points at h.
// It reports whether an entry was removed.
func (r *Registry) Release(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[userID]
	if !ok || current != h {
		return false
	}

	delete(r.entries, userID)
	return true
}

// Lookup returns the handle registered for userID.
func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.entries[userID]
	return h, ok
}

// Snapshot returns the registered user ids, sorted, as of a single instant.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := lo.Keys(r.entries)
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
