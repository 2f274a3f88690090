package ffi

import (
	"sync"
	"sync/atomic"
)

// HandleTable maps opaque non-zero integers to Go values, so that an
// ExternalAddress in the object space can refer to a Go object without
// holding a Go pointer.
type HandleTable[T any] struct {
	mu      sync.RWMutex
	entries map[uint64]T
	nextID  atomic.Uint64
}

// NewHandleTable creates an empty table.
func NewHandleTable[T any]() *HandleTable[T] {
	return &HandleTable[T]{entries: make(map[uint64]T)}
}

// Create registers v and returns its handle. Handles are never 0, so a
// null ExternalAddress never names an entry.
func (t *HandleTable[T]) Create(v T) uint64 {
	id := t.nextID.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = v
	return id
}

// Lookup returns the value for a handle.
func (t *HandleTable[T]) Lookup(id uint64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[id]
	return v, ok
}

// Release removes a handle and returns the value it named.
func (t *HandleTable[T]) Release(id uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return v, ok
}

// Len returns the number of live handles.
func (t *HandleTable[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Drain removes every handle, calling fn for each.
func (t *HandleTable[T]) Drain(fn func(id uint64, v T)) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[uint64]T)
	t.mu.Unlock()

	for id, v := range entries {
		fn(id, v)
	}
}
