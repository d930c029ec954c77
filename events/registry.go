// Package events provides the typed subscriber sets used to fan session events
// out to callers.
package events

import "sync"

type entry[T any] struct {
	id      uint64
	fn      func(T)
	removed bool
}

// Registry is a set of handlers for one event category.
//
// Emit iterates over a snapshot taken at call time, so handlers may add or
// remove subscriptions while being dispatched. A handler removed during a
// dispatch is not called for the rest of that dispatch.
type Registry[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []*entry[T]
}

// Add subscribes fn and returns a func that removes it. The returned func is idempotent.
func (r *Registry[T]) Add(fn func(T)) (remove func()) {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextID++
	e := &entry[T]{id: r.nextID, fn: fn}
	r.entries = append(r.entries, e)
	r.mu.Unlock()

	return func() { r.remove(e) }
}

func (r *Registry[T]) remove(target *entry[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if target.removed {
		return
	}
	target.removed = true
	for i, e := range r.entries {
		if e.id == target.id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// Emit calls every handler with v, in subscription order.
func (r *Registry[T]) Emit(v T) {
	r.mu.Lock()
	snapshot := make([]*entry[T], len(r.entries))
	copy(snapshot, r.entries)
	r.mu.Unlock()

	for _, e := range snapshot {
		r.mu.Lock()
		skip := e.removed
		r.mu.Unlock()
		if skip {
			continue
		}
		e.fn(v)
	}
}

// Len returns the number of live handlers.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes every handler.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.removed = true
	}
	r.entries = nil
}
