package central

import (
	"sync"
	"weak"
)

// Registry is a list of non-owning references kept in registration order.
// Entries whose target has been garbage collected are dropped by Compact.
type Registry[T any] struct {
	mu   sync.Mutex
	refs []weak.Pointer[T]
}

// Add registers v. Registering the same pointer twice keeps one entry.
func (r *Registry[T]) Add(v *T) {
	if v == nil {
		return
	}
	wp := weak.Make(v)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range r.refs {
		if ref == wp {
			return
		}
	}
	r.refs = append(r.refs, wp)
}

// Remove compacts and then drops the entry pointing at v, if any.
func (r *Registry[T]) Remove(v *T) {
	if v == nil {
		return
	}
	wp := weak.Make(v)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.compactLocked()
	for i, ref := range r.refs {
		if ref == wp {
			r.refs = append(r.refs[:i], r.refs[i+1:]...)
			return
		}
	}
}

// Compact drops entries whose target is gone and returns how many remain.
func (r *Registry[T]) Compact() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compactLocked()
	return len(r.refs)
}

func (r *Registry[T]) compactLocked() {
	live := r.refs[:0]
	for _, ref := range r.refs {
		if ref.Value() != nil {
			live = append(live, ref)
		}
	}
	clear(r.refs[len(live):])
	r.refs = live
}

// Snapshot compacts and returns strong references to the live entries in
// registration order. Later registry changes do not affect the returned slice.
func (r *Registry[T]) Snapshot() []*T {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compactLocked()

	out := make([]*T, 0, len(r.refs))
	for _, ref := range r.refs {
		if v := ref.Value(); v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of entries without compacting.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}
