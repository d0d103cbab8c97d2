// Package registry tracks which remote device ids have been announced.
package registry

import (
	"sort"
	"sync"
)

// Registry is a set of known ids for one device kind. It is safe for
// concurrent use.
type Registry struct {
	mu   sync.Mutex
	kind string
	ids  map[string]struct{}
}

// New creates an empty registry for kind (e.g. "acurite-tower").
func New(kind string) *Registry {
	return &Registry{kind: kind, ids: make(map[string]struct{})}
}

// Kind returns the device kind this registry tracks.
func (r *Registry) Kind() string {
	return r.kind
}

// RegisterIfAbsent adds id and reports whether it was new.
func (r *Registry) RegisterIfAbsent(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// IDs returns the known ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of known ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}
