package txn

import (
	"sync"
	"time"
)

// Registry is the active-transaction table. Each Coordinator owns one;
// it is never process-wide state. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	txs map[string]*Context
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{txs: make(map[string]*Context)}
}

// Register adds a context.
func (r *Registry) Register(c *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[c.ID] = c
}

// Lookup returns the context or nil.
func (r *Registry) Lookup(id string) *Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.txs[id]
}

// Remove deletes a context by id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.txs, id)
}

// Len returns the number of registered contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.txs)
}

// Sweep removes contexts that are terminal and older than maxAge,
// returning how many were removed. Pending/active contexts stay
// regardless of age.
func (r *Registry) Sweep(maxAge time.Duration) int {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, c := range r.txs {
		if c.Status.Terminal() && c.age(now) > maxAge {
			delete(r.txs, id)
			removed++
		}
	}
	return removed
}
