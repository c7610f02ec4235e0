// Package fleet supervises the dedicated bot instances: an in-memory
// registry of live tenant handles and the orchestrator that starts and
// stops them.
package fleet

import (
	"sync"

	"connectsprobot/internal/transport"
)

// Handle is the in-memory runtime reference to one tenant's live transport.
// At most one handle exists per owner id at any time.
type Handle struct {
	OwnerID   int64
	Transport transport.Transport
}

// Registry maps owner id to its running handle. Map reads and writes are
// cheap and guarded by one mutex; the slow start/stop transitions are
// serialized per tenant through LockTenant so different tenants proceed
// fully in parallel.
type Registry struct {
	mu      sync.RWMutex
	handles map[int64]*Handle

	lmu   sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[int64]*Handle),
		locks:   make(map[int64]*sync.Mutex),
	}
}

// LockTenant takes the per-tenant mutation lock and returns its unlock.
// All insert/remove/replace transitions for one owner id must run under it.
func (r *Registry) LockTenant(ownerID int64) func() {
	r.lmu.Lock()
	l, ok := r.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[ownerID] = l
	}
	r.lmu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns the live handle for an owner, if any. In-flight work that
// captured the returned transport keeps using that reference even if the
// handle is replaced mid-flight.
func (r *Registry) Get(ownerID int64) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[ownerID]
	return h, ok
}

// Put inserts a handle. Caller must hold the tenant lock.
func (r *Registry) Put(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.OwnerID] = h
}

// Remove detaches and returns the handle, or nil. Caller must hold the
// tenant lock; closing the detached transport is the caller's job.
func (r *Registry) Remove(ownerID int64) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.handles[ownerID]
	delete(r.handles, ownerID)
	return h
}

// IDs returns the owner ids with a live handle.
func (r *Registry) IDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}

// Len reports how many dedicated instances are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
