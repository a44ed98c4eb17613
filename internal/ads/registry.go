package ads

import (
	"fmt"
	"sync"
	"time"
)

// Handle is the broker's reference to a loaded vendor ad. It never leaves the process boundary;
// the UI bridge only sees ID. Code outside the package gets copies from Manager.Lookup.
type Handle struct {
	ID       Identifier
	Kind     Kind
	UnitID   string
	Object   ObjectID
	Size     SizeClass
	Native   NativeOptions
	LoadedAt time.Time

	visible bool
}

// Visible reports whether the banner was shown when this copy was taken.
func (h Handle) Visible() bool { return h.visible }

// Registry holds loaded ads by identifier plus the reverse index from vendor object to identifier (thread-safe).
type Registry struct {
	mu      sync.RWMutex
	handles map[Identifier]*Handle
	reverse map[ObjectID]Identifier
	dispose func(ObjectID)
}

// NewRegistry creates a registry. dispose is called once for every handle that leaves the registry.
func NewRegistry(dispose func(ObjectID)) *Registry {
	if dispose == nil {
		dispose = func(ObjectID) {}
	}
	return &Registry{
		handles: make(map[Identifier]*Handle),
		reverse: make(map[ObjectID]Identifier),
		dispose: dispose,
	}
}

// Put inserts h under id and indexes its vendor object.
func (reg *Registry) Put(id Identifier, h *Handle) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.handles[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, id)
	}
	reg.handles[id] = h
	if h.Object != "" {
		reg.reverse[h.Object] = id
	}
	return nil
}

// Get returns the handle for id. A missing id means "not found", not failure.
func (reg *Registry) Get(id Identifier) (*Handle, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	h, ok := reg.handles[id]
	return h, ok
}

// Bind indexes a vendor object that is still loading, so its completion callback can find id.
func (reg *Registry) Bind(obj ObjectID, id Identifier) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if cur, ok := reg.reverse[obj]; ok && cur != id {
		return fmt.Errorf("%w: object %s already bound to %s", ErrDuplicateIdentifier, obj, cur)
	}
	reg.reverse[obj] = id
	return nil
}

// Unbind drops the reverse entry for obj. It does not dispose anything.
func (reg *Registry) Unbind(obj ObjectID) {
	reg.mu.Lock()
	delete(reg.reverse, obj)
	reg.mu.Unlock()
}

// ReverseLookup maps a vendor object back to its identifier.
func (reg *Registry) ReverseLookup(obj ObjectID) (Identifier, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	id, ok := reg.reverse[obj]
	return id, ok
}

// Remove deletes id, releases its reverse entry and disposes the vendor object.
// Removing an unknown id is a no-op.
func (reg *Registry) Remove(id Identifier) bool {
	reg.mu.Lock()
	h, ok := reg.handles[id]
	if !ok {
		reg.mu.Unlock()
		return false
	}
	delete(reg.handles, id)
	if reg.reverse[h.Object] == id {
		delete(reg.reverse, h.Object)
	}
	reg.mu.Unlock()
	reg.dispose(h.Object)
	return true
}

// Len returns the number of live handles.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.handles)
}

// IDs returns a snapshot of live identifiers.
func (reg *Registry) IDs() []Identifier {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ids := make([]Identifier, 0, len(reg.handles))
	for id := range reg.handles {
		ids = append(ids, id)
	}
	return ids
}
