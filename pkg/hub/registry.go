package hub

import (
	"sync"

	"github.com/netherd/inetproxy/pkg/psproto"
	"github.com/netherd/inetproxy/pkg/supervise"
	"github.com/netherd/inetproxy/pkg/types"
)

// entry tracks one spawned worker
type entry struct {
	id     psproto.Identity
	proc   supervise.Process
	ch     supervise.Channel
	status types.Status
}

// registry maps worker identities to their entries. Identity equality is
// structural: protocol, interface index and address must all match.
type registry struct {
	mu      sync.Mutex
	entries map[psproto.Identity]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[psproto.Identity]*entry)}
}

func (r *registry) find(id psproto.Identity) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

func (r *registry) insert(e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.id]; ok {
		return types.NewError(types.ErrCodeAlreadyExists,
			"worker already registered for "+e.id.String())
	}
	r.entries[e.id] = e
	return nil
}

func (r *registry) remove(id psproto.Identity) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[id]
	delete(r.entries, id)
	return e
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *registry) snapshot() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
