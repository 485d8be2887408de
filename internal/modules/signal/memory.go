// README: In-memory signal registry with a lock per signal.
package signal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"greencorridor/internal/geo"
	"greencorridor/internal/types"
)

type memEntry struct {
	mu  sync.Mutex
	sig Signal
}

type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[types.ID]*memEntry
}

func NewMemoryRegistry(signals ...Signal) *MemoryRegistry {
	r := &MemoryRegistry{entries: make(map[types.ID]*memEntry, len(signals))}
	for _, s := range signals {
		r.entries[s.ID] = &memEntry{sig: s.clone()}
	}
	return r
}

func (r *MemoryRegistry) entry(id types.ID) (*memEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *MemoryRegistry) snapshot() []*memEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*memEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

func (r *MemoryRegistry) Upsert(_ context.Context, s Signal) error {
	r.mu.Lock()
	e, ok := r.entries[s.ID]
	if !ok {
		r.entries[s.ID] = &memEntry{sig: s.clone()}
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	e.mu.Lock()
	e.sig = s.clone()
	e.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, id types.ID) (Signal, error) {
	e, ok := r.entry(id)
	if !ok {
		return Signal{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sig.clone(), nil
}

func (r *MemoryRegistry) FindNear(_ context.Context, box orb.Bound) ([]Signal, error) {
	var out []Signal
	for _, e := range r.snapshot() {
		e.mu.Lock()
		if box.Contains(geo.ToOrb(e.sig.Position)) {
			out = append(out, e.sig.clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRegistry) Preempt(_ context.Context, id types.ID, claim Claim, now time.Time) (Signal, Action, error) {
	e, ok := r.entry(id)
	if !ok {
		return Signal{}, ActionNone, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next, action := Decide(e.sig, claim, now)
	if action != ActionNone {
		e.sig = next
	}
	return e.sig.clone(), action, nil
}

func (r *MemoryRegistry) Restore(_ context.Context, id types.ID) (Signal, bool, error) {
	e, ok := r.entry(id)
	if !ok {
		return Signal{}, false, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.sig.Overridden() {
		return e.sig.clone(), false, nil
	}
	e.sig = restored(e.sig)
	return e.sig.clone(), true, nil
}

func (r *MemoryRegistry) RestoreExpired(_ context.Context, now time.Time) ([]Signal, error) {
	var out []Signal
	for _, e := range r.snapshot() {
		e.mu.Lock()
		if e.sig.Expired(now) {
			e.sig = restored(e.sig)
			out = append(out, e.sig.clone())
		}
		e.mu.Unlock()
	}
	return out, nil
}
