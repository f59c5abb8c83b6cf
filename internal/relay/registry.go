package relay

import (
	"reflect"
	"sync"
)

// Registry is the dispatch state for one payload type.
type Registry struct {
	typ      reflect.Type
	own      *Slots
	combined *Slots

	mu     sync.Mutex // guards relays
	relays []relayTarget
}

// relayTarget is a combined slot array that receives every subscription made
// on the registry holding it.
type relayTarget struct {
	typ   reflect.Type
	slots *Slots
	conv  Converter
}

func newRegistry(t reflect.Type) *Registry {
	r := &Registry{
		typ:      t,
		own:      newSlots(),
		combined: newSlots(),
	}
	r.relays = []relayTarget{{typ: t, slots: r.combined}}
	return r
}

// Type returns the payload type this registry dispatches.
func (r *Registry) Type() reflect.Type {
	return r.typ
}

// AddRelay registers slots as a relay of r. The relay is first seeded with
// every callback currently subscribed directly to r, so a descendant created
// after those subscriptions still observes them.
func (r *Registry) AddRelay(t reflect.Type, slots *Slots, conv Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.own.each(func(id int, c Chain) {
		links := make([]link, len(c))
		for i, l := range c {
			links[i] = link{cb: l.cb, conv: conv}
		}
		slots.append(id, links...)
	})
	r.relays = append(r.relays, relayTarget{typ: t, slots: slots, conv: conv})
}

// Subscribe appends cb to this registry for bus id and to every relay.
func (r *Registry) Subscribe(id int, cb *Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.growLocked(id)
	r.own.append(id, link{cb: cb})
	for _, rt := range r.relays {
		rt.slots.append(id, link{cb: cb, conv: rt.conv})
	}
}

// Unsubscribe removes the first occurrence of cb for bus id from this
// registry and from every relay. It reports whether cb was subscribed.
func (r *Registry) Unsubscribe(id int, cb *Callback) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.own.remove(id, cb) {
		return false
	}
	for _, rt := range r.relays {
		rt.slots.remove(id, cb)
	}
	return true
}

// Clear drops every callback for bus id from this registry and its relays.
func (r *Registry) Clear(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.own.clear(id)
	for _, rt := range r.relays {
		rt.slots.clear(id)
	}
}

// Grow makes id addressable in this registry and in every relay.
func (r *Registry) Grow(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.growLocked(id)
}

func (r *Registry) growLocked(id int) {
	r.own.Grow(id)
	for _, rt := range r.relays {
		rt.slots.Grow(id)
	}
}

// Dispatch invokes the combined chain for bus id with v and returns the
// number of callbacks in it. It takes no locks.
func (r *Registry) Dispatch(id int, v any) int {
	c := r.combined.Load(id)
	c.Invoke(v)
	return len(c)
}

// Combined returns the chain a publish for bus id would invoke.
func (r *Registry) Combined(id int) Chain {
	return r.combined.Load(id)
}

// Count returns the number of callbacks subscribed directly to this type.
func (r *Registry) Count(id int) int {
	return r.own.Load(id).Len()
}

// Relays returns the payload types whose combined arrays relay this one,
// starting with the registry's own type.
func (r *Registry) Relays() []reflect.Type {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]reflect.Type, len(r.relays))
	for i, rt := range r.relays {
		out[i] = rt.typ
	}
	return out
}
