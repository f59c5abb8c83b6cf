package relay

import (
	"sync"
	"sync/atomic"
)

// Slots is a growable array of invocation chains indexed by bus id.
//
// Readers load the array and the chain atomically and never lock. Writers
// serialize on mu. Grow replaces the array but carries the existing slot
// objects over, so a writer holding an older array still updates the slot
// that newer readers see.
type Slots struct {
	mu  sync.Mutex
	arr atomic.Pointer[[]*slot]
}

type slot struct {
	chain atomic.Pointer[Chain]
}

func newSlots() *Slots {
	s := &Slots{}
	empty := make([]*slot, 0)
	s.arr.Store(&empty)
	return s
}

// Cap returns the number of addressable ids.
func (s *Slots) Cap() int {
	return len(*s.arr.Load())
}

// Load returns the chain stored for id, or nil.
func (s *Slots) Load(id int) Chain {
	arr := *s.arr.Load()
	if id < 0 || id >= len(arr) {
		return nil
	}
	if c := arr[id].chain.Load(); c != nil {
		return *c
	}
	return nil
}

// Grow makes id addressable. When the array is too small it is reallocated
// to twice the required capacity.
func (s *Slots) Grow(id int) {
	need := id + 1
	if s.Cap() >= need {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.growLocked(need)
}

func (s *Slots) growLocked(need int) {
	old := *s.arr.Load()
	if len(old) >= need {
		return
	}
	next := make([]*slot, 2*need)
	copy(next, old)
	for i := len(old); i < len(next); i++ {
		next[i] = &slot{}
	}
	s.arr.Store(&next)
}

func (s *Slots) append(id int, links ...link) {
	if len(links) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.growLocked(id + 1)
	sl := (*s.arr.Load())[id]
	var cur Chain
	if c := sl.chain.Load(); c != nil {
		cur = *c
	}
	next := cur.with(links...)
	sl.chain.Store(&next)
}

func (s *Slots) remove(id int, cb *Callback) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	arr := *s.arr.Load()
	if id < 0 || id >= len(arr) {
		return false
	}
	sl := arr[id]
	c := sl.chain.Load()
	if c == nil {
		return false
	}
	next, ok := c.without(cb)
	if !ok {
		return false
	}
	if next == nil {
		sl.chain.Store(nil)
	} else {
		sl.chain.Store(&next)
	}
	return true
}

func (s *Slots) clear(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	arr := *s.arr.Load()
	if id < 0 || id >= len(arr) {
		return
	}
	arr[id].chain.Store(nil)
}

// each calls fn for every non-empty slot. The caller must not hold s.mu.
func (s *Slots) each(fn func(id int, c Chain)) {
	arr := *s.arr.Load()
	for id, sl := range arr {
		if c := sl.chain.Load(); c != nil && len(*c) > 0 {
			fn(id, *c)
		}
	}
}
