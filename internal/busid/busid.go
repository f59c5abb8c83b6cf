// Package busid issues small integer identifiers for live bus instances.
//
// Identifiers index the per-type slot arrays, so they are kept dense: Acquire
// always hands out the smallest identifier that is not currently outstanding.
package busid

import (
	"container/heap"
	"sync"
)

// Allocator issues and recycles non-negative identifiers.
// It is safe for concurrent use.
type Allocator struct {
	mu   sync.Mutex
	next int     // high-water mark: every id below it has been issued at least once
	free freeIDs // released ids, min-heap
}

// NewAllocator creates an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Default is the process-wide allocator used by bus instances.
var Default = NewAllocator()

// Acquire returns the smallest identifier not currently held.
// Released identifiers are reused before new ones are issued.
func (a *Allocator) Acquire() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.free.Len() > 0 {
		return heap.Pop(&a.free).(int)
	}
	id := a.next
	a.next++
	return id
}

// Release returns id to the pool. Releasing an id that is not held is a
// caller error and is ignored when it is out of range.
func (a *Allocator) Release(id int) {
	if id < 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if id >= a.next {
		return
	}
	heap.Push(&a.free, id)
}

// HighWater returns the number of distinct identifiers ever issued.
func (a *Allocator) HighWater() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Outstanding returns the number of identifiers currently held.
func (a *Allocator) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next - a.free.Len()
}

// freeIDs implements heap.Interface over released identifiers.
type freeIDs []int

func (f freeIDs) Len() int           { return len(f) }
func (f freeIDs) Less(i, j int) bool { return f[i] < f[j] }
func (f freeIDs) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

func (f *freeIDs) Push(x any) { *f = append(*f, x.(int)) }

func (f *freeIDs) Pop() any {
	old := *f
	n := len(old)
	x := old[n-1]
	*f = old[:n-1]
	return x
}
