package busid

import (
	"sort"
	"sync"
	"testing"
)

func TestAllocator_AcquireSequential(t *testing.T) {
	a := NewAllocator()
	for want := 0; want < 5; want++ {
		if got := a.Acquire(); got != want {
			t.Fatalf("Acquire() = %d, want %d", got, want)
		}
	}
	if a.HighWater() != 5 {
		t.Errorf("HighWater() = %d, want 5", a.HighWater())
	}
}

func TestAllocator_ReusesSmallestReleased(t *testing.T) {
	a := NewAllocator()
	for i := 0; i < 6; i++ {
		a.Acquire()
	}

	a.Release(4)
	a.Release(1)
	a.Release(3)

	for _, want := range []int{1, 3, 4, 6} {
		if got := a.Acquire(); got != want {
			t.Errorf("Acquire() = %d, want %d", got, want)
		}
	}
}

func TestAllocator_ReleaseOutOfRange(t *testing.T) {
	a := NewAllocator()
	a.Acquire()

	a.Release(-1)
	a.Release(10)

	if got := a.Acquire(); got != 1 {
		t.Errorf("Acquire() = %d, want 1", got)
	}
	if a.Outstanding() != 2 {
		t.Errorf("Outstanding() = %d, want 2", a.Outstanding())
	}
}

func TestAllocator_Concurrent(t *testing.T) {
	a := NewAllocator()
	const workers = 64
	const rounds = 200

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				id := a.Acquire()
				a.Release(id)
			}
		}()
	}
	wg.Wait()

	if a.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d, want 0", a.Outstanding())
	}
	if a.HighWater() > workers {
		t.Errorf("HighWater() = %d, want <= %d", a.HighWater(), workers)
	}
}

func TestAllocator_ConcurrentUnique(t *testing.T) {
	a := NewAllocator()
	const n = 500

	ids := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = a.Acquire()
		}(i)
	}
	wg.Wait()

	sort.Ints(ids)
	for i, id := range ids {
		if id != i {
			t.Fatalf("ids[%d] = %d, want dense range", i, id)
		}
	}
}
