package relay

import (
	"reflect"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// table is the process-wide set of registries keyed by payload type.
// Lookups are lock-free; creation and relay linking serialize on mu so that
// a registry is linked to every ancestor and descendant before anyone can
// observe it.
type table struct {
	mu      sync.Mutex
	byType  *xsync.Map[reflect.Type, *Registry]
	ordered []*Registry // creation order; guarded by mu

	// creating holds registries whose ancestors are still being linked.
	// Structs that embed pointers to each other reach them again.
	creating map[reflect.Type]*Registry
}

func newTable() *table {
	return &table{
		byType:   xsync.NewMap[reflect.Type, *Registry](),
		creating: make(map[reflect.Type]*Registry),
	}
}

var registries = newTable()

// For returns the registry for t, creating and linking it on first use.
// Registries are never removed.
func For(t reflect.Type) *Registry {
	return registries.get(t)
}

// ForType returns the registry for T.
func ForType[T any]() *Registry {
	return For(reflect.TypeFor[T]())
}

// Lookup returns the registry for t if one exists.
func Lookup(t reflect.Type) (*Registry, bool) {
	return registries.byType.Load(t)
}

// Each calls fn for every registry created so far, in creation order.
func Each(fn func(*Registry)) {
	registries.mu.Lock()
	snapshot := make([]*Registry, len(registries.ordered))
	copy(snapshot, registries.ordered)
	registries.mu.Unlock()

	for _, r := range snapshot {
		fn(r)
	}
}

// Len returns the number of registries created so far.
func Len() int {
	return registries.byType.Size()
}

func (tb *table) get(t reflect.Type) *Registry {
	if r, ok := tb.byType.Load(t); ok {
		return r
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.createLocked(t)
}

func (tb *table) createLocked(t reflect.Type) *Registry {
	if r, ok := tb.byType.Load(t); ok {
		return r
	}

	if r, ok := tb.creating[t]; ok {
		return r
	}

	r := newRegistry(t)
	tb.creating[t] = r
	defer delete(tb.creating, t)

	for _, a := range tb.ancestorsLocked(t) {
		tb.createLocked(a.typ).AddRelay(t, r.combined, a.conv)
	}

	// An interface seen for the first time picks up every concrete type
	// already known to implement it.
	if t.Kind() == reflect.Interface {
		for _, d := range tb.ordered {
			if d.typ == t {
				continue
			}
			if t == anyType || (d.typ.Kind() != reflect.Interface && d.typ.Implements(t)) {
				r.AddRelay(d.typ, d.combined, nil)
			}
		}
	}

	tb.byType.Store(t, r)
	tb.ordered = append(tb.ordered, r)
	return r
}

// ancestorsLocked computes the ancestor set of t: embedded struct bases,
// every known interface t implements, and any. An interface's only ancestor
// is any.
func (tb *table) ancestorsLocked(t reflect.Type) []ancestor {
	if t == anyType {
		return nil
	}
	if t.Kind() == reflect.Interface {
		return []ancestor{{typ: anyType}}
	}

	out := embeddedBases(t)
	for _, r := range tb.ordered {
		it := r.typ
		if it == anyType || it.Kind() != reflect.Interface {
			continue
		}
		if t.Implements(it) {
			out = append(out, ancestor{typ: it})
		}
	}
	return append(out, ancestor{typ: anyType})
}
