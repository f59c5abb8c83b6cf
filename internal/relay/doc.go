// Package relay implements the per-type dispatch registries behind the bus.
//
// Every payload type that is ever subscribed to or published gets exactly one
// Registry, created on first use and kept for the lifetime of the process.
// A Registry holds two slot arrays indexed by bus id:
//
//   - own: callbacks subscribed directly to this type
//   - combined: what a publish of this type actually invokes
//
// When a registry is created it walks its ancestor set (embedded struct bases,
// implemented interfaces, and the universal top type any) and registers its
// combined array as a relay of each ancestor. A subscription to an ancestor is
// then copied into every relay, so publishing only ever reads one slot:
//
//	ancestor.Subscribe(id, cb)
//	    -> ancestor.own[id]       += cb
//	    -> ancestor.combined[id]  += cb
//	    -> descendant.combined[id] += cb (with converter)
//
// # Locking
//
// Mutations take the registry's relay-list mutex for the whole traversal and
// each slot array's own mutex while its contents change. Publish performs
// atomic loads only: slot arrays are replaced on grow and chains are replaced
// on every change, never mutated in place.
package relay
