// Package typebus is an in-process, typed publish/subscribe bus that
// understands type hierarchies.
//
// Callbacks are attached to a payload type and fire for values of that type
// and of every type descending from it. Descent follows Go's own notions:
//
//   - a concrete type descends from every interface it implements
//   - a struct descends from the exported structs it embeds (a *S from *B)
//   - everything descends from any
//
// Publishing reads a single precomputed slot, so its cost does not depend on
// how many ancestors a type has or on how many unrelated subscriptions exist.
//
// # Basic Usage
//
//	bus := typebus.New()
//	defer bus.Dispose()
//
//	type Animal interface{ Name() string }
//	type Dog struct{ name string }
//	func (d Dog) Name() string { return d.name }
//
//	h, _ := typebus.Subscribe(bus, func(a Animal) {
//	    fmt.Println("animal:", a.Name())
//	})
//	typebus.Publish(bus, Dog{name: "rex"}) // prints "animal: rex"
//	h.Dispose()
//
// The static type argument of Publish selects what is dispatched: publishing
// a Dog as Dog reaches Dog, Animal and any subscribers; publishing it as
// Animal reaches only Animal and any subscribers.
//
// # Execution Strategies
//
// Each subscription chooses where its callback runs:
//
//	typebus.Subscribe(bus, fn, typebus.WithStrategy(typebus.Pooled))
//
//   - Inline: on the publishing goroutine (default)
//   - Pooled: on a shared worker pool
//   - Dedicated: on a goroutine of its own
//   - ContextSync / ContextAsync: through the bus Marshaller's Send / Post
//
// # Weak Subscriptions
//
// Method subscriptions can hold their receiver weakly. Once the receiver has
// been collected the callback silently does nothing:
//
//	typebus.SubscribeMethod[Animal](bus, view, "OnAnimal", typebus.Weak())
//
// # Thread Safety
//
// A Bus is safe for concurrent use. Publish never waits on subscription
// changes; subscribe and unsubscribe may briefly wait on each other.
package typebus
