// Package dispatch runs stored callbacks according to an execution strategy.
//
// Five strategies are supported:
//
//   - Inline: the callback runs on the publishing goroutine.
//   - Pooled: the callback is queued on a worker Pool and the publisher returns.
//   - Dedicated: the callback gets a goroutine of its own, for long-running
//     handlers that should not occupy a pool worker.
//   - ContextSync: the callback is handed to a Marshaller's Send, which blocks
//     until the marshaller has run it.
//   - ContextAsync: the callback is handed to a Marshaller's Post, which
//     returns immediately.
//
// # Panic Recovery
//
// Callbacks that run away from the publisher (Pooled, Dedicated, ContextAsync)
// execute under an Executor that recovers panics and reports them through a
// PanicHandler. Inline and ContextSync panics reach the publisher.
//
// # Marshallers
//
// DefaultContext runs Send inline and Post on a pool. Loop owns a single
// goroutine and is the marshaller to use when callbacks must run where some
// non-thread-safe state lives:
//
//	loop := dispatch.NewLoop()
//	go loop.Run(ctx)
//	loop.Post(func() { /* runs on the loop goroutine */ })
package dispatch
