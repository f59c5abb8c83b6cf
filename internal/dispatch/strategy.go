package dispatch

import (
	"fmt"
	"strings"
)

// Strategy selects where a callback runs when its payload is published.
type Strategy int

const (
	// Inline runs the callback on the publishing goroutine.
	Inline Strategy = iota

	// Pooled queues the callback on a worker pool.
	Pooled

	// Dedicated runs the callback on a goroutine of its own.
	Dedicated

	// ContextSync hands the callback to the marshaller's Send.
	ContextSync

	// ContextAsync hands the callback to the marshaller's Post.
	ContextAsync
)

// String returns a human-readable strategy name.
func (s Strategy) String() string {
	switch s {
	case Inline:
		return "inline"
	case Pooled:
		return "pooled"
	case Dedicated:
		return "dedicated"
	case ContextSync:
		return "context-sync"
	case ContextAsync:
		return "context-async"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name as produced by String.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inline", "":
		return Inline, nil
	case "pooled", "pool":
		return Pooled, nil
	case "dedicated":
		return Dedicated, nil
	case "context-sync", "sync":
		return ContextSync, nil
	case "context-async", "async":
		return ContextAsync, nil
	default:
		return Inline, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Env supplies what the strategies need to run a callback.
type Env struct {
	// Pool runs Pooled and Dedicated callbacks. Nil means the shared pool.
	Pool *Pool

	// Context runs ContextSync and ContextAsync callbacks.
	Context Marshaller
}

// Wrap returns a callback that runs fn according to s.
func Wrap(fn func(any), s Strategy, env Env) func(any) {
	pool := env.Pool
	if pool == nil {
		pool = Shared()
	}

	switch s {
	case Pooled:
		return func(v any) {
			task := func() { fn(v) }
			if err := pool.Submit(task); err != nil {
				pool.Go(task)
			}
		}
	case Dedicated:
		return func(v any) {
			pool.Go(func() { fn(v) })
		}
	case ContextSync:
		ctx := env.Context
		if ctx == nil {
			ctx = NewDefaultContext(pool)
		}
		return func(v any) {
			ctx.Send(func() { fn(v) })
		}
	case ContextAsync:
		ctx := env.Context
		if ctx == nil {
			ctx = NewDefaultContext(pool)
		}
		return func(v any) {
			ctx.Post(func() { fn(v) })
		}
	default:
		return fn
	}
}
