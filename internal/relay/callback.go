package relay

// Callback is one stored subscriber. Identity is the pointer: removal matches
// the exact *Callback that was subscribed, never an equal-looking function.
type Callback struct {
	fn func(any)
}

// NewCallback wraps fn for storage in a registry.
func NewCallback(fn func(any)) *Callback {
	return &Callback{fn: fn}
}

// Invoke calls the wrapped function with v.
func (c *Callback) Invoke(v any) {
	c.fn(v)
}

// Converter maps a payload published under a descendant type to the value an
// ancestor's subscribers expect. Returning false skips the callback.
type Converter func(v any) (any, bool)

// compose returns a converter applying first and then next.
func compose(first, next Converter) Converter {
	if first == nil {
		return next
	}
	if next == nil {
		return first
	}
	return func(v any) (any, bool) {
		x, ok := first(v)
		if !ok {
			return nil, false
		}
		return next(x)
	}
}

// link is a callback as seen from one slot array.
type link struct {
	cb   *Callback
	conv Converter
}

// Chain is an immutable invocation list. It is never modified after it has
// been stored in a slot.
type Chain []link

// Invoke calls every callback in order.
func (c Chain) Invoke(v any) {
	for _, l := range c {
		if l.conv == nil {
			l.cb.Invoke(v)
			continue
		}
		if x, ok := l.conv(v); ok {
			l.cb.Invoke(x)
		}
	}
}

// Len returns the number of callbacks in the chain.
func (c Chain) Len() int {
	return len(c)
}

// with returns a new chain with links appended.
func (c Chain) with(links ...link) Chain {
	next := make(Chain, 0, len(c)+len(links))
	next = append(next, c...)
	return append(next, links...)
}

// without returns a new chain missing the first link for cb.
func (c Chain) without(cb *Callback) (Chain, bool) {
	for i, l := range c {
		if l.cb != cb {
			continue
		}
		if len(c) == 1 {
			return nil, true
		}
		next := make(Chain, 0, len(c)-1)
		next = append(next, c[:i]...)
		return append(next, c[i+1:]...), true
	}
	return c, false
}
