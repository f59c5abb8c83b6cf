package thunk

import "weak"

// ReferenceMode selects how a subscription holds its receiver.
type ReferenceMode int

const (
	// ReferenceStrong keeps the receiver alive for the life of the subscription.
	ReferenceStrong ReferenceMode = iota

	// ReferenceWeak lets the receiver be collected; the callback then does nothing.
	ReferenceWeak
)

// String returns a human-readable mode name.
func (m ReferenceMode) String() string {
	switch m {
	case ReferenceStrong:
		return "strong"
	case ReferenceWeak:
		return "weak"
	default:
		return "unknown"
	}
}

// Target is either a strong or a weak reference to a receiver.
type Target[R any] struct {
	strong *R
	weak   weak.Pointer[R]
	mode   ReferenceMode
}

// Strong returns a target that keeps p alive.
func Strong[R any](p *R) Target[R] {
	return Target[R]{strong: p, mode: ReferenceStrong}
}

// Weak returns a target that does not keep p alive.
func Weak[R any](p *R) Target[R] {
	return Target[R]{weak: weak.Make(p), mode: ReferenceWeak}
}

// NewTarget returns a target for p in the given mode.
func NewTarget[R any](p *R, mode ReferenceMode) Target[R] {
	if mode == ReferenceWeak {
		return Weak(p)
	}
	return Strong(p)
}

// Mode returns the reference mode.
func (t Target[R]) Mode() ReferenceMode {
	return t.mode
}

// Resolve returns the receiver, or false once a weak receiver is gone.
func (t Target[R]) Resolve() (*R, bool) {
	if t.mode == ReferenceWeak {
		p := t.weak.Value()
		return p, p != nil
	}
	return t.strong, t.strong != nil
}

// Bind pairs a thunk with a target. The result is a no-op once the target
// cannot be resolved.
func Bind[R, T any](t Target[R], th Thunk[R, T]) func(T) {
	return func(v T) {
		if recv, ok := t.Resolve(); ok {
			th(recv, v)
		}
	}
}
