package typebus

import (
	"reflect"
	"sync/atomic"

	"github.com/dshills/typebus/internal/relay"
	"github.com/google/uuid"
)

// Handle represents one subscription. Disposing it removes the callback
// from the bus.
type Handle struct {
	id       string
	bus      *Bus
	typ      reflect.Type
	strategy Strategy

	registry *relay.Registry
	callback *relay.Callback
	disposed atomic.Bool
}

func newHandle(b *Bus, typ reflect.Type, strategy Strategy) *Handle {
	return &Handle{
		id:       uuid.NewString(),
		bus:      b,
		typ:      typ,
		strategy: strategy,
	}
}

// ID returns the unique subscription ID.
func (h *Handle) ID() string {
	return h.id
}

// Type returns the payload type the callback is registered for.
func (h *Handle) Type() reflect.Type {
	return h.typ
}

// Strategy returns the execution strategy of the callback.
func (h *Handle) Strategy() Strategy {
	return h.strategy
}

// IsDisposed reports whether Dispose has been called on the handle.
func (h *Handle) IsDisposed() bool {
	return h.disposed.Load()
}

// Dispose removes the callback. Calling it again, or after the bus has been
// disposed, does nothing. Publications already in flight may still reach
// the callback.
func (h *Handle) Dispose() {
	if !h.disposed.CompareAndSwap(false, true) {
		return
	}

	b := h.bus
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.disposed.Load() {
		return
	}
	if h.registry.Unsubscribe(b.id, h.callback) {
		b.subscriptions.Add(-1)
		b.logger.WithFields(map[string]any{
			"type":   h.typ.String(),
			"handle": h.id,
		}).Debug("unsubscribed")
	}
}
