package typebus

import (
	"reflect"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/dshills/typebus/internal/busid"
	"github.com/dshills/typebus/internal/dispatch"
	"github.com/dshills/typebus/internal/logging"
	"github.com/dshills/typebus/internal/relay"
	"github.com/dshills/typebus/internal/thunk"
)

// Bus is a typed publish/subscribe bus. The zero value is not usable;
// create buses with New or NewWithContext.
type Bus struct {
	id      int
	context Marshaller
	pool    *dispatch.Pool
	logger  *logging.Logger

	panics          *panicSink
	defaultStrategy Strategy

	// mu is held shared while a subscription is being added or removed and
	// exclusively while the bus is disposed, so no callback can land in a
	// slot after its id has been handed back.
	mu       sync.RWMutex
	disposed atomic.Bool
	cleanup  runtime.Cleanup

	// The id goes back to the allocator only once no Publish is still
	// walking its slots, so a late publish cannot reach the callbacks of a
	// newer bus holding the same id.
	publishing     atomic.Int64
	releasePending atomic.Bool
	released       atomic.Bool

	published     atomic.Uint64
	delivered     atomic.Uint64
	subscriptions atomic.Int64
}

// panicSink must not reference its Bus: guarded callbacks are stored in the
// process-wide registries and would keep an abandoned bus reachable.
type panicSink struct {
	handler PanicHandler
	logger  *logging.Logger
	count   atomic.Uint64
}

// New creates a bus whose ContextSync callbacks run on the publisher and
// whose ContextAsync callbacks run on the worker pool.
func New(opts ...Option) *Bus {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newBus(dispatch.NewDefaultContext(cfg.pool), cfg)
}

// NewWithContext creates a bus whose ContextSync and ContextAsync callbacks
// run through m. A nil m, including a typed nil pointer, is rejected.
func NewWithContext(m Marshaller, opts ...Option) (*Bus, error) {
	if isNil(m) {
		return nil, &ArgumentError{Name: "context"}
	}
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newBus(m, cfg), nil
}

func newBus(m Marshaller, cfg busConfig) *Bus {
	logger := cfg.logger
	if logger == nil {
		logger = logging.Default()
	}

	b := &Bus{
		id:              busid.Default.Acquire(),
		context:         m,
		pool:            cfg.pool,
		defaultStrategy: cfg.defaultStrategy,
	}
	b.logger = logger.WithComponent("typebus").WithField("bus_id", b.id)
	b.panics = &panicSink{handler: cfg.panicHandler, logger: b.logger}

	// A bus that is dropped without Dispose still hands its id back.
	b.cleanup = runtime.AddCleanup(b, releaseID, b.id)

	b.logger.Debug("bus created")
	return b
}

// isNil reports whether m is nil or an interface holding a nil pointer,
// map, slice, func or channel.
func isNil(m Marshaller) bool {
	if m == nil {
		return true
	}
	switch rv := reflect.ValueOf(m); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func releaseID(id int) {
	relay.Each(func(r *relay.Registry) {
		r.Clear(id)
	})
	busid.Default.Release(id)
}

// ID returns the bus identifier. Identifiers of disposed buses are reused.
func (b *Bus) ID() int {
	return b.id
}

// IsDisposed reports whether Dispose has been called.
func (b *Bus) IsDisposed() bool {
	return b.disposed.Load()
}

// Dispose removes every subscription made on the bus and releases its
// identifier. It is safe to call more than once.
func (b *Bus) Dispose() {
	if !b.disposed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.cleanup.Stop()
	relay.Each(func(r *relay.Registry) {
		r.Clear(b.id)
	})
	b.subscriptions.Store(0)

	b.releasePending.Store(true)
	if b.publishing.Load() == 0 {
		b.release()
	}
	b.logger.Debug("bus disposed")
}

// release hands the id back after Dispose, once no Publish is in flight.
func (b *Bus) release() {
	if b.released.CompareAndSwap(false, true) {
		busid.Default.Release(b.id)
	}
}

// Close disposes the bus. It always returns nil.
func (b *Bus) Close() error {
	b.Dispose()
	return nil
}

// Subscribe registers fn for values of type T and of every type descending
// from T.
func Subscribe[T any](b *Bus, fn func(T), opts ...SubscribeOption) (*Handle, error) {
	if b == nil {
		return nil, &ArgumentError{Name: "bus"}
	}
	if fn == nil {
		return nil, &ArgumentError{Name: "callback"}
	}
	cfg := b.subscribeConfig(opts)
	return subscribe(b, fn, cfg)
}

// SubscribeMethod registers the method named method on recv. The method must
// have the form func(T) with a pointer or value receiver of type R.
// With Weak the bus does not keep recv alive.
func SubscribeMethod[T, R any](b *Bus, recv *R, method string, opts ...SubscribeOption) (*Handle, error) {
	if b == nil {
		return nil, &ArgumentError{Name: "bus"}
	}
	if recv == nil {
		return nil, &ArgumentError{Name: "target"}
	}
	th, err := thunk.Method[R, T](method)
	if err != nil {
		return nil, err
	}
	cfg := b.subscribeConfig(opts)
	return subscribe(b, thunk.Bind(thunk.NewTarget(recv, cfg.reference), th), cfg)
}

// SubscribeFunc registers fn bound to recv. fn is usually a method
// expression such as (*View).OnAnimal. With Weak the bus does not keep recv
// alive, provided fn itself does not capture it.
func SubscribeFunc[T, R any](b *Bus, recv *R, fn func(*R, T), opts ...SubscribeOption) (*Handle, error) {
	if b == nil {
		return nil, &ArgumentError{Name: "bus"}
	}
	if recv == nil {
		return nil, &ArgumentError{Name: "target"}
	}
	if fn == nil {
		return nil, &ArgumentError{Name: "callback"}
	}
	cfg := b.subscribeConfig(opts)
	return subscribe(b, thunk.Bind(thunk.NewTarget(recv, cfg.reference), thunk.Thunk[R, T](fn)), cfg)
}

func subscribe[T any](b *Bus, fn func(T), cfg subscribeConfig) (*Handle, error) {
	if b.disposed.Load() {
		return nil, ErrDisposed
	}
	if cfg.context != nil && isNil(cfg.context) {
		return nil, &ArgumentError{Name: "context"}
	}

	typ := reflect.TypeFor[T]()
	h := newHandle(b, typ, cfg.strategy)

	erased := func(v any) {
		p, _ := v.(T)
		fn(p)
	}
	if cfg.strategy != Inline && cfg.strategy != ContextSync {
		erased = b.panics.guard(h.id, typ, erased)
	}

	ctx := cfg.context
	if ctx == nil {
		ctx = b.context
	}
	h.callback = relay.NewCallback(dispatch.Wrap(erased, cfg.strategy, dispatch.Env{
		Pool:    b.pool,
		Context: ctx,
	}))
	h.registry = relay.For(typ)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.disposed.Load() {
		return nil, ErrDisposed
	}
	h.registry.Subscribe(b.id, h.callback)
	b.subscriptions.Add(1)

	b.logger.WithFields(map[string]any{
		"type":     typ.String(),
		"strategy": cfg.strategy.String(),
		"handle":   h.id,
	}).Debug("subscribed")
	return h, nil
}

// guard recovers panics of callbacks that run away from their publisher.
func (s *panicSink) guard(handleID string, typ reflect.Type, fn func(any)) func(any) {
	return func(v any) {
		defer func() {
			if r := recover(); r != nil {
				s.count.Add(1)
				s.report(&PanicError{
					HandleID: handleID,
					Type:     typ,
					Value:    r,
					Stack:    string(debug.Stack()),
				})
			}
		}()
		fn(v)
	}
}

func (s *panicSink) report(err *PanicError) {
	if s.handler == nil {
		s.logger.WithFields(map[string]any{
			"type":   err.Type.String(),
			"handle": err.HandleID,
		}).Error("callback panicked: %v", err.Value)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handler panicked: %v", r)
		}
	}()
	s.handler(err)
}

func (b *Bus) subscribeConfig(opts []SubscribeOption) subscribeConfig {
	cfg := subscribeConfig{reference: ReferenceStrong}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.strategySet {
		cfg.strategy = b.defaultStrategy
	}
	return cfg
}

// Publish delivers v to every callback registered on b for T or for any
// ancestor of T. Inline and ContextSync callbacks have completed when
// Publish returns; a panic in one of them propagates to the caller and
// skips the callbacks after it.
func Publish[T any](b *Bus, v T) error {
	if b == nil {
		return &ArgumentError{Name: "bus"}
	}
	b.publishing.Add(1)
	defer func() {
		if b.publishing.Add(-1) == 0 && b.releasePending.Load() {
			b.release()
		}
	}()
	if b.disposed.Load() {
		return ErrDisposed
	}

	n := relay.ForType[T]().Dispatch(b.id, v)
	b.published.Add(1)
	b.delivered.Add(uint64(n))
	return nil
}

// Stats contains statistics for a bus.
type Stats struct {
	// ID is the bus identifier.
	ID int

	// Published is the number of Publish calls.
	Published uint64

	// Delivered is the number of callback invocations started by Publish.
	Delivered uint64

	// Subscriptions is the number of live subscriptions.
	Subscriptions int64

	// Panics is the number of asynchronous callbacks that panicked.
	Panics uint64

	// Disposed reports whether the bus has been disposed.
	Disposed bool
}

// Stats returns bus statistics.
func (b *Bus) Stats() Stats {
	return Stats{
		ID:            b.id,
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Subscriptions: b.subscriptions.Load(),
		Panics:        b.panics.count.Load(),
		Disposed:      b.disposed.Load(),
	}
}

// Pool returns the worker pool of the bus, or the shared pool when none
// was configured.
func (b *Bus) Pool() *dispatch.Pool {
	if b.pool == nil {
		return dispatch.Shared()
	}
	return b.pool
}
