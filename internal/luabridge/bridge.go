package luabridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/typebus"
	"github.com/dshills/typebus/internal/dispatch"
	"github.com/dshills/typebus/internal/logging"
)

// ErrClosed is returned when a script is run on a closed bridge.
var ErrClosed = errors.New("lua bridge is closed")

// ErrDuplicateName is returned by Expose when the name is already taken.
var ErrDuplicateName = errors.New("payload name already exposed")

// Bridge connects one Lua state to a bus.
type Bridge struct {
	bus    *typebus.Bus
	loop   *dispatch.Loop
	L      *lua.LState
	logger *logging.Logger

	mu         sync.Mutex
	types      map[string]exposed
	subs       map[string]*typebus.Handle
	handlerTbl *lua.LTable // keeps Lua handlers reachable
	nextID     atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// exposed erases a payload type behind the operations Lua needs.
type exposed struct {
	subscribe func(id string) (*typebus.Handle, error)
	emit      func(data map[string]any) error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger for script errors.
func WithLogger(l *logging.Logger) Option {
	return func(br *Bridge) {
		if l != nil {
			br.logger = l
		}
	}
}

// New creates a bridge for bus with a fresh Lua state. Call Run to start
// serving it.
func New(bus *typebus.Bus, opts ...Option) *Bridge {
	br := &Bridge{
		bus:    bus,
		loop:   dispatch.NewLoop(),
		L:      lua.NewState(),
		logger: logging.Default(),
		types:  make(map[string]exposed),
		subs:   make(map[string]*typebus.Handle),
	}
	for _, opt := range opts {
		opt(br)
	}
	br.logger = br.logger.WithComponent("luabridge")
	br.register()
	return br
}

func (br *Bridge) register() {
	L := br.L

	br.handlerTbl = L.NewTable()
	L.SetGlobal("_typebus_handlers", br.handlerTbl)

	mod := L.NewTable()
	L.SetField(mod, "on", L.NewFunction(br.on))
	L.SetField(mod, "once", L.NewFunction(br.once))
	L.SetField(mod, "off", L.NewFunction(br.off))
	L.SetField(mod, "emit", L.NewFunction(br.emit))
	L.SetField(mod, "types", L.NewFunction(br.typeNames))
	L.SetGlobal("typebus", mod)
}

// Expose makes payloads of type T available to Lua under name.
func Expose[T any](br *Bridge, name string, codec Codec[T]) error {
	if name == "" {
		return errors.New("payload name cannot be empty")
	}
	if codec.Encode == nil || codec.Decode == nil {
		return fmt.Errorf("codec for %q must encode and decode", name)
	}

	br.mu.Lock()
	defer br.mu.Unlock()

	if _, dup := br.types[name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	br.types[name] = exposed{
		subscribe: func(id string) (*typebus.Handle, error) {
			return typebus.Subscribe(br.bus, func(v T) {
				data, err := codec.Encode(v)
				if err != nil {
					br.failed.Add(1)
					br.logger.WithError(err).Warn("encoding %s for %s", name, id)
					return
				}
				br.deliver(id, data)
			}, typebus.WithStrategy(typebus.ContextAsync), typebus.OnContext(br.loop))
		},
		emit: func(data map[string]any) error {
			v, err := codec.Decode(data)
			if err != nil {
				return fmt.Errorf("decoding %s: %w", name, err)
			}
			return typebus.Publish(br.bus, v)
		},
	}
	return nil
}

// Run serves the Lua state on the calling goroutine until ctx is done.
func (br *Bridge) Run(ctx context.Context) error {
	return br.loop.Run(ctx)
}

// RunPending runs queued scripts and callbacks on the calling goroutine.
// It is an alternative to Run for callers that own an event loop.
func (br *Bridge) RunPending() int {
	return br.loop.RunPending()
}

// DoString runs src on the bridge goroutine and waits for it. Run must be
// active.
func (br *Bridge) DoString(src string) error {
	if br.closed.Load() {
		return ErrClosed
	}
	var err error
	br.loop.Send(func() {
		if br.closed.Load() {
			err = ErrClosed
			return
		}
		err = br.L.DoString(src)
	})
	return err
}

// DoFile runs the script at path like DoString.
func (br *Bridge) DoFile(path string) error {
	if br.closed.Load() {
		return ErrClosed
	}
	var err error
	br.loop.Send(func() {
		if br.closed.Load() {
			err = ErrClosed
			return
		}
		err = br.L.DoFile(path)
	})
	return err
}

// Subscriptions returns the number of live Lua subscriptions.
func (br *Bridge) Subscriptions() int {
	br.mu.Lock()
	defer br.mu.Unlock()
	return len(br.subs)
}

// Delivered returns the number of payloads handed to Lua handlers.
func (br *Bridge) Delivered() uint64 {
	return br.delivered.Load()
}

// Failed returns the number of deliveries that failed to encode or whose
// handler raised an error.
func (br *Bridge) Failed() uint64 {
	return br.failed.Load()
}

// Close disposes every Lua subscription and closes the Lua state. If Run is
// active the state is closed on its goroutine.
func (br *Bridge) Close() {
	br.closeOnce.Do(func() {
		br.closed.Store(true)

		br.mu.Lock()
		subs := br.subs
		br.subs = make(map[string]*typebus.Handle)
		br.mu.Unlock()

		for _, h := range subs {
			h.Dispose()
		}

		closeState := func() { br.L.Close() }
		if br.loop.IsRunning() {
			br.loop.Send(closeState)
			return
		}
		closeState()
	})
}

// deliver runs on the bridge goroutine.
func (br *Bridge) deliver(id string, data map[string]any) {
	if br.closed.Load() {
		return
	}
	L := br.L

	handler := br.handlerTbl.RawGetString(id)
	if handler.Type() != lua.LTFunction {
		return
	}

	br.delivered.Add(1)
	L.Push(handler)
	L.Push(mapToTable(L, data))
	if err := L.PCall(1, 0, nil); err != nil {
		br.failed.Add(1)
		br.logger.WithError(err).Warn("lua handler %s failed", id)
	}
}

// on(name, fn) -> id
func (br *Bridge) on(L *lua.LState) int {
	id := br.subscribe(L, false)
	L.Push(lua.LString(id))
	return 1
}

// once(name, fn) -> id
func (br *Bridge) once(L *lua.LState) int {
	id := br.subscribe(L, true)
	L.Push(lua.LString(id))
	return 1
}

func (br *Bridge) subscribe(L *lua.LState, once bool) string {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	br.mu.Lock()
	t, ok := br.types[name]
	br.mu.Unlock()
	if !ok {
		L.RaiseError("unknown payload type %q", name)
		return ""
	}

	id := fmt.Sprintf("lua_%d", br.nextID.Add(1))
	handler := lua.LValue(fn)
	if once {
		handler = L.NewFunction(func(L *lua.LState) int {
			br.unsubscribe(id)
			L.Push(fn)
			L.Push(L.Get(1))
			L.Call(1, 0)
			return 0
		})
	}
	br.handlerTbl.RawSetString(id, handler)

	h, err := t.subscribe(id)
	if err != nil {
		br.handlerTbl.RawSetString(id, lua.LNil)
		L.RaiseError("subscribing to %s: %s", name, err.Error())
		return ""
	}

	br.mu.Lock()
	br.subs[id] = h
	br.mu.Unlock()
	return id
}

// off(id) -> bool
func (br *Bridge) off(L *lua.LState) int {
	id := L.CheckString(1)
	L.Push(lua.LBool(br.unsubscribe(id)))
	return 1
}

// unsubscribe runs on the bridge goroutine.
func (br *Bridge) unsubscribe(id string) bool {
	br.mu.Lock()
	h, ok := br.subs[id]
	delete(br.subs, id)
	br.mu.Unlock()

	if !ok {
		return false
	}
	br.handlerTbl.RawSetString(id, lua.LNil)
	h.Dispose()
	return true
}

// emit(name, table)
func (br *Bridge) emit(L *lua.LState) int {
	name := L.CheckString(1)
	data := tableToMap(L.OptTable(2, L.NewTable()))

	br.mu.Lock()
	t, ok := br.types[name]
	br.mu.Unlock()
	if !ok {
		L.RaiseError("unknown payload type %q", name)
		return 0
	}

	if err := t.emit(data); err != nil {
		L.RaiseError("emit %s: %s", name, err.Error())
	}
	return 0
}

// types() -> table
func (br *Bridge) typeNames(L *lua.LState) int {
	br.mu.Lock()
	names := make([]string, 0, len(br.types))
	for name := range br.types {
		names = append(names, name)
	}
	br.mu.Unlock()
	sort.Strings(names)

	tbl := L.NewTable()
	for _, name := range names {
		tbl.Append(lua.LString(name))
	}
	L.Push(tbl)
	return 1
}
