package luabridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/typebus"
	"github.com/dshills/typebus/internal/logging"
)

type Dog struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type Cat struct {
	Name string `json:"name"`
}

func startBridge(t *testing.T) (*typebus.Bus, *Bridge) {
	t.Helper()

	bus := typebus.New(typebus.WithLogger(logging.Nop()))
	br := New(bus, WithLogger(logging.Nop()))
	if err := Expose(br, "dog", JSONCodec[Dog]()); err != nil {
		t.Fatalf("Expose(dog) error = %v", err)
	}
	if err := Expose(br, "cat", JSONCodec[Cat]()); err != nil {
		t.Fatalf("Expose(cat) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = br.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		br.Close()
		cancel()
		<-done
		bus.Dispose()
	})
	return bus, br
}

// global reads a Lua global on the bridge goroutine.
func global(br *Bridge, name string) lua.LValue {
	var v lua.LValue
	br.loop.Send(func() { v = br.L.GetGlobal(name) })
	return v
}

func mustRun(t *testing.T, br *Bridge, src string) {
	t.Helper()
	if err := br.DoString(src); err != nil {
		t.Fatalf("DoString error = %v", err)
	}
}

func TestBridge_GoPublishReachesLua(t *testing.T) {
	bus, br := startBridge(t)

	mustRun(t, br, `
		names = {}
		typebus.on("dog", function(d) table.insert(names, d.name .. ":" .. d.age) end)
	`)
	if br.Subscriptions() != 1 {
		t.Fatalf("Subscriptions() = %d, want 1", br.Subscriptions())
	}

	_ = typebus.Publish(bus, Dog{Name: "rex", Age: 3})
	_ = typebus.Publish(bus, Cat{Name: "tom"})

	mustRun(t, br, `result = table.concat(names, ",")`)
	if got := global(br, "result").String(); got != "rex:3" {
		t.Errorf("result = %q, want rex:3", got)
	}
	if br.Delivered() != 1 {
		t.Errorf("Delivered() = %d, want 1", br.Delivered())
	}
}

func TestBridge_LuaEmitReachesGo(t *testing.T) {
	bus, br := startBridge(t)

	got := make(chan Dog, 1)
	_, err := typebus.Subscribe(bus, func(d Dog) { got <- d })
	if err != nil {
		t.Fatalf("Subscribe error = %v", err)
	}

	mustRun(t, br, `typebus.emit("dog", { name = "fido", age = 4 })`)

	select {
	case d := <-got:
		if d.Name != "fido" || d.Age != 4 {
			t.Errorf("got %+v, want fido/4", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Go subscriber was not called")
	}
}

func TestBridge_LuaEmitReachesLua(t *testing.T) {
	_, br := startBridge(t)

	mustRun(t, br, `
		count = 0
		typebus.on("cat", function(c) count = count + 1 end)
		typebus.emit("cat", { name = "tom" })
		typebus.emit("cat", { name = "felix" })
	`)

	// Deliveries are posted behind the script, so read in a later task.
	if got := global(br, "count"); got != lua.LNumber(2) {
		t.Errorf("count = %v, want 2", got)
	}
}

func TestBridge_Off(t *testing.T) {
	bus, br := startBridge(t)

	mustRun(t, br, `
		count = 0
		id = typebus.on("dog", function() count = count + 1 end)
		first = typebus.off(id)
		second = typebus.off(id)
	`)
	_ = typebus.Publish(bus, Dog{Name: "rex"})

	if global(br, "first") != lua.LTrue || global(br, "second") != lua.LFalse {
		t.Errorf("off results = %v, %v, want true, false", global(br, "first"), global(br, "second"))
	}
	if got := global(br, "count"); got != lua.LNumber(0) {
		t.Errorf("count = %v, want 0", got)
	}
	if br.Subscriptions() != 0 {
		t.Errorf("Subscriptions() = %d, want 0", br.Subscriptions())
	}
}

func TestBridge_Once(t *testing.T) {
	bus, br := startBridge(t)

	mustRun(t, br, `
		count = 0
		typebus.once("dog", function() count = count + 1 end)
	`)
	_ = typebus.Publish(bus, Dog{Name: "a"})
	_ = typebus.Publish(bus, Dog{Name: "b"})

	if got := global(br, "count"); got != lua.LNumber(1) {
		t.Errorf("count = %v, want 1", got)
	}
	if br.Subscriptions() != 0 {
		t.Errorf("Subscriptions() = %d, want 0", br.Subscriptions())
	}
}

func TestBridge_Types(t *testing.T) {
	_, br := startBridge(t)

	mustRun(t, br, `names = table.concat(typebus.types(), ",")`)
	if got := global(br, "names").String(); got != "cat,dog" {
		t.Errorf("names = %q, want cat,dog", got)
	}
}

func TestBridge_Errors(t *testing.T) {
	_, br := startBridge(t)

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown on", `typebus.on("horse", function() end)`, "unknown payload type"},
		{"unknown emit", `typebus.emit("horse", {})`, "unknown payload type"},
		{"bad payload", `typebus.emit("dog", { name = 5 })`, "decoding dog"},
		{"missing handler", `typebus.on("dog")`, "function expected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := br.DoString(tt.src)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("DoString error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestBridge_HandlerErrorIsContained(t *testing.T) {
	bus, br := startBridge(t)

	mustRun(t, br, `
		after = 0
		typebus.on("dog", function() error("bad handler") end)
		typebus.on("dog", function() after = after + 1 end)
	`)
	_ = typebus.Publish(bus, Dog{Name: "rex"})

	if got := global(br, "after"); got != lua.LNumber(1) {
		t.Errorf("after = %v, want 1", got)
	}
	if br.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", br.Failed())
	}
}

func TestBridge_Close(t *testing.T) {
	bus, br := startBridge(t)

	mustRun(t, br, `typebus.on("dog", function() end)`)
	br.Close()
	br.Close()

	if br.Subscriptions() != 0 {
		t.Errorf("Subscriptions() = %d, want 0", br.Subscriptions())
	}
	if bus.Stats().Subscriptions != 0 {
		t.Errorf("bus subscriptions = %d, want 0", bus.Stats().Subscriptions)
	}
	if err := br.DoString(`x = 1`); !errors.Is(err, ErrClosed) {
		t.Errorf("DoString after Close error = %v, want ErrClosed", err)
	}
}

func TestExpose_Validation(t *testing.T) {
	bus := typebus.New(typebus.WithLogger(logging.Nop()))
	defer bus.Dispose()
	br := New(bus, WithLogger(logging.Nop()))
	defer br.Close()

	if err := Expose(br, "", JSONCodec[Dog]()); err == nil {
		t.Error("Expose with empty name should fail")
	}
	if err := Expose(br, "dog", Codec[Dog]{}); err == nil {
		t.Error("Expose with empty codec should fail")
	}
	if err := Expose(br, "dog", JSONCodec[Dog]()); err != nil {
		t.Fatalf("Expose error = %v", err)
	}
	if err := Expose(br, "dog", JSONCodec[Dog]()); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate Expose error = %v, want ErrDuplicateName", err)
	}
}

func TestRunPending(t *testing.T) {
	bus := typebus.New(typebus.WithLogger(logging.Nop()))
	defer bus.Dispose()
	br := New(bus, WithLogger(logging.Nop()))
	defer br.Close()
	if err := Expose(br, "dog", JSONCodec[Dog]()); err != nil {
		t.Fatalf("Expose error = %v", err)
	}

	// Without Run the caller drives the state directly.
	if err := br.L.DoString(`count = 0; typebus.on("dog", function() count = count + 1 end)`); err != nil {
		t.Fatalf("DoString error = %v", err)
	}
	_ = typebus.Publish(bus, Dog{Name: "rex"})

	if got := br.L.GetGlobal("count"); got != lua.LNumber(0) {
		t.Fatalf("count = %v before RunPending, want 0", got)
	}
	if n := br.RunPending(); n != 1 {
		t.Errorf("RunPending() = %d, want 1", n)
	}
	if got := br.L.GetGlobal("count"); got != lua.LNumber(1) {
		t.Errorf("count = %v, want 1", got)
	}
}
