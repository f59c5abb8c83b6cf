package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/typebus"
	"github.com/dshills/typebus/internal/luabridge"
)

// Animal is the interface root of the demonstration hierarchy.
type Animal interface {
	Sound() string
}

// Named is embedded by every demonstration animal.
type Named struct {
	Name string `json:"name"`
}

// Dog descends from Named, Animal and any.
type Dog struct {
	Named
	Breed string `json:"breed"`
}

// Sound implements Animal.
func (d Dog) Sound() string { return "woof" }

// Cat implements Animal through its pointer only.
type Cat struct {
	Named
}

// Sound implements Animal.
func (c *Cat) Sound() string { return "meow" }

type scenarioFunc func(ctx context.Context, app *Application) error

var scenarios = map[string]scenarioFunc{
	"hierarchy": runHierarchy,
	"stress":    runStress,
	"weak":      runWeak,
	"lua":       runLua,
}

// Scenarios returns the available scenario names.
func Scenarios() []string {
	return []string{"hierarchy", "stress", "weak", "lua"}
}

// runHierarchy subscribes along the Dog hierarchy and checks who hears what.
func runHierarchy(_ context.Context, app *Application) error {
	bus := app.bus
	var animals, dogs, named, anything atomic.Int32

	h1, err := typebus.Subscribe(bus, func(a Animal) { animals.Add(1) }, typebus.WithStrategy(typebus.Inline))
	if err != nil {
		return err
	}
	defer h1.Dispose()

	if err := typebus.Publish(bus, Dog{Named: Named{Name: "rex"}}); err != nil {
		return err
	}
	app.printf("publish Dog with an Animal subscriber: animal=%d\n", animals.Load())
	if err := expect("animal callbacks", animals.Load(), int32(1)); err != nil {
		return err
	}

	h2, err := typebus.Subscribe(bus, func(d Dog) { dogs.Add(1) }, typebus.WithStrategy(typebus.Inline))
	if err != nil {
		return err
	}
	defer h2.Dispose()

	_ = typebus.Publish(bus, Dog{Named: Named{Name: "fido"}})
	app.printf("publish Dog with Animal and Dog subscribers: animal=%d dog=%d\n", animals.Load(), dogs.Load())
	if err := errors.Join(
		expect("animal callbacks", animals.Load(), int32(2)),
		expect("dog callbacks", dogs.Load(), int32(1)),
	); err != nil {
		return err
	}

	h1.Dispose()
	_ = typebus.Publish(bus, Dog{Named: Named{Name: "spot"}})
	app.printf("publish Dog after disposing the Animal subscriber: animal=%d dog=%d\n", animals.Load(), dogs.Load())
	if err := errors.Join(
		expect("animal callbacks", animals.Load(), int32(2)),
		expect("dog callbacks", dogs.Load(), int32(2)),
	); err != nil {
		return err
	}

	// A pointer embeds by address, so *Cat descends from *Named.
	h3, _ := typebus.Subscribe(bus, func(n *Named) { named.Add(1) }, typebus.WithStrategy(typebus.Inline))
	defer h3.Dispose()
	h4, _ := typebus.Subscribe(bus, func(any) { anything.Add(1) }, typebus.WithStrategy(typebus.Inline))
	defer h4.Dispose()

	_ = typebus.Publish(bus, &Cat{Named: Named{Name: "tom"}})
	app.printf("publish *Cat: named=%d any=%d dog=%d\n", named.Load(), anything.Load(), dogs.Load())
	return errors.Join(
		expect("named callbacks", named.Load(), int32(1)),
		expect("any callbacks", anything.Load(), int32(1)),
		expect("dog callbacks", dogs.Load(), int32(2)),
	)
}

// runStress has every goroutine subscribe once and publish once.
func runStress(_ context.Context, app *Application) error {
	bus := app.bus
	n := app.opts.Subscribers

	var total atomic.Int64
	handles := make([]*typebus.Handle, n)
	start := time.Now()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := typebus.Subscribe(bus, func(Animal) { total.Add(1) }, typebus.WithStrategy(typebus.Inline))
			if err != nil {
				errs <- err
				return
			}
			handles[i] = h
			if err := typebus.Publish(bus, Dog{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return err
	}
	elapsed := time.Since(start)

	concurrent := total.Load()
	app.printf("%d goroutines subscribed and published in %s: %d invocations (between %d and %d)\n",
		n, elapsed.Round(time.Microsecond), concurrent, n, int64(n)*int64(n))
	if concurrent < int64(n) || concurrent > int64(n)*int64(n) {
		return fmt.Errorf("%w: %d invocations outside [%d, %d]", ErrScenarioFailed, concurrent, n, n*n)
	}

	_ = typebus.Publish(bus, Dog{})
	app.printf("final publish reached %d subscribers\n", total.Load()-concurrent)
	if err := expect("final publish invocations", total.Load()-concurrent, int64(n)); err != nil {
		return err
	}

	for _, h := range handles {
		h.Dispose()
	}
	stats := bus.Stats()
	app.printf("bus: published=%d delivered=%d subscriptions=%d\n",
		stats.Published, stats.Delivered, stats.Subscriptions)
	return expect("subscriptions after dispose", stats.Subscriptions, int64(0))
}

// listener is a method subscriber for the weak scenario.
type listener struct {
	hits *atomic.Int32
	name string
}

// OnAnimal counts deliveries.
func (l *listener) OnAnimal(Animal) { l.hits.Add(1) }

//go:noinline
func subscribeListener(bus *typebus.Bus, hits *atomic.Int32, mode typebus.ReferenceMode) (*typebus.Handle, error) {
	return typebus.SubscribeMethod[Animal](bus, &listener{hits: hits, name: mode.String()}, "OnAnimal",
		typebus.WithReference(mode), typebus.WithStrategy(typebus.Inline))
}

// runWeak drops a weakly and a strongly held receiver and publishes after
// a collection.
func runWeak(_ context.Context, app *Application) error {
	var weakHits, strongHits atomic.Int32

	hw, err := subscribeListener(app.bus, &weakHits, typebus.ReferenceWeak)
	if err != nil {
		return err
	}
	defer hw.Dispose()
	hs, err := subscribeListener(app.bus, &strongHits, typebus.ReferenceStrong)
	if err != nil {
		return err
	}
	defer hs.Dispose()

	runtime.GC()
	runtime.GC()

	if err := typebus.Publish(app.bus, Dog{}); err != nil {
		return err
	}
	app.printf("after collection: weak receiver invoked %d times, strong receiver invoked %d times\n",
		weakHits.Load(), strongHits.Load())
	return errors.Join(
		expect("weak invocations", weakHits.Load(), int32(0)),
		expect("strong invocations", strongHits.Load(), int32(1)),
	)
}

const defaultScript = `
local heard = 0
typebus.on("dog", function(d)
    heard = heard + 1
    print(string.format("lua heard %s the %s", d.name, d.breed))
    if heard == 1 then
        typebus.emit("dog", { name = "echo", breed = d.breed })
    end
end)
`

// runLua runs a script against the bus and trades dogs with it.
func runLua(ctx context.Context, app *Application) error {
	br := luabridge.New(app.bus, luabridge.WithLogger(app.logger))
	if err := luabridge.Expose(br, "dog", luabridge.JSONCodec[Dog]()); err != nil {
		br.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = br.Run(runCtx)
		close(done)
	}()
	defer func() {
		br.Close()
		cancel()
		<-done
	}()

	var fromLua atomic.Int32
	h, err := typebus.Subscribe(app.bus, func(a Animal) {
		if d, ok := a.(Dog); ok && d.Name == "echo" {
			fromLua.Add(1)
		}
	}, typebus.WithStrategy(typebus.Inline))
	if err != nil {
		return err
	}
	defer h.Dispose()

	if path := app.cfg.Script.Path; path != "" {
		err = br.DoFile(path)
	} else {
		err = br.DoString(defaultScript)
	}
	if err != nil {
		return fmt.Errorf("running script: %w", err)
	}

	_ = typebus.Publish(app.bus, Dog{Named: Named{Name: "rex"}, Breed: "beagle"})

	// Lua deliveries are asynchronous; an empty script leaves the count at zero.
	deadline := time.After(2 * time.Second)
	for fromLua.Load() == 0 && br.Subscriptions() > 0 {
		select {
		case <-deadline:
			return fmt.Errorf("%w: no reply from lua", ErrScenarioFailed)
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	app.printf("lua subscriptions=%d delivered=%d failed=%d replies=%d\n",
		br.Subscriptions(), br.Delivered(), br.Failed(), fromLua.Load())
	return nil
}
