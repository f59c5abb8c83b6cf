package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDefaultContext_SendIsInline(t *testing.T) {
	c := NewDefaultContext(nil)
	ran := false
	c.Send(func() { ran = true })
	if !ran {
		t.Error("Send() should have run the callback before returning")
	}
}

func TestDefaultContext_PostRunsOnPool(t *testing.T) {
	p := NewPool(WithWorkerCount(1))
	p.Start()
	defer p.Stop(context.Background())

	c := NewDefaultContext(p)
	executed := make(chan struct{})
	c.Post(func() { close(executed) })

	select {
	case <-executed:
	case <-time.After(time.Second):
		t.Fatal("posted callback did not run")
	}
}

func TestDefaultContext_PostWithStoppedPool(t *testing.T) {
	c := NewDefaultContext(NewPool())
	executed := make(chan struct{})
	c.Post(func() { close(executed) })

	select {
	case <-executed:
	case <-time.After(time.Second):
		t.Fatal("posted callback was lost when the pool was stopped")
	}
}

func TestLoop_RunsInOrderOnOneGoroutine(t *testing.T) {
	l := NewLoop()
	startLoop(t, l)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		l.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	l.Send(func() {})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 100 {
		t.Fatalf("ran %d callbacks, want 100", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestLoop_SendBlocksUntilDone(t *testing.T) {
	l := NewLoop()
	startLoop(t, l)

	var done atomic.Bool
	l.Send(func() {
		time.Sleep(10 * time.Millisecond)
		done.Store(true)
	})
	if !done.Load() {
		t.Error("Send() returned before the callback finished")
	}
}

func TestLoop_SendPropagatesPanic(t *testing.T) {
	l := NewLoop()
	startLoop(t, l)

	defer func() {
		r := recover()
		var perr *PanicError
		err, ok := r.(error)
		if !ok || !errors.As(err, &perr) || perr.Value != "sent" {
			t.Fatalf("recovered %v, want *PanicError{sent}", r)
		}
		if l.Panicked() != 1 {
			t.Errorf("Panicked() = %d, want 1", l.Panicked())
		}
	}()
	l.Send(func() { panic("sent") })
}

func TestLoop_PostPanicGoesToHandler(t *testing.T) {
	got := make(chan any, 1)
	l := NewLoop(WithLoopPanicHandler(func(v any, _ []byte) { got <- v }))
	startLoop(t, l)

	l.Post(func() { panic("posted") })

	select {
	case v := <-got:
		if v != "posted" {
			t.Errorf("panic handler got %v, want posted", v)
		}
	case <-time.After(time.Second):
		t.Fatal("panic handler was not called")
	}

	// The loop keeps running after a panic.
	l.Send(func() {})
}

func TestLoop_RunTwice(t *testing.T) {
	l := NewLoop()
	startLoop(t, l)

	deadline := time.Now().Add(time.Second)
	for !l.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := l.Run(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestLoop_RunPending(t *testing.T) {
	l := NewLoop()
	var ran int
	l.Post(func() { ran++ })
	l.Post(func() { ran++ })

	if l.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", l.Pending())
	}
	if n := l.RunPending(); n != 2 || ran != 2 {
		t.Errorf("RunPending() = %d, ran = %d, want 2, 2", n, ran)
	}
	if l.Processed() != 2 {
		t.Errorf("Processed() = %d, want 2", l.Processed())
	}
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
