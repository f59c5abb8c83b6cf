package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Marshaller hands callbacks to an execution context.
type Marshaller interface {
	// Send runs fn in the context and returns once it has completed.
	Send(fn func())

	// Post schedules fn to run in the context and returns immediately.
	Post(fn func())
}

// DefaultContext is the marshaller used when a bus is created without one:
// Send runs on the caller, Post runs on a pool.
type DefaultContext struct {
	pool *Pool
}

// NewDefaultContext returns a DefaultContext posting to pool. A nil pool
// means the shared pool.
func NewDefaultContext(pool *Pool) *DefaultContext {
	return &DefaultContext{pool: pool}
}

// Send runs fn on the calling goroutine.
func (c *DefaultContext) Send(fn func()) {
	fn()
}

// Post runs fn on the pool.
func (c *DefaultContext) Post(fn func()) {
	p := c.pool
	if p == nil {
		p = Shared()
	}
	if err := p.Submit(fn); err != nil {
		p.Go(fn)
	}
}

// Loop is a marshaller owning a single goroutine: every callback sent or
// posted to it runs on the goroutine that called Run, one at a time, in
// submission order.
//
// Send must not be called from the loop goroutine itself; it would wait for
// a task the loop can never reach. Work submitted while the loop is not
// running stays queued until Run is called.
type Loop struct {
	mu      sync.Mutex
	pending []loopTask
	wake    chan struct{}

	running  atomic.Bool
	executor *Executor // posted callbacks
	sender   *Executor // sent callbacks; panics go back to the sender

	processed atomic.Uint64
	panicked  atomic.Uint64
}

type loopTask struct {
	fn    func()
	reply chan *PanicError // nil for Post
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopPanicHandler sets the panic handler for posted callbacks.
func WithLoopPanicHandler(h PanicHandler) LoopOption {
	return func(l *Loop) {
		l.executor = NewExecutor(WithExecutorPanicHandler(h))
	}
}

// NewLoop creates a loop. Call Run to start processing.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		wake:     make(chan struct{}, 1),
		executor: NewExecutor(),
		sender:   NewExecutor(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Send runs fn on the loop goroutine and waits for it. A panic in fn is
// re-raised on the caller as a *PanicError.
func (l *Loop) Send(fn func()) {
	reply := make(chan *PanicError, 1)
	l.enqueue(loopTask{fn: fn, reply: reply})
	if perr := <-reply; perr != nil {
		panic(perr)
	}
}

// Post queues fn for the loop goroutine and returns immediately.
func (l *Loop) Post(fn func()) {
	l.enqueue(loopTask{fn: fn})
}

func (l *Loop) enqueue(t loopTask) {
	l.mu.Lock()
	l.pending = append(l.pending, t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes callbacks on the calling goroutine until ctx is done.
// It returns ctx.Err(), or ErrAlreadyRunning if another Run is active.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	for {
		l.drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending runs every callback queued so far on the calling goroutine and
// returns how many ran. It is meant for callers that drive the loop from
// their own event loop instead of calling Run.
func (l *Loop) RunPending() int {
	return l.drain()
}

func (l *Loop) drain() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, t := range batch {
			l.runTask(t)
			n++
		}
	}
}

func (l *Loop) runTask(t loopTask) {
	l.processed.Add(1)

	if t.reply == nil {
		if l.executor.Execute(t.fn).Panicked {
			l.panicked.Add(1)
		}
		return
	}

	res := l.sender.Execute(t.fn)
	if res.Panicked {
		l.panicked.Add(1)
		t.reply <- &PanicError{Value: res.PanicValue, Stack: res.Stack}
		return
	}
	t.reply <- nil
}

// IsRunning reports whether Run is active.
func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// Pending returns the number of queued callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Processed returns the number of callbacks the loop has run.
func (l *Loop) Processed() uint64 {
	return l.processed.Load()
}

// Panicked returns the number of callbacks that panicked on the loop.
func (l *Loop) Panicked() uint64 {
	return l.panicked.Load()
}
