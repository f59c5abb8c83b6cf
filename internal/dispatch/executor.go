package dispatch

import (
	"runtime/debug"
	"time"
)

// Result is the outcome of one task run by an Executor.
type Result struct {
	// Panicked is true if the task panicked.
	Panicked bool

	// PanicValue is the recovered value when Panicked is true.
	PanicValue any

	// Stack is the stack trace captured at the panic.
	Stack []byte

	// Duration is how long the task ran.
	Duration time.Duration
}

// PanicHandler receives the value and stack of a task that panicked.
type PanicHandler func(panicValue any, stack []byte)

// Executor runs tasks with panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler sets the handler called after a task panics.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// NewExecutor creates an executor. Without a panic handler, panics are
// only recorded in the Result.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs task on the calling goroutine and never panics.
func (e *Executor) Execute(task func()) (res Result) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		r := recover()
		if r == nil {
			return
		}
		res.Panicked = true
		res.PanicValue = r
		res.Stack = debug.Stack()
		e.report(r, res.Stack)
	}()

	task()
	return res
}

func (e *Executor) report(v any, stack []byte) {
	if e.panicHandler == nil {
		return
	}
	defer func() { _ = recover() }()
	e.panicHandler(v, stack)
}
