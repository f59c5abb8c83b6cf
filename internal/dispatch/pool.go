package dispatch

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Pool executes callbacks on a fixed set of worker goroutines fed by a
// bounded queue. When the queue is full the task runs on a goroutine of its
// own instead of being dropped.
type Pool struct {
	// Configuration
	queueSize   int
	workerCount int

	// State
	mu      sync.RWMutex // protects queue creation/destruction
	queue   chan func()
	running atomic.Bool
	wg      sync.WaitGroup

	executor *Executor

	// Stats
	submitted   atomic.Uint64
	processed   atomic.Uint64
	succeeded   atomic.Uint64
	panicked    atomic.Uint64
	overflowed  atomic.Uint64
	totalTimeNs atomic.Int64
}

// NewPool creates a new worker pool. It does not start any goroutines until
// Start is called.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		queueSize:   10000,
		workerCount: runtime.GOMAXPROCS(0),
		executor:    NewExecutor(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithQueueSize sets the task queue size.
func WithQueueSize(size int) PoolOption {
	return func(p *Pool) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) PoolOption {
	return func(p *Pool) {
		if count > 0 {
			p.workerCount = count
		}
	}
}

// WithPoolPanicHandler sets the panic handler for pooled execution.
func WithPoolPanicHandler(h PanicHandler) PoolOption {
	return func(p *Pool) {
		p.executor = NewExecutor(WithExecutorPanicHandler(h))
	}
}

// Start starts the worker goroutines.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return ErrAlreadyRunning
	}

	p.queue = make(chan func(), p.queueSize)
	p.running.Store(true)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(p.queue)
	}

	return nil
}

// Stop stops accepting work and waits for queued tasks to finish or for ctx
// to be done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running.Store(false)
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues task for execution. It never blocks: a full queue spills the
// task onto a new goroutine. Returns ErrNotRunning if the pool is stopped.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return ErrNotRunning
	}

	p.submitted.Add(1)
	select {
	case p.queue <- task:
	default:
		p.overflowed.Add(1)
		go p.run(task)
	}
	return nil
}

// Go runs task on a goroutine of its own under the pool's executor. It is
// used for dedicated execution and does not require the pool to be running.
func (p *Pool) Go(task func()) {
	p.submitted.Add(1)
	go p.run(task)
}

func (p *Pool) worker(queue <-chan func()) {
	defer p.wg.Done()
	for task := range queue {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	p.processed.Add(1)
	result := p.executor.Execute(task)
	p.totalTimeNs.Add(result.Duration.Nanoseconds())

	if result.Panicked {
		p.panicked.Add(1)
		return
	}
	p.succeeded.Add(1)
}

// QueueDepth returns the current number of tasks in the queue.
func (p *Pool) QueueDepth() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return 0
	}
	return len(p.queue)
}

// IsRunning returns true if the pool is running.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	processed := p.processed.Load()
	totalNs := p.totalTimeNs.Load()

	var avgNs int64
	if processed > 0 {
		avgNs = totalNs / int64(processed)
	}

	return PoolStats{
		Workers:       p.workerCount,
		Submitted:     p.submitted.Load(),
		Processed:     processed,
		Succeeded:     p.succeeded.Load(),
		Panicked:      p.panicked.Load(),
		Overflowed:    p.overflowed.Load(),
		QueueDepth:    p.QueueDepth(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// PoolStats contains statistics for a pool.
type PoolStats struct {
	// Workers is the configured number of worker goroutines.
	Workers int

	// Submitted is the total number of tasks handed to the pool.
	Submitted uint64

	// Processed is the number of tasks that have run.
	Processed uint64

	// Succeeded is the number of tasks that returned normally.
	Succeeded uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// Overflowed is the number of tasks that ran outside the workers
	// because the queue was full.
	Overflowed uint64

	// QueueDepth is the current number of tasks waiting in the queue.
	QueueDepth int

	// TotalDuration is the cumulative time spent running tasks.
	TotalDuration time.Duration

	// AvgDuration is the average task run time.
	AvgDuration time.Duration
}

var shared struct {
	once sync.Once
	pool *Pool
}

// Shared returns the process-wide pool, starting it on first use.
func Shared() *Pool {
	shared.once.Do(func() {
		p := NewPool(WithWorkerCount(2 * runtime.GOMAXPROCS(0)))
		_ = p.Start()
		shared.pool = p
	})
	return shared.pool
}
