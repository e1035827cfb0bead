package core

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrShutdown is returned by Submit after Shutdown or ShutdownNow.
	ErrShutdown = errors.New("pool is shut down")

	// ErrQueueFull is returned by Submit when a bounded admission queue is
	// at capacity. The default unbounded configuration never returns it.
	ErrQueueFull = errors.New("pool queue is full")
)

// Pool executes submitted scale tasks on a fixed set of workers with FIFO
// admission. Submissions never block on task completion; callers observe
// outcomes through the task's Handle.
//
// The pool does not release its workers on its own. The owning process must
// call Shutdown (drain queued work) or ShutdownNow (discard queued work) and
// may use AwaitTermination to bound how long it waits for in-flight tasks.
type Pool interface {
	// Submit enqueues a task. It returns immediately; the only errors are
	// ErrShutdown and, for bounded pools, ErrQueueFull.
	Submit(t *Task) error

	// Shutdown stops admissions and lets workers drain the queue.
	Shutdown()

	// ShutdownNow stops admissions, cancels every queued task, and returns
	// the tasks that never commenced. In-flight tasks get their context
	// cancelled but are not forcibly interrupted.
	ShutdownNow() []*Task

	// AwaitTermination blocks until every worker has exited or the timeout
	// elapses, whichever comes first.
	AwaitTermination(timeout time.Duration) error

	IsShutdown() bool
	IsTerminated() bool

	WorkerCount() int
	QueuedTaskCount() int
	ActiveTaskCount() int

	// Stats returns a consistent-enough snapshot for observability.
	Stats() PoolStats
}

// PoolStats is a point-in-time snapshot of a pool's state.
type PoolStats struct {
	Name       string
	Workers    int
	Queued     int
	Active     int
	Shutdown   bool
	Terminated bool
}

// FixedPool is the default Pool: a fixed number of worker goroutines pulling
// from a shared FIFO queue. At most WorkerCount tasks execute concurrently;
// excess tasks queue in submission order and are never reordered or dropped.
type FixedPool struct {
	name    string
	workers int
	queue   *taskQueue
	signal  chan struct{}
	slots   *semaphore.Weighted // nil when the queue is unbounded

	ctx    context.Context
	cancel context.CancelFunc

	wg      sync.WaitGroup
	drainCh chan struct{} // closed by Shutdown: exit once the queue is empty
	killCh  chan struct{} // closed by ShutdownNow: exit immediately
	termCh  chan struct{} // closed once every worker has exited

	shutdownOnce sync.Once
	killOnce     sync.Once
	shuttingDown int32 // atomic flag

	metricQueued int32
	metricActive int32

	panicHandler PanicHandler
	metrics      Metrics
	logger       Logger
}

var _ Pool = (*FixedPool)(nil)

// NewFixedPool creates a pool with the given number of workers and default
// configuration (unbounded queue). Workers start immediately and sit idle
// waiting for work. It panics when workers <= 0; sizing is validated by the
// façade before any pool is constructed.
func NewFixedPool(workers int) *FixedPool {
	return NewFixedPoolWithConfig(workers, DefaultPoolConfig())
}

// NewFixedPoolWithConfig creates a pool with explicit configuration.
func NewFixedPoolWithConfig(workers int, config *PoolConfig) *FixedPool {
	if workers <= 0 {
		panic(fmt.Sprintf("pool workers must be > 0, got %d", workers))
	}
	if config == nil {
		config = DefaultPoolConfig()
	}

	p := &FixedPool{
		name:    config.Name,
		workers: workers,
		queue:   newTaskQueue(),
		signal:  make(chan struct{}, workers*2),
		drainCh: make(chan struct{}),
		killCh:  make(chan struct{}),
		termCh:  make(chan struct{}),

		panicHandler: config.PanicHandler,
		metrics:      config.Metrics,
		logger:       config.Logger,
	}

	if p.name == "" {
		p.name = "scale-pool"
	}
	if p.panicHandler == nil {
		p.panicHandler = &DefaultPanicHandler{}
	}
	if p.metrics == nil {
		p.metrics = &NilMetrics{}
	}
	if p.logger == nil {
		p.logger = NewDefaultLogger()
	}
	if config.QueueCapacity > 0 {
		p.slots = semaphore.NewWeighted(int64(config.QueueCapacity))
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	go func() {
		p.wg.Wait()
		close(p.termCh)
		p.cancel()
	}()

	return p
}

// Submit enqueues a task for execution in FIFO order.
func (p *FixedPool) Submit(t *Task) error {
	if atomic.LoadInt32(&p.shuttingDown) == 1 {
		p.metrics.RecordTaskRejected(p.name, "shutdown")
		return ErrShutdown
	}

	if p.slots != nil && !p.slots.TryAcquire(1) {
		p.metrics.RecordTaskRejected(p.name, "queue_full")
		return ErrQueueFull
	}

	t.handle.setCancelHook(func() { p.discardCancelled(t) })
	p.queue.push(t)
	depth := atomic.AddInt32(&p.metricQueued, 1)
	p.metrics.RecordQueueDepth(p.name, int(depth))

	// Shutdown may have slipped in between the flag check and the push,
	// with the last worker exiting on an empty queue. Re-check and pull the
	// task back out so an accepted submission can never be stranded. A
	// failed remove means a draining worker already owns the task.
	if atomic.LoadInt32(&p.shuttingDown) == 1 && p.queue.remove(t) {
		depth := atomic.AddInt32(&p.metricQueued, -1)
		p.metrics.RecordQueueDepth(p.name, int(depth))
		if p.slots != nil {
			p.slots.Release(1)
		}
		p.metrics.RecordTaskRejected(p.name, "shutdown")
		return ErrShutdown
	}

	select {
	case p.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
	}
	return nil
}

// discardCancelled eagerly removes a cancelled task from the queue so a
// bounded pool's capacity frees up without waiting for a worker to reach it.
// A failed remove means the task already left the queue; the worker that
// popped it releases the slot and skips execution.
func (p *FixedPool) discardCancelled(t *Task) {
	if !p.queue.remove(t) {
		return
	}
	depth := atomic.AddInt32(&p.metricQueued, -1)
	p.metrics.RecordQueueDepth(p.name, int(depth))
	if p.slots != nil {
		p.slots.Release(1)
	}
	p.metrics.RecordTaskCancelled(p.name)
}

// workerLoop is the main loop for each worker
func (p *FixedPool) workerLoop(id int) {
	defer p.wg.Done()

	for {
		t, ok := p.getWork()
		if !ok {
			return
		}
		if p.slots != nil {
			p.slots.Release(1)
		}

		// A handle cancelled while queued never executes.
		if !t.handle.begin() {
			p.metrics.RecordTaskCancelled(p.name)
			continue
		}

		atomic.AddInt32(&p.metricActive, 1)
		start := time.Now()
		img, err := p.runTask(id, t)
		t.handle.complete(img, err)
		atomic.AddInt32(&p.metricActive, -1)
		p.metrics.RecordTaskDuration(p.name, time.Since(start))
	}
}

// getWork pulls the next task in FIFO order, blocking until one is available
// or the pool is shut down. On graceful shutdown workers keep pulling until
// the queue is empty; on immediate shutdown they return at once.
func (p *FixedPool) getWork() (*Task, bool) {
	for {
		if t, ok := p.queue.pop(); ok {
			depth := atomic.AddInt32(&p.metricQueued, -1)
			p.metrics.RecordQueueDepth(p.name, int(depth))
			return t, true
		}

		select {
		case <-p.killCh:
			return nil, false
		case <-p.signal:
		case <-p.drainCh:
			// Queue was empty above and no new work is admitted.
			select {
			case <-p.signal:
				// A submission raced the shutdown flag; retry the pop.
				continue
			default:
			}
			if p.queue.len() == 0 {
				return nil, false
			}
		}
	}
}

// runTask executes the captured scale invocation, converting a panic into the
// task's failure outcome so the worker survives.
func (p *FixedPool) runTask(id int, t *Task) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			p.panicHandler.HandlePanic(p.name, id, r, stack)
			p.metrics.RecordTaskPanic(p.name, r)
			img, err = nil, &PanicError{Value: r}
		}
	}()
	return t.run(p.ctx)
}

// Shutdown stops admissions and drains queued work. In-flight and queued
// tasks still complete; only new submissions are refused.
func (p *FixedPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		atomic.StoreInt32(&p.shuttingDown, 1)
		close(p.drainCh)
		p.logger.Info("pool shutting down", F("pool", p.name), F("queued", p.QueuedTaskCount()))
	})
}

// ShutdownNow stops admissions, discards queued work, and cancels the pool
// context so in-flight tasks observing it can bail out. Every discarded
// task's handle settles as cancelled; the tasks are returned to the caller.
func (p *FixedPool) ShutdownNow() []*Task {
	p.Shutdown()

	var dropped []*Task
	p.killOnce.Do(func() {
		close(p.killCh)
		p.cancel()

		dropped = p.queue.drain()
		atomic.AddInt32(&p.metricQueued, -int32(len(dropped)))
		for _, t := range dropped {
			t.handle.Cancel()
		}
		if len(dropped) > 0 {
			p.logger.Warn("pool discarded queued tasks", F("pool", p.name), F("count", len(dropped)))
		}
	})
	return dropped
}

// AwaitTermination blocks until all workers have exited or the timeout
// elapses. Calling it without a prior Shutdown just waits out the timeout.
func (p *FixedPool) AwaitTermination(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.termCh:
		return nil
	case <-timer.C:
		return fmt.Errorf("pool %s did not terminate within %v", p.name, timeout)
	}
}

// IsShutdown reports whether Shutdown or ShutdownNow has been called.
func (p *FixedPool) IsShutdown() bool {
	return atomic.LoadInt32(&p.shuttingDown) == 1
}

// IsTerminated reports whether every worker has exited after a shutdown.
func (p *FixedPool) IsTerminated() bool {
	select {
	case <-p.termCh:
		return true
	default:
		return false
	}
}

// Name returns the pool's name as used in logs and metrics.
func (p *FixedPool) Name() string { return p.name }

// WorkerCount returns the number of workers.
func (p *FixedPool) WorkerCount() int { return p.workers }

// QueuedTaskCount returns the number of tasks waiting for a worker.
func (p *FixedPool) QueuedTaskCount() int { return int(atomic.LoadInt32(&p.metricQueued)) }

// ActiveTaskCount returns the number of tasks currently executing.
func (p *FixedPool) ActiveTaskCount() int { return int(atomic.LoadInt32(&p.metricActive)) }

// Stats returns a snapshot of the pool's state.
func (p *FixedPool) Stats() PoolStats {
	return PoolStats{
		Name:       p.name,
		Workers:    p.workers,
		Queued:     p.QueuedTaskCount(),
		Active:     p.ActiveTaskCount(),
		Shutdown:   p.IsShutdown(),
		Terminated: p.IsTerminated(),
	}
}
