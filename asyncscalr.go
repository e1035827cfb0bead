package asyncscalr

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/thebuzzmedia/imgscalr-go/core"
	"github.com/thebuzzmedia/imgscalr-go/scalr"
)

// Scaler is the synchronous collaborator that performs the actual image
// transformation. The façade never inspects it; it only defers and bounds its
// invocations. Replace it to plug in a different scaling implementation.
type Scaler func(src image.Image, method scalr.Method, mode scalr.Mode, targetWidth, targetHeight int, ops ...scalr.Op) (image.Image, error)

// ResizeOptions bundles every parameter of one scale request. The zero value
// of Method and Mode selects automatic behavior.
//
// Sizing is given either as TargetSize (applied to both dimensions, aspect
// ratio preserved per Mode) or as explicit Width and Height. The options are
// captured immutably at submission; mutating them afterwards has no effect on
// the queued task.
type ResizeOptions struct {
	Method scalr.Method
	Mode   scalr.Mode

	// TargetSize constrains both dimensions. Takes precedence over
	// Width/Height when positive.
	TargetSize int

	Width  int
	Height int

	// Ops are applied in order after scaling.
	Ops []scalr.Op
}

// request is the immutable argument bundle a task carries. Built once at
// submission so later mutation of the caller's ResizeOptions can't reach the
// queued work.
type request struct {
	src    image.Image
	method scalr.Method
	mode   scalr.Mode
	width  int
	height int
	ops    []scalr.Op
}

func newRequest(src image.Image, o ResizeOptions) request {
	r := request{
		src:    src,
		method: o.Method,
		mode:   o.Mode,
		width:  o.Width,
		height: o.Height,
	}
	if o.TargetSize > 0 {
		r.width, r.height = o.TargetSize, o.TargetSize
	}
	if len(o.Ops) > 0 {
		r.ops = make([]scalr.Op, len(o.Ops))
		copy(r.ops, o.Ops)
	}
	return r
}

// Async is the non-blocking façade over the scaling routine. It owns a
// process-wide-style pool reference, lazily creates it on first use, and
// transparently replaces it once it has been shut down or terminated.
//
// All methods are safe for concurrent use; submission is expected to be
// called from many goroutines at once.
type Async struct {
	mu   sync.Mutex
	pool core.Pool

	workers  int
	queueCap int
	scaler   Scaler
	logger   core.Logger
	metrics  core.Metrics
}

// Option configures an Async instance.
type Option func(*Async)

// WithWorkers sets the fixed worker count used when the façade creates its
// own pools. Must be > 0; New fails otherwise.
func WithWorkers(n int) Option {
	return func(a *Async) { a.workers = n }
}

// WithQueueCapacity bounds the admission queue of façade-created pools.
// A bounded pool rejects submissions with core.ErrQueueFull once full.
// Zero (the default) means unbounded: submissions always queue.
func WithQueueCapacity(n int) Option {
	return func(a *Async) { a.queueCap = n }
}

// WithPool seeds the façade with a caller-supplied pool. The usability check
// still applies: once the pool reports shut down or terminated, the façade
// replaces it with its own fixed pool.
func WithPool(p core.Pool) Option {
	return func(a *Async) { a.pool = p }
}

// WithScaler substitutes the scaling collaborator. Defaults to scalr.Resize.
func WithScaler(s Scaler) Option {
	return func(a *Async) { a.scaler = s }
}

// WithLogger sets the logger used by the façade and its pools.
func WithLogger(l core.Logger) Option {
	return func(a *Async) { a.logger = l }
}

// WithMetrics sets the metrics sink used by façade-created pools.
func WithMetrics(m core.Metrics) Option {
	return func(a *Async) { a.metrics = m }
}

// New creates an Async façade. A worker count <= 0 is a configuration error
// and fails construction outright; it is never surfaced per call.
func New(opts ...Option) (*Async, error) {
	a := &Async{
		workers: DefaultThreadCount,
		scaler:  scalr.Resize,
		logger:  core.NewDefaultLogger(),
		metrics: &core.NilMetrics{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.workers <= 0 {
		return nil, fmt.Errorf("asyncscalr: thread count must be > 0, got %d", a.workers)
	}
	if a.queueCap < 0 {
		return nil, fmt.Errorf("asyncscalr: queue capacity must be >= 0, got %d", a.queueCap)
	}
	return a, nil
}

// Resize submits one scale operation and returns its handle immediately.
// The operation runs later on a pool worker; argument-validation failures
// from the scaler surface through the handle, never here. The returned error
// is only non-nil when the pool itself refuses the submission (bounded queue
// full, or a caller-substituted pool that is shutting down).
func (a *Async) Resize(src image.Image, o ResizeOptions) (*core.Handle, error) {
	pool := a.ensurePool()

	req := newRequest(src, o)
	scaler := a.scaler
	task := core.NewTask(func(ctx context.Context) (image.Image, error) {
		return scaler(req.src, req.method, req.mode, req.width, req.height, req.ops...)
	})

	if err := pool.Submit(task); err != nil {
		return nil, err
	}
	return task.Handle(), nil
}

// Pool returns the current pool reference without side effects. It is nil
// until the first submission (or SetPool) — pools are created lazily so a
// process that never scales pays no worker cost.
func (a *Async) Pool() core.Pool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pool
}

// SetPool substitutes a caller-supplied pool implementation (different
// sizing, queueing, or rejection policy). The usability check still applies
// before every later submission.
func (a *Async) SetPool(p core.Pool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pool = p
}

// ensurePool returns a usable pool, replacing the current one when it is nil,
// shut down, or terminated. The check-and-replace runs under the façade's
// mutex so concurrent submitters converge on exactly one replacement.
//
// Replacement discards the old pool's identity without draining it: a
// gracefully shut-down FixedPool still completes its queued work on its own
// workers, the façade simply stops routing new submissions to it. Callers
// who shut a pool down to stop work entirely must not rely on the façade
// refusing later submissions — the next Resize creates a fresh pool.
func (a *Async) ensurePool() core.Pool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool == nil || a.pool.IsShutdown() || a.pool.IsTerminated() {
		replaced := a.pool != nil
		a.pool = core.NewFixedPoolWithConfig(a.workers, &core.PoolConfig{
			Name:          "imgscalr-async",
			QueueCapacity: a.queueCap,
			Metrics:       a.metrics,
			Logger:        a.logger,
		})
		if replaced {
			a.logger.Info("replaced unusable scale pool", core.F("workers", a.workers))
		}
	}
	return a.pool
}

// Shutdown gracefully stops the current pool, if any: no new work is
// admitted and queued tasks drain. The façade creates a fresh pool on the
// next submission.
func (a *Async) Shutdown() {
	if p := a.Pool(); p != nil {
		p.Shutdown()
	}
}

// ShutdownNow stops the current pool immediately, cancelling queued tasks,
// and returns the tasks that never commenced.
func (a *Async) ShutdownNow() []*core.Task {
	if p := a.Pool(); p != nil {
		return p.ShutdownNow()
	}
	return nil
}

// AwaitTermination waits up to timeout for the current pool's in-flight
// tasks to finish after a shutdown. With no pool it returns nil.
func (a *Async) AwaitTermination(timeout time.Duration) error {
	if p := a.Pool(); p != nil {
		return p.AwaitTermination(timeout)
	}
	return nil
}
