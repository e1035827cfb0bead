package core

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

var (
	// ErrPending is returned by Result while the task has not finished.
	ErrPending = errors.New("task has not completed")

	// ErrCancelled is the outcome of a handle whose task was cancelled
	// before it started executing.
	ErrCancelled = errors.New("task was cancelled")

	// ErrWaitTimeout is returned by WaitTimeout when the task does not
	// finish within the given duration. The handle stays pending and can be
	// waited on again.
	ErrWaitTimeout = errors.New("timed out waiting for task")
)

type handleState int

const (
	statePending handleState = iota
	stateRunning
	stateSucceeded
	stateFailed
	stateCancelled
)

// Handle represents the eventual outcome of exactly one Task.
//
// A handle starts pending, moves to running when a worker picks the task up,
// and settles exactly once: succeeded, failed, or cancelled. The handle may
// outlive task execution; callers can query it at any later point.
type Handle struct {
	mu       sync.Mutex
	state    handleState
	img      image.Image
	err      error
	done     chan struct{}
	onCancel func()
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// begin transitions pending -> running. It returns false when the handle was
// cancelled before its task started, in which case the task must not run.
func (h *Handle) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != statePending {
		return false
	}
	h.state = stateRunning
	return true
}

// complete settles the handle with the task's outcome.
func (h *Handle) complete(img image.Image, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != stateRunning {
		return
	}
	if err != nil {
		h.state = stateFailed
		h.err = err
	} else {
		h.state = stateSucceeded
		h.img = img
	}
	close(h.done)
}

// setCancelHook installs the pool-side cleanup that runs after a successful
// Cancel, taking the still-queued task out of the pool's queue.
func (h *Handle) setCancelHook(fn func()) {
	h.mu.Lock()
	h.onCancel = fn
	h.mu.Unlock()
}

// Cancel attempts to cancel the task before it starts. It returns true when
// the task was still queued; the task then leaves the queue and will never
// execute. Cancelling a running or finished task fails (returns false) and
// never discards an already computed result.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	if h.state != statePending {
		h.mu.Unlock()
		return false
	}
	h.state = stateCancelled
	h.err = ErrCancelled
	close(h.done)
	hook := h.onCancel
	h.mu.Unlock()

	if hook != nil {
		hook()
	}
	return true
}

// Cancelled reports whether the handle settled by cancellation.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateCancelled
}

// Done returns a channel that is closed once the handle settles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the outcome without blocking. While the task is still
// pending or running it returns ErrPending.
func (h *Handle) Result() (image.Image, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case stateSucceeded:
		return h.img, nil
	case stateFailed, stateCancelled:
		return nil, h.err
	default:
		return nil, ErrPending
	}
}

// Wait blocks until the handle settles or ctx is done. A ctx error leaves the
// handle untouched; it can be waited on again.
func (h *Handle) Wait(ctx context.Context) (image.Image, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitTimeout blocks up to d for the handle to settle. On timeout it returns
// ErrWaitTimeout and the handle stays pending.
func (h *Handle) WaitTimeout(d time.Duration) (image.Image, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.Result()
	case <-timer.C:
		return nil, ErrWaitTimeout
	}
}
