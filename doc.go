// Package asyncscalr provides a non-blocking, bounded façade over synchronous
// image scaling.
//
// Scale operations, especially on large images, are hardware-intensive on
// both CPU and memory. In busy deployments (e.g. a web backend resizing
// uploads) firing off an unbounded number of simultaneous operations
// oversubscribes cores and exhausts the heap. This package serializes all
// scale requests down to a fixed number of simultaneous operations with no
// additional logic on the caller's side: excess requests queue in submission
// order and execute as workers free up.
//
// # Quick Start
//
// Submit through the process-wide façade and block on the handle when the
// result is needed:
//
//	handle, err := asyncscalr.Resize(src, asyncscalr.ResizeOptions{TargetSize: 150})
//	if err != nil {
//		// submission rejected (bounded queue full)
//	}
//	thumb, err := handle.Wait(ctx)
//
// The façade's worker pool is created lazily on first use, sized by the
// IMGSCALR_ASYNC_THREAD_COUNT environment variable (default 2). Processes
// that never submit a scale request never pay the worker cost. An invalid
// thread count (<= 0) is a fatal configuration error surfaced once, on first
// use, not per call.
//
// # Key Concepts
//
// Async: an injectable façade instance owning one pool reference. Construct
// isolated instances with New for tests or for independent throttling
// domains; the package-level functions delegate to a shared default.
//
// Handle: the pending result of one submitted operation. Supports blocking
// with context or timeout, non-blocking polls, and cancellation of tasks
// that have not started. Errors from the scaling routine — including
// argument-validation failures — surface only through the handle.
//
// Pool: a fixed set of workers plus a FIFO admission queue. The façade
// replaces a pool that has been shut down or terminated transparently on the
// next submission; callers may also substitute their own Pool implementation
// via SetPool.
//
// # Lifecycle
//
// The façade never releases workers on its own. Before process exit, stop
// the pool explicitly:
//
//	a.Shutdown()                                // drain queued work, or
//	a.ShutdownNow()                             // discard queued work
//	err := a.AwaitTermination(5 * time.Second)  // bound the wait
//
// # Thread Safety
//
// Submission, pool replacement, and pool substitution are all safe under
// concurrent use from many goroutines without external locking.
package asyncscalr
