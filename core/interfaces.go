package core

import (
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a scale task panics during execution.
// The panic never crashes the worker; it settles the task's own handle with a
// PanicError and is reported here for logging or alerting.
//
// Implementations must be safe for concurrent use.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - poolName: the name of the pool where the panic occurred
	// - workerID: the ID of the worker that ran the task
	// - panicInfo: the panic value recovered from the task
	// - stackTrace: the stack trace at the time of panic
	HandlePanic(poolName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(poolName string, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
		workerID, poolName, panicInfo, stackTrace)
}

// PanicError is the failure outcome of a task whose scale invocation panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("scale task panicked: %v", e.Value)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting pool execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution.
type Metrics interface {
	// RecordTaskDuration records how long a scale task took to execute.
	RecordTaskDuration(poolName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordTaskRejected records that a submission was rejected
	// (e.g., bounded queue full, pool shut down).
	RecordTaskRejected(poolName string, reason string)

	// RecordTaskCancelled records that a queued task was cancelled before
	// it started executing.
	RecordTaskCancelled(poolName string)

	// RecordQueueDepth records the current admission queue depth.
	RecordQueueDepth(poolName string, depth int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(poolName string, duration time.Duration) {}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any) {}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string) {}

// RecordTaskCancelled is a no-op.
func (m *NilMetrics) RecordTaskCancelled(poolName string) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(poolName string, depth int) {}

// =============================================================================
// PoolConfig: Configuration for FixedPool
// =============================================================================

// PoolConfig holds configuration options for FixedPool.
// All fields are optional; zero values select default implementations.
type PoolConfig struct {
	// Name identifies the pool in logs and metrics. Defaults to "scale-pool".
	Name string

	// QueueCapacity bounds the admission queue. Zero means unbounded; a
	// bounded pool rejects submissions with ErrQueueFull once full.
	QueueCapacity int

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// Logger receives pool lifecycle events. Defaults to NewDefaultLogger().
	Logger Logger
}

// DefaultPoolConfig returns a config with default handlers.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Name:         "scale-pool",
		PanicHandler: &DefaultPanicHandler{},
		Metrics:      &NilMetrics{},
		Logger:       NewDefaultLogger(),
	}
}
