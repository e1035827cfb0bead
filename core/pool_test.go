package core

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quietConfig(name string) *PoolConfig {
	cfg := DefaultPoolConfig()
	cfg.Name = name
	cfg.Logger = NewNoOpLogger()
	return cfg
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 1, 1))
}

func noopScale(ctx context.Context) (image.Image, error) {
	return testImage(), nil
}

func TestFixedPool_ExecutesSubmittedTasks(t *testing.T) {
	pool := NewFixedPoolWithConfig(4, quietConfig("exec-pool"))
	defer pool.Shutdown()

	var counter int32
	taskCount := 10

	handles := make([]*Handle, 0, taskCount)
	for i := 0; i < taskCount; i++ {
		task := NewTask(func(ctx context.Context) (image.Image, error) {
			atomic.AddInt32(&counter, 1)
			return testImage(), nil
		})
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		handles = append(handles, task.Handle())
	}

	for i, h := range handles {
		img, err := h.WaitTimeout(2 * time.Second)
		if err != nil {
			t.Fatalf("task %d failed: %v", i, err)
		}
		if img == nil {
			t.Fatalf("task %d returned nil image", i)
		}
	}

	if val := atomic.LoadInt32(&counter); val != int32(taskCount) {
		t.Errorf("expected %d executed tasks, got %d", taskCount, val)
	}
}

func TestFixedPool_ConcurrencyBound(t *testing.T) {
	workers := 3
	pool := NewFixedPoolWithConfig(workers, quietConfig("bound-pool"))
	defer pool.ShutdownNow()

	var active, maxActive int32
	release := make(chan struct{})

	taskCount := workers + 5
	handles := make([]*Handle, 0, taskCount)
	for i := 0; i < taskCount; i++ {
		task := NewTask(func(ctx context.Context) (image.Image, error) {
			cur := atomic.AddInt32(&active, 1)
			for {
				prev := atomic.LoadInt32(&maxActive)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, cur) {
					break
				}
			}
			<-release
			atomic.AddInt32(&active, -1)
			return testImage(), nil
		})
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		handles = append(handles, task.Handle())
	}

	// Give the workers time to pick up as much as they are allowed to.
	time.Sleep(100 * time.Millisecond)
	close(release)

	for _, h := range handles {
		if _, err := h.WaitTimeout(2 * time.Second); err != nil {
			t.Fatalf("task failed: %v", err)
		}
	}

	if got := atomic.LoadInt32(&maxActive); got > int32(workers) {
		t.Errorf("observed %d concurrent tasks, worker limit is %d", got, workers)
	}
}

func TestFixedPool_FIFOAdmission(t *testing.T) {
	// Single worker: start order must equal submission order.
	pool := NewFixedPoolWithConfig(1, quietConfig("fifo-pool"))
	defer pool.Shutdown()

	var mu sync.Mutex
	var order []int

	taskCount := 20
	handles := make([]*Handle, 0, taskCount)
	for i := 0; i < taskCount; i++ {
		n := i
		task := NewTask(func(ctx context.Context) (image.Image, error) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return testImage(), nil
		})
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		handles = append(handles, task.Handle())
	}

	for _, h := range handles {
		if _, err := h.WaitTimeout(2 * time.Second); err != nil {
			t.Fatalf("task failed: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		if n != i {
			t.Fatalf("task %d started at position %d, want submission order", n, i)
		}
	}
}

func TestFixedPool_SaturatedQueueNeverDrops(t *testing.T) {
	// 10 tasks on 1 worker, task #5 fails validation: 9 successes, 1 failed
	// handle, all eventually resolved.
	pool := NewFixedPoolWithConfig(1, quietConfig("queue-pool"))
	defer pool.Shutdown()

	validationErr := errors.New("invalid argument")
	handles := make([]*Handle, 0, 10)
	for i := 0; i < 10; i++ {
		n := i
		task := NewTask(func(ctx context.Context) (image.Image, error) {
			if n == 4 {
				return nil, validationErr
			}
			return testImage(), nil
		})
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		handles = append(handles, task.Handle())
	}

	var succeeded, failed int
	for _, h := range handles {
		if _, err := h.WaitTimeout(2 * time.Second); err != nil {
			if !errors.Is(err, validationErr) {
				t.Fatalf("unexpected failure: %v", err)
			}
			failed++
		} else {
			succeeded++
		}
	}

	if succeeded != 9 || failed != 1 {
		t.Errorf("got %d successes and %d failures, want 9 and 1", succeeded, failed)
	}
}

func TestFixedPool_BoundedQueueRejects(t *testing.T) {
	cfg := quietConfig("bounded-pool")
	cfg.QueueCapacity = 2
	pool := NewFixedPoolWithConfig(1, cfg)
	defer pool.ShutdownNow()

	block := make(chan struct{})
	blocker := NewTask(func(ctx context.Context) (image.Image, error) {
		<-block
		return testImage(), nil
	})
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Wait until the blocker has left the queue and occupies the worker.
	deadline := time.Now().Add(2 * time.Second)
	for pool.ActiveTaskCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("blocker never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Fill the two queue slots.
	for i := 0; i < 2; i++ {
		if err := pool.Submit(NewTask(noopScale)); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	// Third queued submission must be rejected synchronously.
	if err := pool.Submit(NewTask(noopScale)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit on full queue returned %v, want ErrQueueFull", err)
	}

	close(block)
}

func TestFixedPool_ShutdownDrainsQueue(t *testing.T) {
	pool := NewFixedPoolWithConfig(1, quietConfig("drain-pool"))

	var counter int32
	handles := make([]*Handle, 0, 5)
	for i := 0; i < 5; i++ {
		task := NewTask(func(ctx context.Context) (image.Image, error) {
			atomic.AddInt32(&counter, 1)
			time.Sleep(10 * time.Millisecond)
			return testImage(), nil
		})
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		handles = append(handles, task.Handle())
	}

	pool.Shutdown()

	if err := pool.AwaitTermination(2 * time.Second); err != nil {
		t.Fatalf("AwaitTermination failed: %v", err)
	}
	if !pool.IsShutdown() || !pool.IsTerminated() {
		t.Error("pool should be shut down and terminated")
	}

	// Every queued task completed despite the shutdown.
	for i, h := range handles {
		if _, err := h.Result(); err != nil {
			t.Errorf("task %d did not complete: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&counter); got != 5 {
		t.Errorf("executed %d tasks, want 5", got)
	}

	if err := pool.Submit(NewTask(noopScale)); !errors.Is(err, ErrShutdown) {
		t.Errorf("Submit after shutdown returned %v, want ErrShutdown", err)
	}
}

func TestFixedPool_ShutdownNowDiscardsQueue(t *testing.T) {
	pool := NewFixedPoolWithConfig(1, quietConfig("kill-pool"))

	block := make(chan struct{})
	blocker := NewTask(func(ctx context.Context) (image.Image, error) {
		<-block
		return testImage(), nil
	})
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pool.ActiveTaskCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("blocker never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var executed int32
	queued := make([]*Handle, 0, 4)
	for i := 0; i < 4; i++ {
		task := NewTask(func(ctx context.Context) (image.Image, error) {
			atomic.AddInt32(&executed, 1)
			return testImage(), nil
		})
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		queued = append(queued, task.Handle())
	}

	dropped := pool.ShutdownNow()
	close(block)

	if err := pool.AwaitTermination(2 * time.Second); err != nil {
		t.Fatalf("AwaitTermination failed: %v", err)
	}

	if len(dropped) != 4 {
		t.Errorf("ShutdownNow returned %d tasks, want 4", len(dropped))
	}
	for i, h := range queued {
		if _, err := h.Result(); !errors.Is(err, ErrCancelled) {
			t.Errorf("queued task %d outcome = %v, want ErrCancelled", i, err)
		}
	}
	if got := atomic.LoadInt32(&executed); got != 0 {
		t.Errorf("%d discarded tasks executed, want 0", got)
	}

	// The in-flight blocker still delivered its result.
	if _, err := blocker.Handle().WaitTimeout(2 * time.Second); err != nil {
		t.Errorf("in-flight task failed: %v", err)
	}
}

func TestFixedPool_CancelBeforeStartSkipsExecution(t *testing.T) {
	pool := NewFixedPoolWithConfig(1, quietConfig("cancel-pool"))
	defer pool.Shutdown()

	block := make(chan struct{})
	blocker := NewTask(func(ctx context.Context) (image.Image, error) {
		<-block
		return testImage(), nil
	})
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pool.ActiveTaskCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("blocker never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var sideEffect int32
	victim := NewTask(func(ctx context.Context) (image.Image, error) {
		atomic.AddInt32(&sideEffect, 1)
		return testImage(), nil
	})
	if err := pool.Submit(victim); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !victim.Handle().Cancel() {
		t.Fatal("Cancel of a queued task should succeed")
	}
	close(block)

	if _, err := victim.Handle().WaitTimeout(2 * time.Second); !errors.Is(err, ErrCancelled) {
		t.Fatalf("cancelled task outcome = %v, want ErrCancelled", err)
	}

	// Give the worker time to drain whatever it might wrongly still hold.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&sideEffect); got != 0 {
		t.Errorf("cancelled task executed %d times, want 0", got)
	}
}

func TestFixedPool_SubmitRacingShutdownNeverStrandsTask(t *testing.T) {
	// Submit and Shutdown race on a 1-worker pool. An accepted submission
	// (nil error) must always settle its handle; a lost race must surface
	// as ErrShutdown, never as a forever-pending handle.
	for i := 0; i < 500; i++ {
		pool := NewFixedPoolWithConfig(1, quietConfig("race-pool"))
		task := NewTask(noopScale)

		var submitErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			submitErr = pool.Submit(task)
		}()
		go func() {
			defer wg.Done()
			pool.Shutdown()
		}()
		wg.Wait()

		if err := pool.AwaitTermination(2 * time.Second); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}

		if submitErr != nil {
			if !errors.Is(submitErr, ErrShutdown) {
				t.Fatalf("iteration %d: Submit = %v, want ErrShutdown", i, submitErr)
			}
			continue
		}
		if _, err := task.Handle().WaitTimeout(2 * time.Second); err != nil {
			t.Fatalf("iteration %d: accepted task never settled: %v", i, err)
		}
	}
}

func TestFixedPool_CancelQueuedFreesBoundedSlot(t *testing.T) {
	cfg := quietConfig("cancel-slot-pool")
	cfg.QueueCapacity = 1
	pool := NewFixedPoolWithConfig(1, cfg)
	defer pool.ShutdownNow()

	block := make(chan struct{})
	blocker := NewTask(func(ctx context.Context) (image.Image, error) {
		<-block
		return testImage(), nil
	})
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pool.ActiveTaskCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("blocker never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	victim := NewTask(noopScale)
	if err := pool.Submit(victim); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := pool.Submit(NewTask(noopScale)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit on full queue returned %v, want ErrQueueFull", err)
	}

	// Cancelling the queued task frees its slot and the queued count
	// immediately, not when a worker eventually reaches it.
	if !victim.Handle().Cancel() {
		t.Fatal("Cancel of a queued task should succeed")
	}
	if got := pool.QueuedTaskCount(); got != 0 {
		t.Errorf("QueuedTaskCount after cancel = %d, want 0", got)
	}

	replacement := NewTask(noopScale)
	if err := pool.Submit(replacement); err != nil {
		t.Fatalf("Submit after cancel returned %v, want freed capacity", err)
	}

	close(block)
	if _, err := replacement.Handle().WaitTimeout(2 * time.Second); err != nil {
		t.Fatalf("replacement task failed: %v", err)
	}
	if _, err := victim.Handle().Result(); !errors.Is(err, ErrCancelled) {
		t.Errorf("victim outcome = %v, want ErrCancelled", err)
	}
}

func TestFixedPool_CancelAfterCompletionFails(t *testing.T) {
	pool := NewFixedPoolWithConfig(1, quietConfig("late-cancel-pool"))
	defer pool.Shutdown()

	task := NewTask(noopScale)
	if err := pool.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	img, err := task.Handle().WaitTimeout(2 * time.Second)
	if err != nil {
		t.Fatalf("task failed: %v", err)
	}

	if task.Handle().Cancel() {
		t.Error("Cancel of a completed task should fail")
	}

	// The already computed result is untouched.
	got, err := task.Handle().Result()
	if err != nil {
		t.Fatalf("Result after failed cancel: %v", err)
	}
	if got != img {
		t.Error("failed cancel altered the stored result")
	}
}

type recordingPanicHandler struct {
	calls int32
}

func (h *recordingPanicHandler) HandlePanic(poolName string, workerID int, panicInfo any, stackTrace []byte) {
	atomic.AddInt32(&h.calls, 1)
}

func TestFixedPool_PanicIsolatedToHandle(t *testing.T) {
	handler := &recordingPanicHandler{}
	cfg := quietConfig("panic-pool")
	cfg.PanicHandler = handler
	pool := NewFixedPoolWithConfig(1, cfg)
	defer pool.Shutdown()

	bad := NewTask(func(ctx context.Context) (image.Image, error) {
		panic("scale exploded")
	})
	if err := pool.Submit(bad); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, err := bad.Handle().WaitTimeout(2 * time.Second)
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("panicking task outcome = %v, want *PanicError", err)
	}
	if atomic.LoadInt32(&handler.calls) != 1 {
		t.Error("panic handler was not invoked")
	}

	// The worker survived and keeps executing.
	after := NewTask(noopScale)
	if err := pool.Submit(after); err != nil {
		t.Fatalf("Submit after panic failed: %v", err)
	}
	if _, err := after.Handle().WaitTimeout(2 * time.Second); err != nil {
		t.Errorf("task after panic failed: %v", err)
	}
}

func TestFixedPool_AwaitTerminationTimeout(t *testing.T) {
	pool := NewFixedPoolWithConfig(1, quietConfig("await-pool"))
	defer pool.ShutdownNow()

	block := make(chan struct{})
	defer close(block)
	task := NewTask(func(ctx context.Context) (image.Image, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return testImage(), nil
	})
	if err := pool.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	pool.Shutdown()
	if err := pool.AwaitTermination(50 * time.Millisecond); err == nil {
		t.Error("AwaitTermination should time out while a task is in flight")
	}
}

func TestFixedPool_Counts(t *testing.T) {
	pool := NewFixedPoolWithConfig(1, quietConfig("count-pool"))
	defer pool.ShutdownNow()

	if pool.WorkerCount() != 1 {
		t.Errorf("WorkerCount = %d, want 1", pool.WorkerCount())
	}

	block := make(chan struct{})
	blocker := NewTask(func(ctx context.Context) (image.Image, error) {
		<-block
		return testImage(), nil
	})
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pool.ActiveTaskCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("blocker never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		if err := pool.Submit(NewTask(noopScale)); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	if got := pool.QueuedTaskCount(); got != 3 {
		t.Errorf("QueuedTaskCount = %d, want 3", got)
	}

	stats := pool.Stats()
	if stats.Workers != 1 || stats.Queued != 3 || stats.Active != 1 || stats.Shutdown {
		t.Errorf("unexpected stats: %+v", stats)
	}

	close(block)
}

func TestNewFixedPool_PanicsOnInvalidWorkers(t *testing.T) {
	for _, workers := range []int{0, -1} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("NewFixedPool(%d) should panic", workers)
				}
			}()
			NewFixedPool(workers)
		})
	}
}
