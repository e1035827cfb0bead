package core

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// taskQueue is a mutex-guarded FIFO admission queue. Tasks leave in exactly
// the order they entered; the pool never reorders or drops queued work.
type taskQueue struct {
	mu    sync.Mutex
	tasks []*Task
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks: make([]*Task, 0, defaultQueueCap),
	}
}

func (q *taskQueue) push(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

func (q *taskQueue) pop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return t, true
}

func (q *taskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]*Task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]*Task, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

// remove takes a specific task out of the queue. It returns false when the
// task is no longer queued, i.e. a worker already popped it or drain took it.
func (q *taskQueue) remove(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, qt := range q.tasks {
		if qt == t {
			copy(q.tasks[i:], q.tasks[i+1:])
			q.tasks[len(q.tasks)-1] = nil
			q.tasks = q.tasks[:len(q.tasks)-1]
			return true
		}
	}
	return false
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// drain removes and returns every queued task, releasing all references.
func (q *taskQueue) drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.tasks
	q.tasks = make([]*Task, 0, defaultQueueCap)
	return drained
}
