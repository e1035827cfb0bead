package core

import "testing"

func TestTaskQueue_FIFOOrder(t *testing.T) {
	q := newTaskQueue()

	tasks := make([]*Task, 5)
	for i := range tasks {
		tasks[i] = NewTask(noopScale)
		q.push(tasks[i])
	}

	if q.len() != 5 {
		t.Fatalf("len = %d, want 5", q.len())
	}

	for i := range tasks {
		got, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d failed", i)
		}
		if got != tasks[i] {
			t.Fatalf("pop %d returned wrong task", i)
		}
	}

	if _, ok := q.pop(); ok {
		t.Error("pop on empty queue should fail")
	}
}

func TestTaskQueue_Remove(t *testing.T) {
	q := newTaskQueue()

	tasks := make([]*Task, 3)
	for i := range tasks {
		tasks[i] = NewTask(noopScale)
		q.push(tasks[i])
	}

	if !q.remove(tasks[1]) {
		t.Fatal("remove of a queued task should succeed")
	}
	if q.remove(tasks[1]) {
		t.Error("second remove of the same task should fail")
	}
	if q.len() != 2 {
		t.Fatalf("len after remove = %d, want 2", q.len())
	}

	// FIFO order of the remaining tasks is preserved.
	if got, _ := q.pop(); got != tasks[0] {
		t.Error("first pop returned wrong task")
	}
	if got, _ := q.pop(); got != tasks[2] {
		t.Error("second pop returned wrong task")
	}
}

func TestTaskQueue_Drain(t *testing.T) {
	q := newTaskQueue()
	for i := 0; i < 3; i++ {
		q.push(NewTask(noopScale))
	}

	drained := q.drain()
	if len(drained) != 3 {
		t.Fatalf("drained %d tasks, want 3", len(drained))
	}
	if q.len() != 0 {
		t.Errorf("len after drain = %d, want 0", q.len())
	}
}

func TestTaskQueue_CompactsAfterBulkPop(t *testing.T) {
	q := newTaskQueue()

	// Grow well past the compaction floor, then drain most of it.
	for i := 0; i < 4*compactMinCap; i++ {
		q.push(NewTask(noopScale))
	}
	for i := 0; i < 4*compactMinCap-2; i++ {
		if _, ok := q.pop(); !ok {
			t.Fatalf("pop %d failed", i)
		}
	}

	if c := cap(q.tasks); c >= 4*compactMinCap {
		t.Errorf("queue capacity %d was never compacted", c)
	}
	if q.len() != 2 {
		t.Errorf("len = %d, want 2", q.len())
	}
}
