package core

import (
	"context"
	"image"
)

// ScaleFunc is one deferred invocation of the scaling collaborator with all
// of its arguments already captured. The pool never inspects the collaborator;
// it only runs it and delivers the outcome.
type ScaleFunc func(ctx context.Context) (image.Image, error)

// Task is the unit of work: an immutable capture of a single scale invocation
// bound to exactly one Handle. Tasks are created per request and released
// after their outcome has been delivered.
type Task struct {
	run    ScaleFunc
	handle *Handle
}

// NewTask wraps a captured scale invocation into a submittable Task.
func NewTask(run ScaleFunc) *Task {
	return &Task{
		run:    run,
		handle: newHandle(),
	}
}

// Handle returns the result handle bound to this task.
func (t *Task) Handle() *Handle {
	return t.handle
}
