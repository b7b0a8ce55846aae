package task

import "errors"

var (
	// ErrTaskEvicted indicates the task exceeded its attempt ceiling and was
	// removed along with its session artifacts.
	ErrTaskEvicted = errors.New("grader task exceeded attempt ceiling and was evicted")

	// ErrNoPendingWork indicates the task has no items to grade even after
	// materialization.
	ErrNoPendingWork = errors.New("grader task has no pending items")

	// ErrNilDependency indicates a required constructor dependency was nil.
	ErrNilDependency = errors.New("required dependency is nil")
)
