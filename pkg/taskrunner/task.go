package taskrunner

import (
	"context"
	"fmt"
)

// State is the state of a runner or of the handle of one of its tasks.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateSuperseded:
		return "SUPERSEDED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateSuperseded
}

// Task is one step of a sequence. Run performs the side effect and must
// eventually call exactly one of Complete, CompleteWith or Fail on the handle,
// either before returning or later from an asynchronous callback.
type Task interface {
	Name() string
	Run(ctx context.Context, h *Handle)
}

type task struct {
	name string
	run  func(ctx context.Context, h *Handle)
}

// NewTask returns a Task executing the given function.
func NewTask(name string, run func(ctx context.Context, h *Handle)) Task {
	return &task{name, run}
}

func (t *task) Name() string {
	return t.name
}

func (t *task) Run(ctx context.Context, h *Handle) {
	t.run(ctx, h)
}

// Handle is given to a running task to report its outcome. All methods are
// safe to call from any goroutine; only the first call is effective, later
// ones are logged and ignored.
type Handle struct {
	runner *Runner
	task   string
	index  int
	state  State
}

// Task returns the name of the task the handle belongs to.
func (h *Handle) Task() string {
	return h.task
}

// IsActive returns whether the handle can still report an outcome. Callbacks
// may use it to skip expensive work, but must still rely on CompleteWith to
// guard their mutations.
func (h *Handle) IsActive() bool {
	h.runner.mu.Lock()
	defer h.runner.mu.Unlock()
	return h.runner.state == StateRunning && h.state == StatePending
}

// Complete marks the task as completed and advances the runner.
func (h *Handle) Complete() bool {
	return h.CompleteWith(nil)
}

// CompleteWith applies the given mutation and completes the task, but only if
// the task is still the active one of a running runner. The mutation runs
// while holding the runner's lock, so it must not call back into the runner.
// If the mutation fails, the task fails with the returned error.
// It returns whether the outcome was accepted.
func (h *Handle) CompleteWith(apply func() error) bool {
	return h.runner.complete(h, apply)
}

// Update applies the given mutation without completing the task, but only if
// the task is still the active one of a running runner. It is meant for
// records that must be stored before a side effect takes place. It returns
// whether the mutation was applied.
func (h *Handle) Update(apply func() error) (bool, error) {
	return h.runner.update(h, apply)
}

// Fail marks the task as failed and aborts the remaining sequence.
func (h *Handle) Fail(err error) bool {
	if err == nil {
		err = ErrUnknownFailure
	}
	return h.runner.fail(h, err)
}

// Failf is a convenience wrapper around Fail.
func (h *Handle) Failf(format string, args ...interface{}) bool {
	return h.Fail(fmt.Errorf(format, args...))
}
